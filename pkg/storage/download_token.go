package storage

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const downloadAudience = "report-download"

var (
	// ErrInvalidToken is returned for malformed or tampered download tokens.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrTokenExpired is returned once a token is past its expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// DownloadClaims binds a finished export file to its job. The job id travels
// as the JWT id.
type DownloadClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// DownloadGrant is the verified content of a download token.
type DownloadGrant struct {
	JobID     string
	Path      string
	ExpiresAt time.Time
}

// DownloadSigner issues and verifies HS256 download tokens for stored exports.
type DownloadSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewDownloadSigner constructs a signer with the provided secret and TTL.
func NewDownloadSigner(secret string, ttl time.Duration) *DownloadSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DownloadSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a token granting access to relPath for the job.
func (s *DownloadSigner) Issue(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, errors.New("job id and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	now := s.now()
	expiresAt := now.Add(s.ttl).Truncate(time.Second)
	claims := DownloadClaims{
		Path: relPath,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jobID,
			Audience:  jwt.ClaimStrings{downloadAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks the signature and audience of token. Expiry is enforced
// unless allowExpired is set, which cleanup uses to locate stale files.
func (s *DownloadSigner) Verify(token string, allowExpired bool) (DownloadGrant, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	} else {
		opts = append(opts, jwt.WithAudience(downloadAudience), jwt.WithExpirationRequired())
	}

	var claims DownloadClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return DownloadGrant{}, ErrTokenExpired
	case err != nil:
		return DownloadGrant{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !slices.Contains(claims.Audience, downloadAudience) || claims.ID == "" || claims.Path == "" {
		return DownloadGrant{}, fmt.Errorf("%w: claims", ErrInvalidToken)
	}

	grant := DownloadGrant{JobID: claims.ID, Path: claims.Path}
	if claims.ExpiresAt != nil {
		grant.ExpiresAt = claims.ExpiresAt.Time
	}
	return grant, nil
}
