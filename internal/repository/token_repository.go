package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
)

// TokenRepository persists refresh token sessions in the document store.
type TokenRepository struct {
	store docstore.Store
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(store docstore.Store) *TokenRepository {
	return &TokenRepository{store: store}
}

// CreateRefreshToken persists a refresh token entry.
func (r *TokenRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	fields := map[string]interface{}{
		models.FieldUserID:    token.UserID,
		models.FieldToken:     token.Token,
		models.FieldExpiresAt: token.ExpiresAt,
		models.FieldCreatedAt: token.CreatedAt,
		models.FieldRevoked:   token.Revoked,
		models.FieldIPAddress: token.IPAddress,
		models.FieldUserAgent: token.UserAgent,
	}
	id, err := r.store.Create(ctx, models.CollectionRefreshTokens, fields)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	token.ID = id
	return nil
}

// FindRefreshToken returns a refresh token by token string.
func (r *TokenRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	docs, err := r.store.QueryOnce(ctx, docstore.Collection(models.CollectionRefreshTokens).Eq(models.FieldToken, token))
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if len(docs) == 0 {
		return nil, docstore.ErrNotFound
	}
	var rt models.RefreshToken
	if err := docstore.Decode(docs[0], &rt); err != nil {
		return nil, err
	}
	return &rt, nil
}

// RevokeRefreshToken marks a token as revoked.
func (r *TokenRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	err := r.store.Update(ctx, models.CollectionRefreshTokens, id, map[string]interface{}{
		models.FieldRevoked:   true,
		models.FieldRevokedAt: revokedAt,
	})
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live refresh token of an account.
func (r *TokenRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	q := docstore.Collection(models.CollectionRefreshTokens).
		Eq(models.FieldUserID, userID).
		Eq(models.FieldRevoked, false)
	docs, err := r.store.QueryOnce(ctx, q)
	if err != nil {
		return fmt.Errorf("list user refresh tokens: %w", err)
	}
	now := time.Now().UTC()
	for _, doc := range docs {
		if err := r.RevokeRefreshToken(ctx, doc.ID, now); err != nil {
			return err
		}
	}
	return nil
}
