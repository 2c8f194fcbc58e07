package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type recordingAudit struct {
	entries []*models.AuditLog
}

func (r *recordingAudit) Record(_ context.Context, entry *models.AuditLog) {
	r.entries = append(r.entries, entry)
}

func (r *recordingAudit) actions() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type authFixture struct {
	svc      *AuthService
	accounts *repository.AccountRepository
	tokens   *repository.TokenRepository
	audit    *recordingAudit
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	f := authFixture{
		accounts: repository.NewAccountRepository(store),
		tokens:   repository.NewTokenRepository(store),
		audit:    &recordingAudit{},
	}
	f.svc = NewAuthService(AuthServiceParams{
		Accounts:  f.accounts,
		Tokens:    f.tokens,
		Audit:     f.audit,
		Validator: validator.New(),
		Logger:    zap.NewNop(),
		Config: AuthConfig{
			AccessTokenSecret:  "secret",
			AccessTokenExpiry:  time.Hour,
			RefreshTokenExpiry: 24 * time.Hour,
			PasswordCost:       bcrypt.MinCost,
		},
	})
	return f
}

func registerRequest(email string, role models.Role) models.RegisterRequest {
	return models.RegisterRequest{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		UserName:        "ada",
		Email:           email,
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Role:            role,
	}
}

func TestAuthServiceRegisterHashesPasswordAndRejectsDuplicates(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	info, err := f.svc.Register(ctx, registerRequest("Ada@Campus.edu", models.RoleOrganizer))
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", info.FullName)
	assert.Equal(t, models.RoleOrganizer, info.Role)

	stored, err := f.accounts.FindByEmail(ctx, "ada@campus.edu")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))

	_, err = f.svc.Register(ctx, registerRequest("ada@campus.edu", models.RoleStudent))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, []string{models.AuditActionRegister}, f.audit.actions())
}

// racingAccounts misses the email lookup, then loses the insert to the unique index.
type racingAccounts struct {
	*repository.AccountRepository
}

func (racingAccounts) FindByEmail(context.Context, string) (*models.Account, error) {
	return nil, docstore.ErrNotFound
}

func (racingAccounts) Create(context.Context, *models.Account) error {
	return fmt.Errorf("create account: %w", docstore.ErrDuplicate)
}

func TestAuthServiceRegisterMapsDuplicateKeyToConflict(t *testing.T) {
	f := newAuthFixture(t)
	svc := NewAuthService(AuthServiceParams{
		Accounts:  racingAccounts{f.accounts},
		Tokens:    f.tokens,
		Audit:     f.audit,
		Validator: validator.New(),
		Config:    AuthConfig{AccessTokenSecret: "secret", PasswordCost: bcrypt.MinCost},
	})

	_, err := svc.Register(context.Background(), registerRequest("ada@campus.edu", models.RoleStudent))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.Status)
	assert.Empty(t, f.audit.actions())
}

func TestAuthServiceRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)

	cases := map[string]func(*models.RegisterRequest){
		"password mismatch": func(r *models.RegisterRequest) { r.ConfirmPassword = "other" },
		"malformed email":   func(r *models.RegisterRequest) { r.Email = "not-an-email" },
		"unknown role":      func(r *models.RegisterRequest) { r.Role = "admin" },
		"missing name":      func(r *models.RegisterRequest) { r.FirstName = "" },
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			req := registerRequest("x@campus.edu", models.RoleStudent)
			mutate(&req)
			_, err := f.svc.Register(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestAuthServiceLoginRefreshLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, registerRequest("s@campus.edu", models.RoleStudent))
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "s@campus.edu", Password: "wrong"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "nobody@campus.edu", Password: "secret1"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)

	login, err := f.svc.Login(ctx, models.LoginRequest{Email: "S@campus.edu", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, login.AccessToken)
	assert.Equal(t, int64(3600), login.ExpiresIn)

	claims, err := f.svc.ValidateToken(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, login.User.ID, claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "s@campus.edu", claims.Email)

	account, err := f.accounts.FindByID(ctx, login.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, account.LastLogin)

	refreshed, err := f.svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	_, err = f.svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	err = f.svc.Logout(ctx, refreshed.RefreshToken, "someone-else", models.LoginRequest{})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, f.svc.Logout(ctx, refreshed.RefreshToken, login.User.ID, models.LoginRequest{}))
	stored, err := f.tokens.FindRefreshToken(ctx, refreshed.RefreshToken)
	require.NoError(t, err)
	assert.True(t, stored.Revoked)

	assert.Equal(t, []string{models.AuditActionRegister, models.AuditActionLogin, models.AuditActionLogout}, f.audit.actions())
}

func TestAuthServiceChangePasswordRevokesSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	info, err := f.svc.Register(ctx, registerRequest("o@campus.edu", models.RoleOrganizer))
	require.NoError(t, err)
	login, err := f.svc.Login(ctx, models.LoginRequest{Email: "o@campus.edu", Password: "secret1"})
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, info.ID, models.ChangePasswordRequest{OldPassword: "bad", NewPassword: "newsecret"})
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, f.svc.ChangePassword(ctx, info.ID, models.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "newsecret"}))

	_, err = f.svc.RefreshToken(ctx, models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "o@campus.edu", Password: "newsecret"})
	require.NoError(t, err)

	me, err := f.svc.Me(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "o@campus.edu", me.Email)

	_, err = f.svc.Me(ctx, "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

type failingAccounts struct {
	authAccountRepository
}

func (failingAccounts) FindByEmail(context.Context, string) (*models.Account, error) {
	return nil, errors.New("connection reset")
}

func TestAuthServiceSurfacesStoreFailures(t *testing.T) {
	svc := NewAuthService(AuthServiceParams{
		Accounts: failingAccounts{},
		Config:   AuthConfig{AccessTokenSecret: "secret", PasswordCost: bcrypt.MinCost},
	})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "a@campus.edu", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)

	_, err = svc.Register(context.Background(), registerRequest("a@campus.edu", models.RoleStudent))
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	f := newAuthFixture(t)
	other := NewAuthService(AuthServiceParams{Config: AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour}})
	token, _, err := other.generateAccessToken(&models.Account{ID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = f.svc.ValidateToken(token)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
