package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type fakeAuthService struct {
	loginErr     error
	lastLogin    models.LoginRequest
	loggedOut    string
	logoutUserID string
	changedFor   string
}

func (f *fakeAuthService) Register(_ context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	return &models.UserInfo{ID: "U9", Email: req.Email, Role: req.Role}, nil
}

func (f *fakeAuthService) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastLogin = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.LoginResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600}, nil
}

func (f *fakeAuthService) RefreshToken(context.Context, models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	return &models.RefreshTokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

func (f *fakeAuthService) Logout(_ context.Context, refreshToken, userID string, _ models.LoginRequest) error {
	f.loggedOut = refreshToken
	f.logoutUserID = userID
	return nil
}

func (f *fakeAuthService) ChangePassword(_ context.Context, userID string, _ models.ChangePasswordRequest) error {
	f.changedFor = userID
	return nil
}

func (f *fakeAuthService) Me(_ context.Context, userID string) (*models.UserInfo, error) {
	return &models.UserInfo{ID: userID}, nil
}

func TestAuthHandlerLoginStampsClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeAuthService{}
	handler := NewAuthHandler(srv)

	c, w := newGinContext(http.MethodPost, "/auth/login", []byte(`{"email":"s1@campus.edu","password":"secret1"}`))
	c.Request.Header.Set("User-Agent", "eventctl/1.0")
	handler.Login(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1@campus.edu", srv.lastLogin.Email)
	assert.Equal(t, "eventctl/1.0", srv.lastLogin.UserAgent)
	assert.Contains(t, w.Body.String(), `"access_token":"access"`)
}

func TestAuthHandlerLoginErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{name: "malformed", body: `{"email":`, code: http.StatusBadRequest},
		{name: "bad credentials", body: `{"email":"s1@campus.edu","password":"nope"}`, err: appErrors.ErrInvalidCredentials, code: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAuthHandler(&fakeAuthService{loginErr: tc.err})
			c, w := newGinContext(http.MethodPost, "/auth/login", []byte(tc.body))
			handler.Login(c)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestAuthHandlerLogoutUsesActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeAuthService{}
	handler := NewAuthHandler(srv)

	c, _ := newGinContext(http.MethodPost, "/auth/logout", []byte(`{"refresh_token":"rt-1"}`))
	withClaims(c, organizerClaims)
	handler.Logout(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "rt-1", srv.loggedOut)
	assert.Equal(t, "U1", srv.logoutUserID)

	c, w := newGinContext(http.MethodPost, "/auth/logout", []byte(`{}`))
	withClaims(c, organizerClaims)
	handler.Logout(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandlerProtectedRoutesNeedClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&fakeAuthService{})

	for name, fn := range map[string]gin.HandlerFunc{"me": handler.Me, "change-password": handler.ChangePassword} {
		c, w := newGinContext(http.MethodGet, "/auth/"+name, nil)
		fn(c)
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
	}

	c, w := newGinContext(http.MethodGet, "/auth/me", nil)
	withClaims(c, studentClaims)
	handler.Me(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"S1"`)
}
