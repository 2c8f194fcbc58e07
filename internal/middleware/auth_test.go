package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/logger"
)

type tokenTable map[string]*models.JWTClaims

func (t tokenTable) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := t[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

var tokens = tokenTable{
	"organizer": {UserID: "U1", Email: "u1@campus.edu", Role: models.RoleOrganizer},
	"student":   {UserID: "S1", Email: "s1@campus.edu", Role: models.RoleStudent},
}

func newAuthRouter(auth gin.HandlerFunc, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{auth}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(logger.UserIDKey)})
	})
	router.GET("/protected", handlers...)
	return router
}

func serve(router *gin.Engine, target string, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTMiddleware(t *testing.T) {
	router := newAuthRouter(JWT(tokens))

	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{name: "bearer token", target: "/protected", header: "Bearer organizer", status: http.StatusOK},
		{name: "lower case scheme", target: "/protected", header: "bearer student", status: http.StatusOK},
		{name: "missing header", target: "/protected", status: http.StatusUnauthorized},
		{name: "wrong scheme", target: "/protected", header: "Basic organizer", status: http.StatusUnauthorized},
		{name: "unknown token", target: "/protected", header: "Bearer forged", status: http.StatusUnauthorized},
		{name: "query ignored", target: "/protected?token=organizer", status: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(router, tc.target, tc.header)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestJWTWithQueryAcceptsTokenParam(t *testing.T) {
	router := newAuthRouter(JWTWithQuery(tokens))

	rec := serve(router, "/protected?token=student", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "S1", body["user"])

	rec = serve(router, "/protected?token=forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRoles(t *testing.T) {
	router := newAuthRouter(JWT(tokens), RequireRoles(models.RoleOrganizer))

	assert.Equal(t, http.StatusOK, serve(router, "/protected", "Bearer organizer").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, "/protected", "Bearer student").Code)
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", RequireRoles(models.RoleStudent), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, serve(router, "/protected", "").Code)
}

type auditSink struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (s *auditSink) Record(_ context.Context, entry *models.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sink := &auditSink{}
	router := gin.New()
	router.GET("/export/:token", Audit(sink, models.AuditActionExportDownload, "report"), func(c *gin.Context) {
		if c.Param("token") == "bad" {
			c.Status(http.StatusForbidden)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/export/good", nil)
	req.Header.Set("User-Agent", "curl/8")
	router.ServeHTTP(httptest.NewRecorder(), req)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/export/bad", nil))

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, models.AuditActionExportDownload, entry.Action)
	assert.Equal(t, "report", entry.Resource)
	assert.Equal(t, "curl/8", entry.UserAgent)
	assert.Nil(t, entry.UserID)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.NewValues, &body))
	assert.Equal(t, "/export/:token", body["path"])
	assert.Equal(t, float64(http.StatusOK), body["status"])
}
