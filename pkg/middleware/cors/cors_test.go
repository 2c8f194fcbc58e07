package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(New(origins))
	r.GET("/events", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORSAllowedOrigin(t *testing.T) {
	r := newRouter([]string{"https://app.example/"})
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}

func TestCORSUnknownOriginGetsNoHeaders(t *testing.T) {
	r := newRouter([]string{"https://app.example"})
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter([]string{"https://*.campus.edu"})

	tests := []struct {
		origin string
		code   int
	}{
		{"https://portal.campus.edu", http.StatusNoContent},
		{"https://evil.example", http.StatusForbidden},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/events", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusNoContent {
				assert.Equal(t, allowMethods, w.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestPolicyAllows(t *testing.T) {
	open := NewPolicy(nil)
	assert.True(t, open.Open())
	assert.True(t, open.Allows("https://any.example"))
	assert.True(t, NewPolicy([]string{"https://app.example", "*"}).Open())

	p := NewPolicy([]string{"https://app.example/", "https://*.campus.edu"})
	assert.True(t, p.Allows(""))
	assert.True(t, p.Allows("https://APP.example"))
	assert.True(t, p.Allows("https://events.campus.edu"))
	assert.False(t, p.Allows("https://campus.edu"))
	assert.False(t, p.Allows("http://events.campus.edu"))
	assert.False(t, p.Allows("https://evilcampus.edu"))
	assert.False(t, p.Allows("https://evil.example"))
}
