package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type observation struct {
	method string
	route  string
	status int
}

type recordingObserver struct {
	seen []observation
}

func (r *recordingObserver) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	r.seen = append(r.seen, observation{method, route, status})
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &recordingObserver{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/events/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/live/:view", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/events/E1", "/events/E2", "/nope/abc"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}
	upgrade := httptest.NewRequest(http.MethodGet, "/live/home", nil)
	upgrade.Header.Set("Upgrade", "websocket")
	r.ServeHTTP(httptest.NewRecorder(), upgrade)

	assert.Equal(t, []observation{
		{http.MethodGet, "/events/:id", http.StatusOK},
		{http.MethodGet, "/events/:id", http.StatusOK},
		{http.MethodGet, unmatchedRoute, http.StatusNotFound},
	}, obs.seen)
}
