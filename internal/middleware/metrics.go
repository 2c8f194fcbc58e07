package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests no route matched, so probing random URLs
// cannot grow the label set.
const unmatchedRoute = "unmatched"

// RequestObserver receives one observation per finished HTTP request.
type RequestObserver interface {
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Metrics reports every request under its route template. Websocket streams
// are skipped; their lifetime is tracked as live sessions instead.
func Metrics(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		if observer == nil || isUpgrade(c) {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}
