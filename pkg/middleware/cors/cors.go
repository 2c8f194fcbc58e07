package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders  = "Authorization, Content-Type, X-Request-ID"
	allowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	exposeHeaders = "X-Request-ID, Content-Disposition, X-Export-Expires-At"
)

// Policy decides which browser origins may call the API. Entries are exact
// origins ("https://app.campus.edu") or a leading wildcard host
// ("https://*.campus.edu"). An empty policy allows every origin.
type Policy struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewPolicy parses the configured origins.
func NewPolicy(origins []string) *Policy {
	p := &Policy{exact: map[string]struct{}{}}
	for _, origin := range origins {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		switch {
		case origin == "":
		case origin == "*":
			return &Policy{}
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*")
			p.suffixes = append(p.suffixes, scheme+"://|"+host)
		default:
			p.exact[origin] = struct{}{}
		}
	}
	return p
}

// Open reports whether every origin is allowed.
func (p *Policy) Open() bool {
	return p == nil || (len(p.exact) == 0 && len(p.suffixes) == 0)
}

// Allows reports whether requests from origin are permitted. Requests
// without an Origin header are not browser cross-origin calls and pass.
func (p *Policy) Allows(origin string) bool {
	if origin == "" || p.Open() {
		return true
	}
	origin = strings.ToLower(strings.TrimRight(origin, "/"))
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, suffix := range p.suffixes {
		scheme, host, _ := strings.Cut(suffix, "|")
		if rest, ok := strings.CutPrefix(origin, scheme); ok && strings.HasSuffix(rest, host) && len(rest) > len(host) {
			return true
		}
	}
	return false
}

// CheckOrigin adapts the policy to websocket upgraders.
func (p *Policy) CheckOrigin(r *http.Request) bool {
	return p.Allows(r.Header.Get("Origin"))
}

// Middleware answers preflights and decorates responses for allowed
// origins. Disallowed preflights are rejected; disallowed simple requests
// proceed without CORS headers so the browser blocks the response.
func (p *Policy) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		preflight := c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != ""
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		if origin != "" && p.Allows(origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Expose-Headers", exposeHeaders)
		}
		if !preflight {
			c.Next()
			return
		}
		if !p.Allows(origin) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Max-Age", "600")
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// New is shorthand for NewPolicy(origins).Middleware().
func New(origins []string) gin.HandlerFunc {
	return NewPolicy(origins).Middleware()
}
