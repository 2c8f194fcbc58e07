package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	metaKey      = "response_meta"
	metaStartKey = "response_meta_start"

	// MetaCacheHit reports whether the payload was served from cache.
	MetaCacheHit = "cache_hit"
	// MetaProcessingTime is the handler time in milliseconds.
	MetaProcessingTime = "processing_time_ms"
)

// WithResponseMeta opens a per-request metadata bag that handlers fill and
// ExtractMeta returns for the response envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaStartKey, time.Now())
		c.Set(metaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetMeta records one metadata entry for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	meta, ok := c.Get(metaKey)
	bag, typed := meta.(map[string]interface{})
	if !ok || !typed {
		bag = map[string]interface{}{}
		c.Set(metaKey, bag)
	}
	bag[key] = value
}

// SetCacheHit records whether the payload came from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, MetaCacheHit, hit)
}

// ExtractMeta returns a copy of the metadata recorded so far, stamped with the
// elapsed processing time when WithResponseMeta is installed. It returns nil
// when nothing was recorded.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	out := map[string]interface{}{}
	if meta, ok := c.Get(metaKey); ok {
		if bag, ok := meta.(map[string]interface{}); ok {
			for k, v := range bag {
				out[k] = v
			}
		}
	}
	if start, ok := c.Get(metaStartKey); ok {
		if t, ok := start.(time.Time); ok {
			out[MetaProcessingTime] = time.Since(t).Milliseconds()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
