package api

import (
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// apiKeyAuth rejects requests that do not carry the configured key in the
// X-API-Key header. Comparison is constant time.
func (s *Server) apiKeyAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
			s.logger.Warn(c.Request.Context(), "Rejected request with invalid API key", map[string]interface{}{
				"client": c.ClientIP(), "path": c.Request.URL.Path,
			})
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}

// rateLimiter is a fixed-window per-client limiter. State is in memory; the
// window map is pruned lazily as clients hit new windows.
func (s *Server) rateLimiter() gin.HandlerFunc {
	type window struct {
		start time.Time
		count int
	}
	var (
		mu      sync.Mutex
		clients = make(map[string]*window)
	)

	return func(c *gin.Context) {
		now := time.Now()
		client := c.ClientIP()

		mu.Lock()
		w, ok := clients[client]
		if !ok || now.Sub(w.start) >= time.Minute {
			w = &window{start: now}
			clients[client] = w
			// Drop other clients whose window has long expired.
			for ip, other := range clients {
				if now.Sub(other.start) >= 2*time.Minute {
					delete(clients, ip)
				}
			}
		}
		w.count++
		over := w.count > s.cfg.RateLimitPerMinute
		mu.Unlock()

		if over {
			s.logger.Warn(c.Request.Context(), "Rate limit exceeded", map[string]interface{}{
				"client": client, "limit": s.cfg.RateLimitPerMinute,
			})
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
