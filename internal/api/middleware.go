package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"modguard/internal/models"
	"modguard/internal/store"
)

const tenantContextKey = "tenant"

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range s.cfg.CORSOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()

		s.log.Info("http_request",
			"method", method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", clientIP,
		)
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		path := c.Request.URL.Path

		// per-endpoint limits; the plugin protocol polls constantly
		var limit int64 = 120
		window := 1 * time.Minute

		if strings.HasPrefix(path, "/api/v1/sync") || strings.HasPrefix(path, "/api/v1/login") {
			limit = 600
		} else if strings.HasPrefix(path, "/api/v1/players") {
			limit = 60
		}

		// sliding window on a redis sorted set
		now := time.Now().Unix()
		windowSeconds := int64(window.Seconds())
		key := fmt.Sprintf("ratelimit:sw:%s:%s", clientIP, path)

		ctx := c.Request.Context()

		oldest := now - windowSeconds
		_ = s.redis.RDB().ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", oldest)).Err()

		count, err := s.redis.RDB().ZCard(ctx, key).Result()
		if err != nil {
			s.log.Warn("rate_limit_error", "error", err)
			c.Next()
			return
		}

		if count >= limit {
			oldestReq, _ := s.redis.RDB().ZRangeWithScores(ctx, key, 0, 0).Result()
			var retryAfter int64 = windowSeconds
			if len(oldestReq) > 0 {
				retryAfter = windowSeconds - (now - int64(oldestReq[0].Score))
				if retryAfter < 0 {
					retryAfter = 0
				}
			}

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			s.fail(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		member := fmt.Sprintf("%d:%s", now, c.Request.Header.Get("X-Request-Id"))
		_ = s.redis.RDB().ZAdd(ctx, key, redis.Z{
			Score:  float64(now),
			Member: member,
		}).Err()
		_ = s.redis.RDB().Expire(ctx, key, window).Err()

		c.Next()
	}
}

func (s *Server) inputValidationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		for _, values := range query {
			for i, value := range values {
				sanitized := sanitizeInput(value)
				if len(sanitized) > 500 {
					s.fail(c, http.StatusBadRequest, "invalid_parameter", "parameter too long")
					return
				}
				values[i] = sanitized
			}
		}

		for i := range c.Params {
			if len(c.Params[i].Value) > 100 {
				s.fail(c, http.StatusBadRequest, "invalid_parameter", "parameter too long")
				return
			}
			c.Params[i].Value = sanitizeInput(c.Params[i].Value)
		}

		c.Next()
	}
}

// keep printable input; strip control characters except whitespace
func sanitizeInput(input string) string {
	result := make([]rune, 0, len(input))
	for _, r := range input {
		if r >= 32 || r == '\n' || r == '\r' || r == '\t' {
			result = append(result, r)
		}
	}
	return string(result)
}

// tenantAuthMiddleware resolves the API key to a tenant row and attaches it
// to the request context. Raw keys are hashed before touching the database
// and never logged.
func (s *Server) tenantAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if apiKey == "" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}
		if apiKey == "" {
			s.fail(c, http.StatusUnauthorized, "unauthorized", "missing api key (use X-API-Key header)")
			return
		}

		ctx, cancel := s.ctx(c)
		defer cancel()

		tenant, err := s.store.TenantByAPIKey(ctx, apiKey)
		if err != nil {
			if errors.Is(err, store.ErrTenantNotFound) {
				s.fail(c, http.StatusForbidden, "forbidden", "invalid api key")
				return
			}
			s.log.Error("tenant_lookup_failed", "error", err)
			s.fail(c, http.StatusInternalServerError, "internal_error", "tenant lookup failed")
			return
		}

		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

// tenant returns the authenticated tenant or aborts with 503: a handler
// running without tenant context means the route was wired outside the auth
// group, which is a deployment misconfiguration rather than a client error.
func (s *Server) tenant(c *gin.Context) (models.Tenant, bool) {
	v, ok := c.Get(tenantContextKey)
	if !ok {
		s.fail(c, http.StatusServiceUnavailable, "no_tenant_context", "service misconfigured: no tenant context")
		return models.Tenant{}, false
	}
	tenant, ok := v.(models.Tenant)
	if !ok {
		s.fail(c, http.StatusServiceUnavailable, "no_tenant_context", "service misconfigured: no tenant context")
		return models.Tenant{}, false
	}
	return tenant, true
}

func (s *Server) syncThrottleMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := s.tenant(c)
		if !ok {
			return
		}
		if !s.syncLimiter.Allow(fmt.Sprintf("%d", tenant.ID)) {
			s.fail(c, http.StatusTooManyRequests, "sync_throttled", "sync polled faster than the configured rate")
			return
		}
		c.Next()
	}
}
