package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillmate/skillmate-core/internal/domain/shared"
	"github.com/skillmate/skillmate-core/internal/infrastructure/metrics"
	"github.com/skillmate/skillmate-core/pkg/logger"
)

// Header names of the trusted identity gateway.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

// Context keys set by the middleware.
const (
	ContextKeyRequestID = "request_id"
	ContextKeyUserID    = "user_id"
	ContextKeyUserRoles = "user_roles"
	ContextKeyLogger    = "logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST ID
// ══════════════════════════════════════════════════════════════════════════════

// RequestID propagates X-Request-ID or generates one, and attaches a request
// scoped logger to both the gin and the request context.
func RequestID(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Set(ContextKeyRequestID, id)

		reqLog := log.WithRequestID(id)
		c.Set(ContextKeyLogger, reqLog)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLog))
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Identity reads the caller from the gateway headers. Authentication happens
// upstream; the headers are trusted as-is. Unknown roles are ignored.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
			c.Set(ContextKeyUserID, id)
		}
		if raw := c.GetHeader(HeaderUserRoles); raw != "" {
			var roles []shared.Role
			for _, part := range strings.Split(raw, ",") {
				if r, err := shared.ParseRole(part); err == nil {
					roles = append(roles, r)
				}
			}
			c.Set(ContextKeyUserRoles, roles)
		}
		c.Next()
	}
}

// RequireUser rejects requests without a caller identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing " + HeaderUserID + " header", "code": "unauthenticated"},
			})
			return
		}
		c.Next()
	}
}

// UserID returns the caller id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// UserRoles returns the caller roles.
func UserRoles(c *gin.Context) []shared.Role {
	v, ok := c.Get(ContextKeyUserRoles)
	if !ok {
		return nil
	}
	roles, _ := v.([]shared.Role)
	return roles
}

// RequestLogger returns the request scoped logger.
func RequestLogger(c *gin.Context, fallback *logger.Logger) *logger.Logger {
	if v, ok := c.Get(ContextKeyLogger); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return fallback
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESS LOG & METRICS
// ══════════════════════════════════════════════════════════════════════════════

// AccessLog logs every request and records the latency histogram. The route
// template (not the raw path) labels metrics to keep cardinality bounded.
func AccessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTP(c.Request.Method, route, status, d)

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Latency(d),
			logger.String("ip", c.ClientIP()),
		}
		if uid := UserID(c); uid != "" {
			fields = append(fields, logger.UserID(uid))
		}
		reqLog := RequestLogger(c, log)
		switch {
		case status >= http.StatusInternalServerError:
			reqLog.Error("http request", fields...)
		case route == "/health" || route == "/metrics":
			reqLog.Debug("http request", fields...)
		default:
			reqLog.Info("http request", fields...)
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY & LIMITS
// ══════════════════════════════════════════════════════════════════════════════

// Recovery converts panics into a 500 envelope.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		RequestLogger(c, log).Error("panic recovered",
			logger.Any("panic", recovered),
			logger.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"message": "an unexpected error occurred", "code": "internal_error"},
		})
	})
}

// BodyLimit caps request bodies.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// SecurityHeaders sets the usual response hardening headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
