package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tixgate/internal/auth"
	"tixgate/internal/identity"
	"tixgate/internal/logger"

	"github.com/gin-gonic/gin"
)

// Keys set on the gin context by Auth.
const (
	TokenIDKey        = "token_id"
	TokenExpiresAtKey = "token_expires_at"
)

type TokenVerifier interface {
	Verify(raw string) (*identity.Identity, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type ScanLimiter interface {
	AllowScan(ctx context.Context, staffID string) (bool, error)
}

// Auth verifies the bearer token and attaches the principal to the request
// context. A revocation lookup that fails denies the request.
func Auth(verifier TokenVerifier, revocations RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", `Bearer realm="tixgate"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		ctx := c.Request.Context()
		id, err := verifier.Verify(raw)
		if err != nil {
			logger.WithContext(ctx).Warn("Rejected identity token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if revocations != nil && id.TokenID != "" {
			revoked, err := revocations.IsRevoked(ctx, id.TokenID)
			if err != nil {
				logger.WithContext(ctx).Error("Session revocation lookup failed", "error", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authorization temporarily unavailable"})
				return
			}
			if revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session has ended"})
				return
			}
		}

		ctx = auth.ContextWithPrincipal(ctx, id.Principal)
		ctx = logger.ContextWithUserID(ctx, id.Principal.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", id.Principal.UserID)
		c.Set(TokenIDKey, id.TokenID)
		c.Set(TokenExpiresAtKey, id.ExpiresAt)

		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequirePermission rejects callers holding none of perms before the
// handler runs. Services check again.
func RequirePermission(perms ...auth.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := auth.PrincipalFromContext(c.Request.Context())
		if !auth.Authorize(p, auth.Requirement{AnyOf: perms}) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// ScanRateLimit bounds scans per staff member. When the limiter itself is
// down, scanning continues: the door must not stop because of a counter.
func ScanRateLimit(limiter ScanLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := auth.PrincipalFromContext(c.Request.Context())
		if p == nil || limiter == nil {
			c.Next()
			return
		}

		allowed, err := limiter.AllowScan(c.Request.Context(), p.UserID)
		if err != nil {
			logger.WithContext(c.Request.Context()).Warn("Scan rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !allowed {
			logger.WithContext(c.Request.Context()).Warn("Scan rate limit exceeded", "security_event", "scan_flood")
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many scans, slow down"})
			return
		}

		c.Next()
	}
}

// TokenExpiry returns the expiry of the authenticated token, if known.
func TokenExpiry(c *gin.Context) (time.Time, bool) {
	v, ok := c.Get(TokenExpiresAtKey)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok && !t.IsZero()
}
