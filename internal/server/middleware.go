package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/margex/gotrade/internal/audit"
	"github.com/margex/gotrade/internal/domain"
	"github.com/margex/gotrade/pkg/ratelimit"
)

const (
	headerUserID    = "X-User-ID"
	headerRequestID = "X-Request-ID"

	ctxUserID    = "gotrade_user_id"
	ctxRequestID = "gotrade_request_id"
)

// requestIDMiddleware tags every request; the caller's id is echoed
// back, otherwise one is minted. It also stamps the client ip and
// user agent onto the request context so audit entries carry them.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)

		c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), audit.Actor{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// authMiddleware resolves the acting user from the X-User-ID header.
// There is no credential check; identity is trusted at this boundary.
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(headerUserID)
		if userID == "" {
			fail(c, domain.ErrValidation("missing X-User-ID header"))
			c.Abort()
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

func actingUser(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// rateLimitMiddleware gates requests per user with a token bucket.
func rateLimitMiddleware(limiter *ratelimit.PerUser) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := actingUser(c)
		if !limiter.Allow(userID) {
			fail(c, domain.ErrRateLimited(userID))
			c.Abort()
			return
		}
		c.Next()
	}
}
