package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/taskward/taskward/internal/log"
	"github.com/taskward/taskward/internal/model"
)

// Identity headers. Authentication happens upstream; the gateway
// forwards the resolved identity on every request.
const (
	headerUserID    = "X-User-ID"
	headerUserRole  = "X-User-Role"
	headerRequestID = "X-Request-ID"
)

const contextUserKey = "taskward.user"

// requestID tags every request with an id, honoring one set upstream.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Set(headerRequestID, id)
		c.Next()
	}
}

// accessLog logs one line per request.
func accessLog(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.WithValues(log.Kv{
			"request-id": c.GetString(headerRequestID),
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Debugf("%s %s", c.Request.Method, c.Request.URL.Path)
	}
}

// identity resolves the calling user from the forwarded headers and
// rejects requests without one.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerUserID)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "missing user identity"})
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "invalid user identity"})
			return
		}

		c.Set(contextUserKey, model.User{ID: id, Role: c.GetHeader(headerUserRole)})
		c.Next()
	}
}

// userFrom returns the authenticated user stored by the identity
// middleware.
func userFrom(c *gin.Context) model.User {
	u, _ := c.Get(contextUserKey)
	user, _ := u.(model.User)
	return user
}
