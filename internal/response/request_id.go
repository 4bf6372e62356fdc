package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key carrying the request ID.
const ContextKeyRequestID = "request_id"

// RequestIDMiddleware tags every request with an ID that flows into the
// response envelope's metadata and the X-Request-ID header. An inbound
// X-Request-ID is honored so violation reports can be correlated across
// client retries; anything else gets a fresh UUID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	}
}
