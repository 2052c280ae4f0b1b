package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/property-verifier/internal/common"
)

const headerRequestID = "X-Request-ID"

// requestID tags every request with an id (the caller's, if sent) and puts
// it on the request context.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		ctx := common.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// accessLog logs one line per request and gives handlers a request-scoped logger.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		reqLogger := logger.With("req_id", common.RequestIDFromContext(ctx))
		c.Request = c.Request.WithContext(common.WithLogger(ctx, reqLogger))

		c.Next()

		level := slog.LevelInfo
		switch status := c.Writer.Status(); {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		reqLogger.Log(ctx, level, "http.request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"client_ip", c.ClientIP(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}
