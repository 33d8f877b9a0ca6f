package middleware

import (
	"time"

	"vinyl/pkg/logger"
	"vinyl/pkg/utils"

	"github.com/gin-gonic/gin"
)

const requestIDHeader = "X-Request-ID"

// RequestObserver receives one sample per completed request.
type RequestObserver interface {
	ObserveHTTPRequest(method, route string, status int, d time.Duration)
}

// RequestLoggerMiddleware assigns a request id, logs one line per request
// and feeds the optional observer. Streaming routes are logged when the
// listener disconnects.
func RequestLoggerMiddleware(cl *logger.ContextLogger, observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = utils.GenerateRequestID()
		}
		c.Header(requestIDHeader, id)

		ctx := logger.WithRequestID(c.Request.Context(), id)
		if roomID := c.Param("id"); roomID != "" {
			ctx = logger.WithRoomID(ctx, roomID)
		}
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		cl.LogRequest(c.Request.Context(), c.Request.Method, c.Request.URL.Path, status, elapsed)
		if observer != nil {
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			observer.ObserveHTTPRequest(c.Request.Method, route, status, elapsed)
		}
	}
}
