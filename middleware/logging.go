package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
)

// Logging returns a logging middleware for HTTP requests
func Logging() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(params gin.LogFormatterParams) string {
		requestID, _ := params.Keys[requestIDKey].(string)
		return fmt.Sprintf("%s [%s] %s %s %d %s %s\n",
			params.TimeStamp.Format(time.RFC3339),
			requestID,
			params.Method,
			params.Path,
			params.StatusCode,
			params.Latency,
			params.ErrorMessage,
		)
	})
}
