package middleware

import (
	"slices"

	"audioembed/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the configured origins to submit audio and read the request id back
func CORS() gin.HandlerFunc {
	origins := config.GetCORSOrigins()

	c := cors.DefaultConfig()
	if slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Accept", RequestIDHeader}
	c.ExposeHeaders = []string{RequestIDHeader}

	return cors.New(c)
}
