package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware allows the configured origins. Entries may be exact origins
// or wildcard patterns like https://*.example.com.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	origins := make([]string, 0, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	config := cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return isOriginAllowed(origin, origins)
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", RequestIDHeader, "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	return cors.New(config)
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if matchOriginPattern(origin, allowed) {
			return true
		}
	}
	return false
}

func matchOriginPattern(origin, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if rest, ok := strings.CutPrefix(pattern, "*."); ok {
		// keep the scheme out of the suffix match: https://*.example.com
		return strings.HasSuffix(origin, "."+rest)
	}
	if scheme, host, ok := strings.Cut(pattern, "://*."); ok {
		return strings.HasPrefix(origin, scheme+"://") && strings.HasSuffix(origin, "."+host)
	}
	return origin == pattern
}
