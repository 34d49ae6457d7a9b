package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Logger is a Gin middleware that logs every request with method, path,
// status code, and latency through the given logger.
func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

// Recovery is a Gin middleware that recovers from a panic in a later
// handler, logs it through log and responds 500 with a JSON message.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Msg("recovered from panic")
				c.AbortWithStatusJSON(500, errorResponse{Message: "internal server error"})
			}
		}()
		c.Next()
	}
}

// contextTokenKey is the gin.Context key RequireAuth stashes the caller's
// token under once validated.
const contextTokenKey = "authToken"

// RequireAuth rejects any request whose Authorization header is missing
// or does not name a token in registry. On success the token is stashed
// in the request context so handlers need not re-read the header.
func RequireAuth(registry interface{ IsValid(string) bool }) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" || !registry.IsValid(token) {
			c.AbortWithStatusJSON(401, errorResponse{Message: "invalid or missing token"})
			return
		}
		c.Set(contextTokenKey, token)
		c.Next()
	}
}

func tokenFromContext(c *gin.Context) string {
	v, _ := c.Get(contextTokenKey)
	s, _ := v.(string)
	return s
}

// Metrics returns a middleware that records one requestsTotal
// observation per handled request, bucketed by route and status class
// (e.g. "2xx", "4xx", "5xx").
func Metrics(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		class := "2xx"
		switch status := c.Writer.Status(); {
		case status >= 500:
			class = "5xx"
		case status >= 400:
			class = "4xx"
		}
		m.observeRequest(c.FullPath(), class)
	}
}
