package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	actorHeader = "X-Actor-ID"
	actorKey    = "actorID"
)

// ActorMiddleware stores the calling actor from the X-Actor-ID header.
// Authentication happens upstream.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := c.GetHeader(actorHeader); actor != "" {
			c.Set(actorKey, actor)
		}
		c.Next()
	}
}

// getActorID returns the actor set by ActorMiddleware, or ""
func getActorID(c *gin.Context) string {
	return c.GetString(actorKey)
}

// RequestLogger emits one zerolog event per request
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("clientIp", c.ClientIP()).
			Str("actor", getActorID(c)).
			Msg("HTTP request")
	}
}
