package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) RegisterRoutes() http.Handler {
	if s.config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.CORS.AllowedOrigins,
		AllowMethods:     s.config.CORS.AllowedMethods,
		AllowHeaders:     s.config.CORS.AllowedHeaders,
		AllowCredentials: s.config.CORS.AllowCredentials,
		MaxAge:           time.Duration(s.config.CORS.MaxAge) * time.Second,
	}))

	r.GET("/health", s.healthHandler)
	r.GET("/ready", s.readyHandler)
	r.GET("/online", s.onlineHandler)

	api := r.Group("/api/v1/bulk-operations", ActorMiddleware())
	{
		api.POST("", s.createOperationHandler)
		api.POST("/prompts/create", s.createPromptsHandler)
		api.POST("/prompts/update", s.updatePromptsHandler)
		api.POST("/prompts/delete", s.deletePromptsHandler)
		api.POST("/prompts/tag", s.tagPromptsHandler)

		api.GET("", s.listOperationsHandler)
		api.DELETE("", s.cleanupHandler)

		api.GET("/:id", s.getOperationHandler)
		api.GET("/:id/status", s.statusHandler)
		api.POST("/:id/start", s.startHandler)
		api.POST("/:id/cancel", s.cancelHandler)
		api.POST("/:id/retry", s.retryHandler)
	}

	return r
}
