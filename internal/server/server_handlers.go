package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) healthHandler(c *gin.Context) {
	if err := s.sc.DBHealth(); err != nil {
		c.String(http.StatusInternalServerError, "Database unavailable")
		return
	}

	c.String(http.StatusOK, "OK")
}

func (s *Server) readyHandler(c *gin.Context) {
	dbErr := s.sc.DBHealth()
	cacheErr := s.sc.CacheHealth()
	rabbitErr := s.sc.RabbitHealth()

	res := gin.H{
		"database": dbErr == nil,
		"cache":    cacheErr == nil,
		"rabbit":   rabbitErr == nil,
	}

	if dbErr != nil {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}

	if counts, err := s.sc.OperationCounts(c.Request.Context()); err == nil {
		res["operations"] = counts
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) onlineHandler(c *gin.Context) {
	online := s.sc.Online()

	c.String(http.StatusOK, online)
}
