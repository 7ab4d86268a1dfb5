package server

import (
	"errors"
	"net/http"
	"promptbank/internal/controller"
	"promptbank/internal/database"
	"promptbank/internal/model"
	"promptbank/internal/orchestrator"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// CreateOperationRequest is the body of the generic create endpoint
type CreateOperationRequest struct {
	OperationType model.OperationType     `json:"operation_type" binding:"required"`
	Metadata      model.OperationMetadata `json:"metadata"`
	CreatedBy     string                  `json:"created_by"`
	AutoStart     *bool                   `json:"auto_start"`
}

type CreatePromptsRequest struct {
	Prompts  []model.PromptInput    `json:"prompts" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

type UpdatePromptsRequest struct {
	Updates  []model.PromptUpdate   `json:"updates" binding:"required"`
	Metadata map[string]interface{} `json:"metadata"`
}

type DeletePromptsRequest struct {
	PromptIDs []string               `json:"prompt_ids" binding:"required"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type TagPromptsRequest struct {
	PromptIDs []string               `json:"prompt_ids" binding:"required"`
	Add       []string               `json:"add"`
	Remove    []string               `json:"remove"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// StatusResponse is the polling view of an operation
type StatusResponse struct {
	Operation           *model.BulkOperation `json:"operation"`
	ProgressPercentage  float64              `json:"progress_percentage"`
	TimeEstimateSeconds *float64             `json:"time_estimate_seconds"`
	IsComplete          bool                 `json:"is_complete"`
	HasErrors           bool                 `json:"has_errors"`
}

// ListResponse wraps a page of operations
type ListResponse struct {
	Operations []*model.BulkOperation `json:"operations"`
	Count      int                    `json:"count"`
	Limit      int                    `json:"limit"`
	Offset     int                    `json:"offset"`
}

func (s *Server) createOperationHandler(c *gin.Context) {
	var req CreateOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	createdBy := req.CreatedBy
	if actor := getActorID(c); actor != "" {
		createdBy = actor
	}

	op, err := s.bc.CreateOperation(c.Request.Context(), controller.CreateRequest{
		OperationType: req.OperationType,
		Metadata:      req.Metadata,
		CreatedBy:     createdBy,
		AutoStart:     req.AutoStart,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, op)
}

func (s *Server) createPromptsHandler(c *gin.Context) {
	var req CreatePromptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := s.bc.CreatePrompts(c.Request.Context(), req.Prompts, getActorID(c), req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, op)
}

func (s *Server) updatePromptsHandler(c *gin.Context) {
	var req UpdatePromptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := s.bc.UpdatePrompts(c.Request.Context(), req.Updates, getActorID(c), req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, op)
}

func (s *Server) deletePromptsHandler(c *gin.Context) {
	var req DeletePromptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := s.bc.DeletePrompts(c.Request.Context(), req.PromptIDs, getActorID(c), req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, op)
}

func (s *Server) tagPromptsHandler(c *gin.Context) {
	var req TagPromptsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := s.bc.TagPrompts(c.Request.Context(), req.PromptIDs, req.Add, req.Remove, getActorID(c), req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, op)
}

func (s *Server) listOperationsHandler(c *gin.Context) {
	limit, offset := getPaginationParams(c)

	filter := model.ListFilter{
		Status:        model.OperationStatus(c.Query("status")),
		OperationType: model.OperationType(c.Query("type")),
		CreatedBy:     c.Query("created_by"),
	}

	ops, err := s.bc.ListOperations(c.Request.Context(), filter, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{
		Operations: ops,
		Count:      len(ops),
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) getOperationHandler(c *gin.Context) {
	op, err := s.bc.GetOperation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, op)
}

func (s *Server) statusHandler(c *gin.Context) {
	view, err := s.bc.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Operation:           view.Operation,
		ProgressPercentage:  view.ProgressPercentage,
		TimeEstimateSeconds: view.TimeEstimateSeconds(),
		IsComplete:          view.IsComplete,
		HasErrors:           view.HasErrors,
	})
}

func (s *Server) startHandler(c *gin.Context) {
	op, err := s.bc.StartOperation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, op)
}

func (s *Server) cancelHandler(c *gin.Context) {
	op, err := s.bc.CancelOperation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, op)
}

func (s *Server) retryHandler(c *gin.Context) {
	op, err := s.bc.RetryOperation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, op)
}

func (s *Server) cleanupHandler(c *gin.Context) {
	daysOld := s.config.Jobs.RetentionDays
	if raw := c.Query("days_old"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days_old must be an integer"})
			return
		}
		daysOld = parsed
	}

	purged, err := s.bc.CleanupOperations(c.Request.Context(), daysOld)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"purged":   purged,
		"days_old": daysOld,
		"ran_at":   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps controller errors onto HTTP statuses. Unexpected errors
// are logged and never returned to the caller.
func writeError(c *gin.Context, err error) {
	switch {
	case model.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrOperationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "bulk operation not found"})
	case errors.Is(err, orchestrator.ErrQueueFull), errors.Is(err, orchestrator.ErrSchedulerStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// getPaginationParams extracts pagination parameters from request
func getPaginationParams(c *gin.Context) (int, int) {
	limit := 20
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = min(parsedLimit, 100)
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	return limit, offset
}
