package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/romiteld/eva-assistant-sub006/internal/workflow"
	"github.com/romiteld/eva-assistant-sub006/pkg/response"
)

// GetWorkflowInstance exposes per-task status and the committed
// outputs of an instance, including partial outputs of failed runs.
// Instances the engine has already evicted are served from the
// archive.
func (h *Handler) GetWorkflowInstance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid instance id")
		return
	}

	snap, err := h.Engine.Instance(id)
	if err == nil {
		response.OK(c, snap)
		return
	}
	if !workflow.IsCode(err, workflow.CodeNotFound) {
		h.Logger.Error("instance lookup failed", zap.Error(err))
		response.InternalError(c, "")
		return
	}

	if h.Archive != nil {
		archived, archErr := h.Archive.GetInstance(c.Request.Context(), id)
		if archErr == nil {
			response.OK(c, archived)
			return
		}
		if !workflow.IsCode(archErr, workflow.CodeNotFound) {
			h.Logger.Error("archived instance lookup failed", zap.Error(archErr))
			response.InternalError(c, "")
			return
		}
	}
	response.NotFound(c, "workflow instance not found")
}

// CancelWorkflowInstance stops dispatching new tasks for an instance.
// Already-committed task outputs stay inspectable.
func (h *Handler) CancelWorkflowInstance(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid instance id")
		return
	}

	if err := h.Engine.Cancel(id); err != nil {
		if workflow.IsCode(err, workflow.CodeNotFound) {
			response.NotFound(c, "workflow instance not found")
			return
		}
		h.Logger.Error("instance cancel failed", zap.Error(err))
		response.InternalError(c, "")
		return
	}
	response.Message(c, "cancellation requested")
}
