package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/romiteld/eva-assistant-sub006/internal/interview"
	"github.com/romiteld/eva-assistant-sub006/pkg/model"
	"github.com/romiteld/eva-assistant-sub006/pkg/response"
)

// CreateInterview launches a scheduling workflow for a new interview.
func (h *Handler) CreateInterview(c *gin.Context) {
	var req model.CreateInterviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	iv, err := h.Service.Create(c.Request.Context(), req)
	if err != nil {
		h.Logger.Error("create interview failed", zap.Error(err))
		response.ValidationError(c, err.Error())
		return
	}
	response.Created(c, iv)
}

func (h *Handler) GetInterview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	iv, err := h.Service.Get(c.Request.Context(), id)
	if err != nil {
		h.renderInterviewError(c, err)
		return
	}
	response.OK(c, iv)
}

func (h *Handler) ListInterviews(c *gin.Context) {
	var q model.ListInterviewsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = 20
	}

	items, total, err := h.Service.List(c.Request.Context(), q.PageSize, (q.Page-1)*q.PageSize)
	if err != nil {
		h.Logger.Error("list interviews failed", zap.Error(err))
		response.InternalError(c, "")
		return
	}
	response.OKWithMeta(c, items, &response.Meta{
		Page:     q.Page,
		PageSize: q.PageSize,
		Total:    total,
		HasNext:  q.Page*q.PageSize < total,
	})
}

func (h *Handler) GetInterviewStats(c *gin.Context) {
	stats, err := h.Service.Stats(c.Request.Context())
	if err != nil {
		h.Logger.Error("interview stats failed", zap.Error(err))
		response.InternalError(c, "")
		return
	}
	response.OK(c, stats)
}

// ConfirmSlot applies a human's choice of candidate slot. Exactly one
// confirmation wins; a concurrent second attempt gets a 409.
func (h *Handler) ConfirmSlot(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req model.ConfirmSlotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	iv, err := h.Service.ConfirmSlot(c.Request.Context(), id, req)
	if err != nil {
		h.renderInterviewError(c, err)
		return
	}
	response.OK(c, iv)
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req model.SubmitFeedbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	iv, err := h.Service.SubmitFeedback(c.Request.Context(), id, req)
	if err != nil {
		h.renderInterviewError(c, err)
		return
	}
	response.OK(c, iv)
}

func (h *Handler) RescheduleInterview(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	iv, err := h.Service.Reschedule(c.Request.Context(), id)
	if err != nil {
		h.renderInterviewError(c, err)
		return
	}
	response.Created(c, iv)
}

func (h *Handler) renderInterviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, interview.ErrNotFound):
		response.NotFound(c, "interview not found")
	case errors.Is(err, interview.ErrAlreadyScheduled):
		response.Conflict(c, "a slot has already been confirmed for this interview")
	case errors.Is(err, interview.ErrSuperseded):
		response.Conflict(c, "interview record has been superseded")
	case errors.Is(err, interview.ErrDuplicateFeedback):
		response.Conflict(c, "feedback already submitted by this rater")
	case errors.Is(err, interview.ErrNoSuchSlot):
		response.ValidationError(c, "candidate slot index out of range")
	case errors.Is(err, interview.ErrUnknownRater):
		response.ValidationError(c, "rater is not in the expected rater set")
	case errors.Is(err, interview.ErrInvalidTransition):
		response.Conflict(c, "interview is not in a state that allows this operation")
	default:
		h.Logger.Error("interview operation failed", zap.Error(err))
		response.InternalError(c, "")
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid interview id")
		return uuid.Nil, false
	}
	return id, true
}
