package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/middleware"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

// EvaluationHandler drives periods and the self/manager evaluation workflow.
type EvaluationHandler struct {
	kpiService *services.KPIService
}

func NewEvaluationHandler(kpiService *services.KPIService) *EvaluationHandler {
	return &EvaluationHandler{kpiService: kpiService}
}

func (h *EvaluationHandler) ListPeriods(c *gin.Context) {
	periods, err := h.kpiService.ListPeriods(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, periods)
}

func (h *EvaluationHandler) GetPeriod(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	period, err := h.kpiService.GetPeriod(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, period)
}

type OpenPeriodRequest struct {
	Name string `json:"name" binding:"required"`
	DateRange
}

// OpenPeriod creates a period and a pending self-evaluation per active user.
// POST /api/periods
func (h *EvaluationHandler) OpenPeriod(c *gin.Context) {
	var req OpenPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	start, end, err := req.parse()
	if err != nil {
		response.BadRequest(c, "dates must be YYYY-MM-DD")
		return
	}
	period, err := h.kpiService.OpenPeriod(c.Request.Context(), req.Name, start, end)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, period)
}

// SetPeriodActive PUT /api/periods/:id/active
func (h *EvaluationHandler) SetPeriodActive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.kpiService.SetPeriodActive(c.Request.Context(), id, *req.IsActive); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// DeletePeriod removes the period with its evaluations and answers.
func (h *EvaluationHandler) DeletePeriod(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.kpiService.DeletePeriod(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *EvaluationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ev, err := h.kpiService.ViewEvaluation(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ev)
}

// Score returns the live weighted score of an evaluation.
// GET /api/evaluations/:id/score
func (h *EvaluationHandler) Score(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := h.kpiService.ViewEvaluation(ctx, id, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	score, err := h.kpiService.CalculateEvaluationScore(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"evaluation_id": id, "score": score})
}

func (h *EvaluationHandler) Pending(c *gin.Context) {
	h.list(c, h.kpiService.PendingEvaluationsFor)
}

func (h *EvaluationHandler) AwaitingReview(c *gin.Context) {
	h.list(c, h.kpiService.AwaitingReviewFor)
}

func (h *EvaluationHandler) Completed(c *gin.Context) {
	h.list(c, h.kpiService.CompletedEvaluationsFor)
}

func (h *EvaluationHandler) list(c *gin.Context, find func(ctx context.Context, userID uint) ([]models.Evaluation, error)) {
	evaluations, err := find(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, evaluations)
}

// Submit records the acting user's answers. With ?finalize=true a manager
// review is finalized in the same step.
// POST /api/evaluations/:id/submit
func (h *EvaluationHandler) Submit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SubmitAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	submit := h.kpiService.SubmitEvaluation
	if c.Query("finalize") == "true" {
		submit = h.kpiService.SubmitAndFinalize
	}
	ctx := c.Request.Context()
	if err := submit(ctx, id, middleware.GetUserID(c), req.Answers); err != nil {
		response.Error(c, err)
		return
	}
	ev, err := h.kpiService.GetEvaluation(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ev)
}

// Finalize POST /api/evaluations/:id/finalize
func (h *EvaluationHandler) Finalize(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.kpiService.FinalizeEvaluation(ctx, id, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	ev, err := h.kpiService.GetEvaluation(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ev)
}
