package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/middleware"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

type Degree360Handler struct {
	degree360Service *services.Degree360Service
}

func NewDegree360Handler(degree360Service *services.Degree360Service) *Degree360Handler {
	return &Degree360Handler{degree360Service: degree360Service}
}

type CreateSessionRequest struct {
	Name            string `json:"name" binding:"required"`
	EvaluatedUserID uint   `json:"evaluated_user_id" binding:"required"`
	IsAnonymous     *bool  `json:"is_anonymous"`
	DateRange
}

// CreateSession POST /api/degree360/sessions
func (h *Degree360Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	start, end, err := req.parse()
	if err != nil {
		response.BadRequest(c, "dates must be YYYY-MM-DD")
		return
	}
	session, err := h.degree360Service.CreateSession(c.Request.Context(), middleware.GetUserID(c), &services.CreateSessionRequest{
		Name:            req.Name,
		EvaluatedUserID: req.EvaluatedUserID,
		StartDate:       start,
		EndDate:         end,
		IsAnonymous:     req.IsAnonymous,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// MySessions lists sessions the acting user is the subject or owner of.
func (h *Degree360Handler) MySessions(c *gin.Context) {
	sessions, err := h.degree360Service.SessionsForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, sessions)
}

func (h *Degree360Handler) GetSession(c *gin.Context) {
	id, ok := h.viewable(c)
	if !ok {
		return
	}
	session, err := h.degree360Service.GetSession(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, session)
}

func (h *Degree360Handler) AddParticipant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.degree360Service.AddParticipant(c.Request.Context(), id, middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, p)
}

func (h *Degree360Handler) ListParticipants(c *gin.Context) {
	id, ok := h.viewable(c)
	if !ok {
		return
	}
	participants, err := h.degree360Service.ListParticipants(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, participants)
}

func (h *Degree360Handler) AddQuestion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.AddSessionQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	q, err := h.degree360Service.AddQuestion(c.Request.Context(), id, middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, q)
}

// ListQuestions is open to any authenticated user; raters need it to answer.
func (h *Degree360Handler) ListQuestions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	questions, err := h.degree360Service.ListQuestions(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, questions)
}

// Submit POST /api/degree360/participants/:id/submit
func (h *Degree360Handler) Submit(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SubmitAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.degree360Service.SubmitParticipantAnswers(c.Request.Context(), id, middleware.GetUserID(c), req.Answers); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Answers GET /api/degree360/participants/:id/answers
func (h *Degree360Handler) Answers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	answers, err := h.degree360Service.OwnAnswers(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, answers)
}

// Pending GET /api/degree360/pending
func (h *Degree360Handler) Pending(c *gin.Context) {
	items, err := h.degree360Service.PendingForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, items)
}

// Results GET /api/degree360/sessions/:id/results
func (h *Degree360Handler) Results(c *gin.Context) {
	id, ok := h.viewable(c)
	if !ok {
		return
	}
	results, err := h.degree360Service.CalculateSessionResults(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, results)
}

// Report GET /api/degree360/sessions/:id/report
func (h *Degree360Handler) Report(c *gin.Context) {
	id, ok := h.viewable(c)
	if !ok {
		return
	}
	report, err := h.degree360Service.GenerateReport(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

func (h *Degree360Handler) Close(c *gin.Context) {
	h.finish(c, h.degree360Service.CloseSession, models.Session360Completed)
}

func (h *Degree360Handler) Cancel(c *gin.Context) {
	h.finish(c, h.degree360Service.CancelSession, models.Session360Cancelled)
}

func (h *Degree360Handler) finish(c *gin.Context, op func(ctx context.Context, sessionID, actorID uint) error, status string) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := op(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"session_id": id, "status": status})
}

// viewable parses :id and checks the actor may read the session.
func (h *Degree360Handler) viewable(c *gin.Context) (uint, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return 0, false
	}
	if err := h.degree360Service.CanView(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return 0, false
	}
	return id, true
}
