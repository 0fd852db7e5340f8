package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

// QuestionHandler exposes the KPI question bank. Every edit goes through the
// weight gate in QuestionService.
type QuestionHandler struct {
	questionService *services.QuestionService
}

func NewQuestionHandler(questionService *services.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

// List GET /api/questions?active=true
func (h *QuestionHandler) List(c *gin.Context) {
	questions, err := h.questionService.List(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, questions)
}

// Weights GET /api/questions/weights
func (h *QuestionHandler) Weights(c *gin.Context) {
	status, err := h.questionService.WeightStatus(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

func (h *QuestionHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := h.questionService.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, q)
}

func (h *QuestionHandler) Create(c *gin.Context) {
	var req services.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	q, err := h.questionService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, q)
}

func (h *QuestionHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	q, err := h.questionService.Update(c.Request.Context(), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, q)
}

func (h *QuestionHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.questionService.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

type SaveQuestionSetRequest struct {
	Questions []services.QuestionChange `json:"questions" binding:"required,dive"`
}

// SaveSet applies a bulk weight edit atomically.
// PUT /api/questions/set
func (h *QuestionHandler) SaveSet(c *gin.Context) {
	var req SaveQuestionSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	questions, err := h.questionService.SaveQuestionSet(c.Request.Context(), req.Questions)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, questions)
}
