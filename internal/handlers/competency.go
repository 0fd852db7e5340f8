package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

type CompetencyHandler struct {
	competencyService *services.CompetencyService
	userService       *services.UserService
}

func NewCompetencyHandler(competencyService *services.CompetencyService, userService *services.UserService) *CompetencyHandler {
	return &CompetencyHandler{competencyService: competencyService, userService: userService}
}

// List GET /api/competencies?category=Leadership
func (h *CompetencyHandler) List(c *gin.Context) {
	comps, err := h.competencyService.List(c.Request.Context(), c.Query("category"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, comps)
}

func (h *CompetencyHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	comp, err := h.competencyService.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, comp)
}

func (h *CompetencyHandler) Create(c *gin.Context) {
	var req services.CompetencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comp, err := h.competencyService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comp)
}

func (h *CompetencyHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateCompetencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comp, err := h.competencyService.Update(c.Request.Context(), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, comp)
}

func (h *CompetencyHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.competencyService.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// LinkQuestion POST|DELETE /api/competencies/:id/questions/:questionId
func (h *CompetencyHandler) LinkQuestion(c *gin.Context) {
	h.link(c, h.competencyService.LinkKPIQuestion)
}

func (h *CompetencyHandler) UnlinkQuestion(c *gin.Context) {
	h.link(c, h.competencyService.UnlinkKPIQuestion)
}

// LinkDegree360Question POST|DELETE /api/competencies/:id/degree360-questions/:questionId
func (h *CompetencyHandler) LinkDegree360Question(c *gin.Context) {
	h.link(c, h.competencyService.LinkDegree360Question)
}

func (h *CompetencyHandler) UnlinkDegree360Question(c *gin.Context) {
	h.link(c, h.competencyService.UnlinkDegree360Question)
}

func (h *CompetencyHandler) link(c *gin.Context, apply func(ctx context.Context, competencyID, questionID uint) error) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(c, "questionId")
	if !ok {
		return
	}
	if err := apply(c.Request.Context(), id, questionID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// UserScores returns the user's standing in every competency.
// GET /api/users/:id/competencies
func (h *CompetencyHandler) UserScores(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !canViewUser(c, h.userService, id) {
		return
	}
	scores, err := h.competencyService.UserCompetencies(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, scores)
}

// UserScore GET /api/users/:id/competencies/:competencyId
func (h *CompetencyHandler) UserScore(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	competencyID, ok := pathID(c, "competencyId")
	if !ok {
		return
	}
	if !canViewUser(c, h.userService, id) {
		return
	}
	score, err := h.competencyService.PerformanceByCompetency(c.Request.Context(), id, competencyID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, score)
}
