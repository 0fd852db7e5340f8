package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/middleware"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

// PDPHandler serves personal development plans.
type PDPHandler struct {
	pdpService *services.PDPService
}

func NewPDPHandler(pdpService *services.PDPService) *PDPHandler {
	return &PDPHandler{pdpService: pdpService}
}

func (h *PDPHandler) Create(c *gin.Context) {
	var req services.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	plan, err := h.pdpService.CreatePlan(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, plan)
}

// Mine lists the acting user's plans, only ACTIVE ones with ?active=true.
func (h *PDPHandler) Mine(c *gin.Context) {
	var (
		plans []models.DevelopmentPlan
		err   error
	)
	userID := middleware.GetUserID(c)
	if c.Query("active") == "true" {
		plans, err = h.pdpService.ActivePlansForUser(c.Request.Context(), userID)
	} else {
		plans, err = h.pdpService.PlansForUser(c.Request.Context(), userID)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, plans)
}

// Get returns a plan to its owner, its manager or an admin.
func (h *PDPHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	plan, err := h.pdpService.GetPlan(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	actorID := middleware.GetUserID(c)
	isManager := plan.ManagerID != nil && *plan.ManagerID == actorID
	if plan.UserID != actorID && !isManager && middleware.GetRole(c) != models.RoleAdmin {
		response.Forbidden(c, "not allowed to view this plan")
		return
	}
	response.Success(c, plan)
}

type UpdatePlanStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *PDPHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdatePlanStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.pdpService.UpdatePlanStatus(c.Request.Context(), id, middleware.GetUserID(c), req.Status); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

type AddPlanItemRequest struct {
	Goal          string `json:"goal" binding:"required"`
	ActionsToTake string `json:"actions_to_take" binding:"required"`
	Deadline      string `json:"deadline" binding:"required"`
}

func (h *PDPHandler) AddItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AddPlanItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	deadline, err := parseDate(req.Deadline)
	if err != nil {
		response.BadRequest(c, "deadline must be YYYY-MM-DD")
		return
	}
	item, err := h.pdpService.AddItem(c.Request.Context(), id, middleware.GetUserID(c), &services.AddPlanItemRequest{
		Goal:          req.Goal,
		ActionsToTake: req.ActionsToTake,
		Deadline:      deadline,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

type UpdateProgressRequest struct {
	Progress *int `json:"progress" binding:"required"`
}

// UpdateProgress PUT /api/development-plans/items/:id/progress
func (h *PDPHandler) UpdateProgress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	item, err := h.pdpService.UpdateItemProgress(c.Request.Context(), id, middleware.GetUserID(c), *req.Progress)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, item)
}

func (h *PDPHandler) CompleteItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	item, err := h.pdpService.CompleteItem(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, item)
}

func (h *PDPHandler) DeleteItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.pdpService.DeleteItem(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

type AddCommentRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *PDPHandler) AddComment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comment, err := h.pdpService.AddItemComment(c.Request.Context(), id, middleware.GetUserID(c), req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}
