package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/middleware"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

type UserHandler struct {
	userService *services.UserService
	kpiService  *services.KPIService
}

func NewUserHandler(userService *services.UserService, kpiService *services.KPIService) *UserHandler {
	return &UserHandler{userService: userService, kpiService: kpiService}
}

// List returns every user, or only active ones with ?active=true.
func (h *UserHandler) List(c *gin.Context) {
	var (
		users []models.User
		err   error
	)
	if c.Query("active") == "true" {
		users, err = h.userService.ActiveUsers(c.Request.Context())
	} else {
		users, err = h.userService.List(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, users)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !h.canViewUser(c, id) {
		return
	}
	user, err := h.userService.GetUser(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) Create(c *gin.Context) {
	var req services.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.userService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// UpdateProfile PUT /api/users/:id/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	user, err := h.userService.UpdateProfile(c.Request.Context(), id, &req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, user)
}

type SetManagerRequest struct {
	ManagerID *uint `json:"manager_id"`
}

func (h *UserHandler) SetManager(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req SetManagerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.userService.SetManager(c.Request.Context(), id, req.ManagerID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

func (h *UserHandler) SetActive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if id == middleware.GetUserID(c) {
		response.BadRequest(c, "cannot modify your own account")
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.userService.SetActive(c.Request.Context(), id, *req.IsActive); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// Subordinates lists the acting user's direct reports.
// GET /api/users/me/subordinates
func (h *UserHandler) Subordinates(c *gin.Context) {
	users, err := h.userService.Subordinates(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, users)
}

// Trend returns the user's finalized scores in period order.
// GET /api/users/:id/trend
func (h *UserHandler) Trend(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if !h.canViewUser(c, id) {
		return
	}
	points, err := h.kpiService.GetUserPerformanceTrend(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, points)
}

func (h *UserHandler) canViewUser(c *gin.Context, targetID uint) bool {
	return canViewUser(c, h.userService, targetID)
}

// canViewUser admits the user themselves, their manager and admins. It
// writes the error response itself.
func canViewUser(c *gin.Context, users *services.UserService, targetID uint) bool {
	actorID := middleware.GetUserID(c)
	if actorID == targetID || middleware.GetRole(c) == models.RoleAdmin {
		return true
	}
	target, err := users.GetUser(c.Request.Context(), targetID)
	if err != nil {
		response.Error(c, err)
		return false
	}
	if target.ManagerID != nil && *target.ManagerID == actorID {
		return true
	}
	response.Forbidden(c, "not allowed to view this user")
	return false
}
