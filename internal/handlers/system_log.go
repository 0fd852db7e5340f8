package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

// SystemLogHandler exposes the audit trail to admins.
type SystemLogHandler struct {
	logs *services.SystemLogService
}

func NewSystemLogHandler(logs *services.SystemLogService) *SystemLogHandler {
	return &SystemLogHandler{logs: logs}
}

// List filters the trail by level, module, action, actor, entity and date.
// GET /api/system-logs
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	h.list(c, &req)
}

// History is the trail of one record, e.g. /system-logs/entities/evaluations/12.
// GET /api/system-logs/entities/:type/:id
func (h *SystemLogHandler) History(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.SystemLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.EntityType, req.EntityID = c.Param("type"), id
	h.list(c, &req)
}

func (h *SystemLogHandler) list(c *gin.Context, req *services.SystemLogListRequest) {
	resp, err := h.logs.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/system-logs/modules
func (h *SystemLogHandler) Modules(c *gin.Context) {
	modules, err := h.logs.Modules(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"modules": modules})
}
