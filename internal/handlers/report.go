package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/services"
	"github.com/huangang/perfsentry/pkg/response"
)

// ReportHandler serves the finalized-score reports. Routes restrict it to
// managers and admins.
type ReportHandler struct {
	kpiService *services.KPIService
}

func NewReportHandler(kpiService *services.KPIService) *ReportHandler {
	return &ReportHandler{kpiService: kpiService}
}

// PeriodPerformance GET /api/periods/:id/performance?department=
func (h *ReportHandler) PeriodPerformance(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rows, err := h.kpiService.GetPeriodPerformance(c.Request.Context(), id, c.Query("department"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// Departments GET /api/periods/:id/departments
func (h *ReportHandler) Departments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rows, err := h.kpiService.GetDepartmentPerformance(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}

// Compare GET /api/performance/compare?period_ids=1,2,3
func (h *ReportHandler) Compare(c *gin.Context) {
	ids, err := idList(c.Query("period_ids"))
	if err != nil || len(ids) == 0 {
		response.BadRequest(c, "period_ids must be a comma separated list of ids")
		return
	}
	rows, err := h.kpiService.ComparePeriods(c.Request.Context(), ids)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, rows)
}
