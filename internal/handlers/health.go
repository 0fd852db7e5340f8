package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/internal/services"
	"gorm.io/gorm"
)

// HealthHandler reports the state of the database and the notification queue.
type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
}

func NewHealthHandler(db *gorm.DB, queue services.TaskQueue) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

// CheckHealth answers 503 when the database is unreachable.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	var openPeriods int64
	if dbStatus == "ok" {
		h.db.WithContext(c.Request.Context()).Model(&models.EvaluationPeriod{}).
			Where("is_active = ?", true).Count(&openPeriods)
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "perfsentry",
		"components": gin.H{
			"database":       dbStatus,
			"queue_mode":     queueMode,
			"active_periods": openPeriods,
		},
	})
}
