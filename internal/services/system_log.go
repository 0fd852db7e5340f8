package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
)

const (
	AuditInfo    = "info"
	AuditWarning = "warning"
	AuditError   = "error"
)

// AuditEntry is one audit trail record before it is stored.
type AuditEntry struct {
	Level      string
	Module     string
	Action     string
	Message    string
	UserID     *uint
	EntityType string
	EntityID   *uint
	RequestID  string
	IP         string
	UserAgent  string
	Extra      interface{}
}

// SystemLogService stores and queries the audit trail.
type SystemLogService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db, now: time.Now}
}

// Record stores an entry. Callers treat a failure as non-fatal.
func (s *SystemLogService) Record(ctx context.Context, e AuditEntry) error {
	if e.Level == "" {
		e.Level = AuditInfo
	}
	var extra string
	if e.Extra != nil {
		if b, err := json.Marshal(e.Extra); err == nil {
			extra = string(b)
		}
	}
	row := models.SystemLog{
		Level:      e.Level,
		Module:     e.Module,
		Action:     e.Action,
		Message:    e.Message,
		UserID:     e.UserID,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		RequestID:  e.RequestID,
		IP:         e.IP,
		UserAgent:  e.UserAgent,
		Extra:      extra,
		CreatedAt:  s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.Warn().Err(err).Str("module", e.Module).Str("action", e.Action).Msg("[SystemLog] failed to write audit entry")
		return err
	}
	return nil
}

type SystemLogListRequest struct {
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
	Level      string `form:"level"`
	Module     string `form:"module"`
	Action     string `form:"action"`
	UserID     uint   `form:"user_id"`
	EntityType string `form:"entity_type"`
	EntityID   uint   `form:"entity_id"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
	Search     string `form:"search"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

// List pages through the trail, newest first. Dates are YYYY-MM-DD and the
// end date is inclusive; unparsable dates are ignored.
func (s *SystemLogService) List(ctx context.Context, req *SystemLogListRequest) (*SystemLogListResponse, error) {
	page, size := req.Page, req.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}

	q := s.db.WithContext(ctx).Model(&models.SystemLog{})
	for col, v := range map[string]string{"level": req.Level, "module": req.Module, "entity_type": req.EntityType} {
		if v != "" {
			q = q.Where(col+" = ?", v)
		}
	}
	if req.UserID != 0 {
		q = q.Where("user_id = ?", req.UserID)
	}
	if req.EntityID != 0 {
		q = q.Where("entity_id = ?", req.EntityID)
	}
	if req.Action != "" {
		q = q.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.Search != "" {
		q = q.Where("message LIKE ?", "%"+req.Search+"%")
	}
	if t, err := time.Parse("2006-01-02", req.StartDate); err == nil {
		q = q.Where("created_at >= ?", t)
	}
	if t, err := time.Parse("2006-01-02", req.EndDate); err == nil {
		q = q.Where("created_at < ?", t.AddDate(0, 0, 1))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	items := []models.SystemLog{}
	if err := q.Order("created_at DESC, id DESC").Offset((page - 1) * size).Limit(size).Find(&items).Error; err != nil {
		return nil, err
	}
	return &SystemLogListResponse{Total: total, Page: page, PageSize: size, Items: items}, nil
}

func (s *SystemLogService) Modules(ctx context.Context) ([]string, error) {
	var modules []string
	err := s.db.WithContext(ctx).Model(&models.SystemLog{}).Distinct("module").Order("module").Pluck("module", &modules).Error
	return modules, err
}

// CleanupOldLogs deletes entries older than retentionDays and returns how
// many were removed. A non-positive retention keeps everything.
func (s *SystemLogService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.SystemLog{})
	return res.RowsAffected, res.Error
}

// StartCleanup prunes the trail at once and then daily until ctx is done.
func (s *SystemLogService) StartCleanup(ctx context.Context, retentionDays int) {
	if retentionDays <= 0 {
		logger.Info().Msg("[SystemLog] cleanup disabled (retention_days <= 0)")
		return
	}
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			deleted, err := s.CleanupOldLogs(ctx, retentionDays)
			if err != nil {
				logger.Error().Err(err).Msg("[SystemLog] cleanup failed")
			} else if deleted > 0 {
				logger.Info().Int64("deleted", deleted).Int("retention_days", retentionDays).Msg("[SystemLog] old entries removed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
