package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/huangang/perfsentry/internal/models"
)

func TestSystemLog_RecordListCleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewSystemLogService(db)
	fixed := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	uid := uint(7)
	eval := uint(12)
	entries := []AuditEntry{
		{Module: "Periods", Action: "Create", Message: "opened 2025-Q1", UserID: &uid, IP: "127.0.0.1", Extra: map[string]int{"count": 2}},
		{Level: AuditWarning, Module: "Evaluations", Action: "Finalize", Message: "stale version", EntityType: "evaluations", EntityID: &eval, RequestID: "req-1"},
		{Level: AuditError, Module: "Evaluations", Action: "Update", Message: "boom", UserID: &uid, EntityType: "evaluations", EntityID: &eval},
	}
	for _, e := range entries {
		if err := svc.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s/%s): %v", e.Module, e.Action, err)
		}
	}

	var first models.SystemLog
	db.Where("module = ?", "Periods").First(&first)
	if first.Level != AuditInfo || !strings.Contains(first.Extra, `"count":2`) || !first.CreatedAt.Equal(fixed) {
		t.Errorf("recorded row = %+v", first)
	}

	old := models.SystemLog{Level: AuditInfo, Module: "Periods", Action: "Delete", Message: "ancient", CreatedAt: fixed.AddDate(0, 0, -120)}
	db.Create(&old)

	tests := []struct {
		name string
		req  SystemLogListRequest
		want int64
	}{
		{"all", SystemLogListRequest{}, 4},
		{"by module", SystemLogListRequest{Module: "Evaluations"}, 2},
		{"by level", SystemLogListRequest{Level: AuditError}, 1},
		{"by user", SystemLogListRequest{UserID: 7}, 2},
		{"by entity", SystemLogListRequest{EntityType: "evaluations", EntityID: 12}, 2},
		{"by other entity", SystemLogListRequest{EntityType: "evaluations", EntityID: 13}, 0},
		{"by action", SystemLogListRequest{Action: "Final"}, 1},
		{"search", SystemLogListRequest{Search: "Q1"}, 1},
		{"date range", SystemLogListRequest{StartDate: "2025-06-02", EndDate: "2025-06-02"}, 3},
		{"bad date ignored", SystemLogListRequest{StartDate: "June"}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			resp, err := svc.List(ctx, &req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.Total != tt.want {
				t.Errorf("Total = %d, want %d", resp.Total, tt.want)
			}
		})
	}

	resp, _ := svc.List(ctx, &SystemLogListRequest{PageSize: 1})
	if len(resp.Items) != 1 || resp.PageSize != 1 || resp.Page != 1 {
		t.Errorf("paging = %+v", resp)
	}
	empty, _ := svc.List(ctx, &SystemLogListRequest{Module: "Nothing"})
	if empty.Items == nil {
		t.Error("empty page should return an empty slice")
	}

	modules, _ := svc.Modules(ctx)
	if len(modules) != 2 || modules[0] != "Evaluations" {
		t.Errorf("Modules() = %v", modules)
	}

	if n, _ := svc.CleanupOldLogs(ctx, 0); n != 0 {
		t.Errorf("retention 0 should keep everything, deleted %d", n)
	}
	n, err := svc.CleanupOldLogs(ctx, 90)
	if err != nil || n != 1 {
		t.Errorf("CleanupOldLogs(90) = %d, %v", n, err)
	}
}

func TestSystemLog_StartCleanupRunsImmediately(t *testing.T) {
	db := newTestDB(t)
	svc := NewSystemLogService(db)
	db.Create(&models.SystemLog{Level: AuditInfo, Module: "Periods", Action: "Delete", CreatedAt: time.Now().AddDate(0, 0, -30)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.StartCleanup(ctx, 7)

	deadline := time.Now().Add(2 * time.Second)
	for {
		var count int64
		db.Model(&models.SystemLog{}).Count(&count)
		if count == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("old entry still present after StartCleanup")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
