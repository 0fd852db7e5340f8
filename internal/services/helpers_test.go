package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/huangang/perfsentry/internal/config"
	"github.com/huangang/perfsentry/internal/models"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory SQLite database with every table
// migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", name)
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, false)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createUser(t *testing.T, db *gorm.DB, username, role string, managerID *uint) *models.User {
	t.Helper()
	u := &models.User{
		Username:   username,
		FullName:   strings.ToUpper(username[:1]) + username[1:],
		Role:       role,
		Department: "Engineering",
		ManagerID:  managerID,
		AuthType:   "local",
		IsActive:   true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func createQuestion(t *testing.T, db *gorm.DB, text string, weight float64, active bool) *models.Question {
	t.Helper()
	q := &models.Question{Text: text, Category: "general", Weight: weight, IsActive: active}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// recordingNotifier collects messages in memory.
type recordingNotifier struct {
	mu   sync.Mutex
	msgs []outboxMessage
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, userID uint, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, outboxMessage{UserID: userID, Message: message})
	return r.err
}

func (r *recordingNotifier) For(userID uint) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.UserID == userID {
			out = append(out, m.Message)
		}
	}
	return out
}

func (r *recordingNotifier) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func uintPtr(v uint) *uint { return &v }
