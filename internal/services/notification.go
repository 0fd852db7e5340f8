package services

import (
	"context"
	"strings"
	"time"

	"github.com/huangang/perfsentry/internal/domain"
	"github.com/huangang/perfsentry/internal/models"
	"github.com/huangang/perfsentry/pkg/logger"
	"gorm.io/gorm"
)

// Notifier receives workflow events for a user. Implementations must not be
// called inside a database transaction: workflow services only notify after
// commit, and a failing Notifier never undoes the workflow change.
type Notifier interface {
	Notify(ctx context.Context, userID uint, message string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, userID uint, message string) error

func (f NotifierFunc) Notify(ctx context.Context, userID uint, message string) error {
	return f(ctx, userID, message)
}

// NopNotifier drops every message.
var NopNotifier Notifier = NotifierFunc(func(context.Context, uint, string) error { return nil })

// NotificationService stores in-app notifications and, when a hub is
// attached, pushes them to the user's live connections.
type NotificationService struct {
	db  *gorm.DB
	hub *NotificationHub
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) WithHub(hub *NotificationHub) *NotificationService {
	s.hub = hub
	return s
}

func (s *NotificationService) Hub() *NotificationHub {
	return s.hub
}

// Notify persists a message immediately.
func (s *NotificationService) Notify(ctx context.Context, userID uint, message string) error {
	message = strings.TrimSpace(message)
	if userID == 0 || message == "" {
		return domain.Validation("notification needs a user and a message")
	}
	n := models.Notification{
		UserID:    userID,
		Message:   message,
		IsRead:    false,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Publish(NotificationEvent{ID: n.ID, UserID: n.UserID, Message: n.Message, CreatedAt: n.CreatedAt})
	}
	return nil
}

// Unread returns the user's unread notifications, newest first.
func (s *NotificationService) Unread(ctx context.Context, userID uint) ([]models.Notification, error) {
	var items []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at DESC, id DESC").
		Find(&items).Error
	return items, err
}

func (s *NotificationService) List(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var items []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification read. Only its owner may do so.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return translateNotFound(err, "notification", id)
	}
	if n.UserID != userID {
		return domain.NotAuthorized("notification %d belongs to another user", id)
	}
	return s.db.WithContext(ctx).Model(&n).Update("is_read", true).Error
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

// notifyAll sends each message and logs failures. It is the post-commit hook
// used by the workflow services.
func notifyAll(ctx context.Context, n Notifier, msgs []outboxMessage) {
	if n == nil {
		return
	}
	for _, m := range msgs {
		if err := n.Notify(ctx, m.UserID, m.Message); err != nil {
			logger.Warn().Err(err).Uint("user_id", m.UserID).Msg("[Notification] delivery failed")
		}
	}
}

// outboxMessage is a notification collected inside a transaction and sent
// once it commits.
type outboxMessage struct {
	UserID  uint
	Message string
}
