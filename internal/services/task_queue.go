package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/huangang/perfsentry/internal/config"
	"github.com/huangang/perfsentry/pkg/logger"
)

const (
	TaskTypeNotification = "notification:deliver"

	notificationQueue    = "notifications"
	notificationRetries  = 3
	notificationDeadline = 30 * time.Second
)

// NotificationTask is the queued form of one Notify call.
type NotificationTask struct {
	UserID     uint      `json:"user_id"`
	Message    string    `json:"message"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TaskProcessor delivers one notification task.
type TaskProcessor func(context.Context, *NotificationTask) error

// TaskQueue carries notification tasks to a processor.
type TaskQueue interface {
	Enqueue(ctx context.Context, task *NotificationTask) error
	// IsAsync reports whether a separate worker delivers the tasks.
	IsAsync() bool
	Close() error
}

// NewTaskQueue picks the Redis queue when it is enabled and reachable and
// falls back to inline delivery through processor otherwise.
func NewTaskQueue(cfg *config.RedisConfig, processor TaskProcessor) TaskQueue {
	if !cfg.Enabled {
		logger.Infof("[TaskQueue] Redis disabled, notifications are delivered inline")
		return NewSyncQueue(processor)
	}
	queue, err := NewAsyncQueue(cfg)
	if err != nil {
		logger.Warnf("[TaskQueue] Redis at %s unavailable, delivering inline: %v", cfg.Addr, err)
		return NewSyncQueue(processor)
	}
	logger.Infof("[TaskQueue] notifications queued through Redis at %s", cfg.Addr)
	return queue
}

// QueueNotifier implements Notifier by enqueueing.
type QueueNotifier struct {
	queue TaskQueue
}

func NewQueueNotifier(queue TaskQueue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (n *QueueNotifier) Notify(ctx context.Context, userID uint, message string) error {
	return n.queue.Enqueue(ctx, &NotificationTask{UserID: userID, Message: message, EnqueuedAt: time.Now()})
}

// AsyncQueue hands tasks to asynq over Redis.
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	opt := redisClientOpt(cfg)
	client := asynq.NewClient(opt)

	// Queues() fails fast when Redis cannot be reached.
	inspector := asynq.NewInspector(opt)
	defer inspector.Close()
	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}
	return &AsyncQueue{client: client}, nil
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

func newNotificationTask(task *NotificationTask) (*asynq.Task, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotification, payload,
		asynq.TaskID(uuid.NewString()),
		asynq.Queue(notificationQueue),
		asynq.MaxRetry(notificationRetries),
		asynq.Timeout(notificationDeadline),
	), nil
}

func decodeNotificationTask(t *asynq.Task) (*NotificationTask, error) {
	var task NotificationTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t.Type(), err)
	}
	if task.UserID == 0 {
		return nil, fmt.Errorf("%s payload has no user", t.Type())
	}
	return &task, nil
}

func (q *AsyncQueue) Enqueue(ctx context.Context, task *NotificationTask) error {
	t, err := newNotificationTask(task)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, t)
	if err != nil {
		return err
	}
	logger.Debug().Str("task_id", info.ID).Uint("user_id", task.UserID).Msg("[AsyncQueue] notification enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool { return true }

func (q *AsyncQueue) Close() error { return q.client.Close() }

// SyncQueue runs the processor in the caller's goroutine.
type SyncQueue struct {
	processor TaskProcessor
}

func NewSyncQueue(processor TaskProcessor) *SyncQueue {
	return &SyncQueue{processor: processor}
}

func (q *SyncQueue) Enqueue(ctx context.Context, task *NotificationTask) error {
	if q.processor == nil {
		logger.Warn().Uint("user_id", task.UserID).Msg("[SyncQueue] no processor, notification dropped")
		return nil
	}
	return q.processor(ctx, task)
}

func (q *SyncQueue) IsAsync() bool { return false }

func (q *SyncQueue) Close() error { return nil }

// DeliverTask is the processor shared by SyncQueue and Worker.
func (s *NotificationService) DeliverTask(ctx context.Context, task *NotificationTask) error {
	return s.Notify(ctx, task.UserID, task.Message)
}
