package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"
	"github.com/huangang/perfsentry/internal/config"
	"github.com/huangang/perfsentry/pkg/logger"
)

const workerConcurrency = 5

// Worker drains the Redis notification queue.
type Worker struct {
	server    *asynq.Server
	processor TaskProcessor

	mu      sync.Mutex
	running bool
}

// NewWorker returns nil when Redis is disabled.
func NewWorker(cfg *config.RedisConfig, processor TaskProcessor) *Worker {
	if !cfg.Enabled {
		return nil
	}
	server := asynq.NewServer(redisClientOpt(cfg), asynq.Config{
		Concurrency: workerConcurrency,
		Queues:      map[string]int{notificationQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Error().Err(err).Str("type", task.Type()).Int("retried", retried).Msg("[Worker] notification delivery failed")
		}),
	})
	return &Worker{server: server, processor: processor}
}

func (w *Worker) Start() error {
	if w.processor == nil {
		return errors.New("worker has no processor")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeNotification, w.handle)
	if err := w.server.Start(mux); err != nil {
		return fmt.Errorf("start notification worker: %w", err)
	}
	w.running = true
	logger.Infof("[Worker] notification worker started (concurrency %d)", workerConcurrency)
	return nil
}

// Stop waits for in-flight deliveries to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.server.Shutdown()
	w.running = false
	logger.Infof("[Worker] notification worker stopped")
}

func (w *Worker) handle(ctx context.Context, t *asynq.Task) error {
	task, err := decodeNotificationTask(t)
	if err != nil {
		// A malformed payload will never succeed.
		logger.Warn().Err(err).Msg("[Worker] dropping task")
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return w.processor(ctx, task)
}
