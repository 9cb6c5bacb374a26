// -----------------------------------------------------------------------
// Worker pool - pulls queued tasks and dispatches them to handlers
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// TaskHandler is a function that handles a specific task type. attempt is
// the 1-based delivery count; handlers can detect the final delivery by
// comparing it with the queue's receive cap.
type TaskHandler func(ctx context.Context, msg TaskMessage, attempt int) error

// WorkerPoolConfig holds the tunables for one pool
type WorkerPoolConfig struct {
	QueueName     string
	Concurrency   int
	PollInterval  time.Duration
	SoftTimeLimit time.Duration // Context deadline passed to handlers
	HardTimeLimit time.Duration // Task abandoned past this; message left to redeliver
	RecycleAfter  int           // Worker goroutine restarts after this many tasks
}

// WorkerPool manages a pool of workers that process queue messages.
// Handlers returning a retryable error leave the message queued with an
// extended visibility delay; any other error acknowledges the message.
type WorkerPool struct {
	manager  *Manager
	config   WorkerPoolConfig
	retry    *RetryPolicy
	handlers map[string]TaskHandler
	logger   arbor.ILogger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	active    int64
	processed int64
	failed    int64
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(manager *Manager, config WorkerPoolConfig, retry *RetryPolicy, logger arbor.ILogger) *WorkerPool {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.RecycleAfter <= 0 {
		config.RecycleAfter = 100
	}
	if retry == nil {
		retry = NewRetryPolicy(0, 0)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		manager:  manager,
		config:   config,
		retry:    retry,
		handlers: make(map[string]TaskHandler),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler registers a task type handler
func (wp *WorkerPool) RegisterHandler(taskType string, handler TaskHandler) {
	wp.handlers[taskType] = handler
	wp.logger.Debug().
		Str("task_type", taskType).
		Msg("Task handler registered")
}

// Start starts the worker pool
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.config.Concurrency).
		Str("queue", wp.config.QueueName).
		Msg("Starting worker pool")

	for i := 0; i < wp.config.Concurrency; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	return nil
}

// Stop gracefully stops the worker pool, waiting for in-flight tasks.
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	wp.wg.Wait()
	return nil
}

// worker is the main worker loop. It exits and respawns itself after
// RecycleAfter tasks so long-lived state cannot accumulate.
func (wp *WorkerPool) worker(workerID int) {
	defer wp.wg.Done()

	// Stagger worker starts to reduce database lock contention
	staggerDelay := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	tasksHandled := 0

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			handled, err := wp.processMessage(workerID)
			if err != nil {
				wp.logger.Warn().
					Err(err).
					Int("worker_id", workerID).
					Msg("Error processing message")
			}
			if handled {
				tasksHandled++
				if tasksHandled >= wp.config.RecycleAfter {
					wp.logger.Debug().
						Int("worker_id", workerID).
						Int("tasks", tasksHandled).
						Msg("Recycling worker")
					wp.wg.Add(1)
					go wp.worker(workerID)
					return
				}
			}
		}
	}
}

// processMessage receives and processes a single message. The bool result
// reports whether a message was actually handled.
func (wp *WorkerPool) processMessage(workerID int) (bool, error) {
	msg, err := wp.manager.Receive(wp.ctx, wp.config.QueueName)
	if err != nil {
		return false, fmt.Errorf("failed to receive message: %w", err)
	}
	if msg == nil {
		return false, nil
	}

	task, err := DecodeTask(msg.Body)
	if err != nil {
		wp.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Int("worker_id", workerID).
			Msg("Failed to decode message body")
		if delErr := wp.manager.Delete(wp.ctx, wp.config.QueueName, msg.ID); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete invalid message")
		}
		return true, nil
	}

	handler, exists := wp.handlers[task.Type]
	if !exists {
		wp.logger.Error().
			Str("type", task.Type).
			Str("message_id", msg.ID).
			Msg("No handler registered for task type")
		if delErr := wp.manager.Delete(wp.ctx, wp.config.QueueName, msg.ID); delErr != nil {
			wp.logger.Warn().Err(delErr).Msg("Failed to delete unhandled message")
		}
		return true, nil
	}

	wp.logger.Debug().
		Str("message_id", msg.ID).
		Str("type", task.Type).
		Int64("job_id", int64(task.JobID)).
		Int("worker_id", workerID).
		Int("attempt", msg.Attempts).
		Msg("Processing task")

	atomic.AddInt64(&wp.active, 1)
	handlerErr := wp.runHandler(handler, task, msg.Attempts)
	atomic.AddInt64(&wp.active, -1)
	atomic.AddInt64(&wp.processed, 1)

	if handlerErr != nil {
		atomic.AddInt64(&wp.failed, 1)

		if models.IsRetryable(handlerErr) && msg.Attempts < wp.manager.maxReceive {
			delay := wp.retry.DelayForAttempt(msg.Attempts)
			wp.logger.Warn().
				Err(handlerErr).
				Str("message_id", msg.ID).
				Dur("retry_in", delay).
				Int("attempt", msg.Attempts).
				Msg("Task failed, scheduling retry")
			if extErr := wp.manager.Extend(wp.ctx, wp.config.QueueName, msg.ID, delay); extErr != nil {
				wp.logger.Warn().Err(extErr).Str("message_id", msg.ID).Msg("Failed to schedule retry")
			}
			return true, nil
		}

		wp.logger.Error().
			Err(handlerErr).
			Str("message_id", msg.ID).
			Int("attempt", msg.Attempts).
			Msg("Task failed permanently")
	}

	if delErr := wp.manager.Delete(wp.ctx, wp.config.QueueName, msg.ID); delErr != nil {
		wp.logger.Warn().Err(delErr).Str("message_id", msg.ID).Msg("Failed to acknowledge message")
	}
	return true, nil
}

// runHandler executes a handler under the soft and hard time limits. The
// soft limit cancels the handler's context; the hard limit abandons the
// handler goroutine entirely.
func (wp *WorkerPool) runHandler(handler TaskHandler, task TaskMessage, attempt int) error {
	ctx := wp.ctx
	var cancel context.CancelFunc
	if wp.config.SoftTimeLimit > 0 {
		ctx, cancel = context.WithTimeout(ctx, wp.config.SoftTimeLimit)
		defer cancel()
	}

	if wp.config.HardTimeLimit <= 0 {
		return handler(ctx, task, attempt)
	}

	done := make(chan error, 1)
	go func() {
		done <- handler(ctx, task, attempt)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(wp.config.HardTimeLimit):
		return fmt.Errorf("task %s for job %d exceeded hard time limit", task.Type, task.JobID)
	}
}

// Stats returns pool counters keyed by queue name.
func (wp *WorkerPool) Stats(ctx context.Context) (map[string]interfaces.WorkerStats, error) {
	return map[string]interfaces.WorkerStats{
		wp.config.QueueName: {
			Concurrency:    wp.config.Concurrency,
			ActiveTasks:    int(atomic.LoadInt64(&wp.active)),
			ProcessedTotal: atomic.LoadInt64(&wp.processed),
			FailedTotal:    atomic.LoadInt64(&wp.failed),
		},
	}, nil
}

// Ping reports whether the pool is accepting work.
func (wp *WorkerPool) Ping(ctx context.Context) error {
	select {
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool stopped")
	default:
		return nil
	}
}
