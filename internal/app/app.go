// -----------------------------------------------------------------------
// Application container - wires storage, queue, services and handlers
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/backend"
	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/eventbuffer"
	"github.com/ternarybob/atelier/internal/handlers"
	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/progress"
	"github.com/ternarybob/atelier/internal/queue"
	"github.com/ternarybob/atelier/internal/services/analytics"
	"github.com/ternarybob/atelier/internal/services/cacheplan"
	"github.com/ternarybob/atelier/internal/services/files"
	"github.com/ternarybob/atelier/internal/services/health"
	"github.com/ternarybob/atelier/internal/services/lifecycle"
	"github.com/ternarybob/atelier/internal/services/notify"
	"github.com/ternarybob/atelier/internal/services/scheduler"
	badgerstore "github.com/ternarybob/atelier/internal/storage/badger"
)

// App holds every wired component for the process lifetime
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage    *badgerstore.Manager
	Buffer     interfaces.EventBuffer
	Bus        interfaces.ProgressBus
	Queue      *queue.Manager
	WorkerPool *queue.WorkerPool
	Backend    interfaces.BackendClient
	JobService *lifecycle.Service
	Scheduler  *scheduler.Service
	Capture    *analytics.Capture
	Transfer   *analytics.Transfer
	Rollup     *analytics.Rollup
	Trends     *analytics.Trends
	Analyzer   *cacheplan.Analyzer

	JobHandler       *handlers.JobHandler
	AnalyticsHandler *handlers.AnalyticsHandler
	StatusHandler    *handlers.StatusHandler
	WebSocketHandler *handlers.WebSocketHandler
}

// New wires the application from configuration. Order matters: storage
// first, then queue and buffer over its Badger handle, then services, then
// handlers.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	storage, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Storage = storage

	rawDB := storage.DB().Store().Badger()

	a.Buffer = eventbuffer.New(config.Analytics.BufferMaxLen, rawDB)
	a.Bus = progress.NewBus(config.WebSocket.SubscriberBuffer)

	queueMgr, err := queue.NewManager(rawDB, common.Duration(config.Queue.VisibilityTimeout), config.Queue.MaxReceive)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	a.Queue = queueMgr

	backendClient, err := backend.NewClient(&config.Backend, logger.WithPrefix("backend"))
	if err != nil {
		return nil, err
	}
	a.Backend = backendClient

	retryCapDur := common.Duration(config.Queue.RetryBackoffCap)
	a.WorkerPool = queue.NewWorkerPool(queueMgr, queue.WorkerPoolConfig{
		QueueName:     config.Queue.QueueName,
		Concurrency:   config.Queue.Concurrency,
		PollInterval:  common.Duration(config.Queue.PollInterval),
		SoftTimeLimit: common.Duration(config.Queue.SoftTimeLimit),
		HardTimeLimit: common.Duration(config.Queue.HardTimeLimit),
		RecycleAfter:  config.Queue.RecycleAfter,
	}, queue.NewRetryPolicy(0, retryCapDur), logger.WithPrefix("worker"))

	probe := health.NewProbe(a.WorkerPool, logger.WithPrefix("health"))
	organizer := files.NewOrganizer(config.Storage.Filesystem.Outputs, logger.WithPrefix("files"))
	thumbnails := files.NewThumbnailService(config.Storage.Filesystem.Thumbnails, logger.WithPrefix("files"))
	notifications := notify.NewService(storage.Notifications(), logger.WithPrefix("notify"))
	workflow := backend.NewStandardWorkflowBuilder(config.Defaults.CheckpointModel)

	a.JobService = lifecycle.NewService(lifecycle.Collaborators{
		Jobs:          storage.Jobs(),
		Content:       storage.Content(),
		Users:         storage.Users(),
		Queue:         queueMgr,
		Buffer:        a.Buffer,
		Bus:           a.Bus,
		Backend:       backendClient,
		Workflow:      workflow,
		Probe:         probe,
		Notifications: notifications,
		Organizer:     organizer,
		Thumbnails:    thumbnails,
	}, lifecycle.Options{
		QueueName:     config.Queue.QueueName,
		Namespace:     config.Analytics.Namespace,
		DefaultWidth:  config.Defaults.Width,
		DefaultHeight: config.Defaults.Height,
		DefaultBatch:  config.Defaults.BatchSize,
		DefaultModel:  config.Defaults.CheckpointModel,
		AnalyticsOn:   config.Analytics.Enabled,
	}, logger.WithPrefix("lifecycle"))

	// The worker pool delegates to the lifecycle engine; the final retryable
	// delivery finalizes the job as failed instead of dropping silently.
	maxReceive := queueMgr.MaxReceive()
	a.WorkerPool.RegisterHandler(queue.TaskRunJob, func(ctx context.Context, task queue.TaskMessage, attempt int) error {
		err := a.JobService.Process(ctx, task.JobID)
		if err != nil && attempt >= maxReceive {
			if failErr := a.JobService.Fail(ctx, task.JobID, fmt.Sprintf("retries exhausted: %v", err)); failErr != nil {
				logger.Warn().Err(failErr).Int64("job_id", int64(task.JobID)).Msg("Failed to finalize exhausted job")
			}
			return nil
		}
		return err
	})

	a.Capture = analytics.NewCapture(a.Buffer, config.Analytics.Namespace, config.Analytics.Enabled, logger.WithPrefix("analytics"))
	a.Transfer = analytics.NewTransfer(a.Buffer, storage.Analytics(), config.Analytics.Namespace, config.Analytics.TransferBatch, config.Analytics.BufferMaxLen, logger.WithPrefix("analytics"))
	a.Rollup = analytics.NewRollup(storage.Analytics(), logger.WithPrefix("analytics"))
	a.Trends = analytics.NewTrends(storage.Analytics(), logger.WithPrefix("analytics"))
	a.Analyzer = cacheplan.NewAnalyzer(storage.Analytics(), logger.WithPrefix("cacheplan"))
	modelUsage := analytics.NewModelUsageRefresher(storage.Analytics(), 30, logger.WithPrefix("analytics"))

	a.Scheduler = scheduler.NewService(logger.WithPrefix("scheduler"))
	if config.Analytics.Enabled {
		if err := a.Scheduler.RegisterJob("analytics-transfer", config.Analytics.TransferSchedule, a.Transfer.Run); err != nil {
			return nil, err
		}
	}
	if err := a.Scheduler.RegisterJob("analytics-rollup", config.Analytics.RollupSchedule, a.Rollup.Run); err != nil {
		return nil, err
	}
	if err := a.Scheduler.RegisterJob("model-usage-refresh", config.Analytics.TrendsSchedule, modelUsage.Run); err != nil {
		return nil, err
	}

	a.JobHandler = handlers.NewJobHandler(a.JobService, logger.WithPrefix("api"))
	a.AnalyticsHandler = handlers.NewAnalyticsHandler(a.Trends, a.Analyzer, logger.WithPrefix("api"))
	a.StatusHandler = handlers.NewStatusHandler(probe, a.WorkerPool, queueMgr, a.Scheduler, config.Queue.QueueName, logger.WithPrefix("api"))
	a.WebSocketHandler = handlers.NewWebSocketHandler(a.Bus, &config.WebSocket, config.Analytics.Namespace, logger.WithPrefix("ws"))

	return a, nil
}

// Start launches the worker pool and scheduler.
func (a *App) Start() error {
	if err := a.WorkerPool.Start(); err != nil {
		return err
	}
	a.Scheduler.Start()
	return nil
}

// Close shuts components down in reverse dependency order.
func (a *App) Close() error {
	a.Scheduler.Stop()
	if err := a.WorkerPool.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Worker pool stop failed")
	}
	if err := a.Buffer.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Event buffer snapshot failed")
	}
	return a.Storage.Close()
}
