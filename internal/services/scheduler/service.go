// -----------------------------------------------------------------------
// Scheduler - cron-driven periodic analytics tasks
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
)

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name      string
	spec      string
	handler   func(ctx context.Context) error
	cronID    cron.EntryID
	lastRun   *time.Time
	lastError string
	runCount  int64
	isRunning bool
}

// Service implements SchedulerService on robfig/cron. Seconds are included
// in specs; all schedules evaluate in UTC.
type Service struct {
	cron   *cron.Cron
	logger arbor.ILogger

	jobMu   sync.Mutex
	jobs    map[string]*jobEntry
	running bool
}

// NewService creates a new scheduler service
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
	}
}

// RegisterJob schedules fn under a cron spec. Names must be unique. A job
// still running when its next tick fires is skipped for that tick.
func (s *Service) RegisterJob(name, spec string, fn func(ctx context.Context) error) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job already registered: %s", name)
	}

	entry := &jobEntry{
		name:    name,
		spec:    spec,
		handler: fn,
	}

	cronID, err := s.cron.AddFunc(spec, func() {
		s.runJob(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job", name).
		Str("spec", spec).
		Msg("Scheduled job registered")
	return nil
}

// RunJobNow triggers a registered job out of schedule.
func (s *Service) RunJobNow(ctx context.Context, name string) error {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	s.jobMu.Unlock()

	if !exists {
		return fmt.Errorf("unknown scheduled job: %s", name)
	}

	s.runJob(entry)
	return nil
}

// Jobs returns registration metadata for every scheduled job.
func (s *Service) Jobs() []interfaces.ScheduledJobInfo {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	infos := make([]interfaces.ScheduledJobInfo, 0, len(s.jobs))
	for _, entry := range s.jobs {
		info := interfaces.ScheduledJobInfo{
			Name:     entry.name,
			Spec:     entry.spec,
			LastRun:  entry.lastRun,
			LastErr:  entry.lastError,
			RunCount: entry.runCount,
		}
		if s.running {
			next := s.cron.Entry(entry.cronID).Next
			if !next.IsZero() {
				info.NextRun = &next
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// Start begins scheduled execution
func (s *Service) Start() {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop halts the scheduler, waiting for in-flight runs.
func (s *Service) Stop() {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return
	}
	s.running = false
	s.jobMu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Service) runJob(entry *jobEntry) {
	s.jobMu.Lock()
	if entry.isRunning {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job", entry.name).Msg("Skipping tick, previous run still active")
		return
	}
	entry.isRunning = true
	s.jobMu.Unlock()

	start := time.Now().UTC()
	err := entry.handler(context.Background())
	elapsed := time.Since(start)

	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &start
	entry.runCount++
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("job", entry.name).
			Dur("elapsed", elapsed).
			Msg("Scheduled job failed")
		return
	}
	s.logger.Debug().
		Str("job", entry.name).
		Dur("elapsed", elapsed).
		Msg("Scheduled job completed")
}
