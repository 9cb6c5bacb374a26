package interfaces

import (
	"context"
	"time"
)

// ScheduledJobInfo - registration metadata for one periodic task
type ScheduledJobInfo struct {
	Name     string     `json:"name"`
	Spec     string     `json:"spec"`
	LastRun  *time.Time `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	LastErr  string     `json:"last_error,omitempty"`
	RunCount int64      `json:"run_count"`
}

// SchedulerService - cron-driven periodic task runner
type SchedulerService interface {
	// RegisterJob schedules fn under a cron spec. Names must be unique.
	RegisterJob(name, spec string, fn func(ctx context.Context) error) error
	// RunJobNow triggers a registered job out of schedule.
	RunJobNow(ctx context.Context, name string) error
	Jobs() []ScheduledJobInfo
	Start()
	Stop()
}
