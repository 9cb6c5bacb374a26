package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger

	// Serializes read-modify-write cycles so concurrent UpdateJob calls on
	// the same row cannot interleave.
	updateMu sync.Mutex
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// InsertJob assigns a monotonic id and persists the row.
func (s *JobStorage) InsertJob(ctx context.Context, job *models.Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	id, err := s.db.NextID("job")
	if err != nil {
		return err
	}
	job.ID = id
	if err := s.db.Store().Insert(job.ID, job); err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id uint64) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.NewNotFoundError("job", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// UpdateJob re-reads the row and applies mutate under the store lock. An
// error from mutate aborts the write and is returned unchanged, so services
// can surface ConflictError from inside the closure.
func (s *JobStorage) UpdateJob(ctx context.Context, id uint64, mutate func(*models.Job) error) (*models.Job, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(job); err != nil {
		return nil, err
	}

	job.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Update(id, job); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts interfaces.JobListOptions) ([]*models.Job, error) {
	query := badgerhold.Where("ID").Gt(uint64(0))

	if opts.UserID != "" {
		query = query.And("UserID").Eq(opts.UserID)
	}
	if opts.Status != "" {
		query = query.And("Status").Eq(opts.Status)
	}
	if opts.Kind != "" {
		query = query.And("Kind").Eq(opts.Kind)
	}
	query = query.SortBy("CreatedAt").Reverse()

	// Completion bounds match in memory: CompletedAt is a pointer the store
	// cannot compare, so paging moves after the filter.
	windowed := !opts.CompletedAfter.IsZero() || !opts.CompletedBefore.IsZero()
	if !windowed {
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	if windowed {
		result = filterCompletedWindow(result, opts)
	}
	return result, nil
}

func filterCompletedWindow(jobs []*models.Job, opts interfaces.JobListOptions) []*models.Job {
	filtered := make([]*models.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.CompletedAt == nil {
			continue
		}
		if !opts.CompletedAfter.IsZero() && j.CompletedAt.Before(opts.CompletedAfter) {
			continue
		}
		if !opts.CompletedBefore.IsZero() && !j.CompletedAt.Before(opts.CompletedBefore) {
			continue
		}
		filtered = append(filtered, j)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(filtered) {
			return nil
		}
		filtered = filtered[opts.Offset:]
	}
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered
}

func (s *JobStorage) CountJobsByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, badgerhold.Where("Status").Eq(status).Index("Status"))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

// DeleteJob removes a finished job row. Jobs that are still pending or
// running cannot be deleted; cancel them first.
func (s *JobStorage) DeleteJob(ctx context.Context, id uint64) error {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return models.NewValidationError("cannot delete job %d in state %s", id, job.Status)
	}

	if err := s.db.Store().Delete(id, &models.Job{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.NewNotFoundError("job", id)
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}
