package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/atelier/internal/models"
)

// Process executes one queued job end to end: transition to running, submit
// the workflow, wait for outputs, catalog the artifacts and finalize.
//
// Retryable errors (backend connectivity, workflow rejection, transient
// store failures) are returned to the caller so the queue can redeliver; all
// other failures finalize the job as failed and return nil.
func (s *Service) Process(ctx context.Context, jobID uint64) error {
	job, err := s.c.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	// Redelivery after a terminal transition (cancel racing a retry) is a
	// silent no-op.
	if job.IsTerminal() {
		s.logger.Debug().
			Int64("job_id", int64(jobID)).
			Str("status", string(job.Status)).
			Msg("Skipping terminal job")
		return nil
	}

	job, err = s.c.Jobs.UpdateJob(ctx, jobID, func(j *models.Job) error {
		if j.IsTerminal() {
			return nil
		}
		if j.Status == models.JobStatusRunning {
			return nil // Redelivered while still marked running
		}
		if !j.CanTransition(models.JobStatusRunning) {
			return models.NewConflictError("cannot start job %d in state %s", jobID, j.Status)
		}
		j.MarkRunning()
		return nil
	})
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}

	// Register for revocation while the render runs.
	renderCtx, cancel := context.WithCancel(ctx)
	s.registry.register(jobID, cancel)
	defer func() {
		s.registry.unregister(jobID)
		cancel()
	}()

	s.publishProgress(jobID, &models.ProgressUpdate{
		JobID:     jobID,
		Status:    models.ProgressStarted,
		Timestamp: time.Now().UTC(),
	})

	if err := s.render(renderCtx, job); err != nil {
		return s.handleProcessError(ctx, jobID, err)
	}
	return nil
}

// render runs the backend round trip and finalization for a running job.
func (s *Service) render(ctx context.Context, job *models.Job) error {
	workflow, err := s.c.Workflow.Build(job)
	if err != nil {
		return err
	}

	promptID, err := s.c.Backend.Submit(ctx, workflow)
	if err != nil {
		return err
	}

	job, err = s.c.Jobs.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		if j.BackendPromptID == "" {
			j.BackendPromptID = promptID
		}
		return nil
	})
	if err != nil {
		return &models.TransientStoreError{Err: err}
	}

	halfway := 0.5
	s.publishProgress(job.ID, &models.ProgressUpdate{
		JobID:     job.ID,
		Status:    models.ProgressProcessing,
		Timestamp: time.Now().UTC(),
		Progress:  &halfway,
	})

	if err := s.c.Backend.WaitForOutputs(ctx, promptID); err != nil {
		return err
	}

	rawPaths, err := s.c.Backend.CollectOutputPaths(ctx, promptID)
	if err != nil {
		return err
	}
	if len(rawPaths) == 0 {
		return &models.BackendWorkflowError{Status: "completed", Messages: []string{"no output paths"}}
	}

	paths := rawPaths
	if s.c.Organizer != nil {
		organized, err := s.c.Organizer.Organize(ctx, job.UserID, rawPaths)
		if err != nil {
			s.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Output organization failed, keeping raw paths")
		} else {
			paths = organized
		}
	}
	if s.c.Thumbnails != nil {
		s.c.Thumbnails.GenerateThumbnails(ctx, paths)
	}

	content := &models.Content{
		UserID: job.UserID,
		Title:  truncate(job.Prompt, 255),
		Type:   string(job.Kind),
		Data:   paths[0],
		Prompt: job.Prompt,
		Metadata: map[string]interface{}{
			"job_id":       job.ID,
			"output_paths": paths,
			"model":        job.CheckpointModel,
			"width":        job.Width,
			"height":       job.Height,
			"batch_size":   job.BatchSize,
		},
	}
	if err := s.c.Content.InsertContent(ctx, content); err != nil {
		return &models.TransientStoreError{Err: err}
	}

	job, err = s.c.Jobs.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		if j.IsTerminal() {
			return models.NewConflictError("job %d finalized concurrently as %s", j.ID, j.Status)
		}
		j.MarkCompleted(content.ID)
		return nil
	})
	if err != nil {
		return err
	}

	s.publishProgress(job.ID, &models.ProgressUpdate{
		JobID:       job.ID,
		Status:      models.ProgressCompleted,
		Timestamp:   time.Now().UTC(),
		ContentID:   &content.ID,
		OutputPaths: paths,
	})
	s.recordGenerationEvent(ctx, models.GenerationEventCompletion, job, durationMs(job), "")

	if s.c.Notifications != nil {
		if err := s.c.Notifications.NotifyJobCompleted(ctx, job); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Failed to notify job completion")
		}
	}

	s.logger.Info().
		Int64("job_id", int64(job.ID)).
		Int64("content_id", int64(content.ID)).
		Int("outputs", len(paths)).
		Msg("Generation job completed")
	return nil
}

// handleProcessError decides between redelivery and permanent failure.
func (s *Service) handleProcessError(ctx context.Context, jobID uint64, procErr error) error {
	// A cancelled render context means Cancel won the race; the job row is
	// already terminal.
	if ctx.Err() == nil {
		if job, err := s.c.Jobs.GetJob(ctx, jobID); err == nil && job.Status == models.JobStatusCancelled {
			s.logger.Debug().Int64("job_id", int64(jobID)).Msg("Render interrupted by cancellation")
			return nil
		}
	}

	if models.IsRetryable(procErr) {
		s.logger.Warn().
			Err(procErr).
			Int64("job_id", int64(jobID)).
			Msg("Job processing failed, eligible for retry")
		return procErr
	}

	s.logger.Error().
		Err(procErr).
		Int64("job_id", int64(jobID)).
		Msg("Job processing failed permanently")
	if err := s.Fail(ctx, jobID, procErr.Error()); err != nil {
		// A ValidationError here means the job reached a terminal state
		// concurrently; nothing left to finalize.
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			return nil
		}
		return fmt.Errorf("failed to finalize job %d: %w (original: %v)", jobID, err, procErr)
	}
	return nil
}

func durationMs(job *models.Job) *int {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return nil
	}
	ms := int(job.CompletedAt.Sub(*job.StartedAt).Milliseconds())
	return &ms
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
