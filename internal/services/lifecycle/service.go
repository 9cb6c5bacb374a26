// -----------------------------------------------------------------------
// Job Lifecycle Engine - create, cancel and query generation jobs
// -----------------------------------------------------------------------

package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/queue"
)

// Collaborators bundles everything the lifecycle engine drives.
type Collaborators struct {
	Jobs          interfaces.JobStorage
	Content       interfaces.ContentStorage
	Users         interfaces.UserStorage
	Queue         interfaces.QueueManager
	Buffer        interfaces.EventBuffer
	Bus           interfaces.ProgressBus
	Backend       interfaces.BackendClient
	Workflow      interfaces.WorkflowBuilder
	Probe         interfaces.HealthProbe
	Notifications interfaces.NotificationService
	Organizer     interfaces.FileOrganizer
	Thumbnails    interfaces.ThumbnailService
}

// Options are the lifecycle tunables taken from configuration.
type Options struct {
	QueueName       string
	Namespace       string
	DefaultWidth    int
	DefaultHeight   int
	DefaultBatch    int
	DefaultModel    string
	AnalyticsOn     bool
	MaxPromptLength int
}

// Service implements JobService. One instance serves the whole process.
type Service struct {
	c        Collaborators
	opts     Options
	validate *validator.Validate
	registry *revocationRegistry
	logger   arbor.ILogger
}

// NewService creates the lifecycle engine.
func NewService(c Collaborators, opts Options, logger arbor.ILogger) *Service {
	if opts.MaxPromptLength <= 0 {
		opts.MaxPromptLength = models.MaxPromptLength
	}
	if opts.Namespace == "" {
		opts.Namespace = "atelier"
	}
	return &Service{
		c:        c,
		opts:     opts,
		validate: validator.New(),
		registry: newRevocationRegistry(),
		logger:   logger,
	}
}

// Create validates the request, persists a pending job, records the request
// event and enqueues the render task.
func (s *Service) Create(ctx context.Context, req *models.GenerationRequest) (*models.Job, error) {
	if req == nil {
		return nil, models.NewValidationError("request body is required")
	}

	// Gate on worker availability before accepting work.
	if s.c.Probe != nil && !s.c.Probe.WorkersAvailable(ctx) {
		return nil, &models.WorkersUnavailableError{Message: "no workers available to process generation jobs"}
	}

	if err := s.validateRequest(ctx, req); err != nil {
		return nil, err
	}
	s.applyDefaults(req)

	job := &models.Job{
		UserID:          req.UserID,
		Kind:            req.Kind,
		Status:          models.JobStatusPending,
		Prompt:          req.Prompt,
		Negative:        req.NegativePrompt,
		Backend:         req.Backend,
		CheckpointModel: req.CheckpointModel,
		LoraModels:      req.LoraModels,
		Width:           req.Width,
		Height:          req.Height,
		BatchSize:       req.BatchSize,
		Sampler:         *req.Sampler,
		Params:          req.Params,
	}

	if err := s.c.Jobs.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.recordGenerationEvent(ctx, models.GenerationEventRequest, job, nil, "")

	task, err := queue.EncodeTask(queue.TaskMessage{Type: queue.TaskRunJob, JobID: job.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}

	token, err := s.c.Queue.Enqueue(ctx, s.opts.QueueName, task)
	if err != nil {
		// Queue failure leaves an orphaned pending row; mark it failed so it
		// never looks in-flight.
		_, _ = s.c.Jobs.UpdateJob(ctx, job.ID, func(j *models.Job) error {
			j.MarkFailed(fmt.Sprintf("failed to enqueue: %v", err))
			return nil
		})
		return nil, fmt.Errorf("failed to enqueue job %d: %w", job.ID, err)
	}

	job, err = s.c.Jobs.UpdateJob(ctx, job.ID, func(j *models.Job) error {
		j.DispatchToken = token
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("job_id", int64(job.ID)).
		Str("user_id", job.UserID).
		Str("backend", string(job.Backend)).
		Msg("Generation job created")
	return job, nil
}

// Get returns a job by id.
func (s *Service) Get(ctx context.Context, jobID uint64) (*models.Job, error) {
	return s.c.Jobs.GetJob(ctx, jobID)
}

// List returns jobs matching the options.
func (s *Service) List(ctx context.Context, opts interfaces.JobListOptions) ([]*models.Job, error) {
	return s.c.Jobs.ListJobs(ctx, opts)
}

// Cancel stops a pending or running job. Terminal states, including an
// earlier cancellation, reject with ValidationError.
func (s *Service) Cancel(ctx context.Context, jobID uint64, reason string) (*models.Job, error) {
	job, err := s.c.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.IsTerminal() {
		return nil, models.NewValidationError("cannot cancel job %d in state %s", jobID, job.Status)
	}

	// Pre-dispatch: remove the queued task so no worker ever picks it up.
	if job.Status == models.JobStatusPending && job.DispatchToken != "" {
		revoked, err := s.c.Queue.Revoke(ctx, s.opts.QueueName, job.DispatchToken)
		if err != nil {
			s.logger.Warn().Err(err).Int64("job_id", int64(jobID)).Msg("Queue revoke failed")
		} else if revoked {
			s.logger.Debug().Int64("job_id", int64(jobID)).Msg("Queued task revoked")
		}
	}

	// Post-dispatch: interrupt the in-flight render context if it runs here.
	if job.Status == models.JobStatusRunning {
		if s.registry.cancel(jobID) {
			s.logger.Debug().Int64("job_id", int64(jobID)).Msg("Running render interrupted")
		}
	}

	job, err = s.c.Jobs.UpdateJob(ctx, jobID, func(j *models.Job) error {
		if !j.CanTransition(models.JobStatusCancelled) {
			return models.NewValidationError("cannot cancel job %d in state %s", jobID, j.Status)
		}
		j.MarkCancelled(reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishProgress(job.ID, &models.ProgressUpdate{
		JobID:     job.ID,
		Status:    models.ProgressFailed,
		Timestamp: time.Now().UTC(),
		Error:     job.ErrorMessage,
	})
	s.recordGenerationEvent(ctx, models.GenerationEventCancellation, job, nil, "")

	s.logger.Info().Int64("job_id", int64(jobID)).Str("reason", reason).Msg("Generation job cancelled")
	return job, nil
}

// Start transitions a pending job to running. Any other state rejects with
// ValidationError. Exposed for callers finalizing jobs outside the queue
// loop; Process drives its own transition.
func (s *Service) Start(ctx context.Context, jobID uint64) (*models.Job, error) {
	job, err := s.c.Jobs.UpdateJob(ctx, jobID, func(j *models.Job) error {
		if j.Status != models.JobStatusPending {
			return models.NewValidationError("cannot start job %d in state %s", jobID, j.Status)
		}
		j.MarkRunning()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishProgress(job.ID, &models.ProgressUpdate{
		JobID:     job.ID,
		Status:    models.ProgressStarted,
		Timestamp: time.Now().UTC(),
	})
	s.logger.Info().Int64("job_id", int64(jobID)).Msg("Generation job started")
	return job, nil
}

// Complete transitions a running job to completed, linking the content row
// it produced. The content must already exist; any state other than running
// rejects with ValidationError.
func (s *Service) Complete(ctx context.Context, jobID, contentID uint64) (*models.Job, error) {
	content, err := s.c.Content.GetContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	job, err := s.c.Jobs.UpdateJob(ctx, jobID, func(j *models.Job) error {
		if j.Status != models.JobStatusRunning {
			return models.NewValidationError("cannot complete job %d in state %s", jobID, j.Status)
		}
		j.MarkCompleted(content.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishProgress(job.ID, &models.ProgressUpdate{
		JobID:     job.ID,
		Status:    models.ProgressCompleted,
		Timestamp: time.Now().UTC(),
		ContentID: &content.ID,
	})
	s.recordGenerationEvent(ctx, models.GenerationEventCompletion, job, durationMs(job), "")
	if s.c.Notifications != nil {
		if err := s.c.Notifications.NotifyJobCompleted(ctx, job); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Failed to notify job completion")
		}
	}

	s.logger.Info().
		Int64("job_id", int64(jobID)).
		Int64("content_id", int64(content.ID)).
		Msg("Generation job completed")
	return job, nil
}

// Fail force-fails a pending or running job, used when retries are
// exhausted. A non-empty message is required; terminal jobs reject with
// ValidationError.
func (s *Service) Fail(ctx context.Context, jobID uint64, msg string) error {
	if strings.TrimSpace(msg) == "" {
		return models.NewValidationError("failure message is required")
	}

	job, err := s.c.Jobs.UpdateJob(ctx, jobID, func(j *models.Job) error {
		if j.IsTerminal() {
			return models.NewValidationError("cannot fail job %d in state %s", jobID, j.Status)
		}
		j.MarkFailed(msg)
		return nil
	})
	if err != nil {
		return err
	}

	s.publishProgress(job.ID, &models.ProgressUpdate{
		JobID:     job.ID,
		Status:    models.ProgressFailed,
		Timestamp: time.Now().UTC(),
		Error:     job.ErrorMessage,
	})
	s.recordGenerationEvent(ctx, models.GenerationEventCompletion, job, nil, models.ErrorCategoryServer)
	if s.c.Notifications != nil {
		if err := s.c.Notifications.NotifyJobFailed(ctx, job); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Failed to notify job failure")
		}
	}
	return nil
}

func (s *Service) validateRequest(ctx context.Context, req *models.GenerationRequest) error {
	if err := s.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return models.NewValidationError("invalid field %s: failed %s validation", first.Field(), first.Tag())
		}
		return models.NewValidationError("invalid request: %v", err)
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return models.NewValidationError("prompt must not be empty")
	}
	if len(req.Prompt) > s.opts.MaxPromptLength {
		return models.NewValidationError("prompt exceeds maximum length of %d characters", s.opts.MaxPromptLength)
	}

	if _, err := s.c.Users.GetUser(ctx, req.UserID); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills configured defaults first; the built-in submission
// fallbacks only cover whatever configuration leaves unset.
func (s *Service) applyDefaults(req *models.GenerationRequest) {
	if req.Width == 0 && s.opts.DefaultWidth > 0 {
		req.Width = s.opts.DefaultWidth
	}
	if req.Height == 0 && s.opts.DefaultHeight > 0 {
		req.Height = s.opts.DefaultHeight
	}
	if req.BatchSize == 0 && s.opts.DefaultBatch > 0 {
		req.BatchSize = s.opts.DefaultBatch
	}
	if req.CheckpointModel == "" {
		req.CheckpointModel = s.opts.DefaultModel
	}
	req.ApplyDefaults()
}

func (s *Service) publishProgress(jobID uint64, update *models.ProgressUpdate) {
	if s.c.Bus == nil {
		return
	}
	payload, err := json.Marshal(update)
	if err != nil {
		s.logger.Warn().Err(err).Int64("job_id", int64(jobID)).Msg("Failed to marshal progress update")
		return
	}
	s.c.Bus.Publish(models.JobTopic(s.opts.Namespace, jobID), payload)
}
