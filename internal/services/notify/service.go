package notify

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// Service writes per-user notifications for finished jobs. Failures here
// never fail the job; callers log and move on.
type Service struct {
	storage interfaces.NotificationStorage
	logger  arbor.ILogger
}

// NewService creates a notification service
func NewService(storage interfaces.NotificationStorage, logger arbor.ILogger) interfaces.NotificationService {
	return &Service{storage: storage, logger: logger}
}

func (s *Service) NotifyJobCompleted(ctx context.Context, job *models.Job) error {
	n := &models.Notification{
		UserID:  job.UserID,
		JobID:   job.ID,
		Kind:    "generation_completed",
		Message: fmt.Sprintf("Your %s generation #%d is ready", job.Kind, job.ID),
	}
	if err := s.storage.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to record completion notification: %w", err)
	}
	return nil
}

func (s *Service) NotifyJobFailed(ctx context.Context, job *models.Job) error {
	n := &models.Notification{
		UserID:  job.UserID,
		JobID:   job.ID,
		Kind:    "generation_failed",
		Message: fmt.Sprintf("Your %s generation #%d failed: %s", job.Kind, job.ID, job.ErrorMessage),
	}
	if err := s.storage.InsertNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to record failure notification: %w", err)
	}
	return nil
}
