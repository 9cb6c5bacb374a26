package lifecycle

import (
	"context"
	"strconv"
	"time"

	"github.com/ternarybob/atelier/internal/models"
)

// recordGenerationEvent appends a lifecycle event to the generation events
// stream. Telemetry is best effort and never fails the job path.
func (s *Service) recordGenerationEvent(ctx context.Context, kind string, job *models.Job, durationMs *int, errorCategory string) {
	if !s.opts.AnalyticsOn || s.c.Buffer == nil {
		return
	}

	fields := map[string]string{
		"event_kind":    kind,
		"generation_id": strconv.FormatUint(job.ID, 10),
		"user_id":       job.UserID,
		"timestamp":     time.Now().UTC().Format(time.RFC3339Nano),
		"model_name":    job.CheckpointModel,
		"width":         strconv.Itoa(job.Width),
		"height":        strconv.Itoa(job.Height),
		"batch_size":    strconv.Itoa(job.BatchSize),
		"prompt_tokens": strconv.Itoa(len(job.Prompt)),
	}

	switch kind {
	case models.GenerationEventCompletion:
		fields["success"] = strconv.FormatBool(job.Status == models.JobStatusCompleted)
		if durationMs != nil {
			fields["duration_ms"] = strconv.Itoa(*durationMs)
		}
		if job.Status == models.JobStatusFailed {
			fields["error_message"] = job.ErrorMessage
			if errorCategory != "" {
				fields["error_category"] = errorCategory
			}
		}
	case models.GenerationEventCancellation:
		fields["success"] = "false"
		if job.ErrorMessage != "" {
			fields["error_message"] = job.ErrorMessage
		}
	}

	topic := models.StreamTopic(s.opts.Namespace, models.GenerationEventsStream)
	if _, err := s.c.Buffer.Append(ctx, topic, fields); err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Int64("job_id", int64(job.ID)).Msg("Failed to record generation event")
	}
}
