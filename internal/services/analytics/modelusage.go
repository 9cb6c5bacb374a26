package analytics

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// ModelUsageRefresher recomputes per-checkpoint usage counts. Runs daily so
// the cache analyzer and dashboards read a current cardinality table without
// scanning raw rows.
type ModelUsageRefresher struct {
	storage      interfaces.AnalyticsStorage
	lookbackDays int
	logger       arbor.ILogger
}

// NewModelUsageRefresher creates the refresher over a trailing window.
func NewModelUsageRefresher(storage interfaces.AnalyticsStorage, lookbackDays int, logger arbor.ILogger) *ModelUsageRefresher {
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &ModelUsageRefresher{
		storage:      storage,
		lookbackDays: lookbackDays,
		logger:       logger,
	}
}

// Run recounts model usage from raw generation rows and upserts the table.
// Intended as a scheduler handler.
func (m *ModelUsageRefresher) Run(ctx context.Context) error {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -m.lookbackDays)

	rows, err := m.storage.GenerationRowsInWindow(ctx, from, now)
	if err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, row := range rows {
		if row.EventKind != models.GenerationEventRequest || row.ModelName == "" {
			continue
		}
		counts[row.ModelName]++
	}

	for model, count := range counts {
		usage := &models.ModelUsage{Model: model, Count: count}
		if err := m.storage.UpsertModelUsage(ctx, usage); err != nil {
			return err
		}
	}

	m.logger.Debug().Int("models", len(counts)).Msg("Model usage refreshed")
	return nil
}
