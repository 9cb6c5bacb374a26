// -----------------------------------------------------------------------
// Rollup - hourly summaries over raw analytics rows
// -----------------------------------------------------------------------

package analytics

import (
	"context"
	"time"

	"github.com/aclements/go-moremath/stats"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// Rollup computes hourly summaries for route and generation telemetry.
// Each run targets the previous closed UTC hour; rows are keyed on natural
// keys so re-running an hour replaces its summaries idempotently.
type Rollup struct {
	storage interfaces.AnalyticsStorage
	logger  arbor.ILogger

	// referenceTime overrides "now" for backfills and tests; nil means
	// time.Now.
	referenceTime func() time.Time
}

// NewRollup creates the rollup task.
func NewRollup(storage interfaces.AnalyticsStorage, logger arbor.ILogger) *Rollup {
	return &Rollup{storage: storage, logger: logger}
}

// WithReferenceTime overrides the clock; the targeted hour is the closed
// hour preceding the reference time.
func (r *Rollup) WithReferenceTime(fn func() time.Time) *Rollup {
	r.referenceTime = fn
	return r
}

// Run rolls up the previous closed hour. Intended as a scheduler handler.
func (r *Rollup) Run(ctx context.Context) error {
	now := time.Now().UTC()
	if r.referenceTime != nil {
		now = r.referenceTime().UTC()
	}
	hour := now.Truncate(time.Hour).Add(-time.Hour)
	return r.RollupHour(ctx, hour)
}

// RollupHour computes and upserts summaries for one UTC hour.
func (r *Rollup) RollupHour(ctx context.Context, hour time.Time) error {
	hour = hour.UTC().Truncate(time.Hour)
	from, to := hour, hour.Add(time.Hour)

	if err := r.rollupRoutes(ctx, hour, from, to); err != nil {
		return err
	}
	return r.rollupGenerations(ctx, hour, from, to)
}

func (r *Rollup) rollupRoutes(ctx context.Context, hour, from, to time.Time) error {
	rows, err := r.storage.RouteRowsInWindow(ctx, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	groups := make(map[string][]*models.RouteAnalyticsRow)
	for _, row := range rows {
		key := models.RouteHourlyKey(hour, row.Route, row.Method, row.QueryParamsNormalized)
		groups[key] = append(groups[key], row)
	}

	for key, group := range groups {
		summary := summarizeRouteGroup(hour, key, group)
		if err := r.storage.UpsertRouteHourly(ctx, summary); err != nil {
			return err
		}
	}

	r.logger.Debug().
		Str("hour", hour.Format(time.RFC3339)).
		Int("rows", len(rows)).
		Int("groups", len(groups)).
		Msg("Route rollup completed")
	return nil
}

func summarizeRouteGroup(hour time.Time, key string, group []*models.RouteAnalyticsRow) *models.RouteAnalyticsHourly {
	first := group[0]
	summary := &models.RouteAnalyticsHourly{
		Key:                   key,
		Hour:                  hour,
		Route:                 first.Route,
		Method:                first.Method,
		QueryParamsNormalized: first.QueryParamsNormalized,
		TotalRequests:         len(group),
	}

	durations := make([]float64, 0, len(group))
	users := make(map[string]struct{})
	var sumDuration, sumReqSize, sumRespSize int

	for _, row := range group {
		durations = append(durations, float64(row.DurationMs))
		sumDuration += row.DurationMs
		sumReqSize += row.RequestSizeBytes
		sumRespSize += row.ResponseSizeBytes
		if row.UserID != "" {
			users[row.UserID] = struct{}{}
		}

		switch models.ErrorCategoryForStatus(row.StatusCode) {
		case models.ErrorCategoryClient:
			summary.ClientErrors++
		case models.ErrorCategoryServer:
			summary.ServerErrors++
		}
		// Only 2xx counts as success; redirects are neither
		if row.StatusCode >= 200 && row.StatusCode < 300 {
			summary.SuccessfulRequests++
		}
	}

	n := len(group)
	summary.AvgDurationMs = sumDuration / n
	summary.AvgRequestSizeBytes = sumReqSize / n
	summary.AvgResponseSizeBytes = sumRespSize / n
	summary.UniqueUsers = len(users)

	sample := stats.Sample{Xs: durations}
	summary.P50DurationMs = sample.Quantile(0.50)
	summary.P95DurationMs = sample.Quantile(0.95)
	summary.P99DurationMs = sample.Quantile(0.99)

	return summary
}

func (r *Rollup) rollupGenerations(ctx context.Context, hour, from, to time.Time) error {
	rows, err := r.storage.GenerationRowsInWindow(ctx, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	summary := &models.GenerationMetricsHourly{
		Key:  models.GenerationHourlyKey(hour),
		Hour: hour,
	}

	var durations []float64
	var sumDuration int
	users := make(map[string]struct{})

	for _, row := range rows {
		if row.UserID != "" {
			users[row.UserID] = struct{}{}
		}

		switch row.EventKind {
		case models.GenerationEventRequest:
			summary.TotalRequests++
		case models.GenerationEventCancellation:
			summary.CancelledGenerations++
		case models.GenerationEventCompletion:
			if row.Success {
				summary.SuccessfulGenerations++
				// Completions that never recorded a batch count as one image
				batch := row.BatchSize
				if batch <= 0 {
					batch = 1
				}
				summary.TotalImagesGenerated += batch
				if row.DurationMs != nil {
					durations = append(durations, float64(*row.DurationMs))
					sumDuration += *row.DurationMs
				}
			} else {
				summary.FailedGenerations++
			}
		}
	}
	summary.UniqueUsers = len(users)

	if len(durations) > 0 {
		summary.AvgDurationMs = sumDuration / len(durations)
		sample := stats.Sample{Xs: durations}
		summary.P50DurationMs = sample.Quantile(0.50)
		summary.P95DurationMs = sample.Quantile(0.95)
		summary.P99DurationMs = sample.Quantile(0.99)
	}

	if err := r.storage.UpsertGenerationHourly(ctx, summary); err != nil {
		return err
	}

	r.logger.Debug().
		Str("hour", hour.Format(time.RFC3339)).
		Int("rows", len(rows)).
		Msg("Generation rollup completed")
	return nil
}
