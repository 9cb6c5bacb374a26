package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// AnalyticsStorage implements the AnalyticsStorage interface for Badger
type AnalyticsStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewAnalyticsStorage creates a new AnalyticsStorage instance
func NewAnalyticsStorage(db *BadgerDB, logger arbor.ILogger) interfaces.AnalyticsStorage {
	return &AnalyticsStorage{
		db:     db,
		logger: logger,
	}
}

func (s *AnalyticsStorage) InsertRouteRows(ctx context.Context, rows []*models.RouteAnalyticsRow) error {
	for _, row := range rows {
		if row.Timestamp.IsZero() {
			row.Timestamp = time.Now().UTC()
		}
		if err := s.db.Store().Insert(badgerhold.NextSequence(), row); err != nil {
			return fmt.Errorf("failed to insert route analytics row: %w", err)
		}
	}
	return nil
}

func (s *AnalyticsStorage) InsertGenerationRows(ctx context.Context, rows []*models.GenerationEventRow) error {
	for _, row := range rows {
		if row.Timestamp.IsZero() {
			row.Timestamp = time.Now().UTC()
		}
		if err := s.db.Store().Insert(badgerhold.NextSequence(), row); err != nil {
			return fmt.Errorf("failed to insert generation event row: %w", err)
		}
	}
	return nil
}

// RouteRowsInWindow returns raw route rows with from <= Timestamp < to.
func (s *AnalyticsStorage) RouteRowsInWindow(ctx context.Context, from, to time.Time) ([]*models.RouteAnalyticsRow, error) {
	var rows []models.RouteAnalyticsRow
	query := badgerhold.Where("Timestamp").Ge(from).And("Timestamp").Lt(to)
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query route rows: %w", err)
	}

	result := make([]*models.RouteAnalyticsRow, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

// GenerationRowsInWindow returns raw generation rows with from <= Timestamp < to.
func (s *AnalyticsStorage) GenerationRowsInWindow(ctx context.Context, from, to time.Time) ([]*models.GenerationEventRow, error) {
	var rows []models.GenerationEventRow
	query := badgerhold.Where("Timestamp").Ge(from).And("Timestamp").Lt(to)
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query generation rows: %w", err)
	}

	result := make([]*models.GenerationEventRow, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *AnalyticsStorage) UpsertRouteHourly(ctx context.Context, row *models.RouteAnalyticsHourly) error {
	if row.Key == "" {
		row.Key = models.RouteHourlyKey(row.Hour, row.Route, row.Method, row.QueryParamsNormalized)
	}
	if err := s.db.Store().Upsert(row.Key, row); err != nil {
		return fmt.Errorf("failed to upsert route hourly: %w", err)
	}
	return nil
}

func (s *AnalyticsStorage) UpsertGenerationHourly(ctx context.Context, row *models.GenerationMetricsHourly) error {
	if row.Key == "" {
		row.Key = models.GenerationHourlyKey(row.Hour)
	}
	if err := s.db.Store().Upsert(row.Key, row); err != nil {
		return fmt.Errorf("failed to upsert generation hourly: %w", err)
	}
	return nil
}

func (s *AnalyticsStorage) RouteHourliesInWindow(ctx context.Context, from, to time.Time) ([]*models.RouteAnalyticsHourly, error) {
	var rows []models.RouteAnalyticsHourly
	query := badgerhold.Where("Hour").Ge(from).And("Hour").Lt(to).SortBy("Hour")
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query route hourlies: %w", err)
	}

	result := make([]*models.RouteAnalyticsHourly, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *AnalyticsStorage) GenerationHourliesInWindow(ctx context.Context, from, to time.Time) ([]*models.GenerationMetricsHourly, error) {
	var rows []models.GenerationMetricsHourly
	query := badgerhold.Where("Hour").Ge(from).And("Hour").Lt(to).SortBy("Hour")
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query generation hourlies: %w", err)
	}

	result := make([]*models.GenerationMetricsHourly, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *AnalyticsStorage) UpsertModelUsage(ctx context.Context, usage *models.ModelUsage) error {
	if usage.Model == "" {
		return fmt.Errorf("model name is required")
	}
	usage.UpdatedAt = time.Now().UTC()
	if err := s.db.Store().Upsert(usage.Model, usage); err != nil {
		return fmt.Errorf("failed to upsert model usage: %w", err)
	}
	return nil
}

func (s *AnalyticsStorage) ListModelUsage(ctx context.Context) ([]*models.ModelUsage, error) {
	var rows []models.ModelUsage
	query := badgerhold.Where("Model").Ne("").SortBy("Count").Reverse()
	if err := s.db.Store().Find(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list model usage: %w", err)
	}

	result := make([]*models.ModelUsage, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}
