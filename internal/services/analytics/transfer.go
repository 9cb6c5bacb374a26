// -----------------------------------------------------------------------
// Transfer - drains buffered telemetry into durable analytics rows
// -----------------------------------------------------------------------

package analytics

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// Transfer moves buffered telemetry entries into the analytics store. Each
// run drains up to batchSize entries per stream from the head of the buffer,
// then trims the drained entries off. Malformed entries are logged, counted
// and dropped so one bad record cannot wedge the stream.
type Transfer struct {
	buffer    interfaces.EventBuffer
	storage   interfaces.AnalyticsStorage
	namespace string
	batchSize int
	maxLen    int
	logger    arbor.ILogger
}

// NewTransfer creates the transfer task. maxLen is the post-trim cap applied
// to each stream after draining.
func NewTransfer(buffer interfaces.EventBuffer, storage interfaces.AnalyticsStorage, namespace string, batchSize, maxLen int, logger arbor.ILogger) *Transfer {
	if batchSize <= 0 {
		batchSize = 1000
	}
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Transfer{
		buffer:    buffer,
		storage:   storage,
		namespace: namespace,
		batchSize: batchSize,
		maxLen:    maxLen,
		logger:    logger,
	}
}

// Run drains both telemetry streams once. Intended as a scheduler handler.
func (t *Transfer) Run(ctx context.Context) error {
	routeMoved, err := t.transferRoutes(ctx)
	if err != nil {
		return err
	}
	genMoved, err := t.transferGenerations(ctx)
	if err != nil {
		return err
	}

	if routeMoved+genMoved > 0 {
		t.logger.Info().
			Int("route_rows", routeMoved).
			Int("generation_rows", genMoved).
			Msg("Telemetry transfer completed")
	}
	return nil
}

func (t *Transfer) transferRoutes(ctx context.Context) (int, error) {
	topic := models.StreamTopic(t.namespace, models.RouteAnalyticsStream)
	entries, err := t.buffer.Range(ctx, topic, "0-0", t.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	rows := make([]*models.RouteAnalyticsRow, 0, len(entries))
	for _, entry := range entries {
		row, err := routeRowFromFields(entry.Fields)
		if err != nil {
			t.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("Dropping malformed route telemetry entry")
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if err := t.storage.InsertRouteRows(ctx, rows); err != nil {
			return 0, err
		}
	}

	t.trimDrained(ctx, topic, len(entries))
	return len(rows), nil
}

func (t *Transfer) transferGenerations(ctx context.Context) (int, error) {
	topic := models.StreamTopic(t.namespace, models.GenerationEventsStream)
	entries, err := t.buffer.Range(ctx, topic, "0-0", t.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	rows := make([]*models.GenerationEventRow, 0, len(entries))
	for _, entry := range entries {
		row, err := generationRowFromFields(entry.Fields)
		if err != nil {
			t.logger.Warn().Err(err).Str("entry_id", entry.ID).Msg("Dropping malformed generation telemetry entry")
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if err := t.storage.InsertGenerationRows(ctx, rows); err != nil {
			return 0, err
		}
	}

	t.trimDrained(ctx, topic, len(entries))
	return len(rows), nil
}

// trimDrained removes the drained head entries, then enforces the cap.
func (t *Transfer) trimDrained(ctx context.Context, topic string, drained int) {
	length, err := t.buffer.Len(ctx, topic)
	if err != nil {
		t.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to read buffer length after transfer")
		return
	}

	keep := length - drained
	if keep < 0 {
		keep = 0
	}
	if keep > t.maxLen {
		keep = t.maxLen
	}
	if _, err := t.buffer.Trim(ctx, topic, keep); err != nil {
		t.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to trim buffer after transfer")
	}
}

func routeRowFromFields(fields map[string]string) (*models.RouteAnalyticsRow, error) {
	// A bad timestamp stamps the row at transfer time rather than losing it
	ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"])
	if err != nil {
		ts = time.Now().UTC()
	}

	row := &models.RouteAnalyticsRow{
		Route:     fields["route"],
		Method:    fields["method"],
		UserID:    fields["user_id"],
		Timestamp: ts.UTC(),
	}
	// Numeric fields default to zero when absent or unparseable.
	row.DurationMs = atoi(fields["duration_ms"])
	row.StatusCode = atoi(fields["status_code"])
	row.RequestSizeBytes = atoi(fields["request_size_bytes"])
	row.ResponseSizeBytes = atoi(fields["response_size_bytes"])
	row.ErrorCategory = fields["error_category"]

	if raw := fields["query_params"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &row.QueryParams)
	}
	if raw := fields["query_params_normalized"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &row.QueryParamsNormalized)
	}
	return row, nil
}

func generationRowFromFields(fields map[string]string) (*models.GenerationEventRow, error) {
	ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"])
	if err != nil {
		ts = time.Now().UTC()
	}

	genID, err := strconv.ParseUint(fields["generation_id"], 10, 64)
	if err != nil {
		return nil, err
	}

	row := &models.GenerationEventRow{
		EventKind:     fields["event_kind"],
		GenerationID:  genID,
		UserID:        fields["user_id"],
		Timestamp:     ts.UTC(),
		Success:       fields["success"] == "true",
		ErrorCategory: fields["error_category"],
		ErrorMessage:  fields["error_message"],
		ModelName:     fields["model_name"],
		Width:         atoi(fields["width"]),
		Height:        atoi(fields["height"]),
		BatchSize:     atoi(fields["batch_size"]),
		PromptTokens:  atoi(fields["prompt_tokens"]),
	}
	if raw, ok := fields["duration_ms"]; ok {
		ms := atoi(raw)
		row.DurationMs = &ms
	}
	return row, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
