// -----------------------------------------------------------------------
// Analytics capture - per-request telemetry into the event buffer
// -----------------------------------------------------------------------

package analytics

import (
	"context"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// Query parameters stripped during normalization so pagination does not
// explode rollup group cardinality.
var paginationParams = map[string]struct{}{
	"page":   {},
	"offset": {},
	"limit":  {},
	"cursor": {},
}

// Capture writes route telemetry into the event buffer. Every method is
// best effort: capture failures are logged and swallowed so telemetry can
// never break request handling.
type Capture struct {
	buffer    interfaces.EventBuffer
	namespace string
	enabled   bool
	logger    arbor.ILogger
}

// RequestRecord is the telemetry captured for one HTTP request.
type RequestRecord struct {
	Route             string
	Method            string
	UserID            string
	Timestamp         time.Time
	Duration          time.Duration
	StatusCode        int
	QueryParams       map[string]string
	RequestSizeBytes  int
	ResponseSizeBytes int
}

// NewCapture creates the capture service. enabled=false makes every call a
// no-op, used when analytics is disabled at startup.
func NewCapture(buffer interfaces.EventBuffer, namespace string, enabled bool, logger arbor.ILogger) *Capture {
	return &Capture{
		buffer:    buffer,
		namespace: namespace,
		enabled:   enabled,
		logger:    logger,
	}
}

// Enabled reports whether capture is active.
func (c *Capture) Enabled() bool {
	return c.enabled
}

// RecordRequest appends one route telemetry entry.
func (c *Capture) RecordRequest(ctx context.Context, rec RequestRecord) {
	if !c.enabled || c.buffer == nil {
		return
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	fields := map[string]string{
		"route":               rec.Route,
		"method":              rec.Method,
		"timestamp":           rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"duration_ms":         strconv.Itoa(int(rec.Duration.Milliseconds())),
		"status_code":         strconv.Itoa(rec.StatusCode),
		"request_size_bytes":  strconv.Itoa(rec.RequestSizeBytes),
		"response_size_bytes": strconv.Itoa(rec.ResponseSizeBytes),
	}
	if rec.UserID != "" {
		fields["user_id"] = rec.UserID
	}
	if len(rec.QueryParams) > 0 {
		fields["query_params"] = models.CanonicalParams(rec.QueryParams)
		fields["query_params_normalized"] = models.CanonicalParams(NormalizeQueryParams(rec.QueryParams))
	}
	if cat := models.ErrorCategoryForStatus(rec.StatusCode); cat != "" {
		fields["error_category"] = cat
	}

	topic := models.StreamTopic(c.namespace, models.RouteAnalyticsStream)
	if _, err := c.buffer.Append(ctx, topic, fields); err != nil {
		c.logger.Warn().Err(err).Str("route", rec.Route).Msg("Failed to capture request telemetry")
	}
}

// NormalizeQueryParams returns params with pagination keys removed. The
// input map is not modified.
func NormalizeQueryParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	normalized := make(map[string]string, len(params))
	for k, v := range params {
		if _, skip := paginationParams[k]; skip {
			continue
		}
		normalized[k] = v
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
