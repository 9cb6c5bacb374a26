// -----------------------------------------------------------------------
// Analytics rows - raw per-event records and hourly rollup summaries
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Error categories derived from HTTP status codes.
const (
	ErrorCategoryClient = "client_error"
	ErrorCategoryServer = "server_error"
)

// ErrorCategoryForStatus maps an HTTP status code to an error category.
// Returns "" for non-error statuses.
func ErrorCategoryForStatus(status int) string {
	switch {
	case status >= 500:
		return ErrorCategoryServer
	case status >= 400:
		return ErrorCategoryClient
	default:
		return ""
	}
}

// Generation event kinds recorded on the generation-events stream.
const (
	GenerationEventRequest      = "request"
	GenerationEventCompletion   = "completion"
	GenerationEventCancellation = "cancellation"
)

// RouteAnalyticsRow is the durable form of one captured HTTP request.
// Rows are transient: duplicates from re-read transfer windows are tolerated
// and collapsed by the hourly rollup upsert.
type RouteAnalyticsRow struct {
	ID                    uint64            `json:"id" badgerhold:"key"`
	Route                 string            `json:"route" badgerholdIndex:"Route"`
	Method                string            `json:"method"`
	UserID                string            `json:"user_id,omitempty"`
	Timestamp             time.Time         `json:"timestamp" badgerholdIndex:"Timestamp"`
	DurationMs            int               `json:"duration_ms"`
	StatusCode            int               `json:"status_code"`
	QueryParams           map[string]string `json:"query_params,omitempty"`
	QueryParamsNormalized map[string]string `json:"query_params_normalized,omitempty"`
	RequestSizeBytes      int               `json:"request_size_bytes"`
	ResponseSizeBytes     int               `json:"response_size_bytes"`
	ErrorCategory         string            `json:"error_category,omitempty"`
	CacheStatus           string            `json:"cache_status,omitempty"` // reserved
}

// GenerationEventRow is the durable form of one generation lifecycle event.
type GenerationEventRow struct {
	ID            uint64    `json:"id" badgerhold:"key"`
	EventKind     string    `json:"event_kind"`
	GenerationID  uint64    `json:"generation_id"`
	UserID        string    `json:"user_id,omitempty"`
	Timestamp     time.Time `json:"timestamp" badgerholdIndex:"Timestamp"`
	DurationMs    *int      `json:"duration_ms,omitempty"` // completion events only
	Success       bool      `json:"success"`
	ErrorCategory string    `json:"error_category,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	QueueWaitMs   *int      `json:"queue_wait_ms,omitempty"`
	RenderMs      *int      `json:"render_ms,omitempty"`
	ModelName     string    `json:"model_name,omitempty"`
	Width         int       `json:"width,omitempty"`
	Height        int       `json:"height,omitempty"`
	BatchSize     int       `json:"batch_size,omitempty"`
	PromptTokens  int       `json:"prompt_tokens,omitempty"`
}

// RouteAnalyticsHourly is the precomputed rollup for one
// (hour, route, method, normalized query params) group. The Key is the
// natural key; repeated rollups upsert in place.
type RouteAnalyticsHourly struct {
	Key                   string            `json:"-" badgerhold:"key"`
	Hour                  time.Time         `json:"hour" badgerholdIndex:"Hour"`
	Route                 string            `json:"route" badgerholdIndex:"Route"`
	Method                string            `json:"method"`
	QueryParamsNormalized map[string]string `json:"query_params_normalized,omitempty"`

	TotalRequests      int `json:"total_requests"`
	SuccessfulRequests int `json:"successful_requests"`
	ClientErrors       int `json:"client_errors"`
	ServerErrors       int `json:"server_errors"`

	AvgDurationMs int     `json:"avg_duration_ms"`
	P50DurationMs float64 `json:"p50_duration_ms"`
	P95DurationMs float64 `json:"p95_duration_ms"`
	P99DurationMs float64 `json:"p99_duration_ms"`

	UniqueUsers          int `json:"unique_users"`
	AvgRequestSizeBytes  int `json:"avg_request_size_bytes"`
	AvgResponseSizeBytes int `json:"avg_response_size_bytes"`
	CacheHits            int `json:"cache_hits"`
	CacheMisses          int `json:"cache_misses"`
}

// GenerationMetricsHourly is the precomputed rollup for one UTC hour of
// generation events. Keyed on the hour alone; no per-route partitioning.
type GenerationMetricsHourly struct {
	Key  string    `json:"-" badgerhold:"key"`
	Hour time.Time `json:"hour" badgerholdIndex:"Hour"`

	TotalRequests         int `json:"total_requests"`
	SuccessfulGenerations int `json:"successful_generations"`
	FailedGenerations     int `json:"failed_generations"`
	CancelledGenerations  int `json:"cancelled_generations"`

	AvgDurationMs int     `json:"avg_duration_ms"`
	P50DurationMs float64 `json:"p50_duration_ms"`
	P95DurationMs float64 `json:"p95_duration_ms"`
	P99DurationMs float64 `json:"p99_duration_ms"`

	UniqueUsers          int `json:"unique_users"`
	TotalImagesGenerated int `json:"total_images_generated"`

	// Reserved: queue-length sampling is not populated yet.
	AvgQueueLength *float64 `json:"avg_queue_length,omitempty"`
	MaxQueueLength *int     `json:"max_queue_length,omitempty"`
}

// ModelUsage is a daily-refreshed cardinality row per checkpoint model.
type ModelUsage struct {
	Model     string    `json:"model" badgerhold:"key"`
	Count     int       `json:"count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanonicalParams renders a query-parameter map as a deterministic JSON
// string (keys sorted) for use in natural keys and fingerprints.
func CanonicalParams(params map[string]string) string {
	if len(params) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]string, len(params))
	for _, k := range keys {
		ordered[k] = params[k]
	}
	data, err := json.Marshal(ordered)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// RouteHourlyKey builds the natural key for a RouteAnalyticsHourly row.
func RouteHourlyKey(hour time.Time, route, method string, normalized map[string]string) string {
	return fmt.Sprintf("%d|%s|%s|%s", hour.UTC().Unix(), route, method, CanonicalParams(normalized))
}

// GenerationHourlyKey builds the natural key for a GenerationMetricsHourly row.
func GenerationHourlyKey(hour time.Time) string {
	return fmt.Sprintf("%d", hour.UTC().Unix())
}
