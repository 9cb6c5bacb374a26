package models

import (
	"fmt"
	"time"
)

// Progress statuses published on the bus while a job executes.
const (
	ProgressStarted    = "started"
	ProgressProcessing = "processing"
	ProgressCompleted  = "completed"
	ProgressFailed     = "failed"
)

// ProgressUpdate is one per-job status message relayed to connected clients.
// Fields beyond JobID/Status/Timestamp are state-specific.
type ProgressUpdate struct {
	JobID       uint64    `json:"job_id"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Progress    *float64  `json:"progress,omitempty"`
	ContentID   *uint64   `json:"content_id,omitempty"`
	OutputPaths []string  `json:"output_paths,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// JobTopic builds the progress-bus topic for a job id under a namespace.
func JobTopic(namespace string, jobID uint64) string {
	return fmt.Sprintf("%s:job:%d", namespace, jobID)
}

// BufferEntry is a single telemetry record in the event buffer. Fields are a
// flat string map; numeric values are stringified at the call site.
type BufferEntry struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Event buffer topic suffixes; full topics are "<namespace>:<suffix>".
const (
	RouteAnalyticsStream   = "route_analytics:stream"
	GenerationEventsStream = "generation_events:stream"
)

// StreamTopic builds a namespaced event-buffer topic.
func StreamTopic(namespace, suffix string) string {
	return namespace + ":" + suffix
}
