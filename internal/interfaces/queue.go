package interfaces

import (
	"context"
	"time"
)

// QueueMessage - one in-flight task delivery
type QueueMessage struct {
	ID       string
	Token    string
	Body     []byte
	Attempts int
}

// QueueStats - counters for one named queue
type QueueStats struct {
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
}

// QueueManager - persistent task queue with visibility timeouts
//
// Enqueue returns a dispatch token that identifies the pending delivery;
// Revoke with that token removes the task if it has not been received yet.
type QueueManager interface {
	Enqueue(ctx context.Context, queue string, body []byte) (token string, err error)
	// Receive returns the next visible message or nil when the queue is empty.
	Receive(ctx context.Context, queue string) (*QueueMessage, error)
	// Extend pushes the message's visibility deadline out by delay, scheduling
	// a redelivery attempt.
	Extend(ctx context.Context, queue string, msgID string, delay time.Duration) error
	// Delete acknowledges the message, removing it permanently.
	Delete(ctx context.Context, queue string, msgID string) error
	// Revoke removes a not-yet-received task by dispatch token. Returns true
	// if a pending task was removed.
	Revoke(ctx context.Context, queue string, token string) (bool, error)
	Stats(ctx context.Context, queue string) (*QueueStats, error)
	Close() error
}

// WorkerStats - snapshot of the worker pool published to the inspect surface
type WorkerStats struct {
	Concurrency    int   `json:"concurrency"`
	ActiveTasks    int   `json:"active_tasks"`
	ProcessedTotal int64 `json:"processed_total"`
	FailedTotal    int64 `json:"failed_total"`
}

// WorkerInspector - liveness and load introspection over the worker pool
type WorkerInspector interface {
	// Stats returns per-pool counters, or an empty map when no pool runs.
	Stats(ctx context.Context) (map[string]WorkerStats, error)
	// Ping returns an error when the pool is not accepting work.
	Ping(ctx context.Context) error
}
