package interfaces

import (
	"context"

	"github.com/ternarybob/atelier/internal/models"
)

// EventBuffer - bounded append-only telemetry log with cursor reads
//
// Entry ids are "<seq>-0" with seq strictly increasing per topic. Range with
// afterID "0-0" reads from the start; an id past the tail returns no entries.
type EventBuffer interface {
	// Append adds an entry and returns its assigned id. Appending past the
	// per-topic cap silently evicts the oldest entries.
	Append(ctx context.Context, topic string, fields map[string]string) (string, error)
	// Range returns up to count entries with ids strictly greater than afterID.
	Range(ctx context.Context, topic string, afterID string, count int) ([]models.BufferEntry, error)
	// Trim discards entries so at most maxLen remain, approximately: eviction
	// may keep slightly more to amortize cost. Returns the number removed.
	Trim(ctx context.Context, topic string, maxLen int) (int, error)
	// Len reports the current entry count for a topic.
	Len(ctx context.Context, topic string) (int, error)
	// Close snapshots buffered entries for reload on next start.
	Close() error
}
