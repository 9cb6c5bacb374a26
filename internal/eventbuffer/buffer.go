// -----------------------------------------------------------------------
// Event Buffer - bounded in-memory telemetry log with cursor reads
// -----------------------------------------------------------------------

package eventbuffer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/models"
)

// trimSlack delays eviction until the cap is exceeded by this many entries,
// so appends near the cap do not evict one entry at a time.
const trimSlack = 1000

const snapshotKeyPrefix = "eventbuffer:snapshot:"

type topicLog struct {
	entries []models.BufferEntry
	nextSeq uint64
}

// Buffer is an in-process, per-topic append log. Entry ids are "<seq>-0" with
// seq strictly increasing per topic, so id ordering equals append ordering.
// An optional Badger handle persists a snapshot across restarts.
type Buffer struct {
	mu     sync.RWMutex
	topics map[string]*topicLog
	maxLen int
	db     *badger.DB
	logger arbor.ILogger
}

type snapshot struct {
	Entries []models.BufferEntry `json:"entries"`
	NextSeq uint64               `json:"next_seq"`
}

// New creates a buffer capped at maxLen entries per topic. db may be nil for
// a purely in-memory buffer; when set, topic snapshots written by Close are
// reloaded here.
func New(maxLen int, db *badger.DB) *Buffer {
	b := &Buffer{
		topics: make(map[string]*topicLog),
		maxLen: maxLen,
		db:     db,
		logger: common.GetLogger().WithPrefix("eventbuffer"),
	}
	if db != nil {
		b.restore()
	}
	return b
}

// Append adds an entry to topic and returns its assigned id.
func (b *Buffer) Append(ctx context.Context, topic string, fields map[string]string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("append to %s: empty fields", topic)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.topics[topic]
	if log == nil {
		log = &topicLog{nextSeq: 1}
		b.topics[topic] = log
	}

	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	id := formatID(log.nextSeq)
	log.nextSeq++
	log.entries = append(log.entries, models.BufferEntry{ID: id, Fields: copied})

	// Amortized eviction: overshoot by trimSlack, then cut back to maxLen.
	if len(log.entries) > b.maxLen+trimSlack {
		excess := len(log.entries) - b.maxLen
		log.entries = append([]models.BufferEntry(nil), log.entries[excess:]...)
	}

	return id, nil
}

// Range returns up to count entries with ids strictly greater than afterID.
// afterID "0-0" (or "") reads from the oldest retained entry.
func (b *Buffer) Range(ctx context.Context, topic string, afterID string, count int) ([]models.BufferEntry, error) {
	afterSeq, err := parseID(afterID)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	log := b.topics[topic]
	if log == nil {
		return nil, nil
	}

	// Entries are seq-ordered; find the first entry past the cursor.
	start := len(log.entries)
	for i, e := range log.entries {
		seq, _ := parseID(e.ID)
		if seq > afterSeq {
			start = i
			break
		}
	}

	end := start + count
	if end > len(log.entries) {
		end = len(log.entries)
	}
	if start >= end {
		return nil, nil
	}

	out := make([]models.BufferEntry, end-start)
	copy(out, log.entries[start:end])
	return out, nil
}

// Trim discards oldest entries so at most maxLen remain for topic.
func (b *Buffer) Trim(ctx context.Context, topic string, maxLen int) (int, error) {
	if maxLen < 0 {
		maxLen = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	log := b.topics[topic]
	if log == nil || len(log.entries) <= maxLen {
		return 0, nil
	}

	removed := len(log.entries) - maxLen
	log.entries = append([]models.BufferEntry(nil), log.entries[removed:]...)
	return removed, nil
}

// Len reports the current entry count for topic.
func (b *Buffer) Len(ctx context.Context, topic string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	log := b.topics[topic]
	if log == nil {
		return 0, nil
	}
	return len(log.entries), nil
}

// Close snapshots every topic into Badger for reload on next start. Without a
// db handle it is a no-op.
func (b *Buffer) Close() error {
	if b.db == nil {
		return nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.db.Update(func(txn *badger.Txn) error {
		for topic, log := range b.topics {
			snap := snapshot{Entries: log.entries, NextSeq: log.nextSeq}
			data, err := json.Marshal(&snap)
			if err != nil {
				return fmt.Errorf("snapshot topic %s: %w", topic, err)
			}
			if err := txn.Set([]byte(snapshotKeyPrefix+topic), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// restore loads topic snapshots written by a previous Close. Snapshot keys
// are deleted after a successful load so stale data never resurfaces.
func (b *Buffer) restore() {
	prefix := []byte(snapshotKeyPrefix)
	var loadedTopics int

	err := b.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			topic := strings.TrimPrefix(string(item.Key()), snapshotKeyPrefix)

			var snap snapshot
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			})
			if err != nil {
				b.logger.Warn().Err(err).Str("topic", topic).Msg("Skipping corrupt event buffer snapshot")
				continue
			}

			b.topics[topic] = &topicLog{entries: snap.Entries, nextSeq: snap.NextSeq}
			loadedTopics++

			if err := txn.Delete(item.KeyCopy(nil)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to restore event buffer snapshots")
		return
	}
	if loadedTopics > 0 {
		b.logger.Info().Int("topics", loadedTopics).Msg("Restored event buffer snapshots")
	}
}

func formatID(seq uint64) string {
	return fmt.Sprintf("%d-0", seq)
}

// parseID accepts "<seq>-<sub>" ids and bare "<seq>" for convenience; ""
// means "from the start".
func parseID(id string) (uint64, error) {
	if id == "" {
		return 0, nil
	}
	seqPart := id
	if idx := strings.IndexByte(id, '-'); idx >= 0 {
		seqPart = id[:idx]
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid buffer entry id %q", id)
	}
	return seq, nil
}
