// -----------------------------------------------------------------------
// Badger-backed task queue with visibility timeouts and revocable dispatch
// -----------------------------------------------------------------------

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/ternarybob/atelier/internal/interfaces"
)

// storedMessage is the internal structure persisted in Badger
type storedMessage struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	Body         []byte    `json:"body"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	VisibleAt    time.Time `json:"visible_at"`
	ReceiveCount int       `json:"receive_count"`
}

// Manager implements a persistent multi-queue using BadgerDB.
//
// Per message two keys are kept: the message record at
// queue:{name}:msg:{id} and a visibility-index entry at
// queue:{name}:index:{%020d-visibleAt}:{id}. Index keys sort by timestamp so
// Receive scans stop at the first future entry. A third key,
// queue:{name}:token:{token} -> id, supports revocation by dispatch token.
type Manager struct {
	db                *badger.DB
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewManager creates a Badger-backed queue manager. The db handle is owned
// by the caller and not closed here.
func NewManager(db *badger.DB, visibilityTimeout time.Duration, maxReceive int) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// Enqueue adds a message and returns its dispatch token.
func (m *Manager) Enqueue(ctx context.Context, queue string, body []byte) (string, error) {
	id := uuid.New().String()
	token := uuid.New().String()

	msg := storedMessage{
		ID:         id,
		Token:      token,
		Body:       body,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now(), // Immediately visible
	}

	data, err := json.Marshal(&msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal queue message: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(m.msgKey(queue, id), data); err != nil {
			return err
		}
		if err := txn.Set(m.indexKey(queue, msg.VisibleAt, id), []byte{}); err != nil {
			return err
		}
		return txn.Set(m.tokenKey(queue, token), []byte(id))
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Receive pulls the next visible message, hiding it for the visibility
// timeout. Returns nil when the queue is empty. Messages that exhaust
// maxReceive deliveries are dropped during the scan.
func (m *Manager) Receive(ctx context.Context, queue string) (*interfaces.QueueMessage, error) {
	var claimed storedMessage

	err := m.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", queue))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			indexKey := item.KeyCopy(nil)

			ts, id, err := m.parseIndexKey(queue, indexKey)
			if err != nil {
				continue // Skip invalid keys
			}
			if ts.After(now) {
				// Index keys sort by timestamp, nothing later is ready either.
				break
			}

			msgKey := m.msgKey(queue, id)
			msgItem, err := txn.Get(msgKey)
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean up and keep scanning.
					if err := txn.Delete(indexKey); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var msg storedMessage
			if err := msgItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}

			// Poison pill guard: drop messages past the delivery cap.
			if msg.ReceiveCount >= m.maxReceive {
				if err := txn.Delete(indexKey); err != nil {
					return err
				}
				if err := txn.Delete(msgKey); err != nil {
					return err
				}
				if err := m.deleteTokenKey(txn, queue, msg.Token); err != nil {
					return err
				}
				continue
			}

			// Claim: bump receive count, reschedule visibility, drop the
			// token mapping so Revoke no longer applies.
			msg.ReceiveCount++
			msg.VisibleAt = time.Now().Add(m.visibilityTimeout)

			newData, err := json.Marshal(&msg)
			if err != nil {
				return err
			}
			if err := txn.Set(msgKey, newData); err != nil {
				return err
			}
			if err := txn.Delete(indexKey); err != nil {
				return err
			}
			if err := txn.Set(m.indexKey(queue, msg.VisibleAt, id), []byte{}); err != nil {
				return err
			}
			if msg.ReceiveCount == 1 {
				if err := m.deleteTokenKey(txn, queue, msg.Token); err != nil {
					return err
				}
			}

			claimed = msg
			return nil
		}

		return ErrNoMessage
	})

	if err == ErrNoMessage {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &interfaces.QueueMessage{
		ID:       claimed.ID,
		Token:    claimed.Token,
		Body:     claimed.Body,
		Attempts: claimed.ReceiveCount,
	}, nil
}

// Extend pushes the message's visibility deadline out by delay.
func (m *Manager) Extend(ctx context.Context, queue string, msgID string, delay time.Duration) error {
	return m.db.Update(func(txn *badger.Txn) error {
		msgKey := m.msgKey(queue, msgID)
		item, err := txn.Get(msgKey)
		if err != nil {
			return err
		}

		var msg storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return err
		}

		oldVisibleAt := msg.VisibleAt
		msg.VisibleAt = time.Now().Add(delay)

		newData, err := json.Marshal(&msg)
		if err != nil {
			return err
		}
		if err := txn.Set(msgKey, newData); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(queue, oldVisibleAt, msgID)); err != nil {
			if err != badger.ErrKeyNotFound {
				return err
			}
		}
		return txn.Set(m.indexKey(queue, msg.VisibleAt, msgID), []byte{})
	})
}

// Delete acknowledges the message, removing it permanently.
func (m *Manager) Delete(ctx context.Context, queue string, msgID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		msgKey := m.msgKey(queue, msgID)
		item, err := txn.Get(msgKey)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil // Already deleted
			}
			return err
		}

		var msg storedMessage
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return err
		}

		if err := txn.Delete(m.indexKey(queue, msg.VisibleAt, msgID)); err != nil {
			if err != badger.ErrKeyNotFound {
				return err
			}
		}
		if err := m.deleteTokenKey(txn, queue, msg.Token); err != nil {
			return err
		}
		return txn.Delete(msgKey)
	})
}

// Revoke removes a not-yet-received task by dispatch token. Returns true if
// a pending task was removed; false when the token is unknown or the task
// was already claimed by a worker.
func (m *Manager) Revoke(ctx context.Context, queue string, token string) (bool, error) {
	revoked := false

	err := m.db.Update(func(txn *badger.Txn) error {
		tokenKey := m.tokenKey(queue, token)
		item, err := txn.Get(tokenKey)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}

		msgKey := m.msgKey(queue, id)
		msgItem, err := txn.Get(msgKey)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return txn.Delete(tokenKey)
			}
			return err
		}

		var msg storedMessage
		if err := msgItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &msg)
		}); err != nil {
			return err
		}
		if msg.ReceiveCount > 0 {
			// Already claimed; too late to revoke from the queue side.
			return txn.Delete(tokenKey)
		}

		if err := txn.Delete(m.indexKey(queue, msg.VisibleAt, id)); err != nil {
			if err != badger.ErrKeyNotFound {
				return err
			}
		}
		if err := txn.Delete(msgKey); err != nil {
			return err
		}
		if err := txn.Delete(tokenKey); err != nil {
			return err
		}
		revoked = true
		return nil
	})

	return revoked, err
}

// Stats counts pending (visible now) and in-flight (hidden) messages.
func (m *Manager) Stats(ctx context.Context, queue string) (*interfaces.QueueStats, error) {
	stats := &interfaces.QueueStats{}

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", queue))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ts, _, err := m.parseIndexKey(queue, it.Item().Key())
			if err != nil {
				continue
			}
			if ts.After(now) {
				stats.InFlight++
			} else {
				stats.Pending++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// MaxReceive returns the delivery cap messages are dropped past.
func (m *Manager) MaxReceive() int {
	return m.maxReceive
}

// Close is a no-op; the Badger handle is managed by the caller.
func (m *Manager) Close() error {
	return nil
}

// Helpers

func (m *Manager) msgKey(queue, id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", queue, id))
}

func (m *Manager) tokenKey(queue, token string) []byte {
	return []byte(fmt.Sprintf("queue:%s:token:%s", queue, token))
}

func (m *Manager) deleteTokenKey(txn *badger.Txn, queue, token string) error {
	if token == "" {
		return nil
	}
	if err := txn.Delete(m.tokenKey(queue, token)); err != nil && err != badger.ErrKeyNotFound {
		return err
	}
	return nil
}

func (m *Manager) indexKey(queue string, visibleAt time.Time, id string) []byte {
	ts := visibleAt.UnixNano()
	// Zero pad to 20 digits to ensure string sorting works like number sorting
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", queue, ts, id))
}

func (m *Manager) parseIndexKey(queue string, key []byte) (time.Time, string, error) {
	prefixStr := fmt.Sprintf("queue:%s:index:", queue)
	if len(key) <= len(prefixStr) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefixStr):])
	// Suffix is "{20-digit-ts}:{id}"
	if len(suffix) < 21 {
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	tsStr := suffix[:20]
	id := suffix[21:]

	var ts int64
	if _, err := fmt.Sscanf(tsStr, "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), id, nil
}
