// -----------------------------------------------------------------------
// Progress Bus - in-process fan-out of per-job progress messages
// -----------------------------------------------------------------------

package progress

import (
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/interfaces"
)

// Bus routes published payloads to subscribers by topic. Delivery is
// fire-and-forget: a subscriber whose channel is full misses the message.
type Bus struct {
	mu         sync.RWMutex
	topics     map[string]map[*subscription]struct{}
	bufferSize int
	logger     arbor.ILogger
}

type subscription struct {
	bus    *Bus
	topics []string
	ch     chan []byte
	once   sync.Once
}

// NewBus creates a bus whose subscribers buffer up to bufferSize messages.
func NewBus(bufferSize int) *Bus {
	if bufferSize < 1 {
		bufferSize = 16
	}
	return &Bus{
		topics:     make(map[string]map[*subscription]struct{}),
		bufferSize: bufferSize,
		logger:     common.GetLogger().WithPrefix("progress"),
	}
}

// Publish sends payload to every subscriber of topic and returns how many
// subscribers received it.
func (b *Bus) Publish(topic string, payload []byte) int {
	b.mu.RLock()
	subs := b.topics[topic]
	delivered := 0
	for sub := range subs {
		select {
		case sub.ch <- payload:
			delivered++
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
	b.mu.RUnlock()
	return delivered
}

// Subscribe registers a subscriber on one or more topics. The returned
// Subscription must be closed to release the registration.
func (b *Bus) Subscribe(topics ...string) interfaces.Subscription {
	sub := &subscription{
		bus:    b,
		topics: append([]string(nil), topics...),
		ch:     make(chan []byte, b.bufferSize),
	}

	b.mu.Lock()
	for _, topic := range sub.topics {
		set := b.topics[topic]
		if set == nil {
			set = make(map[*subscription]struct{})
			b.topics[topic] = set
		}
		set[sub] = struct{}{}
	}
	b.mu.Unlock()

	return sub
}

// SubscriberCount reports the live subscriber count for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (s *subscription) C() <-chan []byte {
	return s.ch
}

// Close unregisters the subscriber and closes its channel. Safe to call more
// than once.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		for _, topic := range s.topics {
			set := s.bus.topics[topic]
			delete(set, s)
			if len(set) == 0 {
				delete(s.bus.topics, topic)
			}
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
