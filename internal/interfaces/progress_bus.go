package interfaces

// Subscription - one live subscriber on the progress bus
//
// C delivers raw message payloads. Close unregisters the subscriber and
// closes C; it is safe to call more than once.
type Subscription interface {
	C() <-chan []byte
	Close()
}

// ProgressBus - in-process fan-out of per-job progress messages
//
// Delivery is fire-and-forget: a subscriber whose channel is full misses the
// message rather than blocking the publisher.
type ProgressBus interface {
	// Publish sends payload to every subscriber of topic and returns the
	// number of subscribers that received it.
	Publish(topic string, payload []byte) int
	// Subscribe registers a subscriber on one or more topics.
	Subscribe(topics ...string) Subscription
	// SubscriberCount reports the live subscriber count for a topic.
	SubscriberCount(topic string) int
}
