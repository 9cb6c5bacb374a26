package progress

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus(8)

	sub1 := bus.Subscribe("atelier:job:1")
	defer sub1.Close()
	sub2 := bus.Subscribe("atelier:job:1")
	defer sub2.Close()

	delivered := bus.Publish("atelier:job:1", []byte(`{"status":"started"}`))
	if delivered != 2 {
		t.Errorf("Expected 2 deliveries, got %d", delivered)
	}

	for i, sub := range []struct {
		c <-chan []byte
	}{{sub1.C()}, {sub2.C()}} {
		select {
		case msg := <-sub.c:
			if string(msg) != `{"status":"started"}` {
				t.Errorf("Subscriber %d got unexpected payload: %s", i, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("Subscriber %d did not receive message", i)
		}
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(8)

	if delivered := bus.Publish("atelier:job:99", []byte("x")); delivered != 0 {
		t.Errorf("Expected 0 deliveries on empty topic, got %d", delivered)
	}
}

func TestPublishDoesNotCrossTopics(t *testing.T) {
	bus := NewBus(8)

	sub := bus.Subscribe("atelier:job:1")
	defer sub.Close()

	bus.Publish("atelier:job:2", []byte("other"))

	select {
	case msg := <-sub.C():
		t.Errorf("Subscriber received message from another topic: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeMultipleTopics(t *testing.T) {
	bus := NewBus(8)

	sub := bus.Subscribe("atelier:job:1", "atelier:job:2")
	defer sub.Close()

	bus.Publish("atelier:job:1", []byte("a"))
	bus.Publish("atelier:job:2", []byte("b"))

	got := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.C():
			got = append(got, string(msg))
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for messages")
		}
	}
	if got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected messages [a b], got %v", got)
	}
}

func TestSlowSubscriberDropsMessages(t *testing.T) {
	bus := NewBus(2)

	sub := bus.Subscribe("atelier:job:1")
	defer sub.Close()

	// Fill the buffer, then one more that must be dropped
	bus.Publish("atelier:job:1", []byte("1"))
	bus.Publish("atelier:job:1", []byte("2"))
	if delivered := bus.Publish("atelier:job:1", []byte("3")); delivered != 0 {
		t.Errorf("Expected overflow publish to deliver to 0 subscribers, got %d", delivered)
	}

	if msg := <-sub.C(); string(msg) != "1" {
		t.Errorf("Expected first buffered message '1', got '%s'", msg)
	}
	if msg := <-sub.C(); string(msg) != "2" {
		t.Errorf("Expected second buffered message '2', got '%s'", msg)
	}
}

func TestCloseUnregistersSubscriber(t *testing.T) {
	bus := NewBus(8)

	sub := bus.Subscribe("atelier:job:1")
	if count := bus.SubscriberCount("atelier:job:1"); count != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", count)
	}

	sub.Close()
	if count := bus.SubscriberCount("atelier:job:1"); count != 0 {
		t.Errorf("Expected 0 subscribers after close, got %d", count)
	}

	// Channel is closed
	if _, ok := <-sub.C(); ok {
		t.Error("Expected closed channel after Close")
	}

	// Double close is safe
	sub.Close()
}
