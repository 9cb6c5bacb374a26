package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEnqueueReceiveDelete(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, time.Minute, 3)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	body, _ := EncodeTask(TaskMessage{Type: TaskRunJob, JobID: 42})
	token, err := mgr.Enqueue(ctx, "atelier_jobs", body)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	if token == "" {
		t.Fatal("Expected non-empty dispatch token")
	}

	msg, err := mgr.Receive(ctx, "atelier_jobs")
	if err != nil {
		t.Fatalf("Failed to receive: %v", err)
	}
	if msg == nil {
		t.Fatal("Expected a message, got nil")
	}
	if msg.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", msg.Attempts)
	}

	task, err := DecodeTask(msg.Body)
	if err != nil {
		t.Fatalf("Failed to decode task: %v", err)
	}
	if task.JobID != 42 {
		t.Errorf("Expected job id 42, got %d", task.JobID)
	}

	// Claimed message is invisible until the timeout elapses
	again, err := mgr.Receive(ctx, "atelier_jobs")
	if err != nil {
		t.Fatalf("Failed to receive: %v", err)
	}
	if again != nil {
		t.Errorf("Expected no visible message while claimed, got %s", again.ID)
	}

	if err := mgr.Delete(ctx, "atelier_jobs", msg.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	stats, err := mgr.Stats(ctx, "atelier_jobs")
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Pending != 0 || stats.InFlight != 0 {
		t.Errorf("Expected empty queue after delete, got pending=%d inflight=%d", stats.Pending, stats.InFlight)
	}
}

func TestReceiveEmptyQueue(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, time.Minute, 3)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	msg, err := mgr.Receive(context.Background(), "atelier_jobs")
	if err != nil {
		t.Fatalf("Expected nil error on empty queue, got %v", err)
	}
	if msg != nil {
		t.Errorf("Expected nil message on empty queue, got %s", msg.ID)
	}
}

func TestReceiveOrderedByEnqueueTime(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, time.Minute, 3)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	first, _ := EncodeTask(TaskMessage{Type: TaskRunJob, JobID: 1})
	if _, err := mgr.Enqueue(ctx, "atelier_jobs", first); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, _ := EncodeTask(TaskMessage{Type: TaskRunJob, JobID: 2})
	if _, err := mgr.Enqueue(ctx, "atelier_jobs", second); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	msg, err := mgr.Receive(ctx, "atelier_jobs")
	if err != nil || msg == nil {
		t.Fatalf("Failed to receive: %v", err)
	}
	task, _ := DecodeTask(msg.Body)
	if task.JobID != 1 {
		t.Errorf("Expected oldest message first (job 1), got job %d", task.JobID)
	}
}

func TestVisibilityTimeoutRedelivers(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, 50*time.Millisecond, 3)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	body, _ := EncodeTask(TaskMessage{Type: TaskRunJob, JobID: 7})
	if _, err := mgr.Enqueue(ctx, "atelier_jobs", body); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	msg, err := mgr.Receive(ctx, "atelier_jobs")
	if err != nil || msg == nil {
		t.Fatalf("Failed to receive first delivery: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	redelivered, err := mgr.Receive(ctx, "atelier_jobs")
	if err != nil {
		t.Fatalf("Failed to receive redelivery: %v", err)
	}
	if redelivered == nil {
		t.Fatal("Expected redelivery after visibility timeout")
	}
	if redelivered.ID != msg.ID {
		t.Errorf("Expected same message id %s, got %s", msg.ID, redelivered.ID)
	}
	if redelivered.Attempts != 2 {
		t.Errorf("Expected 2 attempts on redelivery, got %d", redelivered.Attempts)
	}
}

func TestMaxReceiveDropsPoisonPill(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, 10*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	body, _ := EncodeTask(TaskMessage{Type: TaskRunJob, JobID: 9})
	if _, err := mgr.Enqueue(ctx, "atelier_jobs", body); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		msg, err := mgr.Receive(ctx, "atelier_jobs")
		if err != nil {
			t.Fatalf("Failed to receive attempt %d: %v", attempt, err)
		}
		if msg == nil {
			t.Fatalf("Expected delivery on attempt %d", attempt)
		}
		time.Sleep(20 * time.Millisecond)
	}

	// Third scan finds the message past its delivery cap and drops it
	msg, err := mgr.Receive(ctx, "atelier_jobs")
	if err != nil {
		t.Fatalf("Failed to receive: %v", err)
	}
	if msg != nil {
		t.Errorf("Expected message dropped after delivery cap, got attempt %d", msg.Attempts)
	}

	stats, err := mgr.Stats(ctx, "atelier_jobs")
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Pending != 0 || stats.InFlight != 0 {
		t.Errorf("Expected empty queue after drop, got pending=%d inflight=%d", stats.Pending, stats.InFlight)
	}
}

func TestExtendDelaysRedelivery(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, 20*time.Millisecond, 3)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	body, _ := EncodeTask(TaskMessage{Type: TaskRunJob, JobID: 3})
	if _, err := mgr.Enqueue(ctx, "atelier_jobs", body); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	msg, err := mgr.Receive(ctx, "atelier_jobs")
	if err != nil || msg == nil {
		t.Fatalf("Failed to receive: %v", err)
	}

	if err := mgr.Extend(ctx, "atelier_jobs", msg.ID, time.Hour); err != nil {
		t.Fatalf("Failed to extend: %v", err)
	}

	time.Sleep(40 * time.Millisecond)

	redelivered, err := mgr.Receive(ctx, "atelier_jobs")
	if err != nil {
		t.Fatalf("Failed to receive: %v", err)
	}
	if redelivered != nil {
		t.Errorf("Expected no redelivery after extend, got %s", redelivered.ID)
	}

	stats, err := mgr.Stats(ctx, "atelier_jobs")
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.InFlight != 1 {
		t.Errorf("Expected 1 in-flight message, got %d", stats.InFlight)
	}
}

func TestRevokePendingMessage(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, time.Minute, 3)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	body, _ := EncodeTask(TaskMessage{Type: TaskRunJob, JobID: 5})
	token, err := mgr.Enqueue(ctx, "atelier_jobs", body)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	revoked, err := mgr.Revoke(ctx, "atelier_jobs", token)
	if err != nil {
		t.Fatalf("Failed to revoke: %v", err)
	}
	if !revoked {
		t.Fatal("Expected pending message to be revoked")
	}

	msg, err := mgr.Receive(ctx, "atelier_jobs")
	if err != nil {
		t.Fatalf("Failed to receive: %v", err)
	}
	if msg != nil {
		t.Errorf("Expected no message after revoke, got %s", msg.ID)
	}
}

func TestRevokeAfterClaimFails(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, time.Minute, 3)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	body, _ := EncodeTask(TaskMessage{Type: TaskRunJob, JobID: 6})
	token, err := mgr.Enqueue(ctx, "atelier_jobs", body)
	if err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	if msg, err := mgr.Receive(ctx, "atelier_jobs"); err != nil || msg == nil {
		t.Fatalf("Failed to claim message: %v", err)
	}

	revoked, err := mgr.Revoke(ctx, "atelier_jobs", token)
	if err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if revoked {
		t.Error("Expected revoke to fail on a claimed message")
	}
}

func TestRevokeUnknownToken(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, time.Minute, 3)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	revoked, err := mgr.Revoke(context.Background(), "atelier_jobs", "no-such-token")
	if err != nil {
		t.Fatalf("Revoke returned error: %v", err)
	}
	if revoked {
		t.Error("Expected revoke of unknown token to report false")
	}
}

func TestQueuesAreIsolated(t *testing.T) {
	db := openTestDB(t)
	mgr, err := NewManager(db, time.Minute, 3)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	ctx := context.Background()

	body, _ := EncodeTask(TaskMessage{Type: TaskRunJob, JobID: 1})
	if _, err := mgr.Enqueue(ctx, "queue_a", body); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	msg, err := mgr.Receive(ctx, "queue_b")
	if err != nil {
		t.Fatalf("Failed to receive: %v", err)
	}
	if msg != nil {
		t.Errorf("Expected queue_b empty, got message %s", msg.ID)
	}
}

func TestRetryPolicyDelaysGrowAndCap(t *testing.T) {
	policy := NewRetryPolicy(2*time.Second, 10*time.Second)

	d1 := policy.DelayForAttempt(1)
	if d1 < time.Second || d1 > 3*time.Second {
		t.Errorf("Expected first delay near 2s, got %v", d1)
	}

	d5 := policy.DelayForAttempt(5)
	if d5 > 10*time.Second {
		t.Errorf("Expected delay capped at 10s, got %v", d5)
	}

	d10 := policy.DelayForAttempt(10)
	if d10 > 10*time.Second {
		t.Errorf("Expected delay capped at 10s, got %v", d10)
	}
}
