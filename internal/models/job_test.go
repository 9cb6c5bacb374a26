package models

import (
	"errors"
	"testing"
	"time"
)

func TestJobStateMachineTransitions(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusCancelled, true},
		{JobStatusPending, JobStatusFailed, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusRunning, JobStatusCompleted, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusCancelled, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusCompleted, JobStatusRunning, false},
		{JobStatusCompleted, JobStatusCancelled, false},
		{JobStatusFailed, JobStatusRunning, false},
		{JobStatusCancelled, JobStatusRunning, false},
	}

	for _, tt := range tests {
		job := &Job{Status: tt.from}
		if got := job.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestJobTerminalAndCancellable(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, status := range terminal {
		job := &Job{Status: status}
		if !job.IsTerminal() {
			t.Errorf("Expected %s to be terminal", status)
		}
		if job.IsCancellable() {
			t.Errorf("Expected %s to not be cancellable", status)
		}
	}

	for _, status := range []JobStatus{JobStatusPending, JobStatusRunning} {
		job := &Job{Status: status}
		if job.IsTerminal() {
			t.Errorf("Expected %s to not be terminal", status)
		}
		if !job.IsCancellable() {
			t.Errorf("Expected %s to be cancellable", status)
		}
	}
}

func TestMarkCompletedSetsContentID(t *testing.T) {
	job := &Job{Status: JobStatusRunning, ErrorMessage: "stale"}
	job.MarkCompleted(77)

	if job.Status != JobStatusCompleted {
		t.Errorf("Expected status completed, got %s", job.Status)
	}
	if job.ContentID != 77 {
		t.Errorf("Expected content id 77, got %d", job.ContentID)
	}
	if job.ErrorMessage != "" {
		t.Errorf("Expected error message cleared, got %q", job.ErrorMessage)
	}
	if job.CompletedAt == nil {
		t.Error("Expected CompletedAt to be stamped")
	}
}

func TestMarkCancelledPrefixesReason(t *testing.T) {
	job := &Job{Status: JobStatusPending}
	job.MarkCancelled("user requested")

	if job.Status != JobStatusCancelled {
		t.Errorf("Expected status cancelled, got %s", job.Status)
	}
	if job.ErrorMessage != "Cancelled: user requested" {
		t.Errorf("Expected prefixed reason, got %q", job.ErrorMessage)
	}

	// Empty reason leaves the message empty
	job2 := &Job{Status: JobStatusRunning}
	job2.MarkCancelled("")
	if job2.ErrorMessage != "" {
		t.Errorf("Expected empty error message, got %q", job2.ErrorMessage)
	}
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	req := &GenerationRequest{UserID: "alice", Prompt: "a cat"}
	req.ApplyDefaults()

	if req.Kind != JobKindImage {
		t.Errorf("Expected default kind image, got %s", req.Kind)
	}
	if req.Width != 512 || req.Height != 512 {
		t.Errorf("Expected 512x512 defaults, got %dx%d", req.Width, req.Height)
	}
	if req.BatchSize != 1 {
		t.Errorf("Expected batch size 1, got %d", req.BatchSize)
	}
	if req.Backend != BackendPrimary {
		t.Errorf("Expected primary backend, got %s", req.Backend)
	}
	if req.Sampler == nil || req.Sampler.Steps != 20 {
		t.Error("Expected default sampler params")
	}
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	sampler := SamplerParams{Steps: 30, CFG: 8.5, SamplerName: "dpmpp_2m"}
	req := &GenerationRequest{
		UserID:    "alice",
		Prompt:    "a cat",
		Width:     1024,
		Height:    768,
		BatchSize: 4,
		Backend:   BackendMock,
		Sampler:   &sampler,
	}
	req.ApplyDefaults()

	if req.Width != 1024 || req.Height != 768 {
		t.Errorf("Expected explicit dimensions kept, got %dx%d", req.Width, req.Height)
	}
	if req.BatchSize != 4 {
		t.Errorf("Expected explicit batch size kept, got %d", req.BatchSize)
	}
	if req.Backend != BackendMock {
		t.Errorf("Expected mock backend kept, got %s", req.Backend)
	}
	if req.Sampler.Steps != 30 {
		t.Errorf("Expected explicit sampler kept, got %d steps", req.Sampler.Steps)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []error{
		&BackendConnectionError{URL: "http://localhost:8188", Err: errors.New("refused")},
		&BackendWorkflowError{Status: "error"},
		&TransientStoreError{Err: errors.New("conflict")},
	}
	for _, err := range retryable {
		if !IsRetryable(err) {
			t.Errorf("Expected %T to be retryable", err)
		}
	}

	final := []error{
		NewValidationError("bad prompt"),
		NewNotFoundError("job", 1),
		NewConflictError("terminal"),
		&WorkersUnavailableError{Message: "no workers"},
		&RenderTimeoutError{PromptID: "p1", Waited: "20m"},
		errors.New("plain"),
	}
	for _, err := range final {
		if IsRetryable(err) {
			t.Errorf("Expected %T to not be retryable", err)
		}
	}
}

func TestErrorCategoryForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, ""},
		{201, ""},
		{302, ""},
		{400, ErrorCategoryClient},
		{404, ErrorCategoryClient},
		{422, ErrorCategoryClient},
		{500, ErrorCategoryServer},
		{503, ErrorCategoryServer},
	}
	for _, tt := range tests {
		if got := ErrorCategoryForStatus(tt.status); got != tt.want {
			t.Errorf("ErrorCategoryForStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestCanonicalParamsIsDeterministic(t *testing.T) {
	a := CanonicalParams(map[string]string{"b": "2", "a": "1"})
	b := CanonicalParams(map[string]string{"a": "1", "b": "2"})
	if a != b {
		t.Errorf("Expected identical canonical forms, got %q and %q", a, b)
	}
	if a != `{"a":"1","b":"2"}` {
		t.Errorf("Unexpected canonical form: %q", a)
	}
	if CanonicalParams(nil) != "{}" {
		t.Errorf("Expected empty map to canonicalize to {}, got %q", CanonicalParams(nil))
	}
}

func TestRouteHourlyKeyStability(t *testing.T) {
	hour := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	k1 := RouteHourlyKey(hour, "/api/jobs", "GET", map[string]string{"status": "pending"})
	k2 := RouteHourlyKey(hour, "/api/jobs", "GET", map[string]string{"status": "pending"})
	if k1 != k2 {
		t.Errorf("Expected stable keys, got %q and %q", k1, k2)
	}

	k3 := RouteHourlyKey(hour, "/api/jobs", "POST", map[string]string{"status": "pending"})
	if k1 == k3 {
		t.Error("Expected method to partition keys")
	}
}
