package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/eventbuffer"
	"github.com/ternarybob/atelier/internal/models"
)

func TestRecordRequestBuffersFields(t *testing.T) {
	buffer := eventbuffer.New(1000, nil)
	capture := NewCapture(buffer, "atelier", true, arbor.NewLogger())
	ctx := context.Background()

	capture.RecordRequest(ctx, RequestRecord{
		Route:             "/api/jobs",
		Method:            "GET",
		UserID:            "alice",
		Timestamp:         time.Date(2026, 8, 20, 14, 5, 0, 0, time.UTC),
		Duration:          250 * time.Millisecond,
		StatusCode:        200,
		QueryParams:       map[string]string{"status": "pending", "page": "3"},
		RequestSizeBytes:  0,
		ResponseSizeBytes: 1024,
	})

	entries, err := buffer.Range(ctx, models.StreamTopic("atelier", models.RouteAnalyticsStream), "0-0", 10)
	if err != nil {
		t.Fatalf("Failed to range buffer: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}

	fields := entries[0].Fields
	if fields["route"] != "/api/jobs" || fields["method"] != "GET" {
		t.Errorf("Unexpected route fields: %v", fields)
	}
	if fields["duration_ms"] != "250" {
		t.Errorf("Expected duration_ms 250, got %s", fields["duration_ms"])
	}
	if fields["status_code"] != "200" {
		t.Errorf("Expected status_code 200, got %s", fields["status_code"])
	}
	if fields["user_id"] != "alice" {
		t.Errorf("Expected user_id alice, got %s", fields["user_id"])
	}
	if _, present := fields["error_category"]; present {
		t.Error("Expected no error category for a 200 response")
	}
	// Pagination keys are stripped from the normalized form only
	if fields["query_params"] != `{"page":"3","status":"pending"}` {
		t.Errorf("Unexpected raw query params: %s", fields["query_params"])
	}
	if fields["query_params_normalized"] != `{"status":"pending"}` {
		t.Errorf("Unexpected normalized query params: %s", fields["query_params_normalized"])
	}
}

func TestRecordRequestErrorCategory(t *testing.T) {
	buffer := eventbuffer.New(1000, nil)
	capture := NewCapture(buffer, "atelier", true, arbor.NewLogger())
	ctx := context.Background()

	capture.RecordRequest(ctx, RequestRecord{Route: "/api/jobs/7", Method: "GET", StatusCode: 404})
	capture.RecordRequest(ctx, RequestRecord{Route: "/api/jobs", Method: "POST", StatusCode: 500})

	entries, err := buffer.Range(ctx, models.StreamTopic("atelier", models.RouteAnalyticsStream), "0-0", 10)
	if err != nil {
		t.Fatalf("Failed to range buffer: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Fields["error_category"] != models.ErrorCategoryClient {
		t.Errorf("Expected client_error, got %s", entries[0].Fields["error_category"])
	}
	if entries[1].Fields["error_category"] != models.ErrorCategoryServer {
		t.Errorf("Expected server_error, got %s", entries[1].Fields["error_category"])
	}
}

func TestRecordRequestDisabledIsNoOp(t *testing.T) {
	buffer := eventbuffer.New(1000, nil)
	capture := NewCapture(buffer, "atelier", false, arbor.NewLogger())
	ctx := context.Background()

	if capture.Enabled() {
		t.Error("Expected capture disabled")
	}
	capture.RecordRequest(ctx, RequestRecord{Route: "/api/jobs", Method: "GET", StatusCode: 200})

	n, err := buffer.Len(ctx, models.StreamTopic("atelier", models.RouteAnalyticsStream))
	if err != nil {
		t.Fatalf("Failed to get buffer length: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected empty buffer when disabled, got %d entries", n)
	}
}

func TestNormalizeQueryParams(t *testing.T) {
	got := NormalizeQueryParams(map[string]string{
		"status": "pending",
		"page":   "2",
		"offset": "40",
		"limit":  "20",
		"cursor": "abc",
	})
	if len(got) != 1 || got["status"] != "pending" {
		t.Errorf("Expected only status retained, got %v", got)
	}

	if NormalizeQueryParams(nil) != nil {
		t.Error("Expected nil for empty input")
	}
	if NormalizeQueryParams(map[string]string{"page": "1"}) != nil {
		t.Error("Expected nil when all keys are pagination keys")
	}
}
