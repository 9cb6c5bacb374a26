package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/app"
	"github.com/ternarybob/atelier/internal/eventbuffer"
	"github.com/ternarybob/atelier/internal/models"
	"github.com/ternarybob/atelier/internal/services/analytics"
)

func newCaptureServer(t *testing.T) (*Server, *eventbuffer.Buffer) {
	t.Helper()
	logger := arbor.NewLogger()
	buffer := eventbuffer.New(1000, nil)
	application := &app.App{
		Logger:  logger,
		Capture: analytics.NewCapture(buffer, "atelier", true, logger),
	}
	return &Server{app: application}, buffer
}

func routeEntries(t *testing.T, buffer *eventbuffer.Buffer) []models.BufferEntry {
	t.Helper()
	topic := models.StreamTopic("atelier", models.RouteAnalyticsStream)
	entries, err := buffer.Range(context.Background(), topic, "0-0", 10)
	if err != nil {
		t.Fatalf("Failed to read buffered telemetry: %v", err)
	}
	return entries
}

func TestCaptureMiddlewareRecordsRequest(t *testing.T) {
	server, buffer := newCaptureServer(t)

	handler := server.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/jobs?status=pending", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", rec.Code)
	}

	entries := routeEntries(t, buffer)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 telemetry entry, got %d", len(entries))
	}
	fields := entries[0].Fields
	if fields["route"] != "/api/jobs" || fields["method"] != "GET" {
		t.Errorf("Unexpected entry fields: %v", fields)
	}
	if fields["status_code"] != "201" {
		t.Errorf("Expected status_code 201, got %s", fields["status_code"])
	}
}

func TestCaptureMiddlewareRecordsPanics(t *testing.T) {
	server, buffer := newCaptureServer(t)

	handler := server.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/jobs", nil))

	// The recovery middleware still answers the client
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rec.Code)
	}

	entries := routeEntries(t, buffer)
	if len(entries) != 1 {
		t.Fatalf("Expected the panicking request recorded, got %d entries", len(entries))
	}
	if entries[0].Fields["status_code"] != "500" {
		t.Errorf("Expected status_code 500, got %s", entries[0].Fields["status_code"])
	}
}

func TestCaptureMiddlewareSkipsNonAPIRoutes(t *testing.T) {
	server, buffer := newCaptureServer(t)

	handler := server.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if entries := routeEntries(t, buffer); len(entries) != 0 {
		t.Errorf("Expected no telemetry for non-API routes, got %d entries", len(entries))
	}
}
