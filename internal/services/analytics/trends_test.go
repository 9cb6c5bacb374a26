package analytics

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/models"
	badgerstore "github.com/ternarybob/atelier/internal/storage/badger"
)

func seedRouteHourly(t *testing.T, storage *badgerstore.Manager, hour time.Time, route, method string, requests, avgMs int, p95 float64, clientErrs, serverErrs int) {
	t.Helper()
	row := &models.RouteAnalyticsHourly{
		Hour:          hour,
		Route:         route,
		Method:        method,
		TotalRequests: requests,
		AvgDurationMs: avgMs,
		P95DurationMs: p95,
		ClientErrors:  clientErrs,
		ServerErrors:  serverErrs,
	}
	if err := storage.Analytics().UpsertRouteHourly(context.Background(), row); err != nil {
		t.Fatalf("Failed to seed hourly: %v", err)
	}
}

func TestPerformanceTrendsHourly(t *testing.T) {
	storage := newTestStorage(t)
	trends := NewTrends(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Hour)
	older := now.Add(-3 * time.Hour)
	newer := now.Add(-1 * time.Hour)

	// Two routes in the same hour merge into one bucket
	seedRouteHourly(t, storage, older, "/api/jobs", "GET", 10, 100, 300, 0, 1)
	seedRouteHourly(t, storage, older, "/api/gallery", "GET", 30, 200, 500, 3, 0)
	seedRouteHourly(t, storage, newer, "/api/jobs", "GET", 5, 80, 120, 0, 0)

	buckets, err := trends.PerformanceTrends(ctx, 7, "hourly", "")
	if err != nil {
		t.Fatalf("Failed to query trends: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("Expected 2 buckets, got %d", len(buckets))
	}

	// Oldest bucket first
	if !buckets[0].Bucket.Equal(older) {
		t.Errorf("Expected first bucket %v, got %v", older, buckets[0].Bucket)
	}

	merged := buckets[0]
	if merged.TotalRequests != 40 {
		t.Errorf("Expected 40 requests in merged bucket, got %d", merged.TotalRequests)
	}
	// Request-weighted average: (100*10 + 200*30) / 40
	if math.Abs(merged.AvgDurationMs-175.0) > 0.01 {
		t.Errorf("Expected weighted avg 175, got %f", merged.AvgDurationMs)
	}
	if merged.P95DurationMs != 500 {
		t.Errorf("Expected bucket p95 500, got %f", merged.P95DurationMs)
	}
	// 4 errors of 40 requests
	if math.Abs(merged.ErrorRate-0.1) > 0.001 {
		t.Errorf("Expected error rate 0.1, got %f", merged.ErrorRate)
	}
}

func TestPerformanceTrendsDaily(t *testing.T) {
	storage := newTestStorage(t)
	trends := NewTrends(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Hour)
	hours := []time.Time{now.Add(-1 * time.Hour), now.Add(-2 * time.Hour), now.Add(-26 * time.Hour)}
	for _, h := range hours {
		seedRouteHourly(t, storage, h, "/api/jobs", "GET", 10, 100, 200, 0, 0)
	}

	buckets, err := trends.PerformanceTrends(ctx, 7, "daily", "")
	if err != nil {
		t.Fatalf("Failed to query trends: %v", err)
	}
	// Daily output always spans the whole window, zero-filled
	if len(buckets) != 7 {
		t.Fatalf("Expected 7 daily buckets, got %d", len(buckets))
	}

	perDay := make(map[time.Time]int)
	for _, h := range hours {
		perDay[h.Truncate(24*time.Hour)] += 10
	}

	startDay := now.Truncate(24 * time.Hour).AddDate(0, 0, -6)
	for i, b := range buckets {
		want := startDay.AddDate(0, 0, i)
		if !b.Bucket.Equal(want) {
			t.Errorf("Expected bucket %d at %v, got %v", i, want, b.Bucket)
		}
		if b.TotalRequests != perDay[b.Bucket] {
			t.Errorf("Expected %d requests on %v, got %d", perDay[b.Bucket], b.Bucket, b.TotalRequests)
		}
	}
}

func TestPerformanceTrendsRouteFilter(t *testing.T) {
	storage := newTestStorage(t)
	trends := NewTrends(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	hour := time.Now().UTC().Truncate(time.Hour).Add(-2 * time.Hour)
	seedRouteHourly(t, storage, hour, "/api/jobs", "GET", 10, 100, 200, 0, 0)
	seedRouteHourly(t, storage, hour, "/api/gallery", "GET", 30, 200, 500, 0, 0)

	buckets, err := trends.PerformanceTrends(ctx, 7, "hourly", "/api/jobs")
	if err != nil {
		t.Fatalf("Failed to query trends: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("Expected 1 bucket, got %d", len(buckets))
	}
	if buckets[0].TotalRequests != 10 {
		t.Errorf("Expected only the filtered route's 10 requests, got %d", buckets[0].TotalRequests)
	}
}

func TestPeakHours(t *testing.T) {
	storage := newTestStorage(t)
	trends := NewTrends(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Hour)
	busy := now.Add(-2 * time.Hour)
	// Same (route, hour-of-day) on the previous day merges
	seedRouteHourly(t, storage, busy, "/api/jobs", "GET", 10, 100, 200, 0, 0)
	seedRouteHourly(t, storage, busy.Add(-24*time.Hour), "/api/jobs", "GET", 30, 100, 200, 0, 0)
	// Another route in the same hour stays its own pair
	seedRouteHourly(t, storage, busy, "/api/gallery", "GET", 50, 100, 200, 0, 0)
	seedRouteHourly(t, storage, now.Add(-3*time.Hour), "/api/jobs", "GET", 5, 100, 200, 0, 0)

	peaks, err := trends.PeakHours(ctx, 7, "", 0)
	if err != nil {
		t.Fatalf("Failed to query peak hours: %v", err)
	}
	if len(peaks) != 3 {
		t.Fatalf("Expected 3 route-hour pairs, got %d", len(peaks))
	}

	// Busiest pair first
	if peaks[0].Route != "/api/gallery" || peaks[0].TotalRequests != 50 {
		t.Errorf("Expected /api/gallery with 50 requests first, got %s with %d",
			peaks[0].Route, peaks[0].TotalRequests)
	}
	if peaks[1].Route != "/api/jobs" || peaks[1].HourOfDay != busy.Hour() {
		t.Errorf("Expected /api/jobs at hour %d second, got %s at %d",
			busy.Hour(), peaks[1].Route, peaks[1].HourOfDay)
	}
	if peaks[1].TotalRequests != 40 {
		t.Errorf("Expected 40 requests merged across days, got %d", peaks[1].TotalRequests)
	}
	// 40 requests over 2 occurrences of that hour-of-day
	if math.Abs(peaks[1].AvgRequests-20.0) > 0.01 {
		t.Errorf("Expected avg 20 requests, got %f", peaks[1].AvgRequests)
	}
}

func TestPeakHoursRouteAndMinRequestsFilters(t *testing.T) {
	storage := newTestStorage(t)
	trends := NewTrends(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Hour)
	seedRouteHourly(t, storage, now.Add(-2*time.Hour), "/api/jobs", "GET", 40, 100, 200, 0, 0)
	seedRouteHourly(t, storage, now.Add(-3*time.Hour), "/api/jobs", "GET", 5, 100, 200, 0, 0)
	seedRouteHourly(t, storage, now.Add(-2*time.Hour), "/api/gallery", "GET", 60, 100, 200, 0, 0)

	peaks, err := trends.PeakHours(ctx, 7, "/api/jobs", 0)
	if err != nil {
		t.Fatalf("Failed to query peak hours: %v", err)
	}
	if len(peaks) != 2 {
		t.Fatalf("Expected 2 pairs for the filtered route, got %d", len(peaks))
	}
	for _, p := range peaks {
		if p.Route != "/api/jobs" {
			t.Errorf("Expected only /api/jobs pairs, got %s", p.Route)
		}
	}

	peaks, err = trends.PeakHours(ctx, 7, "/api/jobs", 10)
	if err != nil {
		t.Fatalf("Failed to query peak hours: %v", err)
	}
	if len(peaks) != 1 || peaks[0].TotalRequests != 40 {
		t.Fatalf("Expected only the 40-request pair past the floor, got %+v", peaks)
	}
}

func TestTopRoutes(t *testing.T) {
	storage := newTestStorage(t)
	trends := NewTrends(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Hour)
	hour := now.Add(-2 * time.Hour)
	seedRouteHourly(t, storage, hour, "/api/gallery", "GET", 30, 400, 900, 0, 3)
	seedRouteHourly(t, storage, hour, "/api/jobs", "GET", 20, 100, 200, 0, 0)
	seedRouteHourly(t, storage, hour, "/api/content", "GET", 20, 150, 250, 0, 0)
	seedRouteHourly(t, storage, hour, "/health", "GET", 5, 5, 10, 0, 0)

	routes, err := trends.TopRoutes(ctx, 7, 3)
	if err != nil {
		t.Fatalf("Failed to query top routes: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("Expected 3 routes after truncation, got %d", len(routes))
	}

	if routes[0].Route != "/api/gallery" {
		t.Errorf("Expected /api/gallery first, got %s", routes[0].Route)
	}
	// Equal volume ties break on route name
	if routes[1].Route != "/api/content" || routes[2].Route != "/api/jobs" {
		t.Errorf("Expected tie broken by route name, got %s then %s", routes[1].Route, routes[2].Route)
	}

	if math.Abs(routes[0].ErrorRate-0.1) > 0.001 {
		t.Errorf("Expected error rate 0.1 for top route, got %f", routes[0].ErrorRate)
	}
	if math.Abs(routes[0].AvgDurationMs-400.0) > 0.01 {
		t.Errorf("Expected avg duration 400, got %f", routes[0].AvgDurationMs)
	}
}

func TestGenerationTrends(t *testing.T) {
	storage := newTestStorage(t)
	trends := NewTrends(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Hour)
	for i, requests := range []int{4, 9} {
		row := &models.GenerationMetricsHourly{
			Hour:          now.Add(-time.Duration(2-i) * time.Hour),
			TotalRequests: requests,
		}
		if err := storage.Analytics().UpsertGenerationHourly(ctx, row); err != nil {
			t.Fatalf("Failed to seed generation hourly: %v", err)
		}
	}

	rows, err := trends.GenerationTrends(ctx, 7)
	if err != nil {
		t.Fatalf("Failed to query generation trends: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].TotalRequests != 4 || rows[1].TotalRequests != 9 {
		t.Errorf("Expected rows ordered by hour, got %d then %d", rows[0].TotalRequests, rows[1].TotalRequests)
	}
}
