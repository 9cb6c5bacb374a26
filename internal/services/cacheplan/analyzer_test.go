package cacheplan

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/models"
	badgerstore "github.com/ternarybob/atelier/internal/storage/badger"
)

func newTestStorage(t *testing.T) *badgerstore.Manager {
	t.Helper()
	mgr, err := badgerstore.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

// seedHourly inserts count hourly rollups for a route, one per hour counting
// back from the last closed hour.
func seedHourly(t *testing.T, storage *badgerstore.Manager, route, method string, hours, requestsPerHour int, p95 float64, uniqueUsers int) {
	t.Helper()
	seedHourlyParams(t, storage, route, method, nil, hours, requestsPerHour, p95, uniqueUsers)
}

func seedHourlyParams(t *testing.T, storage *badgerstore.Manager, route, method string, params map[string]string, hours, requestsPerHour int, p95 float64, uniqueUsers int) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Hour)
	for i := 1; i <= hours; i++ {
		row := &models.RouteAnalyticsHourly{
			Hour:                  now.Add(-time.Duration(i) * time.Hour),
			Route:                 route,
			Method:                method,
			QueryParamsNormalized: params,
			TotalRequests:         requestsPerHour,
			P95DurationMs:         p95,
			UniqueUsers:           uniqueUsers,
		}
		if err := storage.Analytics().UpsertRouteHourly(context.Background(), row); err != nil {
			t.Fatalf("Failed to seed hourly for %s: %v", route, err)
		}
	}
}

func TestAnalyzeAbsoluteRanksAndFilters(t *testing.T) {
	storage := newTestStorage(t)
	analyzer := NewAnalyzer(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	// Hot and slow: should rank first
	seedHourly(t, storage, "/api/gallery", "GET", 24, 120, 900, 80)
	// Steady mid-range traffic
	seedHourly(t, storage, "/api/jobs", "GET", 24, 50, 150, 20)
	// Active only two hours, but heavy when in use
	seedHourly(t, storage, "/api/reports", "GET", 2, 20, 2500, 5)
	// Hot but fast: fails the latency floor
	seedHourly(t, storage, "/health", "GET", 24, 130, 20, 60)

	report, err := analyzer.Analyze(ctx, Options{System: SystemAbsolute, LookbackDays: 7, TopN: 10})
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if report.System != SystemAbsolute {
		t.Errorf("Expected absolute system on the report, got %s", report.System)
	}
	if report.TotalRoutes != 3 {
		t.Fatalf("Expected 3 qualifying routes, got %d", report.TotalRoutes)
	}

	got := report.Candidates
	if len(got) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(got))
	}
	order := []string{"/api/gallery", "/api/jobs", "/api/reports"}
	for i, route := range order {
		if got[i].Route != route {
			t.Errorf("Expected %s at rank %d, got %s", route, i, got[i].Route)
		}
	}

	// gallery: 120*10 + 900/100 + min(80/10,10) = 1217
	if math.Abs(got[0].AbsoluteScore-1217.0) > 0.01 {
		t.Errorf("Expected score 1217, got %f", got[0].AbsoluteScore)
	}
	// jobs: 50*10 + 150/100 + 2 = 503.5
	if math.Abs(got[1].AbsoluteScore-503.5) > 0.01 {
		t.Errorf("Expected score 503.5, got %f", got[1].AbsoluteScore)
	}
	// reports averages over its 2 active hours: 20*10 + 2500/100 + 0.5 = 225.5
	if math.Abs(got[2].AvgRequests-20.0) > 0.01 {
		t.Errorf("Expected 20 requests/hour over active hours, got %f", got[2].AvgRequests)
	}
	if math.Abs(got[2].AbsoluteScore-225.5) > 0.01 {
		t.Errorf("Expected score 225.5, got %f", got[2].AbsoluteScore)
	}
	if got[2].HoursWithData != 2 {
		t.Errorf("Expected 2 active hours, got %d", got[2].HoursWithData)
	}
}

func TestAnalyzeAbsoluteScoreFormula(t *testing.T) {
	storage := newTestStorage(t)
	analyzer := NewAnalyzer(storage.Analytics(), arbor.NewLogger())

	seedHourly(t, storage, "/api/gallery", "GET", 24, 168, 800, 50)

	report, err := analyzer.Analyze(context.Background(), Options{System: SystemAbsolute, LookbackDays: 7})
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if len(report.Candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(report.Candidates))
	}

	c := report.Candidates[0]
	// avg = 24*168/24 active hours = 168; score = 168*10 + 800/100 + min(50/10,10) = 1693
	if math.Abs(c.AvgRequests-168.0) > 0.01 {
		t.Errorf("Expected 168 requests/hour, got %f", c.AvgRequests)
	}
	if math.Abs(c.AbsoluteScore-1693.0) > 0.01 {
		t.Errorf("Expected absolute score 1693, got %f", c.AbsoluteScore)
	}
}

func TestAnalyzeAbsoluteDefaultFloors(t *testing.T) {
	storage := newTestStorage(t)
	analyzer := NewAnalyzer(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	// Under the 10 req/hour floor
	seedHourly(t, storage, "/api/quiet", "GET", 24, 5, 400, 3)
	// Under the 100ms latency floor
	seedHourly(t, storage, "/api/fast", "GET", 24, 40, 50, 10)
	// Clears both defaults
	seedHourly(t, storage, "/api/gallery", "GET", 24, 40, 400, 10)

	report, err := analyzer.Analyze(ctx, Options{System: SystemAbsolute, LookbackDays: 7})
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if report.TotalRoutes != 1 || len(report.Candidates) != 1 {
		t.Fatalf("Expected only the route clearing both floors, got %+v", report.Candidates)
	}
	if report.Candidates[0].Route != "/api/gallery" {
		t.Errorf("Expected /api/gallery, got %s", report.Candidates[0].Route)
	}

	// Raising the floors explicitly removes it too
	report, err = analyzer.Analyze(ctx, Options{System: SystemAbsolute, LookbackDays: 7, MinRequestsPerHour: 50})
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if len(report.Candidates) != 0 {
		t.Errorf("Expected no candidates past a 50 req/hour floor, got %d", len(report.Candidates))
	}
}

func TestAnalyzeRelativeRanksWholeFleet(t *testing.T) {
	storage := newTestStorage(t)
	analyzer := NewAnalyzer(storage.Analytics(), arbor.NewLogger())
	ctx := context.Background()

	seedHourly(t, storage, "/api/gallery", "GET", 24, 120, 900, 80)
	seedHourly(t, storage, "/api/jobs", "GET", 24, 100, 50, 60)
	seedHourly(t, storage, "/api/analytics/performance-trends", "GET", 24, 2, 1500, 3)
	seedHourly(t, storage, "/health", "GET", 24, 5, 5, 1)

	report, err := analyzer.Analyze(ctx, Options{System: SystemRelative, LookbackDays: 7, TopN: 10})
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	got := report.Candidates
	if len(got) != 4 || report.TotalRoutes != 4 {
		t.Fatalf("Expected all 4 routes qualifying, got %d of %d", len(got), report.TotalRoutes)
	}

	// Blended percentile scores: 90, 65, 60, 35
	order := []struct {
		route string
		score float64
	}{
		{"/api/gallery", 90},
		{"/api/jobs", 65},
		{"/api/analytics/performance-trends", 60},
		{"/health", 35},
	}
	for i, want := range order {
		if got[i].Route != want.route {
			t.Errorf("Expected %s at rank %d, got %s", want.route, i, got[i].Route)
		}
		if math.Abs(got[i].RelativeScore-want.score) > 0.01 {
			t.Errorf("Expected score %.0f for %s, got %f", want.score, want.route, got[i].RelativeScore)
		}
	}

	// 900ms is the second-highest of four latencies: 3 of 4 values <= 900
	if got[0].LatencyPctile != 75 {
		t.Errorf("Expected latency percentile 75, got %f", got[0].LatencyPctile)
	}
	if got[0].PopularityPct != 100 || got[0].UserReachPct != 100 {
		t.Errorf("Expected top popularity and reach percentiles, got %f and %f",
			got[0].PopularityPct, got[0].UserReachPct)
	}
}

func TestAnalyzeRelativeIgnoresFloors(t *testing.T) {
	storage := newTestStorage(t)
	analyzer := NewAnalyzer(storage.Analytics(), arbor.NewLogger())

	// Quiet and fast; the absolute floors would drop it
	seedHourly(t, storage, "/health", "GET", 24, 5, 5, 1)

	report, err := analyzer.Analyze(context.Background(), Options{
		System:             SystemRelative,
		LookbackDays:       7,
		MinRequestsPerHour: 50,
		MinLatencyMs:       500,
	})
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if len(report.Candidates) != 1 {
		t.Fatalf("Expected the quiet route ranked under the relative system, got %d", len(report.Candidates))
	}
	// Sole candidate ranks at 100 on every dimension
	if report.Candidates[0].RelativeScore != 100 {
		t.Errorf("Expected score 100 for a sole candidate, got %f", report.Candidates[0].RelativeScore)
	}
}

func TestAnalyzeGroupsByQueryParams(t *testing.T) {
	storage := newTestStorage(t)
	analyzer := NewAnalyzer(storage.Analytics(), arbor.NewLogger())

	// Same route and method, two distinct normalized param shapes
	seedHourlyParams(t, storage, "/api/jobs", "GET", map[string]string{"status": "completed"}, 24, 40, 300, 10)
	seedHourlyParams(t, storage, "/api/jobs", "GET", map[string]string{"status": "failed"}, 24, 15, 200, 4)

	report, err := analyzer.Analyze(context.Background(), Options{System: SystemAbsolute, LookbackDays: 7})
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if len(report.Candidates) != 2 {
		t.Fatalf("Expected one candidate per param fingerprint, got %d", len(report.Candidates))
	}
	if report.Candidates[0].QueryParams["status"] != "completed" {
		t.Errorf("Expected the completed fingerprint first, got %v", report.Candidates[0].QueryParams)
	}
	if report.Candidates[1].QueryParams["status"] != "failed" {
		t.Errorf("Expected the failed fingerprint second, got %v", report.Candidates[1].QueryParams)
	}
}

func TestAnalyzeTopNTruncation(t *testing.T) {
	storage := newTestStorage(t)
	analyzer := NewAnalyzer(storage.Analytics(), arbor.NewLogger())

	routes := []string{"/api/a", "/api/b", "/api/c", "/api/d", "/api/e"}
	for i, route := range routes {
		seedHourly(t, storage, route, "GET", 24, (i+1)*10, float64((i+1)*100), (i+1)*5)
	}

	report, err := analyzer.Analyze(context.Background(), Options{System: SystemRelative, LookbackDays: 7, TopN: 3})
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if len(report.Candidates) != 3 {
		t.Errorf("Expected 3 candidates after truncation, got %d", len(report.Candidates))
	}
	if report.TotalRoutes != 5 {
		t.Errorf("Expected 5 qualifying routes before truncation, got %d", report.TotalRoutes)
	}
	if report.Candidates[0].Route != "/api/e" {
		t.Errorf("Expected busiest route first, got %s", report.Candidates[0].Route)
	}
}

func TestAnalyzeRejectsUnknownSystem(t *testing.T) {
	storage := newTestStorage(t)
	analyzer := NewAnalyzer(storage.Analytics(), arbor.NewLogger())

	_, err := analyzer.Analyze(context.Background(), Options{System: "blended"})
	if err == nil {
		t.Fatal("Expected error for unknown system")
	}
	if _, ok := err.(*models.ValidationError); !ok {
		t.Errorf("Expected ValidationError, got %T: %v", err, err)
	}
}

func TestAnalyzeEmptyWindow(t *testing.T) {
	storage := newTestStorage(t)
	analyzer := NewAnalyzer(storage.Analytics(), arbor.NewLogger())

	report, err := analyzer.Analyze(context.Background(), Options{LookbackDays: 7})
	if err != nil {
		t.Fatalf("Failed to analyze empty window: %v", err)
	}
	if len(report.Candidates) != 0 || report.TotalRoutes != 0 {
		t.Errorf("Expected no candidates, got %+v", report)
	}
}

func TestPercentileRank(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	if got := percentileRank(values, 40); got != 100 {
		t.Errorf("Expected 100 for the max, got %f", got)
	}
	if got := percentileRank(values, 10); got != 25 {
		t.Errorf("Expected 25 for the min, got %f", got)
	}
	if got := percentileRank(nil, 5); got != 50 {
		t.Errorf("Expected 50 for an empty population, got %f", got)
	}
}
