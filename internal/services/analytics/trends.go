// -----------------------------------------------------------------------
// Trends - read-side queries over precomputed hourly rollups
// -----------------------------------------------------------------------

package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// TrendBucket is one point on a performance trend line.
type TrendBucket struct {
	Bucket        time.Time `json:"bucket"`
	TotalRequests int       `json:"total_requests"`
	AvgDurationMs float64   `json:"avg_duration_ms"`
	P95DurationMs float64   `json:"p95_duration_ms"`
	ErrorRate     float64   `json:"error_rate"`
}

// PeakHour is the aggregated load for one (route, hour-of-day) pair across
// the window.
type PeakHour struct {
	Route         string  `json:"route"`
	HourOfDay     int     `json:"hour_of_day"`
	TotalRequests int     `json:"total_requests"`
	AvgRequests   float64 `json:"avg_requests"`
}

// RouteVolume is the request total for one route over the window.
type RouteVolume struct {
	Route         string  `json:"route"`
	Method        string  `json:"method"`
	TotalRequests int     `json:"total_requests"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	ErrorRate     float64 `json:"error_rate"`
}

// Trends answers analytics read queries from precomputed hourly rollups;
// raw rows are never scanned here.
type Trends struct {
	storage interfaces.AnalyticsStorage
	logger  arbor.ILogger
}

// NewTrends creates the trends query service.
func NewTrends(storage interfaces.AnalyticsStorage, logger arbor.ILogger) *Trends {
	return &Trends{storage: storage, logger: logger}
}

// PerformanceTrends returns trend buckets for the trailing window, optionally
// limited to a single route. granularity is "hourly" or "daily". Hourly
// output omits empty buckets; daily output always spans exactly `days`
// calendar UTC days, zero-filled where no traffic landed.
func (t *Trends) PerformanceTrends(ctx context.Context, days int, granularity, route string) ([]TrendBucket, error) {
	now := time.Now().UTC().Truncate(time.Hour)
	from := now.AddDate(0, 0, -days)
	daily := granularity == "daily"

	var startDay time.Time
	if daily {
		startDay = now.Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))
		if startDay.Before(from) {
			from = startDay
		}
	}

	rows, err := t.storage.RouteHourliesInWindow(ctx, from, now)
	if err != nil {
		return nil, err
	}

	bucketFor := func(hour time.Time) time.Time {
		if daily {
			return hour.Truncate(24 * time.Hour)
		}
		return hour
	}

	type acc struct {
		requests    int
		durationSum float64
		p95Max      float64
		errors      int
	}
	buckets := make(map[time.Time]*acc)
	for _, row := range rows {
		if route != "" && row.Route != route {
			continue
		}
		b := bucketFor(row.Hour)
		a := buckets[b]
		if a == nil {
			a = &acc{}
			buckets[b] = a
		}
		a.requests += row.TotalRequests
		a.durationSum += float64(row.AvgDurationMs) * float64(row.TotalRequests)
		if row.P95DurationMs > a.p95Max {
			a.p95Max = row.P95DurationMs
		}
		a.errors += row.ClientErrors + row.ServerErrors
	}

	toPoint := func(b time.Time, a *acc) TrendBucket {
		point := TrendBucket{Bucket: b}
		if a != nil {
			point.TotalRequests = a.requests
			point.P95DurationMs = a.p95Max
			if a.requests > 0 {
				point.AvgDurationMs = a.durationSum / float64(a.requests)
				point.ErrorRate = float64(a.errors) / float64(a.requests)
			}
		}
		return point
	}

	if daily {
		result := make([]TrendBucket, 0, days)
		for i := 0; i < days; i++ {
			day := startDay.AddDate(0, 0, i)
			result = append(result, toPoint(day, buckets[day]))
		}
		return result, nil
	}

	result := make([]TrendBucket, 0, len(buckets))
	for b, a := range buckets {
		result = append(result, toPoint(b, a))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Bucket.Before(result[j].Bucket) })
	return result, nil
}

// PeakHours aggregates request totals per (route, hour-of-day) over the
// window. route narrows to one route; minRequests drops pairs whose window
// total falls below it.
func (t *Trends) PeakHours(ctx context.Context, days int, route string, minRequests int) ([]PeakHour, error) {
	now := time.Now().UTC().Truncate(time.Hour)
	from := now.AddDate(0, 0, -days)

	rows, err := t.storage.RouteHourliesInWindow(ctx, from, now)
	if err != nil {
		return nil, err
	}

	type key struct {
		route string
		hour  int
	}
	totals := make(map[key]int)
	occurrences := make(map[key]int)
	for _, row := range rows {
		if route != "" && row.Route != route {
			continue
		}
		k := key{route: row.Route, hour: row.Hour.UTC().Hour()}
		totals[k] += row.TotalRequests
		occurrences[k]++
	}

	result := make([]PeakHour, 0, len(totals))
	for k, total := range totals {
		if total < minRequests {
			continue
		}
		peak := PeakHour{Route: k.route, HourOfDay: k.hour, TotalRequests: total}
		if occurrences[k] > 0 {
			peak.AvgRequests = float64(total) / float64(occurrences[k])
		}
		result = append(result, peak)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalRequests != result[j].TotalRequests {
			return result[i].TotalRequests > result[j].TotalRequests
		}
		if result[i].Route != result[j].Route {
			return result[i].Route < result[j].Route
		}
		return result[i].HourOfDay < result[j].HourOfDay
	})
	return result, nil
}

// TopRoutes returns the n busiest routes in the window.
func (t *Trends) TopRoutes(ctx context.Context, days, n int) ([]RouteVolume, error) {
	now := time.Now().UTC().Truncate(time.Hour)
	from := now.AddDate(0, 0, -days)

	rows, err := t.storage.RouteHourliesInWindow(ctx, from, now)
	if err != nil {
		return nil, err
	}

	type acc struct {
		requests    int
		durationSum float64
		errors      int
		method      string
	}
	routes := make(map[string]*acc)
	for _, row := range rows {
		key := row.Method + " " + row.Route
		a := routes[key]
		if a == nil {
			a = &acc{method: row.Method}
			routes[key] = a
		}
		a.requests += row.TotalRequests
		a.durationSum += float64(row.AvgDurationMs) * float64(row.TotalRequests)
		a.errors += row.ClientErrors + row.ServerErrors
	}

	result := make([]RouteVolume, 0, len(routes))
	for key, a := range routes {
		route := key[len(a.method)+1:]
		vol := RouteVolume{Route: route, Method: a.method, TotalRequests: a.requests}
		if a.requests > 0 {
			vol.AvgDurationMs = a.durationSum / float64(a.requests)
			vol.ErrorRate = float64(a.errors) / float64(a.requests)
		}
		result = append(result, vol)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalRequests != result[j].TotalRequests {
			return result[i].TotalRequests > result[j].TotalRequests
		}
		return result[i].Route < result[j].Route
	})
	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result, nil
}

// GenerationTrends returns per-hour generation rollups for the window.
func (t *Trends) GenerationTrends(ctx context.Context, days int) ([]*models.GenerationMetricsHourly, error) {
	now := time.Now().UTC().Truncate(time.Hour)
	from := now.AddDate(0, 0, -days)
	return t.storage.GenerationHourliesInWindow(ctx, from, now)
}
