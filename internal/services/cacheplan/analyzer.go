// -----------------------------------------------------------------------
// Cache plan analyzer - ranks routes worth precaching
// -----------------------------------------------------------------------

package cacheplan

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
	"github.com/ternarybob/atelier/internal/models"
)

// Scoring systems. Absolute mixes raw magnitudes on fixed weights behind
// minimum-traffic and minimum-latency floors; relative ranks each route
// against the rest of the fleet so a quiet deployment still surfaces its
// own hottest routes.
const (
	SystemAbsolute = "absolute"
	SystemRelative = "relative"
)

// Default absolute-system floors.
const (
	DefaultMinRequestsPerHour = 10.0
	DefaultMinLatencyMs       = 100.0
)

// Options tune candidate selection.
type Options struct {
	TopN         int    // Max candidates returned (default 10)
	LookbackDays int    // Rollup window to analyze (default 7)
	System       string // SystemAbsolute (default) or SystemRelative

	// Absolute-system floors; zero applies the defaults. The relative
	// system ignores both and qualifies any group averaging at least one
	// request per active hour.
	MinRequestsPerHour float64
	MinLatencyMs       float64
}

// Candidate is one route fingerprint scored for caching. A fingerprint is
// the (route, method, normalized query params) triple the rollups group on.
type Candidate struct {
	Route       string            `json:"route"`
	Method      string            `json:"method"`
	QueryParams map[string]string `json:"query_params,omitempty"`

	AvgRequests    float64 `json:"avg_requests_per_hour"`
	AvgP95Latency  float64 `json:"avg_p95_latency_ms"`
	AvgUniqueUsers float64 `json:"avg_unique_users"`

	AbsoluteScore float64 `json:"absolute_score,omitempty"`
	RelativeScore float64 `json:"relative_score,omitempty"`
	LatencyPctile float64 `json:"latency_percentile,omitempty"`
	PopularityPct float64 `json:"popularity_percentile,omitempty"`
	UserReachPct  float64 `json:"user_reach_percentile,omitempty"`

	HoursWithData int       `json:"hours_with_data"`
	TotalRequests int       `json:"total_requests"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
}

// Report is one analysis run: the ranked candidates plus the size of the
// qualifying population they were drawn from.
type Report struct {
	System       string      `json:"system"`
	LookbackDays int         `json:"lookback_days"`
	TotalRoutes  int         `json:"total_routes"`
	Candidates   []Candidate `json:"routes"`
}

// Analyzer ranks route fingerprints by cache-worthiness from hourly rollups.
type Analyzer struct {
	storage interfaces.AnalyticsStorage
	logger  arbor.ILogger
}

// NewAnalyzer creates the analyzer.
func NewAnalyzer(storage interfaces.AnalyticsStorage, logger arbor.ILogger) *Analyzer {
	return &Analyzer{storage: storage, logger: logger}
}

// Analyze scores the lookback window under the selected system and returns
// the top candidates. Averages are taken over hours with traffic, not the
// whole window, so a route that is hot for two hours a day still reports
// its in-use load.
func (a *Analyzer) Analyze(ctx context.Context, opts Options) (*Report, error) {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 7
	}
	if opts.System == "" {
		opts.System = SystemAbsolute
	}
	if opts.System != SystemAbsolute && opts.System != SystemRelative {
		return nil, models.NewValidationError("unknown scoring system %q", opts.System)
	}
	if opts.MinRequestsPerHour <= 0 {
		opts.MinRequestsPerHour = DefaultMinRequestsPerHour
	}
	if opts.MinLatencyMs <= 0 {
		opts.MinLatencyMs = DefaultMinLatencyMs
	}

	now := time.Now().UTC().Truncate(time.Hour)
	from := now.AddDate(0, 0, -opts.LookbackDays)

	rows, err := a.storage.RouteHourliesInWindow(ctx, from, now)
	if err != nil {
		return nil, err
	}

	type acc struct {
		route         string
		method        string
		params        map[string]string
		totalRequests int
		hours         int
		p95Sum        float64
		usersSum      int
	}
	groups := make(map[string]*acc)
	for _, row := range rows {
		key := row.Method + " " + row.Route + " " + models.CanonicalParams(row.QueryParamsNormalized)
		g := groups[key]
		if g == nil {
			g = &acc{route: row.Route, method: row.Method, params: row.QueryParamsNormalized}
			groups[key] = g
		}
		g.totalRequests += row.TotalRequests
		g.hours++
		g.p95Sum += row.P95DurationMs
		g.usersSum += row.UniqueUsers
	}

	candidates := make([]Candidate, 0, len(groups))
	for _, g := range groups {
		c := Candidate{
			Route:         g.route,
			Method:        g.method,
			QueryParams:   g.params,
			HoursWithData: g.hours,
			TotalRequests: g.totalRequests,
			WindowStart:   from,
			WindowEnd:     now,
		}
		if g.hours > 0 {
			c.AvgRequests = float64(g.totalRequests) / float64(g.hours)
			c.AvgP95Latency = g.p95Sum / float64(g.hours)
			c.AvgUniqueUsers = float64(g.usersSum) / float64(g.hours)
		}
		candidates = append(candidates, c)
	}

	if opts.System == SystemAbsolute {
		candidates = a.scoreAbsolute(candidates, opts)
	} else {
		candidates = a.scoreRelative(candidates)
	}
	total := len(candidates)

	if len(candidates) > opts.TopN {
		candidates = candidates[:opts.TopN]
	}

	a.logger.Debug().
		Str("system", opts.System).
		Int("candidates", len(candidates)).
		Int("qualifying", total).
		Int("lookback_days", opts.LookbackDays).
		Msg("Cache plan analysis completed")
	return &Report{
		System:       opts.System,
		LookbackDays: opts.LookbackDays,
		TotalRoutes:  total,
		Candidates:   candidates,
	}, nil
}

// scoreAbsolute drops groups under the traffic and latency floors, then
// ranks the rest on the fixed-weight magnitude score.
func (a *Analyzer) scoreAbsolute(candidates []Candidate, opts Options) []Candidate {
	filtered := candidates[:0]
	for _, c := range candidates {
		if c.AvgRequests < opts.MinRequestsPerHour {
			continue
		}
		if c.AvgP95Latency < opts.MinLatencyMs {
			continue
		}
		c.AbsoluteScore = absoluteScore(c.AvgRequests, c.AvgP95Latency, c.AvgUniqueUsers)
		filtered = append(filtered, c)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].AbsoluteScore != filtered[j].AbsoluteScore {
			return filtered[i].AbsoluteScore > filtered[j].AbsoluteScore
		}
		return filtered[i].Route < filtered[j].Route
	})
	return filtered
}

// scoreRelative qualifies every group averaging at least one request per
// active hour, ranks each dimension as a percentile of the qualifying
// population, and blends the percentiles into the priority score.
func (a *Analyzer) scoreRelative(candidates []Candidate) []Candidate {
	qualified := candidates[:0]
	for _, c := range candidates {
		if c.AvgRequests >= 1 {
			qualified = append(qualified, c)
		}
	}

	latencies := make([]float64, len(qualified))
	popularity := make([]float64, len(qualified))
	users := make([]float64, len(qualified))
	for i, c := range qualified {
		latencies[i] = c.AvgP95Latency
		popularity[i] = c.AvgRequests
		users[i] = c.AvgUniqueUsers
	}

	for i := range qualified {
		c := &qualified[i]
		c.LatencyPctile = percentileRank(latencies, c.AvgP95Latency)
		c.PopularityPct = percentileRank(popularity, c.AvgRequests)
		c.UserReachPct = percentileRank(users, c.AvgUniqueUsers)
		c.RelativeScore = 0.4*c.LatencyPctile + 0.4*c.PopularityPct + 0.2*c.UserReachPct
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		if qualified[i].RelativeScore != qualified[j].RelativeScore {
			return qualified[i].RelativeScore > qualified[j].RelativeScore
		}
		return qualified[i].Route < qualified[j].Route
	})
	return qualified
}

// absoluteScore mixes raw magnitudes: traffic dominates, latency contributes
// per 100ms of p95, and user reach saturates at 10 points.
func absoluteScore(avgRequests, avgP95LatencyMs, avgUniqueUsers float64) float64 {
	userComponent := math.Min(avgUniqueUsers/10.0, 10.0)
	return avgRequests*10.0 + avgP95LatencyMs/100.0 + userComponent
}

// percentileRank returns the share of values <= v, scaled to 0..100 and
// clamped. An empty population ranks everything at the median.
func percentileRank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 50.0
	}
	count := 0
	for _, x := range values {
		if x <= v {
			count++
		}
	}
	rank := float64(count) / float64(len(values)) * 100.0
	if rank < 0 {
		return 0
	}
	if rank > 100 {
		return 100
	}
	return rank
}
