package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/common"
	"github.com/ternarybob/atelier/internal/services/cacheplan"
	badgerstore "github.com/ternarybob/atelier/internal/storage/badger"
)

// runCachePlan implements the `atelier cacheplan` subcommand. It opens the
// store read-only for the process lifetime, ranks routes from the hourly
// rollups, and prints a report. An empty report is a normal outcome, not an
// error: the command exits 0 either way.
func runCachePlan(args []string) int {
	fs := flag.NewFlagSet("cacheplan", flag.ExitOnError)
	var cachePlanConfig configPaths
	fs.Var(&cachePlanConfig, "config", "Configuration file path")
	topN := fs.Int("n", 10, "Number of candidates to report")
	lookbackDays := fs.Int("days", 7, "Rollup lookback window in days")
	system := fs.String("system", cacheplan.SystemAbsolute, "Scoring system: absolute or relative")
	minRequests := fs.Float64("min-requests", cacheplan.DefaultMinRequestsPerHour,
		"Minimum average requests per hour (absolute system)")
	minLatency := fs.Float64("min-latency", cacheplan.DefaultMinLatencyMs,
		"Minimum p95 latency in milliseconds (absolute system)")
	asJSON := fs.Bool("json", false, "Emit the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if len(cachePlanConfig) == 0 {
		if _, err := os.Stat("atelier.toml"); err == nil {
			cachePlanConfig = append(cachePlanConfig, "atelier.toml")
		}
	}

	cfg, err := common.LoadFromFiles(cachePlanConfig...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cacheplan: failed to load configuration: %v\n", err)
		return 1
	}

	logger := arbor.NewLogger()

	storage, err := badgerstore.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cacheplan: failed to open storage: %v\n", err)
		return 1
	}
	defer storage.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	analyzer := cacheplan.NewAnalyzer(storage.Analytics(), logger)
	report, err := analyzer.Analyze(ctx, cacheplan.Options{
		TopN:               *topN,
		LookbackDays:       *lookbackDays,
		System:             *system,
		MinRequestsPerHour: *minRequests,
		MinLatencyMs:       *minLatency,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "cacheplan: analysis failed: %v\n", err)
		return 1
	}

	if *asJSON {
		printReportJSON(report)
		return 0
	}
	if len(report.Candidates) == 0 {
		fmt.Println("No cache candidates cleared the thresholds.")
		return 0
	}
	printCandidatesTable(report)
	return 0
}

func printCandidatesTable(report *cacheplan.Report) {
	fmt.Printf("Scoring system: %s, lookback %d days, %d qualifying routes\n\n",
		report.System, report.LookbackDays, report.TotalRoutes)
	fmt.Printf("%-4s %-8s %-40s %12s %12s %8s %10s %10s\n",
		"#", "METHOD", "ROUTE", "REQ/HOUR", "P95 MS", "USERS", "ABS", "REL")
	for i, c := range report.Candidates {
		fmt.Printf("%-4d %-8s %-40s %12.1f %12.1f %8.1f %10.2f %10.2f\n",
			i+1, c.Method, c.Route, c.AvgRequests, c.AvgP95Latency, c.AvgUniqueUsers,
			c.AbsoluteScore, c.RelativeScore)
	}
}

func printReportJSON(report *cacheplan.Report) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "cacheplan: encode failed: %v\n", err)
	}
}
