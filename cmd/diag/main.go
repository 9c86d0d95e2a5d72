// Command diag runs one offline screening pass over a TLE file and prints
// every rated conjunction. Useful for sanity-checking element sets and
// threshold settings without standing up the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/screening"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/tle"
)

func main() {
	var (
		file        = flag.String("file", "", "path to a TLE file (required)")
		window      = flag.Duration("window", 24*time.Hour, "screening window")
		step        = flag.Duration("step", 5*time.Minute, "coarse sampling step")
		thresholdKm = flag.Float64("threshold-km", 10, "emission threshold in km")
		verbose     = flag.Bool("v", false, "log at debug level")
	)
	flag.Parse()
	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: diag -file catalog.tle [-window 24h] [-step 5m] [-threshold-km 10]")
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR opening TLE file:", err)
		os.Exit(2)
	}
	records, skipped, err := tle.ParseCounted(f, logger)
	f.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ERROR parsing TLE file:", err)
		os.Exit(2)
	}
	fmt.Printf("Loaded %d element sets (%d skipped)\n", len(records), skipped)

	catalog := tle.NewCatalog(logger)
	for _, rec := range records {
		if err := catalog.Upsert(rec); err != nil {
			logger.Warn("record rejected", "norad_id", rec.NoradID, "error", err)
		}
	}

	scr := screening.NewScreener(screening.Config{
		Window:      *window,
		CoarseStep:  *step,
		ThresholdKm: *thresholdKm,
	}, logger)
	rater := risk.NewEngine(risk.DefaultConfig())

	start := time.Now().UTC()
	events, stats := scr.Scan(context.Background(), catalog.List(), start)

	fmt.Printf("Scan: %d objects, %d candidate pairs, %d refined, %d emitted in %s\n",
		stats.Objects, stats.Candidates, stats.Refined, stats.Emitted, stats.Elapsed.Round(time.Millisecond))
	if stats.Partial {
		fmt.Println("WARNING: scan hit its deadline; results are partial")
	}

	for _, ev := range events {
		a, okA := catalog.Get(ev.IDA)
		b, okB := catalog.Get(ev.IDB)
		if !okA || !okB {
			continue
		}
		as := rater.Assess(ev, a, b)
		fmt.Printf("  %5d x %-5d  tca=%s  miss=%7.3f km  vrel=%5.2f km/s  pc=%.2e  tier=%s\n",
			as.IDA, as.IDB, as.TCA.Format(time.RFC3339), as.MissKm, as.RelSpeedKmS, as.Pc, as.Tier)
	}
	if len(events) == 0 {
		fmt.Println("No conjunctions inside the threshold.")
	}
}
