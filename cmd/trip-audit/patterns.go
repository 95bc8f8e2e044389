package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/congestion.audit/internal/db"
	"github.com/banshee-data/congestion.audit/internal/fsutil"
	"github.com/banshee-data/congestion.audit/internal/timeutil"
	"github.com/banshee-data/congestion.audit/internal/units"
)

// patternsClock anchors relative -since durations.
var patternsClock timeutil.Clock = timeutil.RealClock{}

// runPatterns prints the exclusion distribution recorded in the ledger at
// dbPath: per reason, how many runs saw it, how many trips it removed and
// the mean fare, distance and speed of those trips.
func runPatterns(ctx context.Context, fsys fsutil.FileSystem, stdout io.Writer, dbPath string, args []string) error {
	fset := flag.NewFlagSet("patterns", flag.ContinueOnError)
	fset.SetOutput(stdout)
	sinceArg := fset.String("since", "", "Only runs started at or after this: RFC 3339 time, date (2006-01-02) or duration ago (720h)")
	speedUnits := fset.String("units", units.MPH, "Speed units: "+units.GetValidUnitsString())
	if err := fset.Parse(args); err != nil {
		return err
	}
	if !units.IsValid(*speedUnits) {
		return fmt.Errorf("invalid -units %q: must be one of %s", *speedUnits, units.GetValidUnitsString())
	}
	since, err := parseSince(*sinceArg, patternsClock.Now())
	if err != nil {
		return err
	}

	if !fsys.Exists(dbPath) {
		return fmt.Errorf("no audit ledger at %s", dbPath)
	}
	ledger, err := db.NewDBWithMigrationCheck(dbPath, true)
	if err != nil {
		return fmt.Errorf("failed to open audit ledger: %w", err)
	}
	defer ledger.Close()

	totals, err := ledger.ReasonTotals(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to load reason totals: %w", err)
	}
	if len(totals) == 0 {
		fmt.Fprintln(stdout, "no exclusions recorded")
		return nil
	}

	fmt.Fprintf(stdout, "%-24s %5s %8s %10s %10s %10s\n", "reason", "runs", "trips", "avg_fare", "avg_miles", "avg_"+*speedUnits)
	for _, t := range totals {
		speed := "-"
		if t.AvgSpeedMPH != nil {
			speed = formatMean(units.ConvertSpeed(*t.AvgSpeedMPH, *speedUnits))
		}
		fmt.Fprintf(stdout, "%-24s %5d %8d %10s %10s %10s\n",
			t.Reason, t.Runs, t.Count, meanOrDash(t.AvgFare), meanOrDash(t.AvgDistance), speed)
	}
	return nil
}

// parseSince accepts an RFC 3339 time, a UTC date or a duration before now.
// Empty means every run.
func parseSince(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, fmt.Errorf("invalid -since %q: want RFC 3339 time, date or duration", v)
}

func meanOrDash(p *float64) string {
	if p == nil {
		return "-"
	}
	return formatMean(*p)
}

func formatMean(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
