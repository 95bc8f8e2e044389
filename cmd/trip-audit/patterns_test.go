package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/congestion.audit/internal/db"
	"github.com/banshee-data/congestion.audit/internal/fsutil"
	"github.com/banshee-data/congestion.audit/internal/testutil"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

func TestPatterns(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	b := testutil.TripBatch(4)
	b.Set(1, trips.ColFare, "-3")
	b.Set(2, trips.ColFare, "0")
	require.NoError(t, run(ctx, inputFS(t, b), &bytes.Buffer{}, options{InPath: "/in/yellow.csv", DBPath: dbPath}))

	var out bytes.Buffer
	require.NoError(t, runPatterns(ctx, fsutil.OSFileSystem{}, &out, dbPath, nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"reason", "runs", "trips", "avg_fare", "avg_miles", "avg_mph"}, strings.Fields(lines[0]))
	// Both trips are 2.5 miles over 15 minutes.
	assert.Equal(t, []string{"invalid_fare", "1", "2", "-1.50", "2.50", "10.00"}, strings.Fields(lines[1]))

	out.Reset()
	require.NoError(t, runPatterns(ctx, fsutil.OSFileSystem{}, &out, dbPath, []string{"-units", "kph"}))
	lines = strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "avg_kph", strings.Fields(lines[0])[5])
	assert.Equal(t, "16.09", strings.Fields(lines[1])[5])

	out.Reset()
	require.NoError(t, runPatterns(ctx, fsutil.OSFileSystem{}, &out, dbPath, []string{"-since", "2999-01-01"}))
	assert.Equal(t, "no exclusions recorded\n", out.String())
}

func TestPatterns_Errors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	stale := filepath.Join(dir, "stale.db")
	unmigrated, err := db.OpenDB(stale)
	require.NoError(t, err)
	require.NoError(t, unmigrated.Close())

	current := filepath.Join(dir, "current.db")
	ledger, err := db.NewDB(current)
	require.NoError(t, err)
	require.NoError(t, ledger.Close())

	missing := filepath.Join(dir, "missing.db")

	tests := []struct {
		name string
		path string
		args []string
	}{
		{"missing ledger", missing, nil},
		{"schema behind", stale, nil},
		{"bad units", current, []string{"-units", "furlongs"}},
		{"bad since", current, []string{"-since", "last tuesday"}},
		{"unknown flag", current, []string{"-verbose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, runPatterns(ctx, fsutil.OSFileSystem{}, &bytes.Buffer{}, tt.path, tt.args))
		})
	}

	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err), "patterns must not create a ledger")
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-01-15T08:30:00-05:00", time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)},
		{"36h", now.Add(-36 * time.Hour)},
	}
	for _, tt := range tests {
		got, err := parseSince(tt.in, now)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "parseSince(%q) = %s, want %s", tt.in, got, tt.want)
	}

	_, err := parseSince("-2h", now)
	assert.Error(t, err)
}
