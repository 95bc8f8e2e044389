package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/congestion.audit/internal/batchio"
	"github.com/banshee-data/congestion.audit/internal/db"
	"github.com/banshee-data/congestion.audit/internal/fsutil"
	"github.com/banshee-data/congestion.audit/internal/monitoring"
	"github.com/banshee-data/congestion.audit/internal/testutil"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

func init() {
	monitoring.SetLogger(nil)
}

const midtownGeoJSON = `{
  "type": "FeatureCollection",
  "features": [{
    "type": "Feature",
    "properties": {"LocationID": 161, "zone": "Midtown Center", "borough": "Manhattan"},
    "geometry": {"type": "Polygon", "coordinates": [[
      [-74.00, 40.74], [-73.98, 40.74], [-73.98, 40.76], [-74.00, 40.76], [-74.00, 40.74]
    ]]}
  }]
}`

func csvOf(b *testutil.Batch) []byte {
	var sb strings.Builder
	sb.WriteString(strings.Join(b.Header, ",") + "\n")
	for _, row := range b.Cells {
		sb.WriteString(strings.Join(row, ",") + "\n")
	}
	return []byte(sb.String())
}

func inputFS(t *testing.T, b *testutil.Batch) *fsutil.MemoryFileSystem {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/in/yellow.csv", csvOf(b), 0o644))
	require.NoError(t, mfs.WriteFile("/in/zones.geojson", []byte(midtownGeoJSON), 0o644))
	return mfs
}

func TestRun_AllOutputs(t *testing.T) {
	b := testutil.TripBatch(5)
	b.Set(1, trips.ColFare, "-1")
	b.Set(3, trips.ColPickupLon, "-73.90")
	b.Set(3, trips.ColDropoffLon, "-73.90")
	mfs := inputFS(t, b)
	dbPath := filepath.Join(t.TempDir(), "audit.db")

	var stdout bytes.Buffer
	err := run(context.Background(), mfs, &stdout, options{
		InPath:     "/in/yellow.csv",
		OutPath:    "/out/clean.csv",
		ReportPath: "/out/report.json",
		ZonesPath:  "/in/zones.geojson",
		XLSXPath:   "/out/review.xlsx",
		DBPath:     dbPath,
	})
	require.NoError(t, err)

	out, err := batchio.ReadFile(mfs, "/out/clean.csv", trips.DefaultNullMarkers)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Len())
	assert.Equal(t, testutil.TripRowLayout(0, trips.OutputTimeLayout), out.Row(0))

	data, err := mfs.ReadFile("/out/report.json")
	require.NoError(t, err)
	var report struct {
		TotalIn  int            `json:"total_in"`
		TotalOut int            `json:"total_out"`
		Excluded map[string]int `json:"excluded"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 5, report.TotalIn)
	assert.Equal(t, 3, report.TotalOut)
	assert.Equal(t, map[string]int{"invalid_fare": 1, "outside_zone": 1}, report.Excluded)

	assert.True(t, mfs.Exists("/out/review.xlsx"))

	assert.Contains(t, stdout.String(), "5 in, 3 kept, 2 excluded")
	assert.Contains(t, stdout.String(), "recorded run ")

	ledger, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer ledger.Close()
	runs, err := ledger.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "yellow.csv", runs[0].Source)
}

func TestRun_SchemaMismatchFails(t *testing.T) {
	b := testutil.TripBatch(2)
	b.Header[8] = "total_amount"
	mfs := inputFS(t, b)

	err := run(context.Background(), mfs, &bytes.Buffer{}, options{InPath: "/in/yellow.csv", OutPath: "/out/clean.csv"})
	var sme *trips.SchemaMismatchError
	require.ErrorAs(t, err, &sme)
	assert.Equal(t, []string{trips.ColFare}, sme.Missing)
	assert.False(t, mfs.Exists("/out/clean.csv"))
}

func TestRun_BadRowsDoNotFail(t *testing.T) {
	b := testutil.TripBatch(3)
	b.Set(0, trips.ColPickupTS, "yesterday")
	b.Cells[2] = b.Cells[2][:4]
	mfs := inputFS(t, b)

	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), mfs, &stdout, options{InPath: "/in/yellow.csv"}))
	assert.Contains(t, stdout.String(), "3 in, 1 kept, 2 excluded")
	assert.Contains(t, stdout.String(), "malformed")
}

func TestRun_Errors(t *testing.T) {
	mfs := inputFS(t, testutil.TripBatch(1))
	ctx := context.Background()

	tests := []struct {
		name string
		opts options
	}{
		{"missing input", options{InPath: "/in/none.csv"}},
		{"missing zones", options{InPath: "/in/yellow.csv", ZonesPath: "/in/none.geojson"}},
		{"missing config", options{InPath: "/in/yellow.csv", ConfigPath: filepath.Join(t.TempDir(), "none.json")}},
		{"output outside root", options{InPath: "/in/yellow.csv", Root: t.TempDir(), OutPath: "/elsewhere/clean.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, run(ctx, mfs, &bytes.Buffer{}, tt.opts))
		})
	}
}
