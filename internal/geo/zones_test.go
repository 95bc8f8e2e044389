package geo

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/congestion.audit/internal/config"
	"github.com/banshee-data/congestion.audit/internal/fsutil"
)

// Zone 12 is the unit square with a hole [0.4,0.6]^2; zone 4 is the square
// [2,3]x[0,1]; zone 132 (Queens) is a MultiPolygon far away.
const testZonesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "properties": {"LocationID": 12, "zone": "Battery Park", "borough": "Manhattan"},
     "geometry": {"type": "Polygon", "coordinates": [
       [[0,0],[1,0],[1,1],[0,1],[0,0]],
       [[0.4,0.4],[0.6,0.4],[0.6,0.6],[0.4,0.6],[0.4,0.4]]
     ]}},
    {"type": "Feature",
     "properties": {"LocationID": "4", "zone": "Alphabet City", "borough": "Manhattan"},
     "geometry": {"type": "Polygon", "coordinates": [
       [[2,0],[3,0],[3,1],[2,1],[2,0]]
     ]}},
    {"type": "Feature",
     "properties": {"LocationID": 132.0, "zone": "JFK Airport", "borough": "Queens"},
     "geometry": {"type": "MultiPolygon", "coordinates": [
       [[[10,10],[11,10],[11,11],[10,11],[10,10]]],
       [[[12,10],[13,10],[13,11],[12,11],[12,10]]]
     ]}}
  ]
}`

func loadTestZones(t *testing.T) *ZoneSet {
	t.Helper()
	zs, err := ParseZones([]byte(testZonesGeoJSON))
	require.NoError(t, err)
	return zs
}

func TestParseZones(t *testing.T) {
	zs := loadTestZones(t)

	assert.Equal(t, 3, zs.Len())
	if diff := cmp.Diff([]int{4, 12, 132}, zs.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, zs.HasZone(132))
	assert.False(t, zs.HasZone(7))

	zones := zs.Zones()
	assert.Equal(t, "Alphabet City", zones[0].Name)
	assert.Equal(t, "Queens", zones[2].Borough)
	assert.Len(t, zones[2].Shape, 2)
}

func TestParseZones_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not geojson", `{"type": "nope"`},
		{"missing id", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`},
		{"fractional id", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"LocationID":1.5},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`},
		{"point geometry", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"LocationID":1},"geometry":{"type":"Point","coordinates":[0,0]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseZones([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestZoneSet_Contains(t *testing.T) {
	zs := loadTestZones(t)

	tests := []struct {
		name string
		p    orb.Point
		want bool
	}{
		{"interior", orb.Point{0.2, 0.2}, true},
		{"on outer edge", orb.Point{1, 0.5}, true},
		{"on vertex", orb.Point{0, 0}, true},
		{"inside hole", orb.Point{0.5, 0.5}, false},
		{"on hole edge", orb.Point{0.4, 0.5}, true},
		{"on hole vertex", orb.Point{0.6, 0.6}, true},
		{"second zone", orb.Point{2.5, 0.5}, true},
		{"between zones", orb.Point{1.5, 0.5}, false},
		{"second part of multipolygon", orb.Point{12.5, 10.5}, true},
		{"far away", orb.Point{-74, 40.7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, zs.Contains(tt.p))
		})
	}
}

func TestZoneSet_Select(t *testing.T) {
	zs := loadTestZones(t)

	tests := []struct {
		name string
		sel  *config.ZoneSelection
		want []int
	}{
		{"nil keeps all", nil, []int{4, 12, 132}},
		{"borough only", &config.ZoneSelection{Borough: "manhattan"}, []int{4, 12}},
		{"borough and keyword", &config.ZoneSelection{Borough: "Manhattan", NameKeywords: []string{"battery"}}, []int{12}},
		{"keyword outside borough", &config.ZoneSelection{Borough: "Manhattan", NameKeywords: []string{"JFK"}}, nil},
		{"explicit ids", &config.ZoneSelection{IDs: []int{132}}, []int{132}},
		{"ids plus keywords", &config.ZoneSelection{IDs: []int{132}, NameKeywords: []string{"Alphabet"}}, []int{4, 132}},
		{"empty selection", &config.ZoneSelection{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := zs.Select(tt.sel).IDs()
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}

	sub := zs.Select(&config.ZoneSelection{IDs: []int{4}})
	assert.False(t, sub.Contains(orb.Point{0.2, 0.2}))
	assert.True(t, sub.Contains(orb.Point{3, 1}))
}

func TestLoadZonesFile(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/zones.geojson", []byte(testZonesGeoJSON), 0644))

	zs, err := LoadZonesFile(mfs, "/zones.geojson")
	require.NoError(t, err)
	assert.Equal(t, 3, zs.Len())

	_, err = LoadZonesFile(mfs, "/missing.geojson")
	assert.Error(t, err)
}

func TestEmptyZoneSet(t *testing.T) {
	zs := NewZoneSet(nil)
	assert.Equal(t, 0, zs.Len())
	assert.False(t, zs.Contains(orb.Point{0, 0}))
}
