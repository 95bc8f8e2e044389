// Package geo loads taxi zone polygons and answers point-in-zone queries
// for the trip geo filter.
package geo

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/banshee-data/congestion.audit/internal/config"
	"github.com/banshee-data/congestion.audit/internal/fsutil"
)

// Feature property names of the TLC taxi zone file.
const (
	PropLocationID = "LocationID"
	PropZone       = "zone"
	PropBorough    = "borough"
)

// Zone is one taxi zone polygon in WGS84 lon/lat.
type Zone struct {
	ID      int
	Name    string
	Borough string
	Shape   orb.MultiPolygon

	bound orb.Bound
}

// ZoneSet is an immutable set of zones.
type ZoneSet struct {
	zones []Zone
	ids   map[int]bool
	bound orb.Bound
}

// LoadZonesFile reads a GeoJSON FeatureCollection from path.
func LoadZonesFile(fsys fsutil.FileSystem, path string) (*ZoneSet, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}
	zs, err := ParseZones(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return zs, nil
}

// ParseZones decodes a GeoJSON FeatureCollection. Every feature must carry a
// Polygon or MultiPolygon geometry and a numeric LocationID property.
func ParseZones(data []byte) (*ZoneSet, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse zones GeoJSON: %w", err)
	}

	zones := make([]Zone, 0, len(fc.Features))
	for i, f := range fc.Features {
		id, err := locationID(f)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}

		var shape orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			shape = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			shape = g
		default:
			return nil, fmt.Errorf("feature %d (zone %d): unsupported geometry %T", i, id, f.Geometry)
		}

		zones = append(zones, Zone{
			ID:      id,
			Name:    stringProp(f.Properties, PropZone),
			Borough: stringProp(f.Properties, PropBorough),
			Shape:   shape,
		})
	}
	return NewZoneSet(zones), nil
}

// NewZoneSet builds a set from zones, ordered by id.
func NewZoneSet(zones []Zone) *ZoneSet {
	zs := &ZoneSet{
		zones: make([]Zone, len(zones)),
		ids:   make(map[int]bool, len(zones)),
	}
	copy(zs.zones, zones)
	sort.SliceStable(zs.zones, func(i, j int) bool { return zs.zones[i].ID < zs.zones[j].ID })

	for i := range zs.zones {
		z := &zs.zones[i]
		z.bound = z.Shape.Bound()
		zs.ids[z.ID] = true
		if i == 0 {
			zs.bound = z.bound
		} else {
			zs.bound = zs.bound.Union(z.bound)
		}
	}
	return zs
}

// Len returns the number of zones in the set.
func (zs *ZoneSet) Len() int { return len(zs.zones) }

// Zones returns a copy of the zones in id order.
func (zs *ZoneSet) Zones() []Zone {
	out := make([]Zone, len(zs.zones))
	copy(out, zs.zones)
	return out
}

// IDs returns the zone ids in ascending order.
func (zs *ZoneSet) IDs() []int {
	ids := make([]int, len(zs.zones))
	for i, z := range zs.zones {
		ids[i] = z.ID
	}
	return ids
}

// HasZone reports whether the set contains the zone with the given id.
func (zs *ZoneSet) HasZone(id int) bool {
	return zs.ids[id]
}

// Contains reports whether p lies inside any zone. Points on an edge or
// vertex are inside, including the edges of holes.
func (zs *ZoneSet) Contains(p orb.Point) bool {
	if len(zs.zones) == 0 || !zs.bound.Contains(p) {
		return false
	}
	for i := range zs.zones {
		if zs.zones[i].bound.Contains(p) && multiPolygonContains(zs.zones[i].Shape, p) {
			return true
		}
	}
	return false
}

// Select returns the subset of zones picked by sel. A nil selection keeps
// every zone.
func (zs *ZoneSet) Select(sel *config.ZoneSelection) *ZoneSet {
	if sel == nil {
		return zs
	}
	wanted := make(map[int]bool, len(sel.IDs))
	for _, id := range sel.IDs {
		wanted[id] = true
	}
	keywords := make([]string, 0, len(sel.NameKeywords))
	for _, k := range sel.NameKeywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, strings.ToLower(k))
		}
	}

	var picked []Zone
	for _, z := range zs.zones {
		if wanted[z.ID] || matchesSelection(z, sel.Borough, keywords) {
			picked = append(picked, z)
		}
	}
	return NewZoneSet(picked)
}

func matchesSelection(z Zone, borough string, keywords []string) bool {
	if borough == "" && len(keywords) == 0 {
		return false
	}
	if borough != "" && !strings.EqualFold(z.Borough, borough) {
		return false
	}
	if len(keywords) == 0 {
		return true
	}
	name := strings.ToLower(z.Name)
	for _, k := range keywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

func multiPolygonContains(mp orb.MultiPolygon, p orb.Point) bool {
	for _, poly := range mp {
		if polygonContains(poly, p) {
			return true
		}
	}
	return false
}

// polygonContains differs from planar.PolygonContains on hole edges: a
// point on a hole boundary is on the polygon boundary and counts as inside.
func polygonContains(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 || !planar.RingContains(poly[0], p) {
		return false
	}
	for _, hole := range poly[1:] {
		if planar.RingContains(hole, p) && !onRing(hole, p) {
			return false
		}
	}
	return true
}

func onRing(r orb.Ring, p orb.Point) bool {
	n := len(r)
	for i := 0; i < n; i++ {
		if onSegment(r[i], r[(i+1)%n], p) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p orb.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if cross != 0 {
		return false
	}
	return p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
		p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1])
}

func locationID(f *geojson.Feature) (int, error) {
	v, ok := f.Properties[PropLocationID]
	if !ok {
		return 0, fmt.Errorf("missing %s property", PropLocationID)
	}
	switch id := v.(type) {
	case float64:
		if id != math.Trunc(id) {
			return 0, fmt.Errorf("%s %v is not an integer", PropLocationID, id)
		}
		return int(id), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", PropLocationID, id, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("invalid %s type %T", PropLocationID, v)
	}
}

func stringProp(props geojson.Properties, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}
