// Package testutil provides shared test utilities and fixtures.
//
// This package centralises trip batch fixtures so filter, batch I/O and
// ledger tests build their inputs the same way.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/congestion.audit/internal/geo"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

// FixtureStart is the pickup time of the first fixture trip.
var FixtureStart = time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC)

// Fixture trips run between these two points, both inside MidtownZone.
const (
	PickupLon  = -73.99
	PickupLat  = 40.75
	DropoffLon = -73.98
	DropoffLat = 40.76
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Batch is an in-memory tabular batch.
type Batch struct {
	Header []string
	Cells  [][]string
}

// Columns returns the header.
func (b *Batch) Columns() []string { return b.Header }

// Len returns the number of data rows.
func (b *Batch) Len() int { return len(b.Cells) }

// Row returns the cells of row i.
func (b *Batch) Row(i int) []string { return b.Cells[i] }

// Set overwrites the cell of row i in column col.
func (b *Batch) Set(i int, col, value string) {
	for j, c := range b.Header {
		if c == col {
			b.Cells[i][j] = value
			return
		}
	}
	panic("testutil: unknown column " + col)
}

// TripBatch returns n valid, distinct trips with the required columns. Trip i
// picks up 10*i minutes after FixtureStart and lasts 15 minutes over 2.5 miles.
func TripBatch(n int) *Batch {
	b := &Batch{Header: append([]string(nil), trips.RequiredColumns...)}
	for i := 0; i < n; i++ {
		b.Cells = append(b.Cells, TripRow(i))
	}
	return b
}

// TripRow returns the cells of fixture trip i in RequiredColumns order.
func TripRow(i int) []string {
	return TripRowLayout(i, trips.TLCTimeLayout)
}

// TripRowLayout is TripRow with UTC timestamps in the given layout.
func TripRowLayout(i int, layout string) []string {
	pickup := FixtureStart.Add(time.Duration(i) * 10 * time.Minute)
	dropoff := pickup.Add(15 * time.Minute)
	return []string{
		"CMT",
		pickup.Format(layout),
		dropoff.Format(layout),
		fmt.Sprint(PickupLon),
		fmt.Sprint(PickupLat),
		fmt.Sprint(DropoffLon),
		fmt.Sprint(DropoffLat),
		"2.5",
		"14.5",
		"2.5",
		"1",
	}
}

// SquareZone returns a zone covering the lon/lat box [minLon,maxLon]x[minLat,maxLat].
func SquareZone(id int, name string, minLon, minLat, maxLon, maxLat float64) geo.Zone {
	ring := orb.Ring{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}
	return geo.Zone{ID: id, Name: name, Borough: "Manhattan", Shape: orb.MultiPolygon{{ring}}}
}

// MidtownZones returns a zone set whose single zone (id 161) contains both
// fixture trip ends, with the fixture dropoff point exactly on its
// north-east corner.
func MidtownZones() *geo.ZoneSet {
	return geo.NewZoneSet([]geo.Zone{SquareZone(161, "Midtown Center", -74.00, 40.74, DropoffLon, DropoffLat)})
}
