package trips

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// TLCTimeLayout is the timestamp layout of the TLC trip record files.
const TLCTimeLayout = "2006-01-02 15:04:05"

// OutputTimeLayout is the layout of cleaned batches. It keeps the zone offset
// and sub-second precision, so a written batch parses back to the same
// instants.
const OutputTimeLayout = time.RFC3339Nano

// DefaultNullMarkers are the cell values read as missing.
var DefaultNullMarkers = []string{"", "NULL", "null", "NA", "NaN", "None"}

// ParseOptions controls how string cells become a Record.
type ParseOptions struct {
	NullMarkers      []string
	TimestampLayouts []string
	// Location interprets timestamps that carry no zone offset.
	Location *time.Location
}

// DefaultParseOptions returns options matching the TLC file conventions.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{
		NullMarkers:      DefaultNullMarkers,
		TimestampLayouts: []string{time.RFC3339, TLCTimeLayout},
		Location:         time.UTC,
	}
}

// IsNull reports whether cell is a null marker. Blank cells are always null.
func (o ParseOptions) IsNull(cell string) bool {
	c := strings.TrimSpace(cell)
	if c == "" {
		return true
	}
	for _, m := range o.NullMarkers {
		if c == m {
			return true
		}
	}
	return false
}

var errRaggedRow = errors.New("row width does not match header")

// ParseRow converts the cells of one batch row into a Record. The first
// unparsable cell is returned as a *MalformedRowError together with the
// partially filled record, so callers can still attribute the row.
func ParseRow(s *Schema, row int, cells []string, opts ParseOptions) (Record, error) {
	rec := Record{Row: row}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	cell := func(col string) (string, bool) {
		i := s.Index(col)
		if i < 0 || i >= len(cells) {
			return "", false
		}
		v := strings.TrimSpace(cells[i])
		if opts.IsNull(v) {
			return "", false
		}
		return v, true
	}
	malformed := func(col, v string, err error) error {
		return &MalformedRowError{Row: row, Column: col, Value: v, Err: err}
	}

	if len(cells) != s.width {
		return rec, &MalformedRowError{Row: row, Err: fmt.Errorf("%w: %d cells, header has %d", errRaggedRow, len(cells), s.width)}
	}

	if v, ok := cell(ColVendorID); ok {
		rec.VendorID = &v
	}

	for _, ts := range []struct {
		col string
		dst **time.Time
	}{
		{ColPickupTS, &rec.PickupTime},
		{ColDropoffTS, &rec.DropoffTime},
	} {
		v, ok := cell(ts.col)
		if !ok {
			continue
		}
		t, err := parseTimestamp(v, opts)
		if err != nil {
			return rec, malformed(ts.col, v, err)
		}
		*ts.dst = &t
	}

	for _, f := range []struct {
		col string
		dst **float64
	}{
		{ColPickupLon, &rec.PickupLon},
		{ColPickupLat, &rec.PickupLat},
		{ColDropoffLon, &rec.DropoffLon},
		{ColDropoffLat, &rec.DropoffLat},
		{ColDistance, &rec.Distance},
		{ColFare, &rec.Fare},
		{ColSurcharge, &rec.Surcharge},
		{ColPassengerCount, &rec.PassengerCount},
	} {
		v, ok := cell(f.col)
		if !ok {
			continue
		}
		x, err := parseFinite(v)
		if err != nil {
			return rec, malformed(f.col, v, err)
		}
		*f.dst = &x
	}

	for _, z := range []struct {
		col string
		dst **int
	}{
		{ColPickupZone, &rec.PickupZone},
		{ColDropoffZone, &rec.DropoffZone},
	} {
		v, ok := cell(z.col)
		if !ok {
			continue
		}
		id, err := parseZoneID(v)
		if err != nil {
			return rec, malformed(z.col, v, err)
		}
		*z.dst = &id
	}

	return rec, nil
}

func parseTimestamp(v string, opts ParseOptions) (time.Time, error) {
	layouts := opts.TimestampLayouts
	if len(layouts) == 0 {
		layouts = []string{time.RFC3339, TLCTimeLayout}
	}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, v, opts.Location)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	// Cleaned batches are always readable, whatever layouts were configured.
	if !slices.Contains(layouts, time.RFC3339) && !slices.Contains(layouts, OutputTimeLayout) {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, firstErr
}

func parseFinite(v string) (float64, error) {
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("non-finite value")
	}
	return x, nil
}

func parseZoneID(v string) (int, error) {
	if id, err := strconv.Atoi(v); err == nil {
		return id, nil
	}
	// Some exports write LocationID as a float ("132.0").
	x, err := parseFinite(v)
	if err != nil {
		return 0, err
	}
	if x != math.Trunc(x) {
		return 0, fmt.Errorf("zone id is not an integer")
	}
	return int(x), nil
}

// FormatRow renders a record as cells in the given column order. Missing
// values become nullMarker and timestamps use layout in loc.
func FormatRow(r Record, columns []string, nullMarker, layout string, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	num := func(p *float64) string {
		if p == nil {
			return nullMarker
		}
		return strconv.FormatFloat(*p, 'f', -1, 64)
	}
	ts := func(p *time.Time) string {
		if p == nil {
			return nullMarker
		}
		return p.In(loc).Format(layout)
	}
	zone := func(p *int) string {
		if p == nil {
			return nullMarker
		}
		return strconv.Itoa(*p)
	}

	out := make([]string, len(columns))
	for i, col := range columns {
		switch col {
		case ColVendorID:
			if r.VendorID == nil {
				out[i] = nullMarker
			} else {
				out[i] = *r.VendorID
			}
		case ColPickupTS:
			out[i] = ts(r.PickupTime)
		case ColDropoffTS:
			out[i] = ts(r.DropoffTime)
		case ColPickupLon:
			out[i] = num(r.PickupLon)
		case ColPickupLat:
			out[i] = num(r.PickupLat)
		case ColDropoffLon:
			out[i] = num(r.DropoffLon)
		case ColDropoffLat:
			out[i] = num(r.DropoffLat)
		case ColDistance:
			out[i] = num(r.Distance)
		case ColFare:
			out[i] = num(r.Fare)
		case ColSurcharge:
			out[i] = num(r.Surcharge)
		case ColPassengerCount:
			out[i] = num(r.PassengerCount)
		case ColPickupZone:
			out[i] = zone(r.PickupZone)
		case ColDropoffZone:
			out[i] = zone(r.DropoffZone)
		default:
			out[i] = nullMarker
		}
	}
	return out
}
