// Package trips defines taxi trip records and the batch schema contract they
// are parsed against.
package trips

import (
	"sort"
)

// Column names of the batch schema contract.
const (
	ColVendorID       = "vendor_id"
	ColPickupTS       = "pickup_ts"
	ColDropoffTS      = "dropoff_ts"
	ColPickupLon      = "pickup_lon"
	ColPickupLat      = "pickup_lat"
	ColDropoffLon     = "dropoff_lon"
	ColDropoffLat     = "dropoff_lat"
	ColDistance       = "distance"
	ColFare           = "fare"
	ColSurcharge      = "surcharge"
	ColPassengerCount = "passenger_count"

	// TLC LocationID of each end of the trip. Optional: when present they
	// resolve trips whose coordinates are missing.
	ColPickupZone  = "pickup_zone"
	ColDropoffZone = "dropoff_zone"
)

// RequiredColumns must all be present in a batch header.
var RequiredColumns = []string{
	ColVendorID,
	ColPickupTS,
	ColDropoffTS,
	ColPickupLon,
	ColPickupLat,
	ColDropoffLon,
	ColDropoffLat,
	ColDistance,
	ColFare,
	ColSurcharge,
	ColPassengerCount,
}

// OptionalColumns are read when present and written back when the input had them.
var OptionalColumns = []string{ColPickupZone, ColDropoffZone}

// ImputableColumns may carry an imputation policy. Identity fields
// (vendor, timestamps, coordinates, zone ids) are deliberately absent.
var ImputableColumns = []string{ColDistance, ColFare, ColSurcharge, ColPassengerCount}

// IsImputable reports whether an imputation policy may be attached to col.
func IsImputable(col string) bool {
	for _, c := range ImputableColumns {
		if c == col {
			return true
		}
	}
	return false
}

// Schema maps contract columns to their position in a batch header.
type Schema struct {
	index map[string]int
	width int
	// Extra lists header columns outside the contract; they are ignored.
	Extra []string
}

// CheckSchema validates a batch header against the contract. Every missing
// required column is reported in a single *SchemaMismatchError.
func CheckSchema(columns []string) (*Schema, error) {
	s := &Schema{index: make(map[string]int, len(columns)), width: len(columns)}
	known := make(map[string]bool, len(RequiredColumns)+len(OptionalColumns))
	for _, c := range RequiredColumns {
		known[c] = true
	}
	for _, c := range OptionalColumns {
		known[c] = true
	}

	for i, c := range columns {
		if _, dup := s.index[c]; dup {
			continue
		}
		s.index[c] = i
		if !known[c] {
			s.Extra = append(s.Extra, c)
		}
	}

	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := s.index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaMismatchError{Missing: missing, Got: columns}
	}
	sort.Strings(s.Extra)
	return s, nil
}

// Has reports whether the batch header carries col.
func (s *Schema) Has(col string) bool {
	_, ok := s.index[col]
	return ok
}

// Index returns the header position of col, or -1.
func (s *Schema) Index(col string) int {
	if i, ok := s.index[col]; ok {
		return i
	}
	return -1
}

// OutputColumns returns the canonical column order used when writing a
// cleaned batch: the required columns followed by whichever optional
// columns the input carried.
func (s *Schema) OutputColumns() []string {
	cols := append([]string(nil), RequiredColumns...)
	for _, c := range OptionalColumns {
		if s.Has(c) {
			cols = append(cols, c)
		}
	}
	return cols
}
