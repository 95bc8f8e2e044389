package trips

import (
	"time"

	"github.com/banshee-data/congestion.audit/internal/units"
)

// Record is one trip as ingested. Nullable fields are pointers; a nil
// pointer is a missing value. Records are treated as immutable values:
// cleaning steps return modified copies via the With* methods.
type Record struct {
	// Row is the 0-based position of the trip in its input batch.
	Row int

	VendorID    *string
	PickupTime  *time.Time
	DropoffTime *time.Time

	PickupLon  *float64
	PickupLat  *float64
	DropoffLon *float64
	DropoffLat *float64

	PickupZone  *int
	DropoffZone *int

	Distance       *float64 // miles
	Fare           *float64
	Surcharge      *float64
	PassengerCount *float64
}

// Numeric returns the value of an imputable numeric column. The second
// result is false when col is not a numeric column.
func (r Record) Numeric(col string) (*float64, bool) {
	switch col {
	case ColDistance:
		return r.Distance, true
	case ColFare:
		return r.Fare, true
	case ColSurcharge:
		return r.Surcharge, true
	case ColPassengerCount:
		return r.PassengerCount, true
	}
	return nil, false
}

// WithNumeric returns a copy of r with col set to v. Unknown columns leave
// the copy unchanged.
func (r Record) WithNumeric(col string, v float64) Record {
	p := &v
	switch col {
	case ColDistance:
		r.Distance = p
	case ColFare:
		r.Fare = p
	case ColSurcharge:
		r.Surcharge = p
	case ColPassengerCount:
		r.PassengerCount = p
	}
	return r
}

// Duration returns dropoff minus pickup. ok is false when either timestamp is missing.
func (r Record) Duration() (d time.Duration, ok bool) {
	if r.PickupTime == nil || r.DropoffTime == nil {
		return 0, false
	}
	return r.DropoffTime.Sub(*r.PickupTime), true
}

// SpeedMPH returns the average trip speed. ok is false when distance or
// duration is unknown or the duration is not positive.
func (r Record) SpeedMPH() (mph float64, ok bool) {
	d, ok := r.Duration()
	if !ok || d <= 0 || r.Distance == nil {
		return 0, false
	}
	return units.SpeedMPH(*r.Distance, d), true
}

// Pickup returns the pickup coordinate when it is present and usable.
func (r Record) Pickup() (lon, lat float64, ok bool) {
	return usablePoint(r.PickupLon, r.PickupLat)
}

// Dropoff returns the dropoff coordinate when it is present and usable.
func (r Record) Dropoff() (lon, lat float64, ok bool) {
	return usablePoint(r.DropoffLon, r.DropoffLat)
}

// usablePoint rejects missing, out-of-range and (0, 0) coordinates; the TLC
// feeds use 0/0 as a placeholder for a failed GPS fix.
func usablePoint(lon, lat *float64) (float64, float64, bool) {
	if lon == nil || lat == nil {
		return 0, 0, false
	}
	x, y := *lon, *lat
	if x < -180 || x > 180 || y < -90 || y > 90 {
		return 0, 0, false
	}
	if x == 0 && y == 0 {
		return 0, 0, false
	}
	return x, y, true
}
