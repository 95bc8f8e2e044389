package quality

import (
	"github.com/paulmach/orb"

	"github.com/banshee-data/congestion.audit/internal/geo"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

const unresolvableDetail = "no usable coordinates or zone ids"

// GeoFilter keeps records whose pickup or dropoff lies in zones. Each end of
// a trip is located by its coordinate when usable, otherwise by its zone id.
// A record with neither end locatable is excluded as unresolvable; one whose
// located ends all fall outside the set is excluded as outside_zone.
func GeoFilter(records []trips.Record, zones *geo.ZoneSet) ([]trips.Record, []Exclusion) {
	kept := make([]trips.Record, 0, len(records))
	var excluded []Exclusion

	for _, r := range records {
		pickupIn, pickupKnown := locate(zones, r.Pickup, r.PickupZone)
		dropoffIn, dropoffKnown := locate(zones, r.Dropoff, r.DropoffZone)

		switch {
		case pickupIn || dropoffIn:
			kept = append(kept, r)
		case !pickupKnown && !dropoffKnown:
			excluded = append(excluded, Exclusion{
				Record: r,
				Reason: ReasonUnresolvableLocation,
				Detail: unresolvableDetail,
				Err:    &trips.GeoLookupError{Row: r.Row, Reason: unresolvableDetail},
			})
		default:
			excluded = append(excluded, Exclusion{Record: r, Reason: ReasonOutsideZone, Detail: "pickup and dropoff outside target zones"})
		}
	}
	return kept, excluded
}

func locate(zones *geo.ZoneSet, point func() (float64, float64, bool), zoneID *int) (inside, known bool) {
	if lon, lat, ok := point(); ok {
		return zones.Contains(orb.Point{lon, lat}), true
	}
	if zoneID != nil {
		return zones.HasZone(*zoneID), true
	}
	return false, false
}
