// Package quality implements the trip data-quality filter: imputation of
// permitted missing values, anomaly rules with a fixed priority order, the
// zone containment filter and the summary report.
package quality

import (
	"github.com/banshee-data/congestion.audit/internal/trips"
)

// ReasonCode labels why a record was excluded.
type ReasonCode string

// Built-in reason codes, declared in priority order (highest first). A
// record failing several checks is attributed to the first one listed.
const (
	ReasonMalformed             ReasonCode = "malformed"
	ReasonMissingRequired       ReasonCode = "missing_required"
	ReasonTimeInversion         ReasonCode = "time_inversion"
	ReasonInvalidFare           ReasonCode = "invalid_fare"
	ReasonInvalidDistance       ReasonCode = "invalid_distance"
	ReasonInvalidSurcharge      ReasonCode = "invalid_surcharge"
	ReasonInvalidPassengerCount ReasonCode = "invalid_passenger_count"
	ReasonImplausibleDuration   ReasonCode = "implausible_duration"
	ReasonExcessiveVelocity     ReasonCode = "excessive_velocity"
	ReasonFinancialOutlier      ReasonCode = "financial_outlier"
	ReasonDuplicateTrip         ReasonCode = "duplicate_trip"

	// Custom rule codes rank here, in configuration order.

	ReasonUnresolvableLocation ReasonCode = "unresolvable_location"
	ReasonOutsideZone          ReasonCode = "outside_zone"
)

var recordReasons = []ReasonCode{
	ReasonMalformed,
	ReasonMissingRequired,
	ReasonTimeInversion,
	ReasonInvalidFare,
	ReasonInvalidDistance,
	ReasonInvalidSurcharge,
	ReasonInvalidPassengerCount,
	ReasonImplausibleDuration,
	ReasonExcessiveVelocity,
	ReasonFinancialOutlier,
	ReasonDuplicateTrip,
}

var geoReasons = []ReasonCode{ReasonUnresolvableLocation, ReasonOutsideZone}

// IsBuiltin reports whether code is one of the built-in reason codes.
func IsBuiltin(code ReasonCode) bool {
	for _, c := range recordReasons {
		if c == code {
			return true
		}
	}
	for _, c := range geoReasons {
		if c == code {
			return true
		}
	}
	return false
}

// Exclusion is one record removed from the batch and the reason it was
// attributed to. Err carries the typed row error for malformed and
// unresolvable records.
type Exclusion struct {
	Record trips.Record
	Reason ReasonCode
	Detail string
	Err    error
}

// Row returns the input position of the excluded record.
func (e Exclusion) Row() int { return e.Record.Row }
