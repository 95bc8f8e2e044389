// Package units provides shared constants and conversions for trip distances and speeds
package units

import (
	"time"
)

// Speed unit constants
const (
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
	MPS  = "mps"
)

const (
	kmPerMile   = 1.609344
	mpsPerMPH   = 0.44704
	secondsHour = 3600.0
)

// ValidUnits contains all valid speed unit values
var ValidUnits = []string{MPH, KMPH, KPH, MPS}

// IsValid checks if the given speed unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mph, kmph, kph, mps"
}

// SpeedMPH returns the average speed over a trip in miles per hour.
// A non-positive duration yields 0 so callers can test it separately.
func SpeedMPH(distanceMiles float64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return distanceMiles / (d.Seconds() / secondsHour)
}

// ConvertSpeed converts a speed from miles per hour to the target units
func ConvertSpeed(speedMPH float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPH
	case KMPH, KPH:
		return speedMPH * kmPerMile
	case MPS:
		return speedMPH * mpsPerMPH
	default:
		return speedMPH
	}
}

// IsTimezoneValid checks if the given timezone is valid by attempting to load it from the tz database
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}
