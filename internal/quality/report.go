package quality

import (
	"encoding/json"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/congestion.audit/internal/trips"
	"github.com/banshee-data/congestion.audit/internal/units"
)

// Profile summarises a group of records: how many there are and the mean
// fare, distance and speed over the records that have each value.
type Profile struct {
	Count        int     `json:"count"`
	MeanFare     float64 `json:"mean_fare"`
	MeanDistance float64 `json:"mean_distance_miles"`
	MeanSpeed    float64 `json:"mean_speed"`
}

// ReasonProfile is the Profile of the records excluded under one reason.
type ReasonProfile struct {
	Reason ReasonCode `json:"reason"`
	Profile
}

// FilterReport is the summary of one filter run. It is not modified after
// Summarize returns; accessors hand out copies.
type FilterReport struct {
	totalIn    int
	totalOut   int
	excluded   map[ReasonCode]int
	imputed    map[string]int
	speedUnits string
	kept       Profile
	profiles   []ReasonProfile
}

// TotalIn returns the number of rows ingested.
func (r *FilterReport) TotalIn() int { return r.totalIn }

// TotalOut returns the number of rows kept.
func (r *FilterReport) TotalOut() int { return r.totalOut }

// ExcludedTotal returns the number of excluded rows over all reasons.
func (r *FilterReport) ExcludedTotal() int {
	n := 0
	for _, c := range r.excluded {
		n += c
	}
	return n
}

// ExcludedCount returns the number of rows excluded under reason.
func (r *FilterReport) ExcludedCount(reason ReasonCode) int { return r.excluded[reason] }

// Excluded returns the per-reason exclusion counts. Reasons without
// exclusions are absent.
func (r *FilterReport) Excluded() map[ReasonCode]int {
	out := make(map[ReasonCode]int, len(r.excluded))
	for k, v := range r.excluded {
		out[k] = v
	}
	return out
}

// ImputedCount returns the number of cells imputed in col.
func (r *FilterReport) ImputedCount(col string) int { return r.imputed[col] }

// Imputed returns the per-column imputation counts.
func (r *FilterReport) Imputed() map[string]int {
	out := make(map[string]int, len(r.imputed))
	for k, v := range r.imputed {
		out[k] = v
	}
	return out
}

// SpeedUnits returns the units of the MeanSpeed profile fields.
func (r *FilterReport) SpeedUnits() string { return r.speedUnits }

// Kept returns the profile of the kept records.
func (r *FilterReport) Kept() Profile { return r.kept }

// Profiles returns one profile per reason with exclusions, in priority order.
func (r *FilterReport) Profiles() []ReasonProfile {
	return append([]ReasonProfile(nil), r.profiles...)
}

type reportJSON struct {
	TotalIn    int                `json:"total_in"`
	TotalOut   int                `json:"total_out"`
	Excluded   map[ReasonCode]int `json:"excluded"`
	Imputed    map[string]int     `json:"imputed_count"`
	SpeedUnits string             `json:"speed_units"`
	Kept       Profile            `json:"kept"`
	Profiles   []ReasonProfile    `json:"profiles"`
}

// MarshalJSON renders the report as the side-channel document written next
// to the cleaned batch.
func (r *FilterReport) MarshalJSON() ([]byte, error) {
	profiles := r.profiles
	if profiles == nil {
		profiles = []ReasonProfile{}
	}
	return json.Marshal(reportJSON{
		TotalIn:    r.totalIn,
		TotalOut:   r.totalOut,
		Excluded:   r.Excluded(),
		Imputed:    r.Imputed(),
		SpeedUnits: r.speedUnits,
		Kept:       r.kept,
		Profiles:   profiles,
	})
}

// Summarize builds the report of a run. Reasons are profiled in the
// filter's priority order.
func (f *Filter) Summarize(totalIn int, kept []trips.Record, excluded []Exclusion, imputed map[string]ColumnImputation) *FilterReport {
	speedUnits := f.cfg.GetReportSpeedUnits()
	rep := &FilterReport{
		totalIn:    totalIn,
		totalOut:   len(kept),
		excluded:   make(map[ReasonCode]int),
		imputed:    make(map[string]int, len(imputed)),
		speedUnits: speedUnits,
		kept:       profile(kept, speedUnits),
	}
	for col, c := range imputed {
		rep.imputed[col] = c.Count
	}

	byReason := make(map[ReasonCode][]trips.Record)
	for _, ex := range excluded {
		rep.excluded[ex.Reason]++
		byReason[ex.Reason] = append(byReason[ex.Reason], ex.Record)
	}
	for _, reason := range f.Reasons() {
		if recs, ok := byReason[reason]; ok {
			rep.profiles = append(rep.profiles, ReasonProfile{Reason: reason, Profile: profile(recs, speedUnits)})
		}
	}
	return rep
}

func profile(records []trips.Record, speedUnits string) Profile {
	var fares, distances, speeds []float64
	for _, r := range records {
		if r.Fare != nil {
			fares = append(fares, *r.Fare)
		}
		if r.Distance != nil {
			distances = append(distances, *r.Distance)
		}
		if mph, ok := r.SpeedMPH(); ok {
			speeds = append(speeds, units.ConvertSpeed(mph, speedUnits))
		}
	}
	return Profile{
		Count:        len(records),
		MeanFare:     mean(fares),
		MeanDistance: mean(distances),
		MeanSpeed:    mean(speeds),
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
