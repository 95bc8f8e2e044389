package quality

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/congestion.audit/internal/config"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

// ColumnImputation describes how null values of one column were filled.
type ColumnImputation struct {
	Strategy string
	// Value is written into every imputed cell of the column.
	Value float64
	// Observed is the number of non-null values the statistic was taken over.
	Observed int
	Count    int
}

// Impute fills null imputable fields according to each column's policy and
// drops records that cannot be completed. Statistics are computed once over
// the non-null values of the whole batch, so every null in a column receives
// the same value. Dropped records are excluded with ReasonMissingRequired.
func (f *Filter) Impute(records []trips.Record) ([]trips.Record, []Exclusion, map[string]ColumnImputation) {
	fills := make(map[string]ColumnImputation)
	for _, col := range trips.ImputableColumns {
		p := f.cfg.GetImputation(col)
		if p.Strategy == config.StrategyDrop {
			continue
		}
		observed := observedValues(records, col)
		fills[col] = ColumnImputation{
			Strategy: p.Strategy,
			Value:    fillValue(p, observed),
			Observed: len(observed),
		}
	}

	kept := make([]trips.Record, 0, len(records))
	var excluded []Exclusion
	for _, r := range records {
		if col := missingIdentity(r); col != "" {
			excluded = append(excluded, Exclusion{Record: r, Reason: ReasonMissingRequired, Detail: col + " is null"})
			continue
		}

		out := r
		var filled []string
		dropped := ""
		for _, col := range trips.ImputableColumns {
			if v, _ := r.Numeric(col); v != nil {
				continue
			}
			fill, ok := fills[col]
			if !ok {
				dropped = col
				break
			}
			out = out.WithNumeric(col, fill.Value)
			filled = append(filled, col)
		}
		if dropped != "" {
			excluded = append(excluded, Exclusion{Record: r, Reason: ReasonMissingRequired, Detail: dropped + " is null"})
			continue
		}

		for _, col := range filled {
			c := fills[col]
			c.Count++
			fills[col] = c
		}
		kept = append(kept, out)
	}
	return kept, excluded, fills
}

// missingIdentity returns the first null identity field that no policy may
// fill. Coordinates are resolved later by the geo filter.
func missingIdentity(r trips.Record) string {
	switch {
	case r.VendorID == nil:
		return trips.ColVendorID
	case r.PickupTime == nil:
		return trips.ColPickupTS
	case r.DropoffTime == nil:
		return trips.ColDropoffTS
	}
	return ""
}

func observedValues(records []trips.Record, col string) []float64 {
	var xs []float64
	for _, r := range records {
		if v, _ := r.Numeric(col); v != nil {
			xs = append(xs, *v)
		}
	}
	sort.Float64s(xs)
	return xs
}

// fillValue computes the replacement for a column. sorted must be ascending.
func fillValue(p config.ImputationPolicy, sorted []float64) float64 {
	fallback := 0.0
	if p.Value != nil {
		fallback = *p.Value
	}
	if p.Strategy == config.StrategyConstant || len(sorted) == 0 {
		return fallback
	}
	switch p.Strategy {
	case config.StrategyMedian:
		// Empirical quantile: the lower median, always an observed value.
		return stat.Quantile(0.5, stat.Empirical, sorted, nil)
	case config.StrategyMode:
		return mode(sorted)
	}
	return fallback
}

// mode returns the most frequent value of an ascending slice; ties go to the
// smallest value. gonum's stat.Mode leaves tie order unspecified.
func mode(sorted []float64) float64 {
	best, bestN := sorted[0], 0
	for i := 0; i < len(sorted); {
		j := i
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		if n := j - i; n > bestN {
			best, bestN = sorted[i], n
		}
		i = j
	}
	return best
}
