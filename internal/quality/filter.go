package quality

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/congestion.audit/internal/config"
	"github.com/banshee-data/congestion.audit/internal/geo"
	"github.com/banshee-data/congestion.audit/internal/monitoring"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

// RowSource is a tabular batch of string cells.
type RowSource interface {
	Columns() []string
	Len() int
	// Row returns the cells of row i as read, which may be ragged.
	Row(i int) []string
}

// Filter is the data-quality filter for one configuration and zone set. It
// holds no state between runs and may be reused.
type Filter struct {
	cfg    *config.AuditConfig
	zones  *geo.ZoneSet
	opts   trips.ParseOptions
	rules  []rule
	custom []customRule
}

// NewFilter validates cfg and compiles its custom rules. A nil zones set
// disables the geo filter.
func NewFilter(cfg *config.AuditConfig, zones *geo.ZoneSet) (*Filter, error) {
	if cfg == nil {
		cfg = config.EmptyAuditConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	custom, err := compileCustomRules(cfg.CustomRules)
	if err != nil {
		return nil, err
	}
	return &Filter{
		cfg:    cfg,
		zones:  zones,
		opts:   cfg.ParseOptions(),
		rules:  builtinRules(cfg),
		custom: custom,
	}, nil
}

// Reasons returns every reason code the filter can attribute, in priority
// order.
func (f *Filter) Reasons() []ReasonCode {
	out := append([]ReasonCode(nil), recordReasons...)
	for _, c := range f.custom {
		out = append(out, c.code)
	}
	return append(out, geoReasons...)
}

// Result is the outcome of a run.
type Result struct {
	Schema *trips.Schema
	// Kept is the cleaned batch in input order.
	Kept []trips.Record
	// Excluded holds every removed row, ordered by input row.
	Excluded    []Exclusion
	Imputations map[string]ColumnImputation
	Report      *FilterReport
}

// Run checks the batch header, parses every row and applies imputation,
// the anomaly rules and the geo filter. A schema mismatch is returned before
// any row is processed; every row-level problem becomes an exclusion.
func (f *Filter) Run(src RowSource) (*Result, error) {
	schema, err := trips.CheckSchema(src.Columns())
	if err != nil {
		return nil, err
	}
	if len(schema.Extra) > 0 {
		monitoring.Logf("ignoring %d columns outside the trip schema: %s", len(schema.Extra), strings.Join(schema.Extra, ", "))
	}

	n := src.Len()
	records, excluded := f.parse(schema, src)

	records, dropped, imputations := f.Impute(records)
	excluded = append(excluded, dropped...)

	records, failed := f.ApplyRules(records)
	excluded = append(excluded, failed...)

	if f.zones != nil {
		var outside []Exclusion
		records, outside = GeoFilter(records, f.zones)
		excluded = append(excluded, outside...)
	}

	sort.SliceStable(excluded, func(i, j int) bool { return excluded[i].Row() < excluded[j].Row() })
	for _, ex := range excluded {
		monitoring.Debugf("row %d excluded: %s (%s)", ex.Row(), ex.Reason, ex.Detail)
	}

	report := f.Summarize(n, records, excluded, imputations)
	monitoring.Logf("filtered %d rows: kept %d, excluded %d", report.TotalIn(), report.TotalOut(), report.ExcludedTotal())

	return &Result{
		Schema:      schema,
		Kept:        records,
		Excluded:    excluded,
		Imputations: imputations,
		Report:      report,
	}, nil
}

func (f *Filter) parse(schema *trips.Schema, src RowSource) ([]trips.Record, []Exclusion) {
	n := src.Len()
	records := make([]trips.Record, 0, n)
	var excluded []Exclusion
	for i := 0; i < n; i++ {
		rec, err := trips.ParseRow(schema, i, src.Row(i), f.opts)
		if err != nil {
			var mre *trips.MalformedRowError
			detail := err.Error()
			if errors.As(err, &mre) && mre.Column != "" {
				detail = fmt.Sprintf("%s: %q", mre.Column, mre.Value)
			}
			excluded = append(excluded, Exclusion{Record: rec, Reason: ReasonMalformed, Detail: detail, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, excluded
}
