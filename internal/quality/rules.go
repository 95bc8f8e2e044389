package quality

import (
	"fmt"
	"math"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/banshee-data/congestion.audit/internal/config"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

// rule is a stateless predicate over one record. describe is only called
// for failing records.
type rule struct {
	code     ReasonCode
	fails    func(r trips.Record) bool
	describe func(r trips.Record) string
}

// builtinRules returns the record rules in priority order. Records reaching
// them have every required field present.
func builtinRules(cfg *config.AuditConfig) []rule {
	minFare := cfg.GetMinFare()
	minDistance := cfg.GetMinDistanceMiles()
	maxPassengers := float64(cfg.GetMaxPassengers())
	maxDuration := cfg.GetMaxTripDuration()
	maxSpeed := cfg.GetMaxSpeedMPH()
	minTrip := cfg.GetMinTripDuration()
	revenueCap := cfg.GetRevenueAnomalyCap()

	duration := func(r trips.Record) time.Duration {
		d, _ := r.Duration()
		return d
	}

	return []rule{
		{
			code:     ReasonTimeInversion,
			fails:    func(r trips.Record) bool { return duration(r) < 0 },
			describe: func(r trips.Record) string { return fmt.Sprintf("dropoff %s before pickup", -duration(r)) },
		},
		{
			code:     ReasonInvalidFare,
			fails:    func(r trips.Record) bool { return *r.Fare <= minFare },
			describe: func(r trips.Record) string { return fmt.Sprintf("fare %g <= %g", *r.Fare, minFare) },
		},
		{
			code:     ReasonInvalidDistance,
			fails:    func(r trips.Record) bool { return *r.Distance <= minDistance },
			describe: func(r trips.Record) string { return fmt.Sprintf("distance %g <= %g miles", *r.Distance, minDistance) },
		},
		{
			code:     ReasonInvalidSurcharge,
			fails:    func(r trips.Record) bool { return *r.Surcharge < 0 },
			describe: func(r trips.Record) string { return fmt.Sprintf("surcharge %g < 0", *r.Surcharge) },
		},
		{
			code: ReasonInvalidPassengerCount,
			fails: func(r trips.Record) bool {
				pc := *r.PassengerCount
				return pc < 0 || pc > maxPassengers || pc != math.Trunc(pc)
			},
			describe: func(r trips.Record) string {
				return fmt.Sprintf("passenger_count %g outside 0..%g", *r.PassengerCount, maxPassengers)
			},
		},
		{
			code: ReasonImplausibleDuration,
			fails: func(r trips.Record) bool {
				d := duration(r)
				return d == 0 || d > maxDuration
			},
			describe: func(r trips.Record) string { return fmt.Sprintf("duration %s (max %s)", duration(r), maxDuration) },
		},
		{
			code: ReasonExcessiveVelocity,
			fails: func(r trips.Record) bool {
				mph, ok := r.SpeedMPH()
				return ok && mph > maxSpeed
			},
			describe: func(r trips.Record) string {
				mph, _ := r.SpeedMPH()
				return fmt.Sprintf("speed %.1f mph > %g", mph, maxSpeed)
			},
		},
		{
			code:     ReasonFinancialOutlier,
			fails:    func(r trips.Record) bool { return duration(r) < minTrip && *r.Fare > revenueCap },
			describe: func(r trips.Record) string { return fmt.Sprintf("fare %g over %s", *r.Fare, duration(r)) },
		},
	}
}

// missingRequired returns the first required field a rule cannot evaluate
// without. Imputation guarantees none are null; ApplyRules checks anyway so
// it can run on its own.
func missingRequired(r trips.Record) string {
	if col := missingIdentity(r); col != "" {
		return col
	}
	for _, col := range trips.ImputableColumns {
		if v, _ := r.Numeric(col); v == nil {
			return col
		}
	}
	return ""
}

// customRule is a configured expression; a true result fails the record.
type customRule struct {
	code    ReasonCode
	source  string
	program *vm.Program
}

func compileCustomRules(rules []config.CustomRule) ([]customRule, error) {
	out := make([]customRule, 0, len(rules))
	for _, cr := range rules {
		code := ReasonCode(cr.Code)
		if IsBuiltin(code) {
			return nil, fmt.Errorf("custom rule %q: code collides with a built-in reason", cr.Code)
		}
		program, err := expr.Compile(cr.Expr, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("custom rule %q: invalid expression: %w", cr.Code, err)
		}
		out = append(out, customRule{code: code, source: cr.Expr, program: program})
	}
	return out, nil
}

// eval runs the rule. An evaluation error or a non-boolean result fails the
// record so it is never kept unchecked.
func (c customRule) eval(env map[string]any) (bool, string) {
	output, err := expr.Run(c.program, env)
	if err != nil {
		return true, fmt.Sprintf("evaluation error: %v", err)
	}
	b, ok := output.(bool)
	if !ok {
		return true, fmt.Sprintf("expression returned %T, not bool", output)
	}
	return b, c.source
}

// ruleEnv exposes a record to custom expressions by column name, plus
// pickup_hour, duration_seconds and speed_mph. Null fields are nil. The row
// index is left out: it shifts once rows are dropped, so a rule on it would
// not give the same verdict on a cleaned batch.
func ruleEnv(r trips.Record) map[string]any {
	env := map[string]any{
		trips.ColVendorID:       valueOrNil(r.VendorID),
		trips.ColPickupTS:       valueOrNil(r.PickupTime),
		trips.ColDropoffTS:      valueOrNil(r.DropoffTime),
		trips.ColPickupLon:      valueOrNil(r.PickupLon),
		trips.ColPickupLat:      valueOrNil(r.PickupLat),
		trips.ColDropoffLon:     valueOrNil(r.DropoffLon),
		trips.ColDropoffLat:     valueOrNil(r.DropoffLat),
		trips.ColDistance:       valueOrNil(r.Distance),
		trips.ColFare:           valueOrNil(r.Fare),
		trips.ColSurcharge:      valueOrNil(r.Surcharge),
		trips.ColPassengerCount: valueOrNil(r.PassengerCount),
		trips.ColPickupZone:     valueOrNil(r.PickupZone),
		trips.ColDropoffZone:    valueOrNil(r.DropoffZone),
		"pickup_hour":           nil,
		"duration_seconds":      nil,
		"speed_mph":             nil,
	}
	if r.PickupTime != nil {
		env["pickup_hour"] = r.PickupTime.Hour()
	}
	if d, ok := r.Duration(); ok {
		env["duration_seconds"] = d.Seconds()
	}
	if mph, ok := r.SpeedMPH(); ok {
		env["speed_mph"] = mph
	}
	return env
}

func valueOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// duplicates maps the index of every repeated trip to the index of its
// first occurrence.
func duplicates(records []trips.Record) map[int]int {
	first := make(map[string]int, len(records))
	dups := make(map[int]int)
	for i, r := range records {
		fp, ok := trips.Fingerprint(r)
		if !ok {
			continue
		}
		if j, seen := first[fp]; seen {
			dups[i] = j
			continue
		}
		first[fp] = i
	}
	return dups
}

// ApplyRules evaluates every rule against every record and excludes each
// failing record under its highest-priority reason. Duplicates are found in
// a pre-pass over the whole slice, the first occurrence being canonical, so
// the set of excluded records does not depend on rule order.
func (f *Filter) ApplyRules(records []trips.Record) ([]trips.Record, []Exclusion) {
	dups := duplicates(records)
	kept := make([]trips.Record, 0, len(records))
	var excluded []Exclusion

	for i, r := range records {
		if ex, failed := f.firstFailure(r, i, records, dups); failed {
			excluded = append(excluded, ex)
			continue
		}
		kept = append(kept, r)
	}
	return kept, excluded
}

func (f *Filter) firstFailure(r trips.Record, i int, records []trips.Record, dups map[int]int) (Exclusion, bool) {
	if col := missingRequired(r); col != "" {
		return Exclusion{Record: r, Reason: ReasonMissingRequired, Detail: col + " is null"}, true
	}
	for _, rl := range f.rules {
		if rl.fails(r) {
			return Exclusion{Record: r, Reason: rl.code, Detail: rl.describe(r)}, true
		}
	}
	if j, ok := dups[i]; ok {
		return Exclusion{Record: r, Reason: ReasonDuplicateTrip, Detail: fmt.Sprintf("duplicate of row %d", records[j].Row)}, true
	}
	if len(f.custom) > 0 {
		env := ruleEnv(r)
		for _, c := range f.custom {
			if failed, detail := c.eval(env); failed {
				return Exclusion{Record: r, Reason: c.code, Detail: detail}, true
			}
		}
	}
	return Exclusion{}, false
}
