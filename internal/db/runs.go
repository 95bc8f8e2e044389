package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/congestion.audit/internal/quality"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("audit run not found")

// Run is one recorded filter run.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	TotalIn    int
	TotalOut   int
	Excluded   int
	SpeedUnits string
	// ReportJSON is the FilterReport as written to the report file.
	ReportJSON string

	Reasons     map[quality.ReasonCode]int
	Imputations []Imputation
}

// Imputation is the per-column fill of one run.
type Imputation struct {
	Column   string
	Strategy string
	Value    float64
	Observed int
	Count    int
}

// ExclusionRow is the persisted trace of one excluded input row.
type ExclusionRow struct {
	Row      int
	Reason   quality.ReasonCode
	Detail   string
	VendorID *string
	PickupAt *time.Time
	Fare     *float64
	Distance *float64
	SpeedMPH *float64
	Source   string
}

// ReasonTotal is the count of one reason summed over runs, with the mean
// fare, distance and speed of the excluded trips. A mean is nil when no
// excluded trip of that reason had the field.
type ReasonTotal struct {
	Reason      quality.ReasonCode
	Runs        int
	Count       int
	AvgFare     *float64
	AvgDistance *float64
	AvgSpeedMPH *float64
}

// RecordRun stores the outcome of a filter run, including every exclusion,
// in a single transaction and returns the stored run.
func (db *DB) RecordRun(ctx context.Context, source string, res *quality.Result) (*Run, error) {
	if res == nil || res.Report == nil {
		return nil, errors.New("nil filter result")
	}
	reportJSON, err := json.Marshal(res.Report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	rep := res.Report
	run := &Run{
		ID:         uuid.NewString(),
		Source:     source,
		StartedAt:  db.clock.Now().UTC(),
		TotalIn:    rep.TotalIn(),
		TotalOut:   rep.TotalOut(),
		Excluded:   rep.ExcludedTotal(),
		SpeedUnits: rep.SpeedUnits(),
		ReportJSON: string(reportJSON),
		Reasons:    rep.Excluded(),
	}
	for col, imp := range res.Imputations {
		run.Imputations = append(run.Imputations, Imputation{
			Column:   col,
			Strategy: imp.Strategy,
			Value:    imp.Value,
			Observed: imp.Observed,
			Count:    imp.Count,
		})
	}
	sort.Slice(run.Imputations, func(i, j int) bool { return run.Imputations[i].Column < run.Imputations[j].Column })

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_runs (run_id, source, started_at, total_in, total_out, excluded, speed_units, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.StartedAt.UnixNano(), run.TotalIn, run.TotalOut, run.Excluded, run.SpeedUnits, run.ReportJSON,
	); err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}

	for reason, n := range run.Reasons {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_reason_counts (run_id, reason, count) VALUES (?, ?, ?)`,
			run.ID, string(reason), n,
		); err != nil {
			return nil, fmt.Errorf("failed to insert reason count: %w", err)
		}
	}

	for _, imp := range run.Imputations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO audit_imputations (run_id, column_name, strategy, value, observed, count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, imp.Column, imp.Strategy, imp.Value, imp.Observed, imp.Count,
		); err != nil {
			return nil, fmt.Errorf("failed to insert imputation: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_exclusions (run_id, row_index, reason, detail, vendor_id, pickup_at, fare, distance, speed_mph, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	for _, ex := range res.Excluded {
		r := ex.Record
		var pickup *int64
		if r.PickupTime != nil {
			ns := r.PickupTime.UnixNano()
			pickup = &ns
		}
		var speed *float64
		if mph, ok := r.SpeedMPH(); ok {
			speed = &mph
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, ex.Row(), string(ex.Reason), ex.Detail, r.VendorID, pickup, r.Fare, r.Distance, speed, source,
		); err != nil {
			return nil, fmt.Errorf("failed to insert exclusion for row %d: %w", ex.Row(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return run, nil
}

const runColumns = `run_id, source, started_at, total_in, total_out, excluded, speed_units, report_json`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var (
		r       Run
		startNs int64
	)
	if err := row.Scan(&r.ID, &r.Source, &startNs, &r.TotalIn, &r.TotalOut, &r.Excluded, &r.SpeedUnits, &r.ReportJSON); err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, startNs).UTC()
	return &r, nil
}

// GetRun loads a run with its reason counts and imputations.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	run, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM audit_runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	run.Reasons = make(map[quality.ReasonCode]int)
	rows, err := db.QueryContext(ctx, `SELECT reason, count FROM audit_reason_counts WHERE run_id = ?`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			rows.Close()
			return nil, err
		}
		run.Reasons[quality.ReasonCode(reason)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `
		SELECT column_name, strategy, value, observed, count
		FROM audit_imputations WHERE run_id = ? ORDER BY column_name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var imp Imputation
		if err := rows.Scan(&imp.Column, &imp.Strategy, &imp.Value, &imp.Observed, &imp.Count); err != nil {
			return nil, err
		}
		run.Imputations = append(run.Imputations, imp)
	}
	return run, rows.Err()
}

// ListRuns returns the most recent runs first. Reason counts and
// imputations are not loaded.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM audit_runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Exclusions returns the excluded rows of a run in input order.
func (db *DB) Exclusions(ctx context.Context, runID string) ([]ExclusionRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT row_index, reason, detail, vendor_id, pickup_at, fare, distance, speed_mph, source
		FROM audit_exclusions WHERE run_id = ? ORDER BY row_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExclusionRow
	for rows.Next() {
		var (
			ex       ExclusionRow
			reason   string
			vendor   sql.NullString
			pickup   sql.NullInt64
			fare     sql.NullFloat64
			distance sql.NullFloat64
			speed    sql.NullFloat64
		)
		if err := rows.Scan(&ex.Row, &reason, &ex.Detail, &vendor, &pickup, &fare, &distance, &speed, &ex.Source); err != nil {
			return nil, err
		}
		ex.Reason = quality.ReasonCode(reason)
		if vendor.Valid {
			ex.VendorID = &vendor.String
		}
		if pickup.Valid {
			t := time.Unix(0, pickup.Int64).UTC()
			ex.PickupAt = &t
		}
		ex.Fare = nullableFloat(fare)
		ex.Distance = nullableFloat(distance)
		ex.SpeedMPH = nullableFloat(speed)
		out = append(out, ex)
	}
	return out, rows.Err()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// ReasonTotals sums exclusion counts per reason over runs started at or
// after since, largest first, and averages the fare, distance and speed of
// the excluded trips. A zero since covers every run.
func (db *DB) ReasonTotals(ctx context.Context, since time.Time) ([]ReasonTotal, error) {
	var sinceNs int64
	if !since.IsZero() {
		sinceNs = since.UnixNano()
	}
	rows, err := db.QueryContext(ctx, `
		WITH counts AS (
			SELECT c.reason, COUNT(*) AS runs, SUM(c.count) AS total
			FROM audit_reason_counts c
			JOIN audit_runs r ON r.run_id = c.run_id
			WHERE r.started_at >= ?
			GROUP BY c.reason
		), means AS (
			SELECT e.reason, AVG(e.fare) AS fare, AVG(e.distance) AS distance, AVG(e.speed_mph) AS speed
			FROM audit_exclusions e
			JOIN audit_runs r ON r.run_id = e.run_id
			WHERE r.started_at >= ?
			GROUP BY e.reason
		)
		SELECT counts.reason, counts.runs, counts.total, means.fare, means.distance, means.speed
		FROM counts
		LEFT JOIN means ON means.reason = counts.reason
		ORDER BY counts.total DESC, counts.reason`, sinceNs, sinceNs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReasonTotal
	for rows.Next() {
		var (
			t                     ReasonTotal
			reason                string
			fare, distance, speed sql.NullFloat64
		)
		if err := rows.Scan(&reason, &t.Runs, &t.Count, &fare, &distance, &speed); err != nil {
			return nil, err
		}
		t.Reason = quality.ReasonCode(reason)
		t.AvgFare = nullableFloat(fare)
		t.AvgDistance = nullableFloat(distance)
		t.AvgSpeedMPH = nullableFloat(speed)
		out = append(out, t)
	}
	return out, rows.Err()
}
