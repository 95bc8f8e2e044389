// Package export writes the outcome of a filter run to an .xlsx workbook
// for review outside the pipeline.
package export

import (
	"errors"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/banshee-data/congestion.audit/internal/fsutil"
	"github.com/banshee-data/congestion.audit/internal/quality"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

// Sheet names, in workbook order.
const (
	SheetSummary     = "Summary"
	SheetExclusions  = "Exclusions"
	SheetImputations = "Imputations"
)

var (
	profileHeader    = []string{"group", "count", "mean_fare", "mean_distance_miles", "mean_speed"}
	exclusionHeader  = []string{"row", "reason", "detail", "vendor_id", "pickup_ts", "fare", "distance"}
	imputationHeader = []string{"column", "strategy", "value", "observed", "imputed"}
)

// Workbook builds the review workbook of a run. The caller closes it.
func Workbook(res *quality.Result) (*excelize.File, error) {
	if res == nil || res.Report == nil {
		return nil, errors.New("nil filter result")
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetExclusions, SheetImputations} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	w := &sheetWriter{f: f}
	writeSummary(w, res.Report)
	writeExclusions(w, res.Excluded)
	writeImputations(w, res.Imputations)
	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// WriteFile writes the workbook of res to path.
func WriteFile(fsys fsutil.FileSystem, path string, res *quality.Result) error {
	f, err := Workbook(res)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := fsutil.EnsureParentDir(fsys, path); err != nil {
		return err
	}
	out, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("failed to write workbook %s: %w", path, err)
	}
	return out.Close()
}

// sheetWriter keeps the first cell error so rows can be written without
// checking every call.
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) row(sheet string, rowIdx int, values ...any) {
	if w.err != nil {
		return
	}
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, rowIdx)
		if err != nil {
			w.err = err
			return
		}
		if err := w.f.SetCellValue(sheet, cell, v); err != nil {
			w.err = fmt.Errorf("%s!%s: %w", sheet, cell, err)
			return
		}
	}
}

func header(cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = c
	}
	return out
}

func writeSummary(w *sheetWriter, rep *quality.FilterReport) {
	w.row(SheetSummary, 1, "total_in", rep.TotalIn())
	w.row(SheetSummary, 2, "total_out", rep.TotalOut())
	w.row(SheetSummary, 3, "excluded", rep.ExcludedTotal())
	w.row(SheetSummary, 4, "speed_units", rep.SpeedUnits())

	w.row(SheetSummary, 6, header(profileHeader)...)
	kept := rep.Kept()
	w.row(SheetSummary, 7, "kept", kept.Count, kept.MeanFare, kept.MeanDistance, kept.MeanSpeed)
	for i, p := range rep.Profiles() {
		w.row(SheetSummary, 8+i, string(p.Reason), p.Count, p.MeanFare, p.MeanDistance, p.MeanSpeed)
	}
}

func writeExclusions(w *sheetWriter, excluded []quality.Exclusion) {
	w.row(SheetExclusions, 1, header(exclusionHeader)...)
	for i, ex := range excluded {
		r := ex.Record
		w.row(SheetExclusions, i+2,
			ex.Row(),
			string(ex.Reason),
			ex.Detail,
			orEmpty(r.VendorID),
			formatTime(r),
			orEmptyFloat(r.Fare),
			orEmptyFloat(r.Distance),
		)
	}
}

func writeImputations(w *sheetWriter, imputations map[string]quality.ColumnImputation) {
	w.row(SheetImputations, 1, header(imputationHeader)...)
	cols := make([]string, 0, len(imputations))
	for col := range imputations {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for i, col := range cols {
		imp := imputations[col]
		w.row(SheetImputations, i+2, col, imp.Strategy, imp.Value, imp.Observed, imp.Count)
	}
}

func orEmpty(p *string) any {
	if p == nil {
		return ""
	}
	return *p
}

func orEmptyFloat(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}

func formatTime(r trips.Record) string {
	if r.PickupTime == nil {
		return ""
	}
	return r.PickupTime.UTC().Format(trips.TLCTimeLayout)
}
