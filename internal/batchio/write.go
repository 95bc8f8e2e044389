package batchio

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/banshee-data/congestion.audit/internal/fsutil"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

// WriteOptions controls how records are rendered.
type WriteOptions struct {
	NullMarker      string
	TimestampLayout string
	Location        *time.Location
}

// DefaultWriteOptions writes RFC 3339 UTC timestamps with fractional seconds
// and empty nulls, which ReadCSV and ParseRow read back unchanged.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{TimestampLayout: trips.OutputTimeLayout, Location: time.UTC}
}

// Frame renders records as a DataFrame of string series in column order.
func Frame(columns []string, records []trips.Record, opts WriteOptions) dataframe.DataFrame {
	if opts.TimestampLayout == "" {
		opts.TimestampLayout = trips.OutputTimeLayout
	}
	cells := make([][]string, len(columns))
	for i := range cells {
		cells[i] = make([]string, 0, len(records))
	}
	for _, r := range records {
		row := trips.FormatRow(r, columns, opts.NullMarker, opts.TimestampLayout, opts.Location)
		for i, v := range row {
			cells[i] = append(cells[i], v)
		}
	}
	seriesList := make([]series.Series, len(columns))
	for i, name := range columns {
		seriesList[i] = series.New(cells[i], series.String, name)
	}
	return dataframe.New(seriesList...)
}

// WriteCSV writes records as CSV with a header row.
func WriteCSV(w io.Writer, columns []string, records []trips.Record, opts WriteOptions) error {
	if len(records) == 0 {
		cw := csv.NewWriter(w)
		if err := cw.Write(columns); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	}
	df := Frame(columns, records, opts)
	if df.Err != nil {
		return fmt.Errorf("failed to build output frame: %w", df.Err)
	}
	return df.WriteCSV(w)
}

// WriteFile writes records as CSV to path, creating parent directories.
func WriteFile(fsys fsutil.FileSystem, path string, columns []string, records []trips.Record, opts WriteOptions) error {
	if err := fsutil.EnsureParentDir(fsys, path); err != nil {
		return err
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, columns, records, opts); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
