// Package batchio reads trip batches from CSV into a gota DataFrame and
// writes cleaned batches back out.
package batchio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/banshee-data/congestion.audit/internal/fsutil"
)

// ErrEmptyBatch is returned for input without a header row.
var ErrEmptyBatch = errors.New("empty batch: no header row")

// naCell is how gota string series spell a missing value.
const naCell = "NaN"

// Batch is one tabular input batch. Rows whose width matches the header
// are held column-wise in a DataFrame of string series with null markers
// as NA; ragged rows are kept verbatim so the filter can report them as
// malformed instead of failing the read.
type Batch struct {
	header   []string
	frame    dataframe.DataFrame
	frameRow []int // batch row -> frame row, -1 for ragged rows
	ragged   map[int][]string
}

// ReadCSV reads a CSV batch. The first record is the header. Cells equal to
// one of nullMarkers (after trimming) are stored as NA.
func ReadCSV(r io.Reader, nullMarkers []string) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyBatch
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	isNull := make(map[string]bool, len(nullMarkers))
	for _, m := range nullMarkers {
		isNull[m] = true
	}

	b := &Batch{header: header, ragged: make(map[int][]string)}
	columns := make([][]string, len(header))
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		if len(rec) != len(header) {
			b.frameRow = append(b.frameRow, -1)
			b.ragged[row] = rec
			continue
		}
		b.frameRow = append(b.frameRow, len(columns[0]))
		for i, cell := range rec {
			if isNull[strings.TrimSpace(cell)] {
				cell = naCell
			}
			columns[i] = append(columns[i], cell)
		}
	}

	seriesList := make([]series.Series, len(header))
	for i, name := range header {
		seriesList[i] = series.New(columns[i], series.String, name)
	}
	b.frame = dataframe.New(seriesList...)
	if b.frame.Err != nil {
		return nil, fmt.Errorf("failed to build batch frame: %w", b.frame.Err)
	}
	return b, nil
}

// ReadFile reads a CSV batch from path.
func ReadFile(fsys fsutil.FileSystem, path string, nullMarkers []string) (*Batch, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch: %w", err)
	}
	defer f.Close()

	b, err := ReadCSV(f, nullMarkers)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Columns returns the header as read.
func (b *Batch) Columns() []string { return b.header }

// Len returns the number of data rows, ragged rows included.
func (b *Batch) Len() int { return len(b.frameRow) }

// Ragged returns the number of rows whose width differs from the header.
func (b *Batch) Ragged() int { return len(b.ragged) }

// Frame returns the DataFrame of well-formed rows.
func (b *Batch) Frame() dataframe.DataFrame { return b.frame }

// Row returns the cells of row i. NA cells come back empty.
func (b *Batch) Row(i int) []string {
	fr := b.frameRow[i]
	if fr < 0 {
		return b.ragged[i]
	}
	cells := make([]string, len(b.header))
	for c := range cells {
		e := b.frame.Elem(fr, c)
		if e.IsNA() {
			continue
		}
		cells[c] = e.String()
	}
	return cells
}
