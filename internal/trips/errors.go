package trips

import (
	"fmt"
	"strings"
)

// MalformedRowError reports a cell that could not be parsed, or a row whose
// width does not match the header. It is row-level: the row is excluded and
// the batch continues.
type MalformedRowError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *MalformedRowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d: column %s: cannot parse %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *MalformedRowError) Unwrap() error { return e.Err }

// SchemaMismatchError reports required columns missing from a batch header.
// It is fatal for the batch and is returned before any row is processed.
type SchemaMismatchError struct {
	Missing []string
	Got     []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: missing required columns [%s]", strings.Join(e.Missing, ", "))
}

// GeoLookupError reports a record whose location cannot be resolved against
// the zone set: no usable coordinates and no zone ids.
type GeoLookupError struct {
	Row    int
	Reason string
}

func (e *GeoLookupError) Error() string {
	return fmt.Sprintf("row %d: unresolvable location: %s", e.Row, e.Reason)
}
