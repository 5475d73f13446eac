package municipality

import (
	"errors"
	"fmt"
)

// ErrEmpty is returned when a source yields no valid municipality. It is the
// only load failure that stops a run.
var ErrEmpty = errors.New("municipality: no valid municipalities configured")

// RowError describes one skipped row. Row numbers are 1-based and count the
// header, so they match what a spreadsheet shows.
type RowError struct {
	Row    int
	Column string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("municipality: row %d: column %s: %s", e.Row, e.Column, e.Reason)
	}
	return fmt.Sprintf("municipality: row %d: %s", e.Row, e.Reason)
}

// Unwrap supports error unwrapping.
func (e *RowError) Unwrap() error {
	return e.Err
}
