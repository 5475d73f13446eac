// Package report renders a finished run: the candidate table, a JSON export,
// the per-municipality outcome list and a contact document with one
// prepared inquiry per candidate.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// CandidateHeader is the column row of the candidate table.
var CandidateHeader = []string{"Parzelle", "Gemeinde", "Fläche (m²)", "Status", "Kontakt"}

// OutcomeHeader is the column row of the outcome table.
var OutcomeHeader = []string{"Gemeinde", "Status", "Merkmale", "Kandidaten", "Fehlerart", "Meldung"}

// WriteCSV writes one row per record, in the given order.
func WriteCSV(w io.Writer, records []parcel.CandidateRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CandidateHeader); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{r.ParcelID, r.Municipality, FormatArea(r.AreaM2), r.Status, r.Contact}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

// WriteOutcomesCSV lists every searched municipality with its status, so
// failed ones stay visible.
func WriteOutcomesCSV(w io.Writer, outcomes []parcel.Outcome) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(OutcomeHeader); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, o := range outcomes {
		var kind, msg string
		if o.Failure != nil {
			kind, msg = string(o.Failure.Kind), o.Failure.Message
		}
		row := []string{o.Municipality, o.Status(), strconv.Itoa(o.FeatureCount), strconv.Itoa(o.CandidateCount), kind, msg}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

// FormatArea prints an area without trailing zeros.
func FormatArea(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
