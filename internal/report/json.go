package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// RunExport is the top-level JSON export structure.
type RunExport struct {
	RunID      string                   `json:"runId"`
	ExportedAt string                   `json:"exportedAt"`
	Summary    Summary                  `json:"summary"`
	Candidates []parcel.CandidateRecord `json:"candidates"`
	Outcomes   []parcel.Outcome         `json:"outcomes"`
}

// Summary holds the run totals.
type Summary struct {
	Municipalities int     `json:"municipalities"`
	Failed         int     `json:"failed"`
	Candidates     int     `json:"candidates"`
	MinAreaM2      float64 `json:"minAreaM2,omitempty"`
}

// NewRunExport builds the export for a result.
func NewRunExport(runID string, result parcel.Result, minArea float64, at time.Time) RunExport {
	candidates := result.Records()
	outcomes := result.Outcomes()
	return RunExport{
		RunID:      runID,
		ExportedAt: at.UTC().Format(time.RFC3339),
		Summary: Summary{
			Municipalities: len(outcomes),
			Failed:         len(result.Failures()),
			Candidates:     len(candidates),
			MinAreaM2:      minArea,
		},
		Candidates: candidates,
		Outcomes:   outcomes,
	}
}

// WriteJSON writes the export as indented JSON.
func WriteJSON(w io.Writer, export RunExport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}
