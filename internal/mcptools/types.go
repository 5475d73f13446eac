package mcptools

import (
	"github.com/dusk-indust/herrenlos/internal/municipality"
	"github.com/dusk-indust/herrenlos/internal/parcel"
)

// --- MCP Tool Input/Output Types ---
// The MCP Go SDK generates the JSON schemas from these struct tags.

// FindParcelsInput is the input for the find_ownerless_parcels tool.
type FindParcelsInput struct {
	Municipalities []string `json:"municipalities,omitempty" jsonschema:"restrict the search to these municipality names (default: all configured)"`
	MinAreaM2      *float64 `json:"minAreaM2,omitempty" jsonschema:"drop candidates smaller than this area in square metres (default: configured filter)"`
	ReportDir      string   `json:"reportDir,omitempty" jsonschema:"subdirectory of the configured report.dir for the report files (default: report.dir itself, '-' writes none)"`
}

// FindParcelsOutput is the result of the find_ownerless_parcels tool.
type FindParcelsOutput struct {
	RunID      string                   `json:"runId"`
	State      string                   `json:"state"`
	Searched   int                      `json:"searched"`
	Failed     int                      `json:"failed"`
	Candidates []parcel.CandidateRecord `json:"candidates"`
	Outcomes   []parcel.Outcome         `json:"outcomes"`
	Files      []string                 `json:"files"`
	Message    string                   `json:"message,omitempty"`
}

// ListMunicipalitiesInput is the input for the list_municipalities tool.
type ListMunicipalitiesInput struct {
	File string `json:"file,omitempty" jsonschema:"CSV file name relative to the directory of municipalities.file (default: municipalities.file or the built-in list)"`
}

// ListMunicipalitiesOutput is the result of the list_municipalities tool.
type ListMunicipalitiesOutput struct {
	Municipalities []municipality.Municipality `json:"municipalities"`
	Skipped        []SkippedRow                `json:"skipped"`
}

// SkippedRow is a configuration row that was not loaded.
type SkippedRow struct {
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

// GetRunStatusInput is the input for the get_run_status tool.
type GetRunStatusInput struct {
	RunID string `json:"runId,omitempty" jsonschema:"run identifier (default: the newest run)"`
	Limit int    `json:"limit,omitempty" jsonschema:"number of recent runs to list (default: 10)"`
}

// GetRunStatusOutput is the result of the get_run_status tool.
type GetRunStatusOutput struct {
	Run      RunSummary       `json:"run"`
	Outcomes []parcel.Outcome `json:"outcomes"`
	Pending  int              `json:"pending"`
	Recent   []RunSummary     `json:"recent"`
}

// RunSummary is a journal run with RFC 3339 timestamps.
type RunSummary struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	StartedAt  string `json:"startedAt"`
	FinishedAt string `json:"finishedAt,omitempty"`
	Total      int    `json:"total"`
	Searched   int    `json:"searched"`
	Candidates int    `json:"candidates"`
	Failures   int    `json:"failures"`
}
