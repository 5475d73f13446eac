package mcptools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/herrenlos/internal/config"
	"github.com/dusk-indust/herrenlos/internal/journal"
	"github.com/dusk-indust/herrenlos/internal/municipality"
	"github.com/dusk-indust/herrenlos/internal/orchestrator"
	"github.com/dusk-indust/herrenlos/internal/pipeline"
	"github.com/dusk-indust/herrenlos/internal/status"
)

const defaultRecentRuns = 10

// Runner executes searches. *orchestrator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, ro orchestrator.RunOptions) (orchestrator.Summary, error)
	Journal() journal.Journal
	Config() config.Config
}

// Service handles the MCP tool calls.
type Service struct {
	runner Runner
}

// NewService creates a Service backed by runner.
func NewService(runner Runner) *Service {
	return &Service{runner: runner}
}

// FindParcels runs a search and returns its candidates. A run that finds
// nothing is a successful call with an explanatory message.
func (s *Service) FindParcels(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FindParcelsInput,
) (*mcp.CallToolResult, FindParcelsOutput, error) {
	if input.MinAreaM2 != nil && *input.MinAreaM2 < 0 {
		return nil, FindParcelsOutput{}, fmt.Errorf("minAreaM2 must not be negative, got %v", *input.MinAreaM2)
	}

	reportDir, err := s.reportDir(input.ReportDir)
	if err != nil {
		return nil, FindParcelsOutput{}, err
	}

	sum, err := s.runner.Run(ctx, orchestrator.RunOptions{
		Only:      input.Municipalities,
		ReportDir: reportDir,
		MinAreaM2: input.MinAreaM2,
	})
	out := FindParcelsOutput{
		RunID:      sum.Run.ID,
		State:      sum.Run.State.String(),
		Searched:   len(sum.Run.Result.Outcomes()),
		Failed:     len(sum.Run.Result.Failures()),
		Candidates: nonNil(sum.Run.Result.Records()),
		Outcomes:   nonNil(sum.Run.Result.Outcomes()),
		Files:      nonNil(sum.Files),
	}
	switch {
	case errors.Is(err, pipeline.ErrNoCandidates):
		out.Message = "no candidates found"
	case err != nil:
		return nil, out, err
	case out.Failed > 0:
		out.Message = fmt.Sprintf("%d municipalit%s could not be searched", out.Failed, pluralY(out.Failed))
	}
	return nil, out, nil
}

// ListMunicipalities parses a municipality list without searching it.
func (s *Service) ListMunicipalities(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListMunicipalitiesInput,
) (*mcp.CallToolResult, ListMunicipalitiesOutput, error) {
	file, err := s.municipalityFile(input.File)
	if err != nil {
		return nil, ListMunicipalitiesOutput{}, err
	}
	loaded, err := pipeline.FileSource(file)()
	out := ListMunicipalitiesOutput{
		Municipalities: nonNil(loaded.Municipalities),
		Skipped:        make([]SkippedRow, 0, len(loaded.Skipped)),
	}
	for _, re := range loaded.Skipped {
		out.Skipped = append(out.Skipped, SkippedRow{Row: re.Row, Column: re.Column, Reason: re.Reason})
	}
	if err != nil && !errors.Is(err, municipality.ErrEmpty) {
		return nil, out, err
	}
	return nil, out, nil
}

// GetRunStatus reports one journal run and lists the recent ones.
func (s *Service) GetRunStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetRunStatusInput,
) (*mcp.CallToolResult, GetRunStatusOutput, error) {
	j := s.runner.Journal()
	if j == nil {
		return nil, GetRunStatusOutput{}, errors.New("run journal is disabled (journal.driver is empty)")
	}

	rs, err := status.Get(ctx, j, input.RunID)
	if err != nil {
		return nil, GetRunStatusOutput{}, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultRecentRuns
	}
	runs, err := status.List(ctx, j, limit)
	if err != nil {
		return nil, GetRunStatusOutput{}, err
	}

	out := GetRunStatusOutput{
		Run:      summarize(rs.Run),
		Outcomes: nonNil(rs.Outcomes),
		Pending:  rs.Pending,
		Recent:   make([]RunSummary, 0, len(runs)),
	}
	for _, r := range runs {
		out.Recent = append(out.Recent, summarize(r))
	}
	return nil, out, nil
}

// reportDir places a tool-supplied directory under report.dir. Tool callers
// may be remote, so absolute paths and paths leaving report.dir are refused.
func (s *Service) reportDir(dir string) (string, error) {
	if dir == "" || dir == "-" {
		return dir, nil
	}
	if !filepath.IsLocal(dir) {
		return "", fmt.Errorf("reportDir %q must be a relative path inside report.dir", dir)
	}
	return filepath.Join(s.runner.Config().Report.Dir, dir), nil
}

// municipalityFile resolves a tool-supplied CSV name next to the configured
// municipalities.file, or in the working directory when none is configured.
func (s *Service) municipalityFile(name string) (string, error) {
	configured := s.runner.Config().Municipalities.File
	if name == "" {
		return configured, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("file %q must be a relative path inside the municipalities directory", name)
	}
	base := "."
	if configured != "" {
		base = filepath.Dir(configured)
	}
	return filepath.Join(base, name), nil
}

func summarize(r journal.Run) RunSummary {
	s := RunSummary{
		ID:         r.ID,
		State:      r.State,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
		Total:      r.Total,
		Searched:   r.Searched,
		Candidates: r.Candidates,
		Failures:   r.Failures,
	}
	if r.FinishedAt != nil {
		s.FinishedAt = r.FinishedAt.UTC().Format(time.RFC3339)
	}
	return s
}

// nonNil keeps empty lists as [] in the structured output.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

