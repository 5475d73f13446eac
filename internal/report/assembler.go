package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/herrenlos/internal/pipeline"
)

// Output file names inside the report directory.
const (
	CandidatesCSV  = "candidates.csv"
	CandidatesJSON = "candidates.json"
	OutcomesCSV    = "outcomes.csv"
	ContactDoc     = "kontakt.txt"
)

// Compile-time interface check.
var _ pipeline.Reporter = (*Assembler)(nil)

// Assembler writes every report of a run into one directory. Each file is
// replaced atomically, so re-running over the same result yields the same
// files.
type Assembler struct {
	dir       string
	requester Requester
	minArea   float64
	title     string
	now       func() time.Time
	logger    *zap.Logger
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithRequester sets the sender of the inquiry letters.
func WithRequester(r Requester) AssemblerOption {
	return func(a *Assembler) { a.requester = r }
}

// WithMinArea is reported in the document header and JSON summary.
func WithMinArea(m float64) AssemblerOption {
	return func(a *Assembler) { a.minArea = m }
}

// WithTitle overrides DefaultTitle.
func WithTitle(t string) AssemblerOption {
	return func(a *Assembler) { a.title = t }
}

// WithNow sets the clock used for export timestamps.
func WithNow(now func() time.Time) AssemblerOption {
	return func(a *Assembler) {
		if now != nil {
			a.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) AssemblerOption {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAssembler writes into dir, creating it if needed.
func NewAssembler(dir string, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		dir:    dir,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dir returns the output directory.
func (a *Assembler) Dir() string { return a.dir }

// Paths returns the files Report writes.
func (a *Assembler) Paths() []string {
	names := []string{CandidatesCSV, CandidatesJSON, OutcomesCSV, ContactDoc}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(a.dir, n)
	}
	return paths
}

// Report implements pipeline.Reporter.
func (a *Assembler) Report(ctx context.Context, run pipeline.RunResult) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("report: mkdir %s: %w", a.dir, err)
	}
	now := a.now()

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{CandidatesCSV, func(w io.Writer) error { return WriteCSV(w, run.Result.Records()) }},
		{CandidatesJSON, func(w io.Writer) error {
			return WriteJSON(w, NewRunExport(run.ID, run.Result, a.minArea, now))
		}},
		{OutcomesCSV, func(w io.Writer) error { return WriteOutcomesCSV(w, run.Result.Outcomes()) }},
		{ContactDoc, func(w io.Writer) error {
			return WriteContactDocument(w, DocumentOptions{
				Title:       a.title,
				GeneratedAt: now,
				Requester:   a.requester,
				MinAreaM2:   a.minArea,
			}, run.Result)
		}},
	}

	for _, wr := range writers {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(a.dir, wr.name)
		if err := writeFileAtomic(path, wr.write); err != nil {
			return err
		}
		a.logger.Debug("report written", zap.String("path", path))
	}
	return nil
}

// writeFileAtomic writes to a temporary file in the target directory and
// renames it into place.
func writeFileAtomic(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("report: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("report: rename %s: %w", path, err)
	}
	return nil
}
