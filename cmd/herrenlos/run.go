package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/herrenlos/internal/orchestrator"
	"github.com/dusk-indust/herrenlos/internal/pipeline"
)

func (c *cli) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search every configured municipality and write the reports",
		Long: `Searches the configured municipalities one after another, honouring the
minimum interval between requests. Municipalities that cannot be searched
are reported as failed; the run continues with the next one.

Reports written to the output directory:
  candidates.csv   one row per candidate parcel
  candidates.json  candidates, outcomes and a summary
  outcomes.csv     one row per municipality (ok / failed)
  kontakt.txt      inquiry letters with mailto links`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSearch(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&c.flags.Out, "out", "", "report directory (default: report.dir)")
	f.Float64Var(&c.flags.MinArea, "min-area", 0, "drop candidates smaller than this many m²")
	f.StringVar(&c.flags.OwnerField, "owner-field", "", "attribute whose absence marks a candidate")
	f.IntVar(&c.flags.Workers, "workers", 1, "municipalities searched concurrently (requests stay throttled)")
	return cmd
}

func (c *cli) runSearch(cmd *cobra.Command) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := orchestrator.New(ctx, cfg,
		orchestrator.WithLogger(c.logger),
		orchestrator.WithVersion(version),
	)
	if err != nil {
		return err
	}
	defer orch.Close()

	sum, err := orch.Run(ctx, orchestrator.RunOptions{
		OnProgress: func(ev pipeline.ProgressEvent) {
			if ev.Status != pipeline.ProgressPending {
				fmt.Fprintln(c.out, pipeline.FormatProgress(ev))
			}
		},
	})
	for _, re := range sum.Run.Skipped {
		fmt.Fprintf(c.out, "skipped row %d: %s\n", re.Row, re.Reason)
	}

	switch {
	case errors.Is(err, pipeline.ErrNoCandidates):
		c.printSummary(sum)
		fmt.Fprintln(c.out, "no candidates found")
		return nil
	case errors.Is(err, context.Canceled):
		c.printSummary(sum)
		return fmt.Errorf("run %s interrupted after %d municipalities: %w",
			sum.Run.ID, len(sum.Run.Result.Outcomes()), err)
	case err != nil:
		return err
	}
	c.printSummary(sum)
	return nil
}

func (c *cli) printSummary(sum orchestrator.Summary) {
	res := sum.Run.Result
	fmt.Fprintf(c.out, "\nRun %s: %d candidate(s) in %d municipalities, %d failed\n",
		sum.Run.ID, res.Len(), len(res.Outcomes()), len(res.Failures()))
	for _, o := range res.Failures() {
		fmt.Fprintf(c.out, "  failed: %s (%s: %s)\n", o.Municipality, o.Failure.Kind, o.Failure.Message)
	}
	if sum.ReportDir != "" {
		fmt.Fprintf(c.out, "Reports written to %s\n", sum.ReportDir)
	}
}
