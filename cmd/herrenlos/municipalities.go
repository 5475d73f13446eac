package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/herrenlos/internal/pipeline"
	"github.com/dusk-indust/herrenlos/internal/query"
)

func (c *cli) newMunicipalitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "municipalities",
		Short: "Print the parsed municipality list and any skipped rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			loaded, err := pipeline.FileSource(cfg.Municipalities.File)()
			for _, m := range loaded.Municipalities {
				fmt.Fprintf(c.out, "%-24s %s  %s\n", m.Name, query.Envelope(m.BBox), m.Contact)
			}
			for _, re := range loaded.Skipped {
				fmt.Fprintf(c.out, "skipped row %d: %s\n", re.Row, re.Reason)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "\n%d municipalities, %d skipped\n", len(loaded.Municipalities), len(loaded.Skipped))
			return nil
		},
	}
}
