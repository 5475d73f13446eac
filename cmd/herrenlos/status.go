package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/herrenlos/internal/journal"
	"github.com/dusk-indust/herrenlos/internal/status"
)

func (c *cli) newStatusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status [run-id|latest]",
		Short: "Show recorded runs, or one run's outcomes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}
			j, err := journal.Open(cmd.Context(), cfg.Journal.Driver, cfg.Journal.DSN)
			if err != nil {
				return err
			}
			if j == nil {
				return errors.New("run journal is disabled (journal.driver is empty)")
			}
			defer j.Close()

			if len(args) == 1 {
				rs, err := status.Get(cmd.Context(), j, args[0])
				if err != nil {
					return err
				}
				return status.WriteRunStatus(c.out, rs)
			}
			runs, err := status.List(cmd.Context(), j, limit)
			if err != nil {
				return err
			}
			return status.WriteRunTable(c.out, runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list (0 lists all)")
	return cmd
}
