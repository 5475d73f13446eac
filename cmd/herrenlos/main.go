package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/herrenlos/internal/config"
	"github.com/dusk-indust/herrenlos/internal/logging"
)

// version is set by goreleaser at build time.
var version = "dev"

// CLI flags parsed from command line.
type cliFlags struct {
	ConfigDir      string
	Municipalities string
	Out            string
	MinArea        float64
	OwnerField     string
	Workers        int
	Verbose        bool
	JSONLog        bool
}

// cli holds the state shared by all subcommands.
type cli struct {
	flags  cliFlags
	out    io.Writer
	logger *zap.Logger
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	root := newRootCmd(os.Stdout)
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "herrenlos",
		Short: "Find parcels without a recorded owner",
		Long: `herrenlos queries the cadastral feature service once per configured
municipality, keeps every parcel whose owner attribute is empty, and writes
a candidate list, an outcome list and a contact document with inquiry
letters for the land registry offices.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(c.flags.Verbose, c.flags.JSONLog)
			if err != nil {
				return err
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.ConfigDir, "config-dir", ".", "directory containing herrenlos.yml")
	pf.StringVar(&c.flags.Municipalities, "municipalities", "", "municipality CSV file (default: built-in list)")
	pf.BoolVar(&c.flags.Verbose, "verbose", false, "enable debug logging")
	pf.BoolVar(&c.flags.JSONLog, "json-log", false, "log as JSON")

	root.AddCommand(
		c.newRunCmd(),
		c.newMunicipalitiesCmd(),
		c.newStatusCmd(),
		c.newServeMCPCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := fmt.Fprintln(c.out, version)
				return err
			},
		},
	)
	return root
}

// loadConfig reads herrenlos.yml, applies HERRENLOS_* variables and then the
// flags the user set explicitly.
func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(c.flags.ConfigDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("municipalities") {
		cfg.Municipalities.File = c.flags.Municipalities
	}
	if f := flags.Lookup("out"); f != nil && f.Changed {
		cfg.Report.Dir = c.flags.Out
	}
	if f := flags.Lookup("min-area"); f != nil && f.Changed {
		cfg.Filter.MinAreaM2 = c.flags.MinArea
	}
	if f := flags.Lookup("owner-field"); f != nil && f.Changed {
		cfg.Schema.OwnerField = c.flags.OwnerField
	}
	if f := flags.Lookup("workers"); f != nil && f.Changed {
		cfg.Workers = c.flags.Workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
