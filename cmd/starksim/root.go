package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/govm-net/starksim/config"
	"github.com/govm-net/starksim/starknet"
)

// rootOptions holds the persistent flags. Flags override the config file.
type rootOptions struct {
	ConfigPath string
	Backend    string
	DBPath     string
	BaseDir    string
	Verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "starksim",
		Short: "Contract simulator command line tool",
		Long: `Contract simulator command line tool for declaring, deploying and
exercising contracts, running YAML test scenarios and serving a simulation
over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "configuration file")
	flags.StringVar(&opts.Backend, "backend", "", "state backend (memory, sqlite, badger)")
	flags.StringVar(&opts.DBPath, "db-path", "", "database file or directory of the backend")
	flags.StringVar(&opts.BaseDir, "base-dir", "", "directory contract paths are resolved against")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newDeclareCommand(opts))
	cmd.AddCommand(newDeployCommand(opts))
	cmd.AddCommand(newInvokeCommand(opts))
	cmd.AddCommand(newCallCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	return cmd
}

// config loads the configuration file, if any, and applies the flags.
func (o *rootOptions) config() (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(o.ConfigPath); err != nil {
			return cfg, commandError("failed to load config", err)
		}
	}
	if o.Backend != "" {
		cfg.Backend.Type = o.Backend
	}
	if o.DBPath != "" {
		cfg.Backend.Path = o.DBPath
	}
	if o.BaseDir != "" {
		cfg.BaseDir = o.BaseDir
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, commandError("invalid configuration", err)
	}
	return cfg, nil
}

// open opens the simulation described by the flags.
func (o *rootOptions) open(ctx context.Context) (*starknet.Starknet, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	sim, err := starknet.Open(ctx, cfg)
	if err != nil {
		return nil, commandError(fmt.Sprintf("failed to open %s state", cfg.Backend.Type), err)
	}
	return sim, nil
}

// closeAfter runs fn and then closes c. A failed close is joined onto fn's
// error rather than dropped.
func closeAfter(c io.Closer, fn func() error) (err error) {
	defer multierr.AppendInvoke(&err, multierr.Close(c))
	return fn()
}
