package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/govm-net/starksim/config"
	"github.com/govm-net/starksim/gateway"
	"github.com/govm-net/starksim/starknet"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a simulation over HTTP",
		Long: `Serve a simulation over HTTP until interrupted.

Example:
  starksim serve --backend badger --db-path ./state --addr 127.0.0.1:5050`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Gateway.Addr = addr
			}
			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return commandError("failed to create logger", err)
			}
			defer func() { _ = logger.Sync() }()

			sim, err := starknet.Open(ctx, cfg, starknet.WithLogger(logger))
			if err != nil {
				return commandError("failed to open simulation", err)
			}
			return closeAfter(sim, func() error {
				logger.Info("serving simulation",
					zap.String("simulation", sim.ID()),
					zap.String("backend", cfg.Backend.Type),
				)
				return gateway.New(sim, cfg.Gateway, logger).ListenAndServe(ctx, cfg.Gateway.Addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:5050)")
	return cmd
}
