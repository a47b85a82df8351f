package main

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/govm-net/starksim/config"
	"github.com/govm-net/starksim/harness"
	"github.com/govm-net/starksim/starknet"
)

type runOptions struct {
	*rootOptions
	Parallel int
	Format   string
}

// RunSummary is the json output of the run command.
type RunSummary struct {
	Scenarios []*harness.Result `json:"scenarios"`
	Passed    int               `json:"passed"`
	Failed    int               `json:"failed"`
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>...",
		Short: "Run test scenarios",
		Long: `Run YAML test scenarios. Every scenario gets its own fresh simulation,
so scenarios may run in parallel.

Exit codes:
  0 - all scenarios passed
  1 - one or more scenarios failed
  2 - a scenario could not be loaded, or bad flags

Examples:
  starksim run harness/testdata/scenarios/init_pool.yaml
  starksim run --parallel 8 --format json scenarios/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd.Context(), opts, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", runtime.NumCPU(), "scenarios run at once")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	return cmd
}

func runScenarios(ctx context.Context, opts *runOptions, paths []string, w io.Writer) error {
	if opts.Format != "text" && opts.Format != "json" {
		return commandError(fmt.Sprintf("invalid format %q", opts.Format), nil)
	}
	if opts.Parallel < 1 {
		return commandError("--parallel must be positive", nil)
	}
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return commandError("failed to create logger", err)
	}
	defer func() { _ = logger.Sync() }()

	scenarios := make([]*harness.Scenario, len(paths))
	for i, path := range paths {
		if scenarios[i], err = harness.LoadScenario(path); err != nil {
			return commandError("failed to load scenario", err)
		}
	}

	results := make([]*harness.Result, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallel)
	for i, scenario := range scenarios {
		i, scenario := i, scenario
		g.Go(func() error {
			result, err := harness.Run(ctx, scenario,
				starknet.WithContractConfig(cfg.Contract),
				starknet.WithLogger(logger),
			)
			if err != nil && ctx.Err() != nil {
				return err
			}
			if err != nil {
				// Setup failures are reported like assertion failures.
				result = &harness.Result{Name: scenario.Name, Errors: []string{err.Error()}, Trace: []harness.TraceEntry{}}
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return failure("scenario run aborted", err)
	}

	summary := RunSummary{Scenarios: results}
	for _, r := range results {
		if r.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	if opts.Format == "json" {
		if err := printJSON(w, summary); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Pass {
				fmt.Fprintf(w, "PASS %s\n", r.Name)
				continue
			}
			fmt.Fprintf(w, "FAIL %s\n", r.Name)
			for _, e := range r.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		fmt.Fprintf(w, "\n%d passed, %d failed\n", summary.Passed, summary.Failed)
	}

	if summary.Failed > 0 {
		return failure(fmt.Sprintf("%d of %d scenarios failed", summary.Failed, len(results)), nil)
	}
	return nil
}
