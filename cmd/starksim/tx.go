package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/gateway"
	"github.com/govm-net/starksim/starknet"
	"github.com/govm-net/starksim/types"
)

func newDeclareCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "declare <artifact>",
		Short: "Declare a contract class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sim, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			return closeAfter(sim, func() error {
				hash, err := sim.Declare(cmd.Context(), args[0])
				if err != nil {
					return commandError("failed to declare class", err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]core.Felt{"class_hash": hash})
			})
		},
	}
}

func newDeployCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <artifact> [calldata...]",
		Short: "Deploy a contract",
		Long: `Deploy a contract, declaring its class first if needed. Constructor
calldata are felts in decimal or 0x-prefixed hex.

Example:
  starksim deploy --backend sqlite --db-path sim.db contracts/amm.go`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			calldata, err := parseFelts(args[1:])
			if err != nil {
				return commandError("invalid calldata", err)
			}
			sim, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			return closeAfter(sim, func() error {
				c, err := sim.Deploy(cmd.Context(), args[0], calldata)
				if err != nil {
					return failure("deploy failed", err)
				}
				events := c.DeployReceipt.Events
				if events == nil {
					events = []types.Event{}
				}
				return printJSON(cmd.OutOrStdout(), gateway.DeployResponse{
					Address:     c.Address,
					ClassHash:   c.ClassHash,
					TxHash:      c.DeployReceipt.TxHash,
					BlockNumber: c.DeployReceipt.BlockNumber,
					Events:      events,
				})
			})
		},
	}
}

type executeOptions struct {
	*rootOptions
	Args     []string
	Calldata []string
}

func newInvokeCommand(rootOpts *rootOptions) *cobra.Command {
	return newExecuteCommand(rootOpts, "invoke", "Invoke an entry point and commit its effects",
		(*starknet.Contract).InvokeRaw)
}

func newCallCommand(rootOpts *rootOptions) *cobra.Command {
	return newExecuteCommand(rootOpts, "call", "Call an entry point without committing its effects",
		(*starknet.Contract).CallRaw)
}

type executeFunc func(*starknet.Contract, context.Context, string, []core.Felt) (*starknet.ExecutionInfo, error)

func newExecuteCommand(rootOpts *rootOptions, use, short string, run executeFunc) *cobra.Command {
	opts := &executeOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   use + " <address> <entry_point>",
		Short: short,
		Long: short + `. Arguments are given by name with --arg, or as raw
calldata with --calldata.

Example:
  starksim ` + use + ` --backend sqlite --db-path sim.db 0x4a3... get_pool_token_balance --arg token_type=1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, opts, args[0], args[1], run)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Args, "arg", "a", nil, "named argument as name=value (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Calldata, "calldata", nil, "raw calldata felts")
	cmd.MarkFlagsMutuallyExclusive("arg", "calldata")
	return cmd
}

func execute(cmd *cobra.Command, opts *executeOptions, addr, entryPoint string, run executeFunc) error {
	ctx := cmd.Context()
	address, err := core.ParseFelt(addr)
	if err != nil {
		return commandError("invalid address", err)
	}
	named, err := parseArgs(opts.Args)
	if err != nil {
		return commandError("invalid argument", err)
	}
	raw, err := parseFelts(opts.Calldata)
	if err != nil {
		return commandError("invalid calldata", err)
	}

	sim, err := opts.open(ctx)
	if err != nil {
		return err
	}
	return closeAfter(sim, func() error {
		return executeAt(cmd, sim, address, entryPoint, named, raw, run)
	})
}

func executeAt(cmd *cobra.Command, sim *starknet.Starknet, address core.Felt, entryPoint string, named abi.Args, raw []core.Felt, run executeFunc) error {
	ctx := cmd.Context()
	c, err := sim.ContractAt(ctx, address)
	if err != nil {
		return commandError("unknown contract", err)
	}
	fn, ok := c.ABI.Lookup(entryPoint)
	if !ok {
		return commandError(fmt.Sprintf("entry point %s not found", entryPoint), nil)
	}
	calldata := raw
	if len(raw) == 0 {
		if calldata, err = fn.EncodeArgs(named); err != nil {
			return commandError("invalid arguments", err)
		}
	}

	info, err := run(c, ctx, fn.Name, calldata)
	if err != nil {
		if errors.Is(err, starknet.ErrTransactionRejected) || errors.Is(err, core.ErrReverted) {
			return failure("rejected", err)
		}
		return err
	}
	if info.Events == nil {
		info.Events = []types.Event{}
	}
	return printJSON(cmd.OutOrStdout(), info)
}

// parseArgs turns name=value pairs into named arguments.
func parseArgs(pairs []string) (abi.Args, error) {
	args := make(abi.Args, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%q is not name=value", pair)
		}
		if _, dup := args[name]; dup {
			return nil, fmt.Errorf("argument %q given twice", name)
		}
		args[name] = value
	}
	return args, nil
}

func parseFelts(values []string) ([]core.Felt, error) {
	out := make([]core.Felt, 0, len(values))
	for _, v := range values {
		f, err := core.ParseFelt(v)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
