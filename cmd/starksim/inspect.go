package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/repository"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/wasi"
)

// InspectReport is the json output of the inspect command.
type InspectReport struct {
	Path      string           `json:"path"`
	Kind      state.ClassKind  `json:"kind"`
	ClassHash core.Felt        `json:"class_hash"`
	ABI       *abi.ABI         `json:"abi"`
	Module    *wasi.ModuleInfo `json:"module,omitempty"`
}

func newInspectCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Show the ABI of a contract artifact",
		Long: `Validate a contract artifact and print its class hash and ABI. For
WebAssembly modules the imported and exported functions are listed too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			art, err := repository.NewLoader(cfg.BaseDir, cfg.Contract, nil).Load(args[0])
			if err != nil {
				return commandError("invalid artifact", err)
			}

			report := InspectReport{Path: art.Class.Path, Kind: art.Class.Kind, ClassHash: art.Class.Hash, ABI: art.ABI}
			if art.Class.Kind == state.ClassWasm {
				if report.Module, err = wasi.Inspect(cmd.Context(), art.Class.Code); err != nil {
					return commandError("invalid module", err)
				}
			}

			w := cmd.OutOrStdout()
			if asJSON {
				return printJSON(w, report)
			}
			fmt.Fprintf(w, "path:       %s\n", report.Path)
			fmt.Fprintf(w, "kind:       %s\n", report.Kind)
			fmt.Fprintf(w, "class hash: %s\n\n", report.ClassHash.Hex())
			fmt.Fprintln(w, report.ABI.String())
			if report.Module != nil {
				fmt.Fprintln(w, "\nimports:")
				for _, f := range report.Module.Imports {
					fmt.Fprintf(w, "  %s\n", f)
				}
				fmt.Fprintln(w, "exports:")
				for _, f := range report.Module.Exports {
					fmt.Fprintf(w, "  %s\n", f)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print a json report")
	return cmd
}
