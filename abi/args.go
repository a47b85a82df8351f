package abi

import (
	"errors"
	"fmt"
	"sort"

	"github.com/govm-net/starksim/core"
)

var (
	ErrMissingArgument = errors.New("missing argument")
	ErrUnknownArgument = errors.New("unknown argument")
	ErrArgumentRange   = errors.New("argument out of range")
	ErrCalldataLength  = errors.New("calldata length mismatch")
)

// Args holds named entry point arguments. Values may be anything
// core.ToFelt accepts.
type Args map[string]any

// EncodeArgs orders args by the function's inputs and converts them to
// calldata.
func (f *Function) EncodeArgs(args Args) ([]core.Felt, error) {
	calldata := make([]core.Felt, 0, len(f.Inputs))
	known := make(map[string]bool, len(f.Inputs))
	for _, in := range f.Inputs {
		known[in.Name] = true
		v, ok := args[in.Name]
		if !ok {
			return nil, fmt.Errorf("%s: %w %q", f.Name, ErrMissingArgument, in.Name)
		}
		felt, err := core.ToFelt(v)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %q: %w", f.Name, in.Name, err)
		}
		if err := checkRange(in, felt); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		calldata = append(calldata, felt)
	}

	var unknown []string
	for name := range args {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%s: %w %q", f.Name, ErrUnknownArgument, unknown[0])
	}
	return calldata, nil
}

// CheckCalldata validates raw calldata against the function's inputs.
func (f *Function) CheckCalldata(calldata []core.Felt) error {
	if len(calldata) != len(f.Inputs) {
		return fmt.Errorf("%s: %w: want %d, got %d", f.Name, ErrCalldataLength, len(f.Inputs), len(calldata))
	}
	for i, in := range f.Inputs {
		if err := checkRange(in, calldata[i]); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	return nil
}

// CheckResult validates values returned by the function against its outputs.
func (f *Function) CheckResult(result []core.Felt) error {
	if len(result) != len(f.Outputs) {
		return fmt.Errorf("%s: result %w: want %d, got %d", f.Name, ErrCalldataLength, len(f.Outputs), len(result))
	}
	for i, out := range f.Outputs {
		if err := checkRange(out, result[i]); err != nil {
			return fmt.Errorf("%s: result: %w", f.Name, err)
		}
	}
	return nil
}

func checkRange(p Parameter, v core.Felt) error {
	switch p.Type {
	case TypeU64:
		if !v.IsUint64() {
			return fmt.Errorf("%w: %q is %s, want u64", ErrArgumentRange, p.Name, v)
		}
	case TypeBool:
		if !v.IsZero() && v != core.One {
			return fmt.Errorf("%w: %q is %s, want bool", ErrArgumentRange, p.Name, v)
		}
	}
	return nil
}
