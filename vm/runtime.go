package vm

import (
	"context"

	"go.uber.org/zap"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/interpreter"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/wasi"
)

// Program is a loaded class ready to execute entry points.
type Program interface {
	Execute(ctx context.Context, host core.Context, fn *abi.Function, calldata []core.Felt) ([]core.Felt, error)
	Close(ctx context.Context) error
}

// Runtime loads classes of one kind.
type Runtime interface {
	Kind() state.ClassKind
	Load(ctx context.Context, class *state.Class, contractABI *abi.ABI) (Program, error)
	Close(ctx context.Context) error
}

// goRuntime runs Go source through the interpreter
type goRuntime struct {
	in *interpreter.Interpreter
}

// NewGoRuntime returns the runtime for Go source classes.
func NewGoRuntime(allowedImports []string, logger *zap.Logger) Runtime {
	return &goRuntime{in: interpreter.New(allowedImports, logger)}
}

func (r *goRuntime) Kind() state.ClassKind { return state.ClassGo }

func (r *goRuntime) Load(ctx context.Context, class *state.Class, contractABI *abi.ABI) (Program, error) {
	return r.in.Load(ctx, class.Code, contractABI)
}

func (r *goRuntime) Close(context.Context) error { return nil }

// wasmRuntime runs WebAssembly modules through wazero
type wasmRuntime struct {
	rt *wasi.Runtime
}

// NewWasmRuntime returns the runtime for wasm classes.
func NewWasmRuntime(ctx context.Context, logger *zap.Logger) (Runtime, error) {
	rt, err := wasi.NewRuntime(ctx, logger)
	if err != nil {
		return nil, err
	}
	return &wasmRuntime{rt: rt}, nil
}

func (r *wasmRuntime) Kind() state.ClassKind { return state.ClassWasm }

func (r *wasmRuntime) Load(ctx context.Context, class *state.Class, contractABI *abi.ABI) (Program, error) {
	return r.rt.Compile(ctx, class.Code, contractABI)
}

func (r *wasmRuntime) Close(ctx context.Context) error {
	return r.rt.Close(ctx)
}
