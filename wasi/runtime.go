// Package wasi runs WebAssembly contract classes on wazero. Contracts talk to
// the simulator through the host module "env":
//
//	storage_read(key i64) i64
//	storage_write(key i64, value i64)
//	emit_event(event i64, data i64)
//	caller_address() i64
//
// Values crossing the boundary are 64-bit; felts that do not fit abort the
// execution with core.ErrValueOutOfRange.
package wasi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/core"
)

// HostModule is the import namespace of the syscalls.
const HostModule = "env"

type frameKey struct{}

// frame is the per-execution state reachable from host functions.
type frame struct {
	host core.Context
	abi  *abi.ABI
	err  error
}

// fail records err and unwinds the guest.
func (f *frame) fail(err error) {
	if f.err == nil {
		f.err = err
	}
	panic(err)
}

func frameFrom(ctx context.Context) *frame {
	f, _ := ctx.Value(frameKey{}).(*frame)
	if f == nil {
		panic(errors.New("syscall outside of a contract execution"))
	}
	return f
}

// Runtime compiles wasm classes and executes their entry points
type Runtime struct {
	runtime wazero.Runtime
	logger  *zap.Logger
	mu      sync.Mutex
	closed  bool
}

// NewRuntime creates a wazero runtime with the host module instantiated.
func NewRuntime(ctx context.Context, logger *zap.Logger) (*Runtime, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	// modules produced by TinyGo import WASI even when they never use it
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasi: %w", err)
	}

	builder := r.NewHostModuleBuilder(HostModule)
	builder.NewFunctionBuilder().
		WithFunc(storageRead).
		Export("storage_read")
	builder.NewFunctionBuilder().
		WithFunc(storageWrite).
		Export("storage_write")
	builder.NewFunctionBuilder().
		WithFunc(emitEvent).
		Export("emit_event")
	builder.NewFunctionBuilder().
		WithFunc(callerAddress).
		Export("caller_address")
	if _, err := builder.Instantiate(ctx); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	return &Runtime{runtime: r, logger: logger}, nil
}

func toU64(f *frame, v core.Felt) uint64 {
	if !v.IsUint64() {
		f.fail(fmt.Errorf("%w: %s does not fit in 64 bits", core.ErrValueOutOfRange, v))
	}
	return v.Uint64()
}

func storageRead(ctx context.Context, key uint64) uint64 {
	f := frameFrom(ctx)
	v, err := f.host.StorageRead(core.FeltFromUint64(key))
	if err != nil {
		f.fail(err)
	}
	return toU64(f, v)
}

func storageWrite(ctx context.Context, key, value uint64) {
	f := frameFrom(ctx)
	if err := f.host.StorageWrite(core.FeltFromUint64(key), core.FeltFromUint64(value)); err != nil {
		f.fail(err)
	}
}

// emitEvent emits the event declared at index event in the class ABI with
// one data element.
func emitEvent(ctx context.Context, event, data uint64) {
	f := frameFrom(ctx)
	if event >= uint64(len(f.abi.Events)) {
		f.fail(fmt.Errorf("%w: event index %d not declared", core.ErrInvalidArgument, event))
	}
	if err := f.host.EmitEvent(f.abi.Events[event].Name, core.FeltFromUint64(data)); err != nil {
		f.fail(err)
	}
}

func callerAddress(ctx context.Context) uint64 {
	f := frameFrom(ctx)
	return toU64(f, f.host.CallerAddress())
}

// Program is a compiled wasm class
type Program struct {
	rt       *Runtime
	compiled wazero.CompiledModule
	abi      *abi.ABI
}

// Compile validates and compiles code. Every ABI entry point must be
// exported with a matching i64 signature.
func (r *Runtime) Compile(ctx context.Context, code []byte, contractABI *abi.ABI) (*Program, error) {
	compiled, err := r.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to compile WebAssembly module: %w", err)
	}

	exports := compiled.ExportedFunctions()
	for _, fn := range contractABI.Functions {
		def, ok := exports[fn.Name]
		if !ok {
			_ = compiled.Close(ctx)
			return nil, fmt.Errorf("entry point %q is not exported", fn.Name)
		}
		if len(def.ParamTypes()) != len(fn.Inputs) || len(def.ResultTypes()) != len(fn.Outputs) {
			_ = compiled.Close(ctx)
			return nil, fmt.Errorf("entry point %q: export signature does not match abi", fn.Name)
		}
	}
	return &Program{rt: r, compiled: compiled, abi: contractABI}, nil
}

// Execute instantiates the module and calls fn with calldata.
func (p *Program) Execute(ctx context.Context, host core.Context, fn *abi.Function, calldata []core.Felt) ([]core.Felt, error) {
	f := &frame{host: host, abi: p.abi}
	ctx = context.WithValue(ctx, frameKey{}, f)

	mod, err := p.rt.runtime.InstantiateModule(ctx, p.compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions("_initialize"))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer mod.Close(ctx)

	export := mod.ExportedFunction(fn.Name)
	if export == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrFunctionNotFound, fn.Name)
	}

	params := make([]uint64, len(calldata))
	for i, v := range calldata {
		if !v.IsUint64() {
			return nil, fmt.Errorf("%w: argument %d does not fit in 64 bits", core.ErrValueOutOfRange, i)
		}
		params[i] = v.Uint64()
	}

	results, err := export.Call(ctx, params...)
	if f.err != nil {
		return nil, f.err
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.rt.logger.Debug("wasm trap", zap.String("entry_point", fn.Name), zap.Error(err))
		return nil, core.Revertf("wasm trap in %s: %v", fn.Name, err)
	}

	out := make([]core.Felt, len(results))
	for i, v := range results {
		out[i] = core.FeltFromUint64(v)
	}
	return out, nil
}

// Close releases the compiled module.
func (p *Program) Close(ctx context.Context) error {
	return p.compiled.Close(ctx)
}

// Close releases the runtime and every module compiled by it.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.runtime.Close(ctx)
}
