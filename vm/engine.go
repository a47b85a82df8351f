// Package vm executes contract entry points against an overlay of chain
// state. It dispatches classes to their runtime, provides the syscall
// context, and enforces gas, call depth and view restrictions.
package vm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/api"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/repository"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/types"
)

var (
	ErrEntryPointNotFound = errors.New("entry point not found")
	ErrUnknownClassKind   = errors.New("unknown class kind")
	ErrEngineClosed       = errors.New("engine closed")
)

// Overlay is the mutable view of state an execution works on.
type Overlay interface {
	state.Reader
	SetStorage(contract, key, value core.Felt)
	Snapshot() int
	RevertTo(snapshot int)
}

// Tx describes the transaction an execution belongs to.
type Tx struct {
	Type   types.TxType
	Caller core.Felt
	Block  state.BlockHeader
	// MaxGas overrides the engine limit when non-zero.
	MaxGas uint64
}

// Result is the outcome of a successful top-level execution.
type Result struct {
	Result    []core.Felt
	Events    []types.Event
	Resources types.ExecutionResources
}

type loadedClass struct {
	abi     *abi.ABI
	program Program
}

// Engine executes entry points. Loaded programs are cached per class hash.
type Engine struct {
	config   api.ContractConfig
	logger   *zap.Logger
	runtimes map[state.ClassKind]Runtime

	mu      sync.Mutex
	classes map[core.Felt]*loadedClass
	closed  bool
}

// NewEngine creates an engine with the Go and wasm runtimes.
func NewEngine(ctx context.Context, config api.ContractConfig, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wasm, err := NewWasmRuntime(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create wasm runtime: %w", err)
	}
	return NewEngineWithRuntimes(config, logger, NewGoRuntime(config.AllowedImports, logger), wasm), nil
}

// NewEngineWithRuntimes creates an engine with the given runtimes.
func NewEngineWithRuntimes(config api.ContractConfig, logger *zap.Logger, runtimes ...Runtime) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		config:   config,
		logger:   logger,
		runtimes: make(map[state.ClassKind]Runtime, len(runtimes)),
		classes:  make(map[core.Felt]*loadedClass),
	}
	for _, rt := range runtimes {
		e.runtimes[rt.Kind()] = rt
	}
	return e
}

// Config returns the contract configuration of the engine.
func (e *Engine) Config() api.ContractConfig {
	return e.config
}

// Execute runs entryPoint of contract with calldata as the outermost call
// of tx. Writes land in overlay; on error the caller must discard it.
func (e *Engine) Execute(ctx context.Context, tx Tx, overlay Overlay, contract core.Felt, entryPoint string, calldata []core.Felt) (*Result, error) {
	limit := tx.MaxGas
	if limit == 0 {
		limit = e.config.MaxGas
	}
	exec := &execution{
		ctx:     ctx,
		engine:  e,
		tx:      tx,
		overlay: overlay,
		gas:     NewGasMeter(limit),
		stack:   NewCallStack(int(e.config.MaxCallDepth)),
	}

	result, err := exec.call(contract, entryPoint, calldata, tx.Caller, false)
	exec.resources.GasUsed = exec.gas.Used()
	if err != nil {
		e.logger.Debug("execution failed",
			zap.String("contract", contract.Hex()),
			zap.String("entry_point", entryPoint),
			zap.Uint64("gas_used", exec.resources.GasUsed),
			zap.Uint64("gas_remaining", exec.gas.Remaining()),
			zap.Error(err),
		)
		return nil, err
	}
	return &Result{
		Result:    result,
		Events:    exec.events,
		Resources: exec.resources,
	}, nil
}

// Resolve returns the ABI of the class deployed at contract.
func (e *Engine) Resolve(ctx context.Context, reader state.Reader, contract core.Felt) (*abi.ABI, error) {
	c, err := reader.Contract(contract)
	if err != nil {
		return nil, err
	}
	loaded, err := e.load(ctx, reader, c.ClassHash)
	if err != nil {
		return nil, err
	}
	return loaded.abi, nil
}

// call runs one frame. view is inherited from the calling frame.
func (x *execution) call(contract core.Felt, entryPoint string, calldata []core.Felt, caller core.Felt, view bool) ([]core.Felt, error) {
	c, err := x.overlay.Contract(contract)
	if err != nil {
		return nil, err
	}
	loaded, err := x.engine.load(x.ctx, x.overlay, c.ClassHash)
	if err != nil {
		return nil, err
	}

	fn, ok := loaded.abi.Lookup(entryPoint)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrEntryPointNotFound, entryPoint, contract.Hex())
	}
	if fn.Kind == abi.KindConstructor && (x.tx.Type != types.TxDeploy || x.stack.Depth() > 0) {
		return nil, fmt.Errorf("%w: constructor of %s is not callable", ErrEntryPointNotFound, contract.Hex())
	}
	if err := fn.CheckCalldata(calldata); err != nil {
		return nil, err
	}

	frame := CallFrame{
		Contract:   contract,
		Caller:     caller,
		EntryPoint: fn.Name,
		View:       view || fn.Kind == abi.KindView,
	}
	if err := x.stack.Enter(frame); err != nil {
		return nil, err
	}
	defer x.stack.Exit()

	if err := x.charge(GasEntryPoint); err != nil {
		return nil, err
	}
	x.resources.Calls++

	host := &hostContext{exec: x, frame: frame}
	result, err := loaded.program.Execute(x.ctx, host, fn, calldata)
	if err != nil {
		return nil, err
	}
	if err := fn.CheckResult(result); err != nil {
		return nil, err
	}
	return result, nil
}

// load returns the cached program of a class, loading it on first use.
func (e *Engine) load(ctx context.Context, reader state.Reader, classHash core.Felt) (*loadedClass, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if loaded, ok := e.classes[classHash]; ok {
		return loaded, nil
	}

	class, err := reader.Class(classHash)
	if err != nil {
		return nil, err
	}
	rt, ok := e.runtimes[class.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClassKind, class.Kind)
	}
	contractABI, err := repository.DecodeABI(class)
	if err != nil {
		return nil, err
	}
	program, err := rt.Load(ctx, class, contractABI)
	if err != nil {
		return nil, fmt.Errorf("failed to load class %s: %w", classHash.Hex(), err)
	}
	loaded := &loadedClass{abi: contractABI, program: program}
	e.classes[classHash] = loaded
	e.logger.Debug("class loaded", zap.String("class_hash", classHash.Hex()), zap.String("kind", string(class.Kind)))
	return loaded, nil
}

// Close releases every loaded program and the runtimes.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var err error
	for _, loaded := range e.classes {
		err = multierr.Append(err, loaded.program.Close(ctx))
	}
	for _, rt := range e.runtimes {
		err = multierr.Append(err, rt.Close(ctx))
	}
	e.classes = nil
	return err
}
