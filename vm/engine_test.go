package vm

import (
	"context"
	_ "embed"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/api"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/repository"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/state/memory"
	"github.com/govm-net/starksim/types"
)

//go:embed testdata/counter.go
var counterCode []byte

//go:embed testdata/proxy.go
var proxyCode []byte

var (
	counterAddr = core.FeltFromUint64(0x100)
	proxyAddr   = core.FeltFromUint64(0x200)
	storeAddr   = core.FeltFromUint64(0x300)
	account     = core.FeltFromUint64(0xacc)
)

type fixture struct {
	engine  *Engine
	overlay *state.Overlay
	loader  *repository.Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	engine, err := NewEngine(ctx, api.DefaultContractConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(ctx) })

	f := &fixture{
		engine:  engine,
		overlay: state.NewOverlay(memory.New()),
		loader:  repository.NewLoader("../contracts", api.DefaultContractConfig(), nil),
	}
	f.deploySource(t, "counter.go", counterCode, counterAddr, core.FeltFromUint64(5))
	f.deploySource(t, "proxy.go", proxyCode, proxyAddr)
	return f
}

func (f *fixture) deploySource(t *testing.T, name string, code []byte, address core.Felt, calldata ...core.Felt) {
	t.Helper()
	art, err := f.loader.LoadSource(name, code)
	require.NoError(t, err)
	f.deploy(t, art, address, calldata...)
}

func (f *fixture) deploy(t *testing.T, art *repository.Artifact, address core.Felt, calldata ...core.Felt) {
	t.Helper()
	f.overlay.DeclareClass(art.Class)
	require.NoError(t, f.overlay.DeployContract(state.Contract{Address: address, ClassHash: art.Class.Hash}))
	if _, ok := art.ABI.Constructor(); ok {
		_, err := f.engine.Execute(context.Background(), Tx{Type: types.TxDeploy, Caller: account}, f.overlay, address, "constructor", calldata)
		require.NoError(t, err)
	}
}

func (f *fixture) invoke(contract core.Felt, entryPoint string, calldata ...core.Felt) (*Result, error) {
	tx := Tx{Type: types.TxInvoke, Caller: account, Block: state.BlockHeader{Number: 1}}
	return f.engine.Execute(context.Background(), tx, f.overlay, contract, entryPoint, calldata)
}

func (f *fixture) count(t *testing.T) core.Felt {
	t.Helper()
	res, err := f.invoke(counterAddr, "get")
	require.NoError(t, err)
	require.Len(t, res.Result, 1)
	return res.Result[0]
}

func TestExecuteInvoke(t *testing.T) {
	f := newFixture(t)

	res, err := f.invoke(counterAddr, "increment", core.FeltFromUint64(3))
	require.NoError(t, err)
	assert.Empty(t, res.Result)
	assert.Equal(t, []types.Event{{
		From: counterAddr,
		Name: "incremented",
		Keys: []core.Felt{core.Selector("incremented")},
		Data: []core.Felt{core.FeltFromUint64(3)},
	}}, res.Events)
	assert.Equal(t, types.ExecutionResources{
		GasUsed:       GasEntryPoint + GasStorageRead + GasStorageWrite + GasEvent,
		StorageReads:  1,
		StorageWrites: 1,
		Events:        1,
		Calls:         1,
	}, res.Resources)

	assert.Equal(t, core.FeltFromUint64(8), f.count(t))
}

func TestExecuteEntryPointErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoke(counterAddr, "missing")
	assert.ErrorIs(t, err, ErrEntryPointNotFound)

	_, err = f.invoke(counterAddr, "constructor", core.One)
	assert.ErrorIs(t, err, ErrEntryPointNotFound)

	_, err = f.invoke(counterAddr, "increment")
	assert.ErrorIs(t, err, abi.ErrCalldataLength)

	_, err = f.invoke(core.FeltFromUint64(0xdead), "get")
	assert.ErrorIs(t, err, state.ErrContractNotFound)
}

func TestWriteInView(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoke(counterAddr, "poke")
	assert.ErrorIs(t, err, ErrWriteInView)

	// views stay read-only through nested calls
	_, err = f.invoke(proxyAddr, "forward_in_view", counterAddr)
	assert.ErrorIs(t, err, ErrWriteInView)
	assert.Equal(t, core.FeltFromUint64(5), f.count(t))
}

func TestNestedCall(t *testing.T) {
	f := newFixture(t)

	res, err := f.invoke(proxyAddr, "forward", counterAddr, core.FeltFromUint64(2))
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, counterAddr, res.Events[0].From)
	assert.Equal(t, uint64(2), res.Resources.Calls)
	assert.Equal(t, core.FeltFromUint64(7), f.count(t))

	res, err = f.invoke(proxyAddr, "read_count", counterAddr)
	require.NoError(t, err)
	assert.Equal(t, []core.Felt{core.FeltFromUint64(7)}, res.Result)
}

func TestNestedRevertIsIsolated(t *testing.T) {
	f := newFixture(t)

	res, err := f.invoke(proxyAddr, "try_increment", counterAddr, core.FeltFromUint64(9))
	require.NoError(t, err)
	assert.Equal(t, []core.Felt{core.Zero}, res.Result)
	assert.Empty(t, res.Events)
	assert.Equal(t, core.FeltFromUint64(5), f.count(t))
}

func TestCallerAddress(t *testing.T) {
	f := newFixture(t)

	res, err := f.invoke(counterAddr, "caller")
	require.NoError(t, err)
	assert.Equal(t, []core.Felt{account}, res.Result)

	res, err = f.invoke(proxyAddr, "who_calls", counterAddr)
	require.NoError(t, err)
	assert.Equal(t, []core.Felt{proxyAddr}, res.Result)
}

func TestCallDepthExceeded(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoke(proxyAddr, "recurse")
	assert.ErrorIs(t, err, ErrCallDepthExceeded)
	assert.NotErrorIs(t, err, core.ErrReverted)
	// the error names the frames that were active
	assert.Contains(t, err.Error(), "from "+proxyAddr.Hex()+".recurse > "+proxyAddr.Hex()+".recurse")
}

func TestOutOfGas(t *testing.T) {
	f := newFixture(t)

	tx := Tx{Type: types.TxInvoke, Caller: account, MaxGas: GasEntryPoint + GasStorageRead}
	_, err := f.engine.Execute(context.Background(), tx, f.overlay, counterAddr, "increment", []core.Felt{core.One})
	assert.ErrorIs(t, err, ErrOutOfGas)
}

func TestFailureLogReportsGas(t *testing.T) {
	ctx := context.Background()
	obs, logs := observer.New(zap.DebugLevel)
	f := newFixture(t)
	engine, err := NewEngine(ctx, api.DefaultContractConfig(), zap.New(obs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(ctx) })

	tx := Tx{Type: types.TxInvoke, Caller: account, MaxGas: GasEntryPoint + GasStorageRead + 5}
	_, err = engine.Execute(ctx, tx, f.overlay, counterAddr, "increment", []core.Felt{core.One})
	require.ErrorIs(t, err, ErrOutOfGas)

	failed := logs.FilterMessage("execution failed").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, GasEntryPoint+GasStorageRead, fields["gas_used"])
	assert.Equal(t, uint64(5), fields["gas_remaining"])
}

func TestCancelledExecution(t *testing.T) {
	f := newFixture(t)
	f.count(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Execute(ctx, Tx{Type: types.TxInvoke}, f.overlay, counterAddr, "get", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteWasm(t *testing.T) {
	f := newFixture(t)
	art, err := f.loader.Load("store.wasm")
	require.NoError(t, err)
	f.deploy(t, art, storeAddr)

	res, err := f.invoke(storeAddr, "set", core.FeltFromUint64(1), core.FeltFromUint64(42))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Resources.StorageWrites)

	res, err = f.invoke(storeAddr, "get", core.FeltFromUint64(1))
	require.NoError(t, err)
	assert.Equal(t, []core.Felt{core.FeltFromUint64(42)}, res.Result)

	contractABI, err := f.engine.Resolve(context.Background(), f.overlay, storeAddr)
	require.NoError(t, err)
	assert.Equal(t, "store", contractABI.PackageName)
}

func TestEngineClosed(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, api.DefaultContractConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, engine.Close(ctx))
	require.NoError(t, engine.Close(ctx))

	overlay := state.NewOverlay(memory.New())
	art, err := repository.NewLoader("", api.DefaultContractConfig(), nil).LoadSource("counter.go", counterCode)
	require.NoError(t, err)
	overlay.DeclareClass(art.Class)
	require.NoError(t, overlay.DeployContract(state.Contract{Address: counterAddr, ClassHash: art.Class.Hash}))

	_, err = engine.Execute(ctx, Tx{Type: types.TxInvoke}, overlay, counterAddr, "get", nil)
	assert.ErrorIs(t, err, ErrEngineClosed)
}
