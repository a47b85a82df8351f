package interpreter

import (
	"context"
	_ "embed"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govm-net/starksim/abi"
	"github.com/govm-net/starksim/api"
	"github.com/govm-net/starksim/core"
)

//go:embed testdata/counter.go
var counterSource []byte

type mapHost struct {
	storage  map[core.Felt]core.Felt
	writeErr error
}

func newMapHost() *mapHost {
	return &mapHost{storage: make(map[core.Felt]core.Felt)}
}

func (h *mapHost) BlockNumber() uint64        { return 1 }
func (h *mapHost) BlockTimestamp() int64      { return 0 }
func (h *mapHost) ContractAddress() core.Felt { return core.One }
func (h *mapHost) CallerAddress() core.Felt   { return core.Zero }
func (h *mapHost) StorageRead(address core.Felt) (core.Felt, error) {
	return h.storage[address], nil
}
func (h *mapHost) StorageWrite(address, value core.Felt) error {
	if h.writeErr != nil {
		return h.writeErr
	}
	h.storage[address] = value
	return nil
}
func (h *mapHost) EmitEvent(string, ...core.Felt) error { return nil }
func (h *mapHost) CallContract(core.Felt, string, []core.Felt) ([]core.Felt, error) {
	return nil, core.ErrUnsupportedSyscall
}

func loadCounter(t *testing.T) (*Program, *abi.ABI) {
	t.Helper()
	contractABI, err := abi.ExtractABI(counterSource)
	require.NoError(t, err)

	in := New(api.DefaultContractConfig().AllowedImports, nil)
	prog, err := in.Load(context.Background(), counterSource, contractABI)
	require.NoError(t, err)
	t.Cleanup(func() { _ = prog.Close(context.Background()) })
	return prog, contractABI
}

func lookup(t *testing.T, a *abi.ABI, name string) *abi.Function {
	t.Helper()
	fn, ok := a.Lookup(name)
	require.True(t, ok, name)
	return fn
}

func TestExecuteStorage(t *testing.T) {
	ctx := context.Background()
	prog, contractABI := loadCounter(t)
	host := newMapHost()

	inc := lookup(t, contractABI, "increment")
	get := lookup(t, contractABI, "get")

	_, err := prog.Execute(ctx, host, inc, []core.Felt{core.FeltFromUint64(5)})
	require.NoError(t, err)
	_, err = prog.Execute(ctx, host, inc, []core.Felt{core.FeltFromUint64(7)})
	require.NoError(t, err)

	out, err := prog.Execute(ctx, host, get, nil)
	require.NoError(t, err)
	assert.Equal(t, []core.Felt{core.FeltFromUint64(12)}, out)
	assert.Equal(t, core.FeltFromUint64(12), host.storage[core.NewStorageVar("count").Address()])
}

func TestExecuteScalarArguments(t *testing.T) {
	ctx := context.Background()
	prog, contractABI := loadCounter(t)
	check := lookup(t, contractABI, "check")

	out, err := prog.Execute(ctx, newMapHost(), check, []core.Felt{core.FeltFromUint64(50), core.Zero})
	require.NoError(t, err)
	assert.Equal(t, []core.Felt{core.One}, out)

	out, err = prog.Execute(ctx, newMapHost(), check, []core.Felt{core.FeltFromUint64(5), core.One})
	require.NoError(t, err)
	assert.Equal(t, []core.Felt{core.Zero}, out)
}

func TestExecuteReverts(t *testing.T) {
	ctx := context.Background()
	prog, contractABI := loadCounter(t)
	check := lookup(t, contractABI, "check")

	_, err := prog.Execute(ctx, newMapHost(), check, []core.Felt{core.FeltFromUint64(500), core.Zero})
	var revert *core.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "limit 500 too large", revert.Reason)

	// plain errors become reverts
	_, err = prog.Execute(ctx, newMapHost(), check, []core.Felt{core.Zero, core.One})
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "limit required", revert.Reason)

	_, err = prog.Execute(ctx, newMapHost(), lookup(t, contractABI, "boom"), nil)
	assert.ErrorIs(t, err, core.ErrReverted)
	assert.Contains(t, err.Error(), "boom")
}

func TestSyscallErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	prog, contractABI := loadCounter(t)

	errNoGas := errors.New("out of gas")
	host := newMapHost()
	host.writeErr = &core.SyscallError{Err: errNoGas}

	_, err := prog.Execute(ctx, host, lookup(t, contractABI, "increment"), []core.Felt{core.One})
	assert.ErrorIs(t, err, errNoGas)
	assert.NotErrorIs(t, err, core.ErrReverted)
}

func TestExecuteArgumentMismatch(t *testing.T) {
	ctx := context.Background()
	prog, contractABI := loadCounter(t)

	_, err := prog.Execute(ctx, newMapHost(), lookup(t, contractABI, "increment"), nil)
	assert.ErrorContains(t, err, "want 1 arguments, got 0")

	_, err = prog.Execute(ctx, newMapHost(), &abi.Function{Name: "missing"}, nil)
	assert.ErrorIs(t, err, core.ErrFunctionNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = prog.Execute(cancelled, newMapHost(), lookup(t, contractABI, "get"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadRejectsDisallowedStdlib(t *testing.T) {
	src := []byte("package x\n\nimport \"os\"\n\nfunc Pid() uint64 { return uint64(os.Getpid()) }\n")
	contractABI, err := abi.ExtractABI(src)
	require.NoError(t, err)

	_, err = New([]string{"errors"}, nil).Load(context.Background(), src, contractABI)
	assert.Error(t, err)
}
