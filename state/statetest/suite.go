// Package statetest holds the conformance suite every state backend must
// pass.
package statetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/types"
)

// Opener returns a fresh, empty backend. The suite closes it.
type Opener func(t *testing.T) state.Backend

var (
	classHash = core.FeltFromUint64(0xc1a55)
	contractA = core.FeltFromUint64(0xa)
	contractB = core.FeltFromUint64(0xb)
	keyOne    = core.FeltFromUint64(1)
	keyTwo    = core.FeltFromUint64(2)
)

func testClass() state.Class {
	return state.Class{
		Hash: classHash,
		Kind: state.ClassGo,
		Path: "contracts/amm.go",
		Code: []byte("package amm\n"),
		ABI:  []byte(`{"functions":[]}`),
	}
}

func testReceipt(block uint64) types.Receipt {
	return types.Receipt{
		TxHash:      core.FeltFromUint64(0x7700 + block),
		BlockNumber: block,
		Type:        types.TxInvoke,
		Contract:    contractA,
		EntryPoint:  "init_pool",
		Calldata:    []core.Felt{core.FeltFromUint64(10), core.FeltFromUint64(11)},
		Result:      []core.Felt{},
		Events: []types.Event{{
			From: contractA,
			Name: "pool_initialized",
			Keys: []core.Felt{core.Selector("pool_initialized")},
			Data: []core.Felt{core.FeltFromUint64(10), core.FeltFromUint64(11)},
		}},
		Resources: types.ExecutionResources{GasUsed: 140, StorageWrites: 2, Events: 1},
	}
}

func genesisBlock() *state.Block {
	return &state.Block{
		BlockHeader: state.BlockHeader{Number: 1, Timestamp: 1000},
		Classes:     []state.Class{testClass()},
		Contracts:   []state.Contract{{Address: contractA, ClassHash: classHash, DeployedAt: 1}},
		Storage: []state.StorageEntry{
			{Contract: contractA, Key: keyOne, Value: core.FeltFromUint64(10)},
			{Contract: contractA, Key: keyTwo, Value: core.FeltFromUint64(11)},
		},
		Receipts: []types.Receipt{testReceipt(1)},
	}
}

// Run executes the suite against backends produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, b state.Backend)
	}{
		{"Empty", testEmpty},
		{"CommitAndRead", testCommitAndRead},
		{"BlockOrder", testBlockOrder},
		{"DuplicateContract", testDuplicateContract},
		{"RedeclareClass", testRedeclareClass},
		{"OverwriteStorage", testOverwriteStorage},
		{"Overlay", testOverlay},
		{"Closed", testClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := open(t)
			t.Cleanup(func() { _ = b.Close() })
			tt.fn(t, b)
		})
	}
}

func testEmpty(t *testing.T, b state.Backend) {
	latest, err := b.LatestBlock()
	require.NoError(t, err)
	assert.Equal(t, state.BlockHeader{}, latest)

	v, err := b.Storage(contractA, keyOne)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = b.Class(classHash)
	assert.ErrorIs(t, err, state.ErrClassNotFound)
	_, err = b.Contract(contractA)
	assert.ErrorIs(t, err, state.ErrContractNotFound)
	_, err = b.Receipt(core.One)
	assert.ErrorIs(t, err, state.ErrReceiptNotFound)
}

func testCommitAndRead(t *testing.T, b state.Backend) {
	require.NoError(t, b.Commit(genesisBlock()))

	latest, err := b.LatestBlock()
	require.NoError(t, err)
	assert.Equal(t, state.BlockHeader{Number: 1, Timestamp: 1000}, latest)

	class, err := b.Class(classHash)
	require.NoError(t, err)
	assert.Equal(t, testClass(), *class)

	contract, err := b.Contract(contractA)
	require.NoError(t, err)
	assert.Equal(t, state.Contract{Address: contractA, ClassHash: classHash, DeployedAt: 1}, *contract)

	v, err := b.Storage(contractA, keyOne)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(10), v)
	v, err = b.Storage(contractA, keyTwo)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(11), v)

	// other contracts do not see the slot
	v, err = b.Storage(contractB, keyOne)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	want := testReceipt(1)
	receipt, err := b.Receipt(want.TxHash)
	require.NoError(t, err)
	assert.Equal(t, want, *receipt)
}

func testBlockOrder(t *testing.T, b state.Backend) {
	block := genesisBlock()
	block.Number = 2
	assert.ErrorIs(t, b.Commit(block), state.ErrBlockOutOfOrder)

	require.NoError(t, b.Commit(genesisBlock()))
	assert.ErrorIs(t, b.Commit(genesisBlock()), state.ErrBlockOutOfOrder)
}

func testDuplicateContract(t *testing.T, b state.Backend) {
	require.NoError(t, b.Commit(genesisBlock()))

	err := b.Commit(&state.Block{
		BlockHeader: state.BlockHeader{Number: 2, Timestamp: 1001},
		Contracts:   []state.Contract{{Address: contractA, ClassHash: classHash, DeployedAt: 2}},
		Storage:     []state.StorageEntry{{Contract: contractA, Key: keyOne, Value: core.FeltFromUint64(99)}},
	})
	assert.ErrorIs(t, err, state.ErrContractExists)

	// nothing from the rejected block is visible
	latest, err := b.LatestBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), latest.Number)
	v, err := b.Storage(contractA, keyOne)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(10), v)
}

func testRedeclareClass(t *testing.T, b state.Backend) {
	require.NoError(t, b.Commit(genesisBlock()))

	other := testClass()
	other.Path = "elsewhere/amm.go"
	require.NoError(t, b.Commit(&state.Block{
		BlockHeader: state.BlockHeader{Number: 2, Timestamp: 1001},
		Classes:     []state.Class{other},
		Contracts:   []state.Contract{{Address: contractB, ClassHash: classHash, DeployedAt: 2}},
	}))

	class, err := b.Class(classHash)
	require.NoError(t, err)
	assert.Equal(t, "contracts/amm.go", class.Path)

	contract, err := b.Contract(contractB)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), contract.DeployedAt)
}

func testOverwriteStorage(t *testing.T, b state.Backend) {
	require.NoError(t, b.Commit(genesisBlock()))
	require.NoError(t, b.Commit(&state.Block{
		BlockHeader: state.BlockHeader{Number: 2, Timestamp: 1001},
		Storage:     []state.StorageEntry{{Contract: contractA, Key: keyOne, Value: core.FeltFromUint64(20)}},
		Receipts:    []types.Receipt{testReceipt(2)},
	}))

	v, err := b.Storage(contractA, keyOne)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(20), v)
	v, err = b.Storage(contractA, keyTwo)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(11), v)

	r, err := b.Receipt(testReceipt(2).TxHash)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r.BlockNumber)
}

func testOverlay(t *testing.T, b state.Backend) {
	require.NoError(t, b.Commit(genesisBlock()))

	o := state.NewOverlay(b)
	o.SetStorage(contractA, keyOne, core.FeltFromUint64(30))
	snap := o.Snapshot()
	o.SetStorage(contractA, keyTwo, core.FeltFromUint64(40))
	o.SetStorage(contractA, keyOne, core.FeltFromUint64(50))

	v, err := o.Storage(contractA, keyOne)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(50), v)

	o.RevertTo(snap)
	v, err = o.Storage(contractA, keyOne)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(30), v)
	v, err = o.Storage(contractA, keyTwo)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(11), v, "reverted write falls back to the backend")

	err = o.DeployContract(state.Contract{Address: contractA, ClassHash: classHash})
	assert.ErrorIs(t, err, state.ErrContractExists)
	err = o.DeployContract(state.Contract{Address: contractB, ClassHash: core.FeltFromUint64(404)})
	assert.ErrorIs(t, err, state.ErrClassNotFound)
	require.NoError(t, o.DeployContract(state.Contract{Address: contractB, ClassHash: classHash, DeployedAt: 2}))
	o.SetStorage(contractB, keyTwo, core.FeltFromUint64(7))
	o.SetStorage(contractB, keyOne, core.FeltFromUint64(6))

	// the backend is untouched until commit
	_, err = b.Contract(contractB)
	assert.ErrorIs(t, err, state.ErrContractNotFound)
	v, err = b.Storage(contractA, keyOne)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(10), v)

	assert.Equal(t, []state.StorageEntry{
		{Contract: contractA, Key: keyOne, Value: core.FeltFromUint64(30)},
		{Contract: contractB, Key: keyOne, Value: core.FeltFromUint64(6)},
		{Contract: contractB, Key: keyTwo, Value: core.FeltFromUint64(7)},
	}, o.Diff())

	require.NoError(t, b.Commit(o.Block(state.BlockHeader{Number: 2, Timestamp: 1001})))
	v, err = b.Storage(contractB, keyOne)
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(6), v)
	_, err = b.Contract(contractB)
	require.NoError(t, err)
}

func testClosed(t *testing.T, b state.Backend) {
	require.NoError(t, b.Close())
	_, err := b.LatestBlock()
	assert.Error(t, err)
}
