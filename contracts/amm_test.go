package amm_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/govm-net/starksim/abi"
	amm "github.com/govm-net/starksim/contracts"
	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/starknet"
	"github.com/govm-net/starksim/types"
)

// badger pulls in glog through ristretto, and glog's flush daemon runs for
// the life of the process.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("github.com/golang/glog.(*loggingT).flushDaemon"))
}

// deployPool creates a fresh simulation and deploys the amm contract with
// empty constructor calldata.
func deployPool(t *testing.T) *starknet.Contract {
	t.Helper()
	ctx := context.Background()
	sim, err := starknet.Empty(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, sim.Close()) })

	pool, err := sim.Deploy(ctx, "amm.go", nil)
	require.NoError(t, err)
	return pool
}

func initPool(pool *starknet.Contract, tokenA, tokenB any) (*starknet.ExecutionInfo, error) {
	return pool.Invoke(context.Background(), "init_pool", abi.Args{"token_a": tokenA, "token_b": tokenB})
}

func balance(t *testing.T, pool *starknet.Contract, tokenType uint64) []core.Felt {
	t.Helper()
	info, err := pool.Call(context.Background(), "get_pool_token_balance", abi.Args{"token_type": tokenType})
	require.NoError(t, err)
	return info.Result
}

func felts(vs ...uint64) []core.Felt {
	out := make([]core.Felt, len(vs))
	for i, v := range vs {
		out[i] = core.FeltFromUint64(v)
	}
	return out
}

func TestInitPool(t *testing.T) {
	pool := deployPool(t)

	_, err := initPool(pool, 10, 11)
	require.NoError(t, err)

	if diff := cmp.Diff(felts(10), balance(t, pool, amm.TokenTypeA)); diff != "" {
		t.Errorf("token a balance mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(felts(11), balance(t, pool, amm.TokenTypeB)); diff != "" {
		t.Errorf("token b balance mismatch (-want +got):\n%s", diff)
	}
}

func TestInitPoolEmitsEvent(t *testing.T) {
	pool := deployPool(t)

	info, err := initPool(pool, 10, 11)
	require.NoError(t, err)
	want := []types.Event{{
		From: pool.Address,
		Name: "pool_initialized",
		Keys: []core.Felt{core.Selector("pool_initialized")},
		Data: felts(10, 11),
	}}
	if diff := cmp.Diff(want, info.Events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint64(2), info.Resources.StorageWrites)
}

func TestUninitialisedPoolIsEmpty(t *testing.T) {
	pool := deployPool(t)
	assert.Equal(t, felts(0), balance(t, pool, amm.TokenTypeA))
	assert.Equal(t, felts(0), balance(t, pool, amm.TokenTypeB))
}

func TestPoolsAreIsolated(t *testing.T) {
	first := deployPool(t)
	second := deployPool(t)

	_, err := initPool(first, 10, 11)
	require.NoError(t, err)

	assert.Equal(t, felts(10), balance(t, first, amm.TokenTypeA))
	assert.Equal(t, felts(0), balance(t, second, amm.TokenTypeA))
	assert.Equal(t, felts(0), balance(t, second, amm.TokenTypeB))
}

func TestReinitialiseOverwrites(t *testing.T) {
	pool := deployPool(t)

	_, err := initPool(pool, 10, 11)
	require.NoError(t, err)
	_, err = initPool(pool, 20, 0)
	require.NoError(t, err)

	assert.Equal(t, felts(20), balance(t, pool, amm.TokenTypeA))
	assert.Equal(t, felts(0), balance(t, pool, amm.TokenTypeB))
}

func TestInitPoolBounds(t *testing.T) {
	tests := []struct {
		name   string
		tokenA any
		tokenB any
		ok     bool
	}{
		{"zero", 0, 0, true},
		{"largest", amm.PoolUpperBound - 1, 1, true},
		{"at bound", amm.PoolUpperBound, 1, false},
		{"token b at bound", 1, amm.PoolUpperBound, false},
		{"negative", -1, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := deployPool(t)
			_, err := initPool(pool, tt.tokenA, tt.tokenB)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, starknet.ErrTransactionRejected)
			assert.ErrorContains(t, err, "amount exceeds pool upper bound")
			// a rejected init leaves the pool untouched
			assert.Equal(t, felts(0), balance(t, pool, amm.TokenTypeA))
		})
	}
}

func TestUnknownTokenType(t *testing.T) {
	pool := deployPool(t)

	for _, tokenType := range []uint64{0, 3} {
		_, err := pool.Call(context.Background(), "get_pool_token_balance", abi.Args{"token_type": tokenType})
		assert.ErrorIs(t, err, core.ErrReverted)
		assert.ErrorContains(t, err, "unknown token type")
	}
}
