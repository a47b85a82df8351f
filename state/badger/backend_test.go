package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/state"
	"github.com/govm-net/starksim/state/statetest"
)

func TestConformance(t *testing.T) {
	statetest.Run(t, func(t *testing.T) state.Backend {
		b, err := New("")
		require.NoError(t, err)
		return b
	})
}

func TestDiskReopen(t *testing.T) {
	dir := t.TempDir()

	b, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, b.Commit(&state.Block{
		BlockHeader: state.BlockHeader{Number: 1, Timestamp: 9},
		Storage:     []state.StorageEntry{{Contract: core.One, Key: core.FeltFromUint64(3), Value: core.FeltFromUint64(42)}},
	}))
	require.NoError(t, b.Close())

	b, err = New(dir)
	require.NoError(t, err)
	defer b.Close()

	latest, err := b.LatestBlock()
	require.NoError(t, err)
	assert.Equal(t, state.BlockHeader{Number: 1, Timestamp: 9}, latest)
	v, err := b.Storage(core.One, core.FeltFromUint64(3))
	require.NoError(t, err)
	assert.Equal(t, core.FeltFromUint64(42), v)
}

func TestKeyLayout(t *testing.T) {
	k := storageKey(core.One, core.FeltFromUint64(2))
	require.Len(t, k, 65)
	assert.Equal(t, byte('s'), k[0])
	assert.Equal(t, byte(1), k[32])
	assert.Equal(t, byte(2), k[64])
	assert.Equal(t, []byte{'h'}, headKey())
}
