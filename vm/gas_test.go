package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govm-net/starksim/core"
)

func TestGasMeter(t *testing.T) {
	g := NewGasMeter(100)
	require.NoError(t, g.Consume(60))
	assert.Equal(t, uint64(40), g.Remaining())

	err := g.Consume(50)
	assert.ErrorIs(t, err, ErrOutOfGas)
	assert.Equal(t, uint64(60), g.Used(), "failed consume charges nothing")
	assert.Equal(t, uint64(40), g.Remaining())
}

func TestGasMeterUnlimited(t *testing.T) {
	g := NewGasMeter(0)
	require.NoError(t, g.Consume(1<<40))
	assert.Equal(t, uint64(1<<40), g.Used())
	assert.Zero(t, g.Remaining())
}

func TestCallStack(t *testing.T) {
	s := NewCallStack(2)
	assert.Empty(t, s.Trace())

	require.NoError(t, s.Enter(CallFrame{Contract: core.One, EntryPoint: "a"}))
	require.NoError(t, s.Enter(CallFrame{Contract: core.FeltFromUint64(2), Caller: core.One, EntryPoint: "b"}))
	err := s.Enter(CallFrame{Contract: core.FeltFromUint64(3), EntryPoint: "c"})
	assert.ErrorIs(t, err, ErrCallDepthExceeded)
	assert.EqualError(t, err, "call depth exceeded: max depth 2, calling 0x3.c from 0x1.a > 0x2.b")

	frames := s.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, "b", frames[1].EntryPoint)
	frames[0].EntryPoint = "changed"
	assert.Equal(t, "0x1.a > 0x2.b", s.Trace())

	s.Exit()
	s.Exit()
	s.Exit()
	assert.Zero(t, s.Depth())
}
