package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/starknet"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestGoldenScenarios(t *testing.T) {
	for _, name := range []string{"init_pool", "pool_bounds"} {
		t.Run(name, func(t *testing.T) {
			result := RunWithGolden(t, loadScenario(t, name))
			assert.True(t, result.Pass)
		})
	}
}

func TestRunReportsMismatch(t *testing.T) {
	s := loadScenario(t, "init_pool")
	s.Steps[1].Expect.Result = []any{11}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"step 1 (call amm.get_pool_token_balance): result = (10,), want (11,)",
	}, result.Errors)
}

func TestRunReportsRejections(t *testing.T) {
	s := loadScenario(t, "pool_bounds")
	// the first step is expected to be rejected; drop the expectation
	s.Steps[0].Expect = nil
	s.Steps[4].Expect.Reason = "something else"

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"step 0 (invoke amm.init_pool): unexpected rejection: amount exceeds pool upper bound",
		`step 4 (call amm.get_pool_token_balance): rejection reason "unknown token type 3" does not contain "something else"`,
	}, result.Errors)
}

func TestRunArgumentErrors(t *testing.T) {
	s := loadScenario(t, "init_pool")
	s.Steps = []Step{
		{Invoke: "amm.init_pool", Args: map[string]any{"token_a": 1}},
		{Call: "amm.no_such_entry"},
	}

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `missing argument "token_b"`)
	assert.Contains(t, result.Errors[1], "entry point no_such_entry not found")
	assert.NotEmpty(t, result.Trace[1].Error)
}

func TestRunIsIsolated(t *testing.T) {
	// the second run starts from an empty pool
	s := loadScenario(t, "init_pool")
	_, err := Run(context.Background(), s)
	require.NoError(t, err)

	s.Steps = s.Steps[1:2]
	s.Steps[0].Expect.Result = []any{0}
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRunDeployFailure(t *testing.T) {
	s := loadScenario(t, "init_pool")
	s.Contracts[0].Path = "missing.go"

	_, err := Run(context.Background(), s)
	assert.ErrorIs(t, err, starknet.ErrDeploy)
}

func TestTuple(t *testing.T) {
	assert.Equal(t, "()", Tuple(nil))
	assert.Equal(t, "(10,)", Tuple([]core.Felt{core.FeltFromUint64(10)}))
	assert.Equal(t, "(1, 2)", Tuple([]core.Felt{core.One, core.FeltFromUint64(2)}))
}
