package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/gateway"
	"github.com/govm-net/starksim/starknet"
)

const (
	initPoolScenario = "../../harness/testdata/scenarios/init_pool.yaml"
	ammContract      = "../../contracts/amm.go"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exit *ExitError
	require.True(t, errors.As(err, &exit), "%v is not an ExitError", err)
	return exit.Code
}

func TestRunScenario(t *testing.T) {
	out, err := run(t, "run", initPoolScenario)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS init_pool")
	assert.Contains(t, out, "1 passed, 0 failed")
}

func TestRunScenarioJSON(t *testing.T) {
	out, err := run(t, "run", "--format", "json", "--parallel", "2",
		initPoolScenario, "../../harness/testdata/scenarios/pool_bounds.yaml")
	require.NoError(t, err)

	var summary RunSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Passed)
	require.Len(t, summary.Scenarios, 2)
	assert.Equal(t, "init_pool", summary.Scenarios[0].Name)
	assert.Equal(t, "pool_bounds", summary.Scenarios[1].Name)
}

func TestRunFailingScenario(t *testing.T) {
	amm, err := filepath.Abs(ammContract)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "wrong.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`name: wrong
contracts:
  - name: amm
    path: `+amm+`
steps:
  - invoke: amm.init_pool
    args: {token_a: 10, token_b: 11}
  - call: amm.get_pool_token_balance
    args: {token_type: 2}
    expect:
      result: [12]
`), 0o644))

	out, err := run(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, exitCode(t, err))
	assert.Contains(t, out, "FAIL wrong")
	assert.Contains(t, out, "result = (11,), want (12,)")
}

func TestRunCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"missing scenario", []string{"run", "missing.yaml"}, "failed to load scenario"},
		{"invalid scenario", []string{"run", "../../harness/testdata/invalid/both_kinds.yaml"}, "invalid scenario"},
		{"bad format", []string{"run", "--format", "xml", initPoolScenario}, "invalid format"},
		{"bad parallelism", []string{"run", "--parallel", "0", initPoolScenario}, "--parallel"},
		{"bad backend", []string{"run", "--backend", "postgres", initPoolScenario}, "unknown backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, exitCode(t, err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestPersistentTransactions(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sim.db")
	state := []string{"--backend", "sqlite", "--db-path", db}

	out, err := run(t, append([]string{"deploy"}, append(state, ammContract)...)...)
	require.NoError(t, err)
	var deployed gateway.DeployResponse
	require.NoError(t, json.Unmarshal([]byte(out), &deployed))
	address := deployed.Address.Hex()

	_, err = run(t, append([]string{"invoke"}, append(state, address, "init_pool", "--arg", "token_a=10", "--arg", "token_b=0xb")...)...)
	require.NoError(t, err)

	out, err = run(t, append([]string{"call"}, append(state, address, "get_pool_token_balance", "--calldata", "2")...)...)
	require.NoError(t, err)
	var info starknet.ExecutionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, []core.Felt{core.FeltFromUint64(11)}, info.Result)

	_, err = run(t, append([]string{"invoke"}, append(state, address, "init_pool", "--arg", "token_a=1073741824", "--arg", "token_b=1")...)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, exitCode(t, err))
	assert.Contains(t, err.Error(), "amount exceeds pool upper bound")

	_, err = run(t, append([]string{"call"}, append(state, address, "get_pool_token_balance", "--arg", "token_type")...)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, exitCode(t, err))

	_, err = run(t, append([]string{"call"}, append(state, address, "swap")...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry point swap not found")
}

func TestDeclare(t *testing.T) {
	out, err := run(t, "declare", ammContract)
	require.NoError(t, err)
	assert.Contains(t, out, `"class_hash": "0x`)

	_, err = run(t, "declare", "missing.go")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, exitCode(t, err))
}

func TestInspect(t *testing.T) {
	out, err := run(t, "inspect", "../../contracts/store.wasm")
	require.NoError(t, err)
	assert.Contains(t, out, "kind:       wasm")
	assert.Contains(t, out, "env.storage_read(i64) -> (i64)")
	assert.Contains(t, out, "set(i64, i64) -> ()")

	out, err = run(t, "inspect", "--json", ammContract)
	require.NoError(t, err)
	var report InspectReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "go", string(report.Kind))
	assert.Nil(t, report.Module)
	_, ok := report.ABI.Lookup("get_pool_token_balance")
	assert.True(t, ok)
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs([]string{"a=1", "b=0x2"})
	require.NoError(t, err)
	assert.Equal(t, "1", args["a"])
	assert.Equal(t, "0x2", args["b"])

	_, err = parseArgs([]string{"a"})
	assert.Error(t, err)
	_, err = parseArgs([]string{"a=1", "a=2"})
	assert.Error(t, err)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCloseAfter(t *testing.T) {
	errClose := errors.New("close failed")
	closed := 0
	c := closerFunc(func() error {
		closed++
		return errClose
	})

	err := closeAfter(c, func() error { return nil })
	assert.ErrorIs(t, err, errClose)

	errRun := errors.New("boom")
	err = closeAfter(c, func() error { return failure("rejected", errRun) })
	assert.ErrorIs(t, err, errRun)
	assert.ErrorIs(t, err, errClose)
	var exit *ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, ExitFailure, exit.Code)
	assert.Equal(t, 2, closed)

	assert.NoError(t, closeAfter(closerFunc(func() error { return nil }), func() error { return nil }))
}
