package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/govm-net/starksim/starknet"
)

// GoldenDir holds golden traces, one "<scenario name>.golden" file each.
const GoldenDir = "testdata/golden"

// TraceSnapshot is the golden form of a run.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	Trace    []TraceEntry `json:"trace"`
}

// MarshalTrace returns the golden form of result.
func MarshalTrace(result *Result) ([]byte, error) {
	return json.MarshalIndent(TraceSnapshot{Scenario: result.Name, Trace: result.Trace}, "", "  ")
}

// RunWithGolden runs scenario, fails t if the scenario does not pass, and
// compares its trace with the golden file. Regenerate golden files with
// `go test -update`.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...starknet.Option) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	for _, msg := range result.Errors {
		t.Errorf("scenario %s: %s", scenario.Name, msg)
	}
	AssertGolden(t, result)
	return result
}

// AssertGolden compares the trace of an existing result with its golden
// file.
func AssertGolden(t *testing.T, result *Result) {
	t.Helper()

	data, err := MarshalTrace(result)
	if err != nil {
		t.Fatalf("failed to marshal trace: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, result.Name, data)
}
