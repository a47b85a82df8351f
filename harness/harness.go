// Package harness runs YAML contract scenarios: each scenario gets a fresh
// simulation, deploys its contracts, then invokes and calls entry points
// and checks what they return.
package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/govm-net/starksim/core"
	"github.com/govm-net/starksim/starknet"
	"github.com/govm-net/starksim/types"
)

// Trace entry kinds.
const (
	KindDeploy = "deploy"
	KindInvoke = "invoke"
	KindCall   = "call"
)

// TraceEntry records one deployment or step. Transaction hashes are left
// out so traces compare across runs.
type TraceEntry struct {
	Seq      int          `json:"seq"`
	Kind     string       `json:"kind"`
	Target   string       `json:"target"`
	Calldata []string     `json:"calldata"`
	Result   []string     `json:"result,omitempty"`
	Events   []TraceEvent `json:"events,omitempty"`
	Rejected bool         `json:"rejected,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// TraceEvent is an emitted event in a trace.
type TraceEvent struct {
	Name string   `json:"name"`
	Data []string `json:"data"`
}

// Result is the outcome of a scenario run.
type Result struct {
	Name   string       `json:"name"`
	Pass   bool         `json:"pass"`
	Errors []string     `json:"errors,omitempty"`
	Trace  []TraceEntry `json:"trace"`
}

func (r *Result) fail(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) record(entry TraceEntry) *TraceEntry {
	entry.Seq = len(r.Trace)
	r.Trace = append(r.Trace, entry)
	return &r.Trace[len(r.Trace)-1]
}

// Run executes scenario in a new simulation. The returned error reports
// failures to set the scenario up (bad scenario, simulation or deployment
// failure); assertion failures are reported in Result. Failing to close the
// simulation is reported alongside the result.
func Run(ctx context.Context, scenario *Scenario, opts ...starknet.Option) (result *Result, err error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	opts = append([]starknet.Option{starknet.WithBaseDir(scenario.BaseDir)}, opts...)
	sim, err := starknet.Empty(ctx, opts...)
	if err != nil {
		return nil, err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(sim))

	result = &Result{Name: scenario.Name, Pass: true, Trace: []TraceEntry{}}
	contracts := make(map[string]*starknet.Contract, len(scenario.Contracts))
	for _, cs := range scenario.Contracts {
		calldata, err := toFelts(cs.ConstructorCalldata)
		if err != nil {
			return nil, fmt.Errorf("contract %s: constructor calldata: %w", cs.Name, err)
		}
		c, err := sim.Deploy(ctx, cs.Path, calldata)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", cs.Name, err)
		}
		contracts[cs.Name] = c
		result.record(TraceEntry{
			Kind:     KindDeploy,
			Target:   cs.Name,
			Calldata: core.FeltsToStrings(calldata),
			Events:   traceEvents(c.DeployReceipt.Events),
		})
	}

	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		runStep(ctx, result, i, step, contracts)
	}
	return result, nil
}

func runStep(ctx context.Context, result *Result, index int, step Step, contracts map[string]*starknet.Contract) {
	name, entryPoint, _ := splitTarget(step.Target())
	entry := result.record(TraceEntry{Kind: step.Kind(), Target: step.Target(), Calldata: []string{}})
	label := fmt.Sprintf("step %d (%s %s)", index, step.Kind(), step.Target())

	contract := contracts[name]
	fn, ok := contract.ABI.Lookup(entryPoint)
	if !ok {
		entry.Error = fmt.Sprintf("entry point %s not found", entryPoint)
		result.fail("%s: %s", label, entry.Error)
		return
	}
	calldata, err := fn.EncodeArgs(step.Args)
	if err != nil {
		entry.Error = err.Error()
		result.fail("%s: %s", label, entry.Error)
		return
	}
	entry.Calldata = core.FeltsToStrings(calldata)

	var info *starknet.ExecutionInfo
	if step.Invoke != "" {
		info, err = contract.InvokeRaw(ctx, fn.Name, calldata)
	} else {
		info, err = contract.CallRaw(ctx, fn.Name, calldata)
	}

	expect := step.Expect
	if expect == nil {
		expect = &Expect{}
	}
	if err != nil {
		reason, rejected := rejection(err)
		if !rejected {
			entry.Error = err.Error()
			result.fail("%s: %s", label, entry.Error)
			return
		}
		entry.Rejected = true
		entry.Reason = reason
		switch {
		case !expect.Rejected:
			result.fail("%s: unexpected rejection: %s", label, reason)
		case !strings.Contains(reason, expect.Reason):
			result.fail("%s: rejection reason %q does not contain %q", label, reason, expect.Reason)
		}
		return
	}

	entry.Result = core.FeltsToStrings(info.Result)
	entry.Events = traceEvents(info.Events)
	if expect.Rejected {
		result.fail("%s: expected rejection, got result %s", label, Tuple(info.Result))
		return
	}
	if expect.Result != nil {
		want, err := toFelts(expect.Result)
		if err != nil {
			result.fail("%s: expected result: %v", label, err)
		} else if !equalFelts(want, info.Result) {
			result.fail("%s: result = %s, want %s", label, Tuple(info.Result), Tuple(want))
		}
	}
	if expect.Events != nil {
		checkEvents(result, label, expect.Events, info.Events)
	}
}

func checkEvents(result *Result, label string, want []EventExpect, got []types.Event) {
	if len(want) != len(got) {
		result.fail("%s: got %d events, want %d", label, len(got), len(want))
		return
	}
	for i, w := range want {
		if got[i].Name != w.Name {
			result.fail("%s: event %d is %q, want %q", label, i, got[i].Name, w.Name)
			continue
		}
		if w.Data == nil {
			continue
		}
		data, err := toFelts(w.Data)
		if err != nil {
			result.fail("%s: event %d: %v", label, i, err)
			continue
		}
		if !equalFelts(data, got[i].Data) {
			result.fail("%s: event %q data = %s, want %s", label, w.Name, Tuple(got[i].Data), Tuple(data))
		}
	}
}

// rejection extracts the reason of a rejected transaction or reverted call.
func rejection(err error) (string, bool) {
	if !errors.Is(err, starknet.ErrTransactionRejected) && !errors.Is(err, core.ErrReverted) {
		return "", false
	}
	var revert *core.RevertError
	if errors.As(err, &revert) {
		return revert.Reason, true
	}
	return err.Error(), true
}

// Tuple formats felts the way a result tuple is written: (10,) or (1, 2).
func Tuple(fs []core.Felt) string {
	switch len(fs) {
	case 0:
		return "()"
	case 1:
		return "(" + fs[0].String() + ",)"
	}
	return "(" + strings.Join(core.FeltsToStrings(fs), ", ") + ")"
}

func toFelts(vs []any) ([]core.Felt, error) {
	out := make([]core.Felt, len(vs))
	for i, v := range vs {
		f, err := core.ToFelt(v)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func equalFelts(a, b []core.Felt) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func traceEvents(events []types.Event) []TraceEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]TraceEvent, len(events))
	for i, e := range events {
		out[i] = TraceEvent{Name: e.Name, Data: core.FeltsToStrings(e.Data)}
	}
	return out
}
