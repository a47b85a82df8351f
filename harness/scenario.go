package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario deploys contracts into a fresh simulation and runs a sequence
// of steps against them.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description,omitempty"`

	// Contracts are deployed in order before the first step.
	Contracts []ContractSpec `yaml:"contracts"`

	Steps []Step `yaml:"steps"`

	// BaseDir is the directory contract paths are resolved against. Load
	// sets it to the directory of the scenario file.
	BaseDir string `yaml:"-"`
}

// ContractSpec names a contract artifact to deploy.
type ContractSpec struct {
	Name                string `yaml:"name"`
	Path                string `yaml:"path"`
	ConstructorCalldata []any  `yaml:"constructor_calldata,omitempty"`
}

// Step invokes or calls one entry point, written "<contract>.<entry_point>".
// Exactly one of Invoke and Call is set.
type Step struct {
	Invoke string         `yaml:"invoke,omitempty"`
	Call   string         `yaml:"call,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
	Expect *Expect        `yaml:"expect,omitempty"`
}

// Expect is what a step must produce. A step without Expect must succeed.
type Expect struct {
	// Result is compared literally with the returned tuple.
	Result   []any `yaml:"result,omitempty"`
	Rejected bool  `yaml:"rejected,omitempty"`
	// Reason must be a substring of the rejection reason.
	Reason string        `yaml:"reason,omitempty"`
	Events []EventExpect `yaml:"events,omitempty"`
}

// EventExpect matches one emitted event, in order.
type EventExpect struct {
	Name string `yaml:"name"`
	Data []any  `yaml:"data,omitempty"`
}

// Kind returns "invoke" or "call".
func (s Step) Kind() string {
	if s.Invoke != "" {
		return "invoke"
	}
	return "call"
}

// Target returns the "<contract>.<entry_point>" string of the step.
func (s Step) Target() string {
	if s.Invoke != "" {
		return s.Invoke
	}
	return s.Call
}

// splitTarget splits "<contract>.<entry_point>".
func splitTarget(target string) (contract, entryPoint string, ok bool) {
	contract, entryPoint, ok = strings.Cut(target, ".")
	return contract, entryPoint, ok && contract != "" && entryPoint != ""
}

// LoadScenario reads a scenario file. Unknown fields are rejected, the
// document is checked against the scenario schema, and contract paths are
// resolved relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("%w: %s: failed to parse YAML: %w", ErrInvalidScenario, path, err)
	}
	if err := validateSchema(path, data); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidScenario, path, err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	scenario.BaseDir = filepath.Dir(path)
	return &scenario, nil
}

// Validate checks the constraints the schema cannot express.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if len(s.Contracts) == 0 {
		return fmt.Errorf("%w: at least one contract is required", ErrInvalidScenario)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidScenario)
	}

	names := make(map[string]bool, len(s.Contracts))
	for i, c := range s.Contracts {
		if c.Name == "" || c.Path == "" {
			return fmt.Errorf("%w: contracts[%d]: name and path are required", ErrInvalidScenario, i)
		}
		if names[c.Name] {
			return fmt.Errorf("%w: contracts[%d]: duplicate name %q", ErrInvalidScenario, i, c.Name)
		}
		names[c.Name] = true
	}

	for i, step := range s.Steps {
		if (step.Invoke == "") == (step.Call == "") {
			return fmt.Errorf("%w: steps[%d]: exactly one of invoke and call is required", ErrInvalidScenario, i)
		}
		contract, _, ok := splitTarget(step.Target())
		if !ok {
			return fmt.Errorf("%w: steps[%d]: target %q is not <contract>.<entry_point>", ErrInvalidScenario, i, step.Target())
		}
		if !names[contract] {
			return fmt.Errorf("%w: steps[%d]: unknown contract %q", ErrInvalidScenario, i, contract)
		}
		if e := step.Expect; e != nil && e.Rejected && (e.Result != nil || e.Events != nil) {
			return fmt.Errorf("%w: steps[%d]: a rejected step has no result or events", ErrInvalidScenario, i)
		}
		if e := step.Expect; e != nil && e.Reason != "" && !e.Rejected {
			return fmt.Errorf("%w: steps[%d]: reason requires rejected: true", ErrInvalidScenario, i)
		}
	}
	return nil
}
