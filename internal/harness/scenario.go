package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines an end-to-end knowledge-base scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed is the initial knowledge base as Datalog text.
	Seed string `yaml:"seed"`

	// Steps are executed in order against one engine.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and knowledge base.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, consistent
	Assertions []Assertion `yaml:"assertions"`

	// CommitID is used for every batch and commit id.
	// If empty, defaults to "test-batch-default".
	CommitID string `yaml:"commit_id,omitempty"`
}

// Step is one engine operation.
type Step struct {
	// Op is the operation (see the package documentation).
	Op string `yaml:"op"`

	// Term is the term the operation applies to.
	Term string `yaml:"term,omitempty"`

	// To is the new name (rename).
	To string `yaml:"to,omitempty"`

	// Arg is the appended argument name (add_arg).
	Arg string `yaml:"arg,omitempty"`

	// Index is the removed argument position (remove_arg).
	Index int `yaml:"index,omitempty"`

	// Order is the argument permutation (reorder_args).
	Order []int `yaml:"order,omitempty"`

	// Text is the description (describe), the rule (add_rule) or the
	// term definition (create).
	Text string `yaml:"text,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step. Only the fields that
// are set are checked.
type Expect struct {
	// Outcome is the expected trace outcome (applied, staged, ready,
	// waiting, finished, reverted, error).
	Outcome string `yaml:"outcome,omitempty"`

	// Error is the expected engine error code, e.g. NOT_READY.
	Error string `yaml:"error,omitempty"`

	Updated   []string `yaml:"updated,omitempty"`
	WaitingOn []string `yaml:"waiting_on,omitempty"`
	Deleted   []string `yaml:"deleted,omitempty"`
}

// Assertion validates the trace or the final knowledge base.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check a step appears in the trace
	// - "trace_order": Check steps appear in order
	// - "trace_count": Check a step appears exactly N times
	// - "final_state": Check fields of a stored term
	// - "consistent": Check the reference graph
	Type string `yaml:"type"`

	// Step is a trace label, "op" or "op term" (trace_contains, trace_count).
	Step string `yaml:"step,omitempty"`

	// Outcome optionally narrows trace_contains to one outcome.
	Outcome string `yaml:"outcome,omitempty"`

	// Steps is the expected label order (trace_order).
	Steps []string `yaml:"steps,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Term is the stored term to inspect (final_state).
	Term string `yaml:"term,omitempty"`

	// Expect contains expected field values (final_state).
	// Fields: exists, arity, args, description, mentions, referred_by.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertConsistent    = "consistent"
)

// Step operation constants.
const (
	OpCreate      = "create"
	OpRename      = "rename"
	OpDescribe    = "describe"
	OpAddArg      = "add_arg"
	OpRemoveArg   = "remove_arg"
	OpReorderArgs = "reorder_args"
	OpAddRule     = "add_rule"
	OpDelete      = "delete"
	OpApprove     = "approve"
	OpFinish      = "finish"
	OpRevert      = "revert"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the fields each operation needs.
func validateStep(index int, s *Step) error {
	needsTerm := func() error {
		if s.Term == "" {
			return fmt.Errorf("steps[%d]: term is required for %s", index, s.Op)
		}
		return nil
	}

	switch s.Op {
	case OpCreate, OpAddRule:
		if s.Text == "" {
			return fmt.Errorf("steps[%d]: text is required for %s", index, s.Op)
		}
	case OpRename:
		if s.To == "" {
			return fmt.Errorf("steps[%d]: to is required for rename", index)
		}
		return needsTerm()
	case OpAddArg:
		if s.Arg == "" {
			return fmt.Errorf("steps[%d]: arg is required for add_arg", index)
		}
		return needsTerm()
	case OpRemoveArg:
		if s.Index < 0 {
			return fmt.Errorf("steps[%d]: index must be non-negative for remove_arg", index)
		}
		return needsTerm()
	case OpReorderArgs:
		if len(s.Order) == 0 {
			return fmt.Errorf("steps[%d]: order is required for reorder_args", index)
		}
		return needsTerm()
	case OpDescribe, OpDelete, OpApprove:
		return needsTerm()
	case OpFinish, OpRevert:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Steps) == 0 {
			return fmt.Errorf("assertions[%d]: steps list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Step == "" {
			return fmt.Errorf("assertions[%d]: step is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Term == "" {
			return fmt.Errorf("assertions[%d]: term is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
