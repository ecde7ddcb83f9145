package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/termbase/internal/engine"
	"github.com/roach88/termbase/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s: %s %s\n", event.Seq, event.Label(), event.Outcome, event.Error)
		}
	}
	return buf.String()
}

// assertTraceContains checks that a step with the given label, and
// outcome if one is set, appears in the trace.
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Label() != assertion.Step {
			continue
		}
		if assertion.Outcome == "" || assertion.Outcome == event.Outcome {
			return nil
		}
	}

	expected := assertion.Step
	if assertion.Outcome != "" {
		expected += " with outcome " + assertion.Outcome
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that steps appear in the specified order.
// Steps don't need to be consecutive.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// First position of each expected label, 1-indexed.
	positions := make(map[string]int)
	for i, event := range trace {
		label := event.Label()
		if slices.Contains(assertion.Steps, label) && positions[label] == 0 {
			positions[label] = i + 1
		}
	}

	for _, step := range assertion.Steps {
		if positions[step] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all steps present: %v", assertion.Steps),
				Actual:   fmt.Sprintf("missing step: %s", step),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Steps); i++ {
		prev, curr := assertion.Steps[i-1], assertion.Steps[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("steps in order: %v", assertion.Steps),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that the step appears exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Label() == assertion.Step {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Step),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks fields of a stored term using subset semantics.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	t, err := st.Get(ctx, assertion.Term)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("final_state %s: %w", assertion.Term, err)
	}

	if want, ok := assertion.Expect["exists"]; ok {
		if b, _ := want.(bool); b != (t != nil) {
			return stateMismatch(assertion.Term, "exists", want, t != nil)
		}
	}
	if t == nil {
		if len(assertion.Expect) == 1 && assertion.Expect["exists"] != nil {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("term %s to exist", assertion.Term),
			Actual:   "not found",
		}
	}

	for _, key := range sortedKeys(assertion.Expect) {
		want := assertion.Expect[key]
		var got interface{}
		switch key {
		case "exists":
			continue
		case "arity":
			got = t.Arity()
		case "description":
			got = t.Description
		case "args":
			names := make([]string, len(t.Args))
			for i, a := range t.Args {
				names[i] = a.Name
			}
			got = names
		case "mentions":
			got = t.MentionedTerms()
		case "referred_by":
			got = t.ReferredBy
		default:
			return fmt.Errorf("final_state %s: unknown field %q", assertion.Term, key)
		}
		if !stateValuesEqual(want, got) {
			return stateMismatch(assertion.Term, key, want, got)
		}
	}
	return nil
}

func stateMismatch(name, field string, want, got interface{}) error {
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: fmt.Sprintf("%s.%s = %v", name, field, want),
		Actual:   fmt.Sprintf("%s.%s = %v", name, field, got),
	}
}

// assertConsistent checks the reference graph of the whole store.
func assertConsistent(ctx context.Context, st *store.Store) error {
	violations, err := engine.CheckConsistency(ctx, st)
	if err != nil {
		return err
	}
	if len(violations) == 0 {
		return nil
	}
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return &AssertionError{
		Type:     AssertConsistent,
		Expected: "no violations",
		Actual:   strings.Join(parts, "; "),
	}
}

// stateValuesEqual compares a YAML-decoded expected value with a term
// field. Lists compare element-wise as strings; an empty list matches a
// nil slice.
func stateValuesEqual(expected, actual interface{}) bool {
	switch got := actual.(type) {
	case int:
		switch want := expected.(type) {
		case int:
			return want == got
		case int64:
			return want == int64(got)
		case float64:
			return want == float64(got)
		}
		return false
	case string:
		want, ok := expected.(string)
		return ok && want == got
	case []string:
		want, ok := stringList(expected)
		return ok && slices.Equal(want, got)
	}
	return false
}

func stringList(v interface{}) ([]string, bool) {
	switch list := v.(type) {
	case nil:
		return nil, true
	case []string:
		return list, true
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for final_state and
// consistent assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState, AssertConsistent:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: %s requires store context", i, assertion.Type)
			} else if assertion.Type == AssertFinalState {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			} else {
				err = assertConsistent(actx.Ctx, actx.Store)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

