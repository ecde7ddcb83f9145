package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/termbase/internal/change"
	"github.com/roach88/termbase/internal/engine"
	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/term"
	"github.com/roach88/termbase/internal/testutil"
	"github.com/roach88/termbase/internal/textio"
)

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock and fixed commit ids.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.DeterministicClock
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Seed it from the scenario's Datalog text
// 3. Execute steps, checking each expect clause
// 4. Evaluate assertions and collect the final knowledge base
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with engine logging sent to logger.
func RunWithLogger(scenario *Scenario, logger *slog.Logger) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := seed(ctx, st, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	h := &Harness{
		store: st,
		engine: engine.New(st,
			engine.WithLogger(logger),
			engine.WithIDGenerator(testutil.NewFixedIDGenerator(scenario.CommitID)),
			engine.WithClock(testutil.NewDeterministicClock()),
		),
		clock:  testutil.NewDeterministicClock(),
		logger: logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		result.AddTrace(ev)
		for _, msg := range checkExpect(i, step, ev, err) {
			result.AddError(msg)
		}
		h.logger.Info("step completed", "step", i, "op", step.Op, "term", ev.Term, "outcome", ev.Outcome)
	}

	terms, err := st.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base: %w", err)
	}
	result.Terms = terms

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// seed loads Datalog source into st in one batch.
func seed(ctx context.Context, st *store.Store, src string) error {
	if strings.TrimSpace(src) == "" {
		return nil
	}
	terms, err := textio.Read(strings.NewReader(src))
	if err != nil {
		return err
	}
	return st.ApplyBatch(ctx, store.Batch{ID: "seed", Puts: terms})
}

// execute runs one step. The returned event is complete even when err
// is non-nil.
func (h *Harness) execute(ctx context.Context, s Step) (TraceEvent, error) {
	ev := TraceEvent{Seq: h.clock.Next(), Op: s.Op, Term: s.Term}
	err := h.apply(ctx, s, &ev)
	if err != nil {
		ev.Outcome = OutcomeError
		ev.Error = errorCode(err)
		ev.CommitID, ev.Updated, ev.WaitingOn, ev.Deleted = "", nil, nil, nil
	}
	return ev, err
}

func (h *Harness) apply(ctx context.Context, s Step, ev *TraceEvent) error {
	switch s.Op {
	case OpCreate:
		t, err := textio.ReadTerm(s.Text)
		if err != nil {
			return err
		}
		ev.Term = t.Name
		out, err := h.engine.Create(ctx, t)
		if err != nil {
			return err
		}
		recordOutcome(ev, out)

	case OpRename, OpDescribe, OpAddArg, OpRemoveArg, OpReorderArgs, OpAddRule:
		c, err := h.buildChange(ctx, s, ev)
		if err != nil {
			return err
		}
		out, err := h.engine.PropagateChange(ctx, c)
		if err != nil {
			return err
		}
		recordOutcome(ev, out)

	case OpDelete:
		applied, err := h.engine.PropagateDeletion(ctx, s.Term)
		if err != nil {
			return err
		}
		if applied {
			ev.Outcome = OutcomeApplied
			return nil
		}
		st := h.engine.Status()
		ev.Outcome = OutcomeStaged
		ev.CommitID = st.ID
		for _, p := range st.Participants {
			ev.WaitingOn = append(ev.WaitingOn, p.WaitingOn...)
		}
		slices.Sort(ev.WaitingOn)
		ev.WaitingOn = slices.Compact(ev.WaitingOn)

	case OpApprove:
		ready, err := h.engine.Approve(s.Term)
		if err != nil {
			return err
		}
		ev.Outcome = OutcomeWaiting
		if ready {
			ev.Outcome = OutcomeReady
		}

	case OpFinish:
		deleted, err := h.engine.FinishCommit(ctx)
		if err != nil {
			return err
		}
		ev.Outcome = OutcomeFinished
		ev.Deleted = deleted

	case OpRevert:
		h.engine.RevertCommit()
		ev.Outcome = OutcomeReverted

	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
	return nil
}

// buildChange edits the engine's current snapshot of the step's term.
func (h *Harness) buildChange(ctx context.Context, s Step, ev *TraceEvent) (change.Change, error) {
	name := s.Term
	var rule term.Rule
	if s.Op == OpAddRule {
		head, r, err := textio.ReadClause(s.Text)
		if err != nil {
			return change.Change{}, err
		}
		if name != "" && name != head {
			return change.Change{}, fmt.Errorf("rule defines %s, not %s", head, name)
		}
		name, rule = head, r
		ev.Term = name
	}

	original, err := h.engine.Lookup(ctx, name)
	if err != nil {
		return change.Change{}, err
	}
	ed := change.Edit(original)
	switch s.Op {
	case OpRename:
		ed.Rename(s.To)
	case OpDescribe:
		ed.Describe(s.Text)
	case OpAddArg:
		ed.AppendArg(term.Argument{Name: s.Arg})
	case OpRemoveArg:
		ed.RemoveArg(s.Index)
	case OpReorderArgs:
		ed.ReorderArgs(s.Order...)
	case OpAddRule:
		ed.AddRule(rule.Head, rule.Body...)
	}
	return ed.Change()
}

func recordOutcome(ev *TraceEvent, out engine.Outcome) {
	ev.Outcome = OutcomeStaged
	if out.Applied {
		ev.Outcome = OutcomeApplied
	}
	ev.CommitID = out.CommitID
	ev.Updated = out.Updated
	ev.WaitingOn = out.WaitingOn
}

// errorCode returns the engine error code of err, or INVALID_STEP for a
// step the harness could not turn into an engine call.
func errorCode(err error) string {
	if code := engine.CodeOf(err); code != "" {
		return string(code)
	}
	return "INVALID_STEP"
}

// checkExpect compares a step's event with its expect clause.
func checkExpect(index int, s Step, ev TraceEvent, err error) []string {
	prefix := fmt.Sprintf("steps[%d] %s", index, ev.Label())
	if s.Expect == nil {
		if err != nil {
			return []string{fmt.Sprintf("%s: unexpected error: %v", prefix, err)}
		}
		return nil
	}

	var errs []string
	x := *s.Expect
	if x.Error != "" && x.Outcome == "" {
		x.Outcome = OutcomeError
	}
	if x.Outcome != "" && x.Outcome != ev.Outcome {
		msg := fmt.Sprintf("%s: outcome %s, want %s", prefix, ev.Outcome, x.Outcome)
		if err != nil {
			msg += fmt.Sprintf(" (%v)", err)
		}
		errs = append(errs, msg)
	}
	if x.Error != "" && x.Error != ev.Error {
		errs = append(errs, fmt.Sprintf("%s: error %q, want %q", prefix, ev.Error, x.Error))
	}
	check := func(field string, got, want []string) {
		if want != nil && !slices.Equal(got, want) {
			errs = append(errs, fmt.Sprintf("%s: %s %v, want %v", prefix, field, got, want))
		}
	}
	check("updated", ev.Updated, x.Updated)
	check("waiting_on", ev.WaitingOn, x.WaitingOn)
	check("deleted", ev.Deleted, x.Deleted)
	return errs
}
