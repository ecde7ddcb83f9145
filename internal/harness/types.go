package harness

import (
	"strings"

	"github.com/roach88/termbase/internal/term"
)

// Step outcomes recorded in the trace.
const (
	OutcomeApplied  = "applied"
	OutcomeStaged   = "staged"
	OutcomeReady    = "ready"
	OutcomeWaiting  = "waiting"
	OutcomeFinished = "finished"
	OutcomeReverted = "reverted"
	OutcomeError    = "error"
)

// TraceEvent records what one step did.
type TraceEvent struct {
	Seq       int64    `json:"seq"`
	Op        string   `json:"op"`
	Term      string   `json:"term,omitempty"`
	Outcome   string   `json:"outcome"`
	Error     string   `json:"error,omitempty"`
	CommitID  string   `json:"commit_id,omitempty"`
	Updated   []string `json:"updated,omitempty"`
	WaitingOn []string `json:"waiting_on,omitempty"`
	Deleted   []string `json:"deleted,omitempty"`
}

// Label identifies the step in assertions: the op, followed by the term
// when there is one.
func (e TraceEvent) Label() string {
	return strings.TrimSpace(e.Op + " " + e.Term)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step met its expectation and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Terms is the final knowledge base, ordered by name.
	Terms []*term.Term `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
