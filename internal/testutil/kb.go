package testutil

import (
	"context"
	"testing"

	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/term"
)

// Rule builds a one-rule term body: head :- calls.
// Every call binds the head variables positionally.
func Rule(t *term.Term, calls ...string) *term.Term {
	head := make([]term.Binding, t.Arity())
	for i, a := range t.Args {
		head[i] = term.Var(a.Name)
	}
	body := make([]term.Call, len(calls))
	for i, c := range calls {
		body[i] = term.Invoke(c, term.CloneBindings(head)...)
	}
	return t.AddRule(head, body...)
}

// Link clears and recomputes ReferredBy on every term from the
// mentions of all of them, so the set is consistent. Mentions of terms
// outside the set are left dangling.
func Link(terms ...*term.Term) []*term.Term {
	byName := make(map[string]*term.Term, len(terms))
	for _, t := range terms {
		t.ReferredBy = nil
		byName[t.Name] = t
	}
	for _, t := range terms {
		for _, n := range t.MentionedTerms() {
			if target, ok := byName[n]; ok {
				target.AddReferredBy(t.Name)
			}
		}
	}
	return terms
}

// Seed links terms and writes them into a fresh in-memory store.
func Seed(tb testing.TB, terms ...*term.Term) *store.Memory {
	tb.Helper()
	m := store.NewMemory()
	for _, t := range Link(terms...) {
		if err := m.Put(context.Background(), t); err != nil {
			tb.Fatalf("seed %s: %v", t.Name, err)
		}
	}
	return m
}

// MustGet reads name from s or fails the test.
func MustGet(tb testing.TB, s interface {
	Get(ctx context.Context, name string) (*term.Term, error)
}, name string) *term.Term {
	tb.Helper()
	t, err := s.Get(context.Background(), name)
	if err != nil {
		tb.Fatalf("get %s: %v", name, err)
	}
	return t
}
