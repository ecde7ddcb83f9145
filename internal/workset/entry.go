package workset

import (
	"github.com/roach88/termbase/internal/commit"
	"github.com/roach88/termbase/internal/term"
)

// Entry is a sealed interface over the two kinds of staged term.
// Only Staged and Participant implement it; promotion replaces a Staged
// entry with a Participant carrying the same term.
type Entry interface {
	Term() *term.Term
	entry()
}

// Staged is a plain scratch copy of a term.
type Staged struct {
	T *term.Term
}

func (Staged) entry() {}

// Term returns the staged term.
func (s Staged) Term() *term.Term { return s.T }

// Participant is a term taking part in an open two-phase commit.
type Participant struct {
	T      *term.Term
	Record *commit.Record
}

func (Participant) entry() {}

// Term returns the staged term.
func (p Participant) Term() *term.Term { return p.T }

// withTerm returns e holding t, keeping its variant.
func withTerm(e Entry, t *term.Term) Entry {
	switch v := e.(type) {
	case Participant:
		v.T = t
		return v
	default:
		return Staged{T: t}
	}
}
