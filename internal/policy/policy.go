// Package policy decides whether a proposed edit may be applied
// unilaterally or needs every structurally-dependent owner to confirm.
//
// Only a shape change or a disappearance can break a caller's invocation.
// Mention-only changes (gaining or losing a back-reference) never break
// anything and always cascade automatically.
package policy

import (
	"github.com/roach88/termbase/internal/change"
)

// Decision is the outcome of classifying a change.
type Decision int

const (
	// Automatic changes are applied and propagated immediately.
	Automatic Decision = iota

	// RequiresConfirmation changes are staged in a two-phase commit until
	// every dependent owner approves.
	RequiresConfirmation
)

func (d Decision) String() string {
	if d == Automatic {
		return "automatic"
	}
	return "confirmation"
}

// ClassifyChange returns Automatic iff c has no shape operations or no
// other term refers to it. A self reference does not count: the updated
// snapshot already carries the term's own reshaped calls.
func ClassifyChange(c change.Change) Decision {
	if !c.HasOps() || len(c.Original.ReferrersExcept(c.Original.Name)) == 0 {
		return Automatic
	}
	return RequiresConfirmation
}

// ClassifyDeletion returns Automatic iff no other term refers to the
// deleted term.
func ClassifyDeletion(d change.Deletion) Decision {
	if len(d.Term.ReferrersExcept(d.Term.Name)) == 0 {
		return Automatic
	}
	return RequiresConfirmation
}

// Dependents returns the owners whose approval a confirmation-requiring
// change needs: every referrer other than the term itself.
func Dependents(c change.Change) []string {
	if ClassifyChange(c) == Automatic {
		return nil
	}
	return c.Original.ReferrersExcept(c.Original.Name)
}
