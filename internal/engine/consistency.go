package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/termbase/internal/term"
)

// Lister lists every stored term.
type Lister interface {
	All(ctx context.Context) ([]*term.Term, error)
}

// ViolationKind classifies a broken reference.
type ViolationKind string

const (
	// MissingBackReference: From calls To but To does not list From.
	MissingBackReference ViolationKind = "missing_back_reference"

	// StaleBackReference: To lists From but From does not call To.
	StaleBackReference ViolationKind = "stale_back_reference"

	// DanglingCall: From calls To, which does not exist.
	DanglingCall ViolationKind = "dangling_call"
)

// Violation is one broken edge of the reference graph.
type Violation struct {
	Kind ViolationKind `json:"kind"`
	From string        `json:"from"`
	To   string        `json:"to"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s -> %s", v.Kind, v.From, v.To)
}

// CheckConsistency verifies that A mentions B if and only if B.ReferredBy
// contains A, for every stored pair. Violations are sorted by kind, from
// and to. An empty result means the store is consistent.
func CheckConsistency(ctx context.Context, l Lister) ([]Violation, error) {
	terms, err := l.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list terms: %w", err)
	}
	byName := make(map[string]*term.Term, len(terms))
	for _, t := range terms {
		byName[t.Name] = t
	}

	var out []Violation
	for _, a := range terms {
		for _, b := range a.MentionedTerms() {
			target, ok := byName[b]
			switch {
			case !ok:
				out = append(out, Violation{Kind: DanglingCall, From: a.Name, To: b})
			case !target.IsReferredBy(a.Name):
				out = append(out, Violation{Kind: MissingBackReference, From: a.Name, To: b})
			}
		}
		for _, r := range a.ReferredBy {
			referrer, ok := byName[r]
			if !ok || !referrer.Mentions(a.Name) {
				out = append(out, Violation{Kind: StaleBackReference, From: r, To: a.Name})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out, nil
}
