// Package propagate applies the structural consequences of a change or
// deletion to the other terms of a working set.
//
// A pass reads and writes only through a Source, normally a
// workset.Cache, and never touches the persistent store. The caller
// decides whether the staged result is flushed or discarded.
//
// A change is applied in three steps:
//  1. Shape operations rewrite every call of the term in each referrer.
//  2. The mention delta adds and removes back-references.
//  3. A rename rewrites calls and back-references to the new name.
//
// Only terms whose content actually changed are reported.
package propagate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/termbase/internal/change"
	"github.com/roach88/termbase/internal/impact"
	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/term"
)

// Source is the working set a pass reads from and stages into.
// Terms returned by Get are the staged instances; mutating them in place
// is how a pass stages an update.
type Source interface {
	Get(ctx context.Context, name string) (*term.Term, error)
	Put(name string, t *term.Term)
	MarkDirty(name string)
	MarkDeleted(name string)
	Rename(oldName, newName string) error
}

// ErrNameTaken is returned when a rename targets an existing term.
var ErrNameTaken = errors.New("name already in use")

// DanglingReferenceError reports a reference to a term that does not
// exist. From is the term holding the reference.
type DanglingReferenceError struct {
	From    string
	Missing string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s refers to missing term %s", e.From, e.Missing)
}

// Result is the outcome of one pass.
type Result struct {
	// Self is the staged snapshot of the edited term, nil for a deletion.
	Self *term.Term

	// Updates holds every other term the pass modified, keyed by name.
	Updates map[string]*term.Term
}

// Names returns the keys of Updates, sorted.
func (r Result) Names() []string {
	names := make([]string, 0, len(r.Updates))
	for n := range r.Updates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// pass tracks one propagation run.
type pass struct {
	ctx     context.Context
	src     Source
	touched map[string]*term.Term
}

func newPass(ctx context.Context, src Source) *pass {
	return &pass{ctx: ctx, src: src, touched: make(map[string]*term.Term)}
}

func (p *pass) mark(name string, t *term.Term) {
	p.touched[name] = t
	p.src.MarkDirty(name)
}

// fetch loads name. A missing term is reported as (nil, nil).
func (p *pass) fetch(name string) (*term.Term, error) {
	t, err := p.src.Get(p.ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return t, err
}

// Change stages c and its consequences into src.
//
// The updated snapshot is authoritative for the term's own body; its
// ReferredBy is replaced by the original's. A call under either the
// original or the updated name refers to the edited term itself.
func Change(ctx context.Context, c change.Change, src Source) (Result, error) {
	oldName, newName := c.Original.Name, c.Updated.Name
	p := newPass(ctx, src)

	if err := p.check(c); err != nil {
		return Result{}, err
	}
	self, err := p.stageSelf(c)
	if err != nil {
		return Result{}, err
	}

	// resolve maps a name onto the key it lives under during this pass.
	resolve := func(n string) string {
		if n == oldName {
			return newName
		}
		return n
	}

	// Step 1: shape operations on every referrer's calls.
	if c.HasOps() {
		for _, r := range c.Original.ReferrersExcept(oldName) {
			if r == newName {
				continue
			}
			t, err := p.fetch(r)
			if err != nil {
				return Result{}, err
			}
			if t == nil {
				return Result{}, &DanglingReferenceError{From: oldName, Missing: r}
			}
			if t.RewriteCalls(oldName, func(args []term.Binding) ([]term.Binding, bool) {
				return change.ApplyAll(c.Ops, args)
			}) {
				p.mark(r, t)
			}
		}
	}

	// Step 2: back-references for the mention delta.
	added, removed := impact.MentionDelta(c)
	for _, n := range removed {
		t, err := p.fetch(resolve(n))
		if err != nil {
			return Result{}, err
		}
		if t == nil {
			continue
		}
		if t.RemoveReferredBy(oldName) {
			p.mark(resolve(n), t)
		}
	}
	for _, n := range added {
		t, err := p.fetch(resolve(n))
		if err != nil {
			return Result{}, err
		}
		if t == nil {
			return Result{}, &DanglingReferenceError{From: newName, Missing: n}
		}
		if t.AddReferredBy(oldName) {
			p.mark(resolve(n), t)
		}
	}

	// Step 3: rename calls and back-references.
	if c.Renamed() {
		for _, n := range self.MentionedTerms() {
			t, err := p.fetch(resolve(n))
			if err != nil {
				return Result{}, err
			}
			if t == nil {
				return Result{}, &DanglingReferenceError{From: newName, Missing: n}
			}
			if t.RenameReferredBy(oldName, newName) {
				p.mark(resolve(n), t)
			}
		}
		for _, r := range c.Original.ReferrersExcept(oldName) {
			if r == newName {
				continue
			}
			t, err := p.fetch(r)
			if err != nil {
				return Result{}, err
			}
			if t == nil {
				return Result{}, &DanglingReferenceError{From: oldName, Missing: r}
			}
			if t.RenameCalls(oldName, newName) {
				p.mark(r, t)
			}
		}
		// Self calls were staged under the original name.
		self.RenameCalls(oldName, newName)
	}

	delete(p.touched, newName)
	delete(p.touched, oldName)
	return Result{Self: self, Updates: p.touched}, nil
}

// check fetches everything the pass will write and fails before any
// mutation if a referenced term is missing or the new name is taken.
// A failed pass therefore leaves src as it was.
func (p *pass) check(c change.Change) error {
	oldName, newName := c.Original.Name, c.Updated.Name
	isSelf := func(n string) bool { return n == oldName || n == newName }

	require := func(from, n string) error {
		t, err := p.fetch(n)
		if err != nil {
			return err
		}
		if t == nil {
			return &DanglingReferenceError{From: from, Missing: n}
		}
		return nil
	}

	if c.Renamed() {
		existing, err := p.fetch(newName)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("rename %s to %s: %w", oldName, newName, ErrNameTaken)
		}
	}
	if c.HasOps() || c.Renamed() {
		for _, r := range c.Original.ReferrersExcept(oldName) {
			if isSelf(r) {
				continue
			}
			if err := require(oldName, r); err != nil {
				return err
			}
		}
	}
	added, _ := impact.MentionDelta(c)
	mentions := added
	if c.Renamed() {
		mentions = c.Updated.MentionedTerms()
	}
	for _, n := range mentions {
		if isSelf(n) {
			continue
		}
		if err := require(newName, n); err != nil {
			return err
		}
	}
	return nil
}

// stageSelf puts the updated snapshot into the working set under its new
// name, carrying the original back-references.
func (p *pass) stageSelf(c change.Change) (*term.Term, error) {
	oldName, newName := c.Original.Name, c.Updated.Name

	current, err := p.fetch(oldName)
	if err != nil {
		return nil, err
	}

	self := c.Updated.Clone()
	self.ReferredBy = nil
	for _, r := range c.Original.ReferredBy {
		self.AddReferredBy(r)
	}

	if current == nil {
		p.src.Put(newName, self)
		return self, nil
	}
	p.src.Put(oldName, self)
	if c.Renamed() {
		if err := p.src.Rename(oldName, newName); err != nil {
			return nil, err
		}
	}
	return self, nil
}

// Deletion stages the removal of d.Term and its consequences into src:
// the name is stripped from every mentioned term's back-references and
// every call to it is removed from its referrers. A rule left with an
// empty body is dropped. Every neighbour is loaded before anything is
// staged, so a missing one fails the pass with a DanglingReferenceError.
func Deletion(ctx context.Context, d change.Deletion, src Source) (Result, error) {
	name := d.Term.Name
	p := newPass(ctx, src)

	referrers := make(map[string]*term.Term)
	for _, r := range d.Term.ReferrersExcept(name) {
		t, err := p.fetch(r)
		if err != nil {
			return Result{}, err
		}
		if t == nil {
			return Result{}, &DanglingReferenceError{From: name, Missing: r}
		}
		referrers[r] = t
	}
	// Load before tombstoning so the store key is deleted on flush.
	if _, err := p.fetch(name); err != nil {
		return Result{}, err
	}

	mentioned := make(map[string]*term.Term)
	for _, n := range d.Term.MentionedTerms() {
		if n == name {
			continue
		}
		t, err := p.fetch(n)
		if err != nil {
			return Result{}, err
		}
		if t == nil {
			return Result{}, &DanglingReferenceError{From: name, Missing: n}
		}
		mentioned[n] = t
	}

	for n, t := range mentioned {
		if t.RemoveReferredBy(name) {
			p.mark(n, t)
		}
	}
	for r, t := range referrers {
		if changed, _ := t.RemoveCalls(name); changed {
			p.mark(r, t)
		}
	}

	src.MarkDeleted(name)
	return Result{Updates: p.touched}, nil
}
