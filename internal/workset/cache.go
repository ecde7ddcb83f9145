// Package workset provides the scratch overlay that mediates one
// propagation pass, or one open commit, over the persistent store.
//
// Every read in a pass goes through the cache, so a term touched twice
// accumulates both mutations instead of re-fetching stale state. The cache
// may hold transiently inconsistent data (a back-reference added before
// the matching call is rewritten); it is never exposed outside the engine
// that owns it and is either drained into one store batch or discarded.
package workset

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/roach88/termbase/internal/commit"
	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/term"
)

// ErrExists is returned by Rename when the target name is live, or is
// held by a participant deleted in this cache.
var ErrExists = errors.New("term already staged under that name")

// Reader is the read side of the persistent store.
type Reader interface {
	Get(ctx context.Context, name string) (*term.Term, error)
}

// slot is the cache's bookkeeping around one entry.
type slot struct {
	entry   Entry
	origin  string // store key the term was loaded from; empty if never persisted
	base    string // fingerprint of the loaded snapshot
	dirty   bool
	deleted bool
}

// Cache is a name-keyed overlay over a Reader.
// Not safe for concurrent use; the owning engine serialises access.
type Cache struct {
	backing Reader
	slots   map[string]*slot
}

// New creates an empty cache over backing.
func New(backing Reader) *Cache {
	return &Cache{
		backing: backing,
		slots:   make(map[string]*slot),
	}
}

// Get returns the staged term for name, fetching and memoising it from
// the backing store on first access. Repeat calls return the same
// instance. A name that is absent, or tombstoned in this cache, yields an
// error matching store.ErrNotFound.
func (c *Cache) Get(ctx context.Context, name string) (*term.Term, error) {
	if s, ok := c.slots[name]; ok {
		if s.deleted {
			return nil, fmt.Errorf("%s: deleted in working set: %w", name, store.ErrNotFound)
		}
		return s.entry.Term(), nil
	}
	t, err := c.backing.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	base, err := t.Fingerprint()
	if err != nil {
		return nil, err
	}
	staged := t.Clone()
	c.slots[name] = &slot{entry: Staged{T: staged}, origin: name, base: base}
	return staged, nil
}

// Has reports whether name has a live entry, without fetching.
func (c *Cache) Has(name string) bool {
	s, ok := c.slots[name]
	return ok && !s.deleted
}

// Contains reports whether name has any slot, tombstones included.
func (c *Cache) Contains(name string) bool {
	_, ok := c.slots[name]
	return ok
}

// Deleted reports whether name is tombstoned.
func (c *Cache) Deleted(name string) bool {
	s, ok := c.slots[name]
	return ok && s.deleted
}

// Lookup returns the live entry for name, without fetching.
func (c *Cache) Lookup(name string) (Entry, bool) {
	s, ok := c.slots[name]
	if !ok || s.deleted {
		return nil, false
	}
	return s.entry, true
}

// Put stages t under name and marks it dirty. An existing entry keeps its
// variant and its origin; a tombstone is revived.
func (c *Cache) Put(name string, t *term.Term) {
	if s, ok := c.slots[name]; ok {
		s.entry = withTerm(s.entry, t)
		s.deleted = false
		s.dirty = true
		return
	}
	c.slots[name] = &slot{entry: Staged{T: t}, dirty: true}
}

// MarkDirty records that the entry for name must be written on flush.
func (c *Cache) MarkDirty(name string) {
	if s, ok := c.slots[name]; ok {
		s.dirty = true
	}
}

// MarkDeleted turns the entry for name into a tombstone. A term that was
// never persisted has nothing to delete in the store: a plain entry is
// evicted, while a participant keeps a clean tombstone so its record can
// still approve the terms waiting on it.
func (c *Cache) MarkDeleted(name string) {
	s, ok := c.slots[name]
	if !ok {
		return
	}
	if s.origin == "" {
		if _, ok := s.entry.(Participant); !ok {
			c.Remove(name)
			return
		}
		s.deleted, s.dirty = true, false
		return
	}
	s.deleted = true
	s.dirty = true
}

// Remove evicts the entry for name; the next Get reads the store again.
// Automatic passes need no per-entry eviction: their cache is discarded
// once the batch is written.
func (c *Cache) Remove(name string) {
	delete(c.slots, name)
}

// Promote turns the entry for name into a two-phase participant and
// returns its record. Promoting a participant returns the existing record.
func (c *Cache) Promote(name string) (*commit.Record, error) {
	s, ok := c.slots[name]
	if !ok || s.deleted {
		return nil, fmt.Errorf("promote %s: %w", name, store.ErrNotFound)
	}
	if p, ok := s.entry.(Participant); ok {
		return p.Record, nil
	}
	rec := commit.NewRecord()
	s.entry = Participant{T: s.entry.Term(), Record: rec}
	return rec, nil
}

// Record returns the commit record of a participant, including one whose
// term is tombstoned for deletion.
func (c *Cache) Record(name string) (*commit.Record, bool) {
	s, ok := c.slots[name]
	if !ok {
		return nil, false
	}
	p, ok := s.entry.(Participant)
	if !ok {
		return nil, false
	}
	return p.Record, true
}

// Rename moves the entry for oldName to newName. If the entry was loaded
// from the store under oldName, a tombstone stays behind so the old key is
// deleted on flush. Participants waiting on oldName are re-pointed.
func (c *Cache) Rename(oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	s, ok := c.slots[oldName]
	if !ok || s.deleted {
		return fmt.Errorf("rename %s: %w", oldName, store.ErrNotFound)
	}
	moved := &slot{entry: s.entry, dirty: true}
	if target, ok := c.slots[newName]; ok {
		if _, held := target.entry.(Participant); !target.deleted || held {
			return fmt.Errorf("rename %s to %s: %w", oldName, newName, ErrExists)
		}
		moved.origin, moved.base = target.origin, target.base
	}
	if s.origin == oldName {
		c.slots[oldName] = &slot{entry: Staged{T: s.entry.Term()}, origin: s.origin, base: s.base, dirty: true, deleted: true}
	} else {
		delete(c.slots, oldName)
	}
	c.slots[newName] = moved

	for _, other := range c.slots {
		if p, ok := other.entry.(Participant); ok {
			p.Record.RenameApprover(oldName, newName)
		}
	}
	return nil
}

// Names returns the names of live entries, sorted.
func (c *Cache) Names() []string {
	var names []string
	for n, s := range c.slots {
		if !s.deleted {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Participants returns the names of every participant, sorted.
// Participants tombstoned for deletion are included.
func (c *Cache) Participants() []string {
	var names []string
	for n, s := range c.slots {
		if _, ok := s.entry.(Participant); ok {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Each calls fn for every live entry in name order.
func (c *Cache) Each(fn func(name string, e Entry)) {
	for _, n := range c.Names() {
		fn(n, c.slots[n].entry)
	}
}

// Len returns the number of slots, tombstones included.
func (c *Cache) Len() int {
	return len(c.slots)
}

// Pending is one write produced by draining the cache.
type Pending struct {
	Name    string
	Term    *term.Term // nil when Deleted
	Deleted bool

	// Origin and Base identify the snapshot the entry was loaded from, for
	// drift detection. Origin is empty for terms created in this cache.
	Origin string
	Base   string
}

// Pending returns the dirty entries in name order without clearing them.
func (c *Cache) Pending() []Pending {
	var names []string
	for n, s := range c.slots {
		if s.dirty {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	out := make([]Pending, 0, len(names))
	for _, n := range names {
		s := c.slots[n]
		p := Pending{Name: n, Deleted: s.deleted, Origin: s.origin, Base: s.base}
		if !s.deleted {
			p.Term = s.entry.Term()
		}
		out = append(out, p)
	}
	return out
}

// Discard releases every commit record and empties the cache.
func (c *Cache) Discard() {
	for _, s := range c.slots {
		if p, ok := s.entry.(Participant); ok {
			p.Record.Release()
		}
	}
	c.slots = make(map[string]*slot)
}
