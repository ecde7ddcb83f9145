// Package views keeps in-memory copies of terms that an editing surface
// has open, and refreshes them when the engine commits a change.
package views

import (
	"sort"
	"sync"

	"github.com/roach88/termbase/internal/term"
)

// Registry is a name-keyed set of loaded terms.
// Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	loaded map[string]*term.Term
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaded: make(map[string]*term.Term)}
}

// Open loads a copy of t.
func (r *Registry) Open(t *term.Term) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded[t.Name] = t.Clone()
}

// Close drops the loaded copy of name.
func (r *Registry) Close(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.loaded, name)
}

// Get returns a copy of the loaded term.
func (r *Registry) Get(name string) (*term.Term, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.loaded[name]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Names returns the loaded names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.loaded))
	for n := range r.loaded {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UpdateWith replaces the loaded copy of name with fn applied to it.
// Nothing happens if name is not loaded. If fn returns nil the view is
// closed; if it returns a term under a different name the view follows
// the rename.
func (r *Registry) UpdateWith(name string, fn func(*term.Term) *term.Term) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.loaded[name]
	if !ok {
		return
	}
	next := fn(cur)
	delete(r.loaded, name)
	if next != nil {
		r.loaded[next.Name] = next
	}
}
