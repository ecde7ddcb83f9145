package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/termbase/internal/policy"
	"github.com/roach88/termbase/internal/propagate"
	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/term"
	"github.com/roach88/termbase/internal/workset"
)

// Store is the persistent store contract the engine consumes.
// Get must return an error wrapping store.ErrNotFound for a missing term.
type Store interface {
	Get(ctx context.Context, name string) (*term.Term, error)
	Put(ctx context.Context, t *term.Term) error
	Delete(ctx context.Context, name string) error
}

// Batcher is implemented by stores that apply a batch atomically.
// Without it the engine writes deletes then puts one at a time and undoes
// them if a write fails.
type Batcher interface {
	ApplyBatch(ctx context.Context, b store.Batch) error
}

// Views refreshes copies of terms held open outside the engine.
// UpdateWith must do nothing when name is not loaded.
type Views interface {
	UpdateWith(name string, fn func(*term.Term) *term.Term)
}

// IDGenerator generates batch and commit ids.
// Implemented by UUIDv7Generator and testutil.FixedIDGenerator.
type IDGenerator interface {
	Generate() string
}

// Engine applies changes and deletions to a store, propagating their
// consequences and coordinating confirmation when it is needed.
type Engine struct {
	mu     sync.Mutex
	store  Store
	views  Views
	ids    IDGenerator
	clock  Sequencer
	logger *slog.Logger

	open *openCommit // nil when no commit is open
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithViews registers loaded views to refresh after every flush.
func WithViews(v Views) Option {
	return func(e *Engine) {
		e.views = v
	}
}

// WithIDGenerator sets the batch and commit id generator.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the pass sequencer. Default: a Clock starting at 0.
func WithClock(c Sequencer) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine over s.
func New(s Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		ids:    UUIDv7Generator{},
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome describes what one propagation did.
type Outcome struct {
	// Pass is the sequence number of the propagation pass.
	Pass int64

	// Decision is how the policy classified the edit.
	Decision policy.Decision

	// Applied is true when the edit was written to the store.
	Applied bool

	// CommitID names the open commit the edit was staged into.
	CommitID string

	// Updated lists the other terms the pass modified, sorted.
	Updated []string

	// WaitingOn lists the terms whose approval the commit still needs.
	WaitingOn []string
}

// Lookup returns a copy of the named term as the engine currently sees
// it: the staged snapshot if an open commit holds one, else the stored one.
func (e *Engine) Lookup(ctx context.Context, name string) (*term.Term, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.current(ctx, term.NormalizeName(name))
	if err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// current returns the engine's view of name without copying it.
func (e *Engine) current(ctx context.Context, name string) (*term.Term, error) {
	if e.open != nil && e.open.cache.Contains(name) {
		if entry, ok := e.open.cache.Lookup(name); ok {
			return entry.Term(), nil
		}
		return nil, newError(ErrCodeUnknownTerm, name, "term is deleted in commit %s", e.open.id)
	}
	t, err := e.store.Get(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, wrapError(ErrCodeUnknownTerm, name, err, "no such term")
	}
	if err != nil {
		return nil, wrapError(ErrCodeStorage, name, err, "read failed")
	}
	return t, nil
}

// passError maps a propagation failure onto an engine error.
func passError(name string, err error) error {
	var dangling *propagate.DanglingReferenceError
	switch {
	case errors.As(err, &dangling):
		return wrapError(ErrCodeDangling, dangling.From, err, "reference to missing term %s", dangling.Missing)
	case errors.Is(err, propagate.ErrNameTaken), errors.Is(err, workset.ErrExists):
		return wrapError(ErrCodeNameTaken, name, err, "name already in use")
	case errors.Is(err, store.ErrNotFound):
		return wrapError(ErrCodeUnknownTerm, name, err, "no such term")
	default:
		return wrapError(ErrCodeStorage, name, err, "propagation failed")
	}
}

// write applies b to the store, atomically when the store supports it.
func (e *Engine) write(ctx context.Context, b store.Batch) error {
	if b.Empty() {
		return nil
	}
	if batcher, ok := e.store.(Batcher); ok {
		return batcher.ApplyBatch(ctx, b)
	}
	return writeSequential(ctx, e.store, b)
}

// writeSequential applies the deletes and then the puts of b one at a
// time. On failure the writes already made are undone in reverse order
// from the snapshots read before each write.
func writeSequential(ctx context.Context, s Store, b store.Batch) error {
	type undo struct {
		name  string
		prior *term.Term // nil if the name was absent
	}
	var done []undo

	fail := func(err error) error {
		errs := []error{err}
		for i := len(done) - 1; i >= 0; i-- {
			u := done[i]
			var uerr error
			if u.prior == nil {
				uerr = s.Delete(ctx, u.name)
			} else {
				uerr = s.Put(ctx, u.prior)
			}
			if uerr != nil {
				errs = append(errs, fmt.Errorf("undo %s: %w", u.name, uerr))
			}
		}
		return errors.Join(errs...)
	}
	snapshot := func(name string) (undo, error) {
		t, err := s.Get(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return undo{name: name}, nil
		}
		return undo{name: name, prior: t}, err
	}

	for _, name := range b.Deletes {
		u, err := snapshot(name)
		if err != nil {
			return fail(err)
		}
		if err := s.Delete(ctx, name); err != nil {
			return fail(err)
		}
		done = append(done, u)
	}
	for _, t := range b.Puts {
		u, err := snapshot(t.Name)
		if err != nil {
			return fail(err)
		}
		if err := s.Put(ctx, t); err != nil {
			return fail(err)
		}
		done = append(done, u)
	}
	return nil
}

// flush writes every pending entry of cache as batch id and refreshes
// loaded views. renames maps store names to the names they were renamed
// to, so views can follow. Returns the deleted store names.
func (e *Engine) flush(ctx context.Context, cache *workset.Cache, id string, renames map[string]string) ([]string, error) {
	pending := cache.Pending()
	b := store.Batch{ID: id}
	for _, p := range pending {
		if p.Deleted {
			b.Deletes = append(b.Deletes, p.Name)
			continue
		}
		b.Puts = append(b.Puts, p.Term)
	}
	if err := e.write(ctx, b); err != nil {
		return nil, wrapError(ErrCodeStorage, "", err, "flush batch %s", id)
	}
	e.refreshViews(pending, renames)
	e.logger.Debug("batch flushed", "batch", id, "puts", len(b.Puts), "deletes", len(b.Deletes))
	return b.Deletes, nil
}

func (e *Engine) refreshViews(pending []workset.Pending, renames map[string]string) {
	if e.views == nil {
		return
	}
	written := make(map[string]*term.Term)
	for _, p := range pending {
		if !p.Deleted {
			written[p.Name] = p.Term
		}
	}
	for _, p := range pending {
		if p.Deleted {
			continue
		}
		t := p.Term
		e.views.UpdateWith(p.Name, func(*term.Term) *term.Term { return t.Clone() })
	}
	for _, p := range pending {
		if !p.Deleted {
			continue
		}
		next := written[renames[p.Name]]
		e.views.UpdateWith(p.Name, func(*term.Term) *term.Term {
			if next == nil {
				return nil
			}
			return next.Clone()
		})
	}
}
