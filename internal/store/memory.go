package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/termbase/internal/term"
)

// Memory is a map-backed store with the same contract as Store.
// Terms are kept JSON-encoded so callers never share memory with it.
type Memory struct {
	mu       sync.RWMutex
	terms    map[string][]byte
	journal  []JournalEntry
	seq      int64
	writeErr error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{terms: make(map[string][]byte)}
}

// SetWriteError makes every subsequent write fail with err without
// changing anything. Pass nil to clear it.
func (m *Memory) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Get returns a copy of the term stored under name.
func (m *Memory) Get(_ context.Context, name string) (*term.Term, error) {
	m.mu.RLock()
	data, ok := m.terms[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("get %s: %w", name, ErrNotFound)
	}
	var t term.Term
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return &t, nil
}

// Put writes t under t.Name.
func (m *Memory) Put(ctx context.Context, t *term.Term) error {
	return m.ApplyBatch(ctx, Batch{ID: "put:" + t.Name, Puts: []*term.Term{t}})
}

// Delete removes the term stored under name.
func (m *Memory) Delete(ctx context.Context, name string) error {
	return m.ApplyBatch(ctx, Batch{ID: "delete:" + name, Deletes: []string{name}})
}

// ApplyBatch applies every write of b or none of them.
func (m *Memory) ApplyBatch(_ context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}

	// Encode before taking the lock so a marshal failure writes nothing.
	bodies := make([][]byte, len(b.Puts))
	prints := make([]string, len(b.Puts))
	for i, t := range b.Puts {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("apply batch %s: marshal %s: %w", b.ID, t.Name, err)
		}
		fp, err := t.Fingerprint()
		if err != nil {
			return fmt.Errorf("apply batch %s: %w", b.ID, err)
		}
		bodies[i], prints[i] = data, fp
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return fmt.Errorf("apply batch %s: %w", b.ID, m.writeErr)
	}

	for _, name := range b.Deletes {
		m.seq++
		delete(m.terms, name)
		m.journal = append(m.journal, JournalEntry{Seq: m.seq, BatchID: b.ID, Op: OpDelete, Name: name})
	}
	for i, t := range b.Puts {
		m.seq++
		m.terms[t.Name] = bodies[i]
		m.journal = append(m.journal, JournalEntry{
			Seq: m.seq, BatchID: b.ID, Op: OpPut, Name: t.Name, Fingerprint: prints[i],
		})
	}
	return nil
}

// All returns every term ordered by name.
func (m *Memory) All(ctx context.Context) ([]*term.Term, error) {
	names := m.Names()
	terms := make([]*term.Term, 0, len(names))
	for _, name := range names {
		t, err := m.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, nil
}

// Names returns the stored names in sorted order.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.terms))
	for name := range m.terms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Journal returns journal rows with seq > after, oldest first.
func (m *Memory) Journal(_ context.Context, after int64, limit int) ([]JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []JournalEntry{}
	for _, e := range m.journal {
		if e.Seq <= after {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

// History returns every journal row that touched name.
func (m *Memory) History(_ context.Context, name string) ([]JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []JournalEntry{}
	for _, e := range m.journal {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out, nil
}
