// Package badgerstore is a BadgerDB-backed term store with the same
// contract as the SQLite store.
//
// Key layout:
//
//	t/<name>           JSON term
//	j/<seq:8 bytes BE> JSON journal entry
//	m/seq              last journal seq (8 bytes BE)
//
// Big-endian seq keys make a prefix scan over j/ return the journal in
// order.
package badgerstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/term"
)

var (
	termPrefix    = []byte("t/")
	journalPrefix = []byte("j/")
	seqKey        = []byte("m/seq")
)

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a durable on-disk configuration at path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a term store over a BadgerDB instance.
// Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens a BadgerDB at cfg.Path, or in memory, creating the
// directory if needed.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the term stored under name.
// Returns an error wrapping store.ErrNotFound if there is none.
func (s *Store) Get(_ context.Context, name string) (*term.Term, error) {
	var t term.Term
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(termKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("get %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return &t, nil
}

// Put writes t under t.Name as a single-term batch.
func (s *Store) Put(ctx context.Context, t *term.Term) error {
	return s.ApplyBatch(ctx, store.Batch{ID: "put:" + t.Name, Puts: []*term.Term{t}})
}

// Delete removes the term stored under name as a single-term batch.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.ApplyBatch(ctx, store.Batch{ID: "delete:" + name, Deletes: []string{name}})
}

// ApplyBatch writes every delete and put of b in one badger transaction.
func (s *Store) ApplyBatch(_ context.Context, b store.Batch) error {
	if b.Empty() {
		return nil
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		seq, err := lastSeq(txn)
		if err != nil {
			return err
		}
		for _, name := range b.Deletes {
			seq++
			if err := txn.Delete(termKey(name)); err != nil {
				return fmt.Errorf("delete %s: %w", name, err)
			}
			if err := putJournal(txn, store.JournalEntry{
				Seq: seq, BatchID: b.ID, Op: store.OpDelete, Name: name,
			}); err != nil {
				return err
			}
		}
		for _, t := range b.Puts {
			seq++
			body, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", t.Name, err)
			}
			fp, err := t.Fingerprint()
			if err != nil {
				return err
			}
			if err := txn.Set(termKey(t.Name), body); err != nil {
				return fmt.Errorf("put %s: %w", t.Name, err)
			}
			if err := putJournal(txn, store.JournalEntry{
				Seq: seq, BatchID: b.ID, Op: store.OpPut, Name: t.Name, Fingerprint: fp,
			}); err != nil {
				return err
			}
		}
		return txn.Set(seqKey, encodeSeq(seq))
	})
	if err != nil {
		return fmt.Errorf("apply batch %s: %w", b.ID, err)
	}
	return nil
}

// All returns every term ordered by name.
func (s *Store) All(_ context.Context) ([]*term.Term, error) {
	terms := []*term.Term{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: termPrefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var t term.Term
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return fmt.Errorf("unmarshal %s: %w", it.Item().Key(), err)
			}
			terms = append(terms, &t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan terms: %w", err)
	}
	return terms, nil
}

// Journal returns journal rows with seq > after, oldest first.
// A limit <= 0 returns everything.
func (s *Store) Journal(_ context.Context, after int64, limit int) ([]store.JournalEntry, error) {
	if after < 0 {
		after = 0
	}
	return s.scanJournal(after, limit, func(store.JournalEntry) bool { return true })
}

// History returns every journal row that touched name, oldest first.
func (s *Store) History(_ context.Context, name string) ([]store.JournalEntry, error) {
	return s.scanJournal(0, 0, func(e store.JournalEntry) bool { return e.Name == name })
}

func (s *Store) scanJournal(after int64, limit int, keep func(store.JournalEntry) bool) ([]store.JournalEntry, error) {
	out := []store.JournalEntry{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, Prefix: journalPrefix})
		defer it.Close()
		for it.Seek(journalKey(after + 1)); it.Valid(); it.Next() {
			var e store.JournalEntry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("unmarshal journal: %w", err)
			}
			if !keep(e) {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return out, nil
}

func lastSeq(txn *badger.Txn) (int64, error) {
	item, err := txn.Get(seqKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read seq: %w", err)
	}
	var seq int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt seq value (%d bytes)", len(val))
		}
		seq = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return seq, err
}

func putJournal(txn *badger.Txn, e store.JournalEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal journal %d: %w", e.Seq, err)
	}
	if err := txn.Set(journalKey(e.Seq), data); err != nil {
		return fmt.Errorf("journal %s %s: %w", e.Op, e.Name, err)
	}
	return nil
}

func termKey(name string) []byte {
	return append(append([]byte{}, termPrefix...), name...)
}

func journalKey(seq int64) []byte {
	return append(append([]byte{}, journalPrefix...), encodeSeq(seq)...)
}

func encodeSeq(seq int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(seq))
	return buf
}
