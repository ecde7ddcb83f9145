package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/termbase/internal/term"
)

// Get returns the term stored under name.
// Returns an error wrapping ErrNotFound if there is none.
func (s *Store) Get(ctx context.Context, name string) (*term.Term, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM terms WHERE name = ?
	`, name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	return unmarshalTerm(body)
}

// Put writes t under t.Name as a single-term batch.
func (s *Store) Put(ctx context.Context, t *term.Term) error {
	return s.ApplyBatch(ctx, Batch{ID: "put:" + t.Name, Puts: []*term.Term{t}})
}

// Delete removes the term stored under name as a single-term batch.
// Deleting an absent term is a no-op.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.ApplyBatch(ctx, Batch{ID: "delete:" + name, Deletes: []string{name}})
}

// ApplyBatch writes every delete and put of b in one transaction and
// appends one journal row per write. On error nothing is written.
func (s *Store) ApplyBatch(ctx context.Context, b Batch) error {
	if b.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply batch %s: begin tx: %w", b.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM journal`).Scan(&seq); err != nil {
		return fmt.Errorf("apply batch %s: read seq: %w", b.ID, err)
	}

	for _, name := range b.Deletes {
		seq++
		if _, err := tx.ExecContext(ctx, `DELETE FROM terms WHERE name = ?`, name); err != nil {
			return fmt.Errorf("apply batch %s: delete %s: %w", b.ID, name, err)
		}
		if err := appendJournal(ctx, tx, seq, b.ID, OpDelete, name, ""); err != nil {
			return err
		}
	}

	for _, t := range b.Puts {
		seq++
		body, fp, err := marshalTerm(t)
		if err != nil {
			return fmt.Errorf("apply batch %s: %w", b.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO terms (name, body, fingerprint, updated_seq)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				body = excluded.body,
				fingerprint = excluded.fingerprint,
				updated_seq = excluded.updated_seq
		`, t.Name, body, fp, seq)
		if err != nil {
			return fmt.Errorf("apply batch %s: put %s: %w", b.ID, t.Name, err)
		}
		if err := appendJournal(ctx, tx, seq, b.ID, OpPut, t.Name, fp); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply batch %s: commit: %w", b.ID, err)
	}
	return nil
}

// All returns every term ordered by name.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) All(ctx context.Context) ([]*term.Term, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM terms ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query terms: %w", err)
	}
	defer rows.Close()

	terms := []*term.Term{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		t, err := unmarshalTerm(body)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate terms: %w", err)
	}
	return terms, nil
}

// Count returns the number of stored terms.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM terms`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count terms: %w", err)
	}
	return n, nil
}

func appendJournal(ctx context.Context, tx *sql.Tx, seq int64, batchID, op, name, fp string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO journal (seq, batch_id, op, name, fingerprint)
		VALUES (?, ?, ?, ?, ?)
	`, seq, batchID, op, name, fp)
	if err != nil {
		return fmt.Errorf("apply batch %s: journal %s %s: %w", batchID, op, name, err)
	}
	return nil
}

// marshalTerm encodes t for storage and computes its fingerprint.
func marshalTerm(t *term.Term) (body, fingerprint string, err error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", "", fmt.Errorf("marshal %s: %w", t.Name, err)
	}
	fingerprint, err = t.Fingerprint()
	if err != nil {
		return "", "", err
	}
	return string(data), fingerprint, nil
}

func unmarshalTerm(body string) (*term.Term, error) {
	var t term.Term
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, fmt.Errorf("unmarshal term: %w", err)
	}
	return &t, nil
}
