package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Journal returns journal rows with seq > after, oldest first.
// A limit <= 0 returns everything.
func (s *Store) Journal(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	query := `
		SELECT seq, batch_id, op, name, fingerprint
		FROM journal
		WHERE seq > ?
		ORDER BY seq ASC
	`
	args := []any{after}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	return scanJournal(rows)
}

// History returns every journal row that touched name, oldest first.
func (s *Store) History(ctx context.Context, name string) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, batch_id, op, name, fingerprint
		FROM journal
		WHERE name = ?
		ORDER BY seq ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query history %s: %w", name, err)
	}
	return scanJournal(rows)
}

func scanJournal(rows *sql.Rows) ([]JournalEntry, error) {
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.Seq, &e.BatchID, &e.Op, &e.Name, &e.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}
	return entries, nil
}
