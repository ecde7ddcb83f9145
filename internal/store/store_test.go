package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termbase/internal/term"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_OpensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}
	if err := s1.Put(ctx, createTestTerm("parent")); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(ctx, "parent")
	if err != nil {
		t.Fatalf("Get() after reopen failed: %v", err)
	}
	if got.Name != "parent" {
		t.Errorf("Get().Name = %q, want %q", got.Name, "parent")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"terms", "journal"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestClose_MultipleCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("first Close() failed: %v", err)
	}
	// Second close must not panic
	_ = s.Close()
}

func TestDB_ReturnsUnderlyingConnection(t *testing.T) {
	s := createTestStore(t)

	db := s.DB()
	if db == nil {
		t.Fatal("DB() returned nil")
	}
	if err := db.Ping(); err != nil {
		t.Errorf("DB() connection not usable: %v", err)
	}
}

// Pragma tests

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

// Schema tests

func TestSchema_TermsTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "terms")
	for _, col := range []string{"name", "body", "fingerprint", "updated_seq"} {
		if !contains(columns, col) {
			t.Errorf("terms table missing column %q", col)
		}
	}
}

func TestSchema_JournalTable(t *testing.T) {
	s := createTestStore(t)

	columns := getTableColumns(t, s.db, "journal")
	for _, col := range []string{"seq", "batch_id", "op", "name", "fingerprint"} {
		if !contains(columns, col) {
			t.Errorf("journal table missing column %q", col)
		}
	}
}

func TestConstraint_JournalOpCheck(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO journal (seq, batch_id, op, name) VALUES (1, 'b', 'rename', 'x')`)
	if err == nil {
		t.Error("expected CHECK constraint to reject op 'rename'")
	}
}

// Term operations

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound), "error should wrap ErrNotFound: %v", err)
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	in := createTestTerm("ancestor", "parent")
	in.Description = "transitive parent"
	in.AddReferredBy("cousin")
	in.AddFact(term.Const("adam"))
	require.NoError(t, s.Put(ctx, in))

	out, err := s.Get(ctx, "ancestor")
	require.NoError(t, err)
	assert.True(t, term.Equal(in, out), "round trip changed the term:\n in: %+v\nout: %+v", in, out)
}

func TestPut_Overwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, createTestTerm("p", "a")))
	require.NoError(t, s.Put(ctx, createTestTerm("p", "b")))

	got, err := s.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got.MentionedTerms())

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, createTestTerm("p")))
	require.NoError(t, s.Delete(ctx, "p"))

	_, err := s.Get(ctx, "p")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is a no-op
	require.NoError(t, s.Delete(ctx, "p"))
}

func TestAll_OrderedByName(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.All(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, name := range []string{"zeta", "Alpha", "alpha", "beta"} {
		require.NoError(t, s.Put(ctx, createTestTerm(name)))
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	var names []string
	for _, tm := range all {
		names = append(names, tm.Name)
	}
	// BINARY collation: uppercase sorts first
	assert.Equal(t, []string{"Alpha", "alpha", "beta", "zeta"}, names)
}

func TestApplyBatch_DeletesThenPuts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, createTestTerm("keep")))

	b := Batch{
		ID:      "b1",
		Puts:    []*term.Term{createTestTerm("a"), createTestTerm("b")},
		Deletes: []string{"keep"},
	}
	require.NoError(t, s.ApplyBatch(ctx, b))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	journal, err := s.Journal(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, journal, 4)
	assert.Equal(t, OpPut, journal[0].Op)
	assert.Equal(t, "keep", journal[0].Name)
	for _, e := range journal[1:] {
		assert.Equal(t, "b1", e.BatchID)
	}
	assert.Equal(t, OpDelete, journal[1].Op)
	assert.Empty(t, journal[1].Fingerprint)
	assert.NotEmpty(t, journal[2].Fingerprint)
}

func TestApplyBatch_RollsBackOnFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, createTestTerm("keep")))

	// Make every journal insert fail after the delete has run.
	_, err := s.db.Exec(`
		CREATE TRIGGER fail_journal BEFORE INSERT ON journal
		BEGIN SELECT RAISE(ABORT, 'journal closed'); END
	`)
	require.NoError(t, err)

	err = s.ApplyBatch(ctx, Batch{
		ID:      "doomed",
		Puts:    []*term.Term{createTestTerm("new")},
		Deletes: []string{"keep"},
	})
	require.Error(t, err)

	_, err = s.Get(ctx, "keep")
	assert.NoError(t, err, "failed batch must not delete")
	_, err = s.Get(ctx, "new")
	assert.ErrorIs(t, err, ErrNotFound, "failed batch must not put")
}

func TestApplyBatch_EmptyIsNoop(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyBatch(ctx, Batch{ID: "empty"}))

	journal, err := s.Journal(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, journal)
}

func TestJournal_AfterAndLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Put(ctx, createTestTerm(name)))
	}

	page, err := s.Journal(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].Seq)
	assert.Equal(t, "b", page[0].Name)
	assert.Equal(t, "c", page[1].Name)
}

func TestHistory(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, createTestTerm("p")))
	require.NoError(t, s.Put(ctx, createTestTerm("q")))
	require.NoError(t, s.Put(ctx, createTestTerm("p", "q")))
	require.NoError(t, s.Delete(ctx, "p"))

	hist, err := s.History(ctx, "p")
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, []string{OpPut, OpPut, OpDelete}, []string{hist[0].Op, hist[1].Op, hist[2].Op})
	assert.NotEqual(t, hist[0].Fingerprint, hist[1].Fingerprint)
}

// Migration tests

func TestMigration_SchemaVersion(t *testing.T) {
	s := createTestStore(t)

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestMigration_V1JournalNameIndexExists(t *testing.T) {
	s := createTestStore(t)

	indexes := getTableIndexes(t, s.db, "journal")
	if !contains(indexes, "idx_journal_name") {
		t.Errorf("journal table missing idx_journal_name, indexes: %v", indexes)
	}
}

func TestMigration_UpgradeFromV0(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	// Create database manually without migration
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("failed to set user_version: %v", err)
	}
	if contains(getTableIndexes(t, db, "journal"), "idx_journal_name") {
		t.Fatal("v0 database should not have idx_journal_name")
	}
	db.Close()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("failed to get user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d after migration", version, currentSchemaVersion)
	}
	if !contains(getTableIndexes(t, s.db, "journal"), "idx_journal_name") {
		t.Error("expected idx_journal_name after migration")
	}
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
