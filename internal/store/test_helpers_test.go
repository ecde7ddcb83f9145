package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/termbase/internal/term"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestTerm creates a term with one rule calling each of calls.
func createTestTerm(name string, calls ...string) *term.Term {
	t := term.New(name, "X")
	for _, c := range calls {
		t.AddRule([]term.Binding{term.Var("X")}, term.Invoke(c, term.Var("X")))
	}
	return t
}
