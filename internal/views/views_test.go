package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termbase/internal/term"
)

func TestUpdateWith_NotLoadedIsNoop(t *testing.T) {
	r := NewRegistry()
	called := false
	r.UpdateWith("absent", func(t *term.Term) *term.Term {
		called = true
		return t
	})
	assert.False(t, called)
	assert.Empty(t, r.Names())
}

func TestUpdateWith_Replaces(t *testing.T) {
	r := NewRegistry()
	r.Open(term.New("parent", "X", "Y"))

	r.UpdateWith("parent", func(cur *term.Term) *term.Term {
		next := cur.Clone()
		next.Description = "refreshed"
		return next
	})

	got, ok := r.Get("parent")
	require.True(t, ok)
	assert.Equal(t, "refreshed", got.Description)
}

func TestUpdateWith_FollowsRename(t *testing.T) {
	r := NewRegistry()
	r.Open(term.New("mother", "X", "Y"))

	r.UpdateWith("mother", func(*term.Term) *term.Term {
		return term.New("mom", "X", "Y")
	})
	assert.Equal(t, []string{"mom"}, r.Names())
}

func TestUpdateWith_NilCloses(t *testing.T) {
	r := NewRegistry()
	r.Open(term.New("doomed"))

	r.UpdateWith("doomed", func(*term.Term) *term.Term { return nil })
	_, ok := r.Get("doomed")
	assert.False(t, ok)
}

func TestOpen_Copies(t *testing.T) {
	r := NewRegistry()
	orig := term.New("parent", "X")
	r.Open(orig)
	orig.Description = "changed after open"

	got, _ := r.Get("parent")
	assert.Empty(t, got.Description)

	r.Close("parent")
	assert.Empty(t, r.Names())
}
