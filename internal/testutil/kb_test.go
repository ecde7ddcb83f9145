package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/termbase/internal/term"
)

func TestLink(t *testing.T) {
	parent := term.New("parent", "X", "Y")
	ancestor := Rule(term.New("ancestor", "X", "Y"), "parent", "ancestor")
	orphan := Rule(term.New("orphan", "X", "Y"), "missing")

	Link(parent, ancestor, orphan)

	assert.Equal(t, []string{"ancestor"}, parent.ReferredBy)
	assert.Equal(t, []string{"ancestor"}, ancestor.ReferredBy)
	assert.Empty(t, orphan.ReferredBy)
}

func TestSeed(t *testing.T) {
	m := Seed(t, term.New("parent", "X", "Y"), Rule(term.New("child", "X", "Y"), "parent"))

	got := MustGet(t, m, "parent")
	assert.Equal(t, []string{"child"}, got.ReferredBy)
	assert.Equal(t, []string{"child", "parent"}, m.Names())
}
