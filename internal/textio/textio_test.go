package textio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termbase/internal/term"
)

const family = `
Decl parent(X, Y) descr [doc("X is a parent of Y")].
Decl female(X).
Decl mother(X, Y) descr [doc("X is the mother of Y"), arg(Y, "the child")].
Decl orphan(X).

parent("ann", "bob").
female("ann").
mother(X, Y) :- parent(X, Y), female(X).
orphan(X) :- female(X), !parent(_, X).
`

func TestRead(t *testing.T) {
	terms, err := Read(strings.NewReader(family))
	require.NoError(t, err)
	require.Len(t, terms, 4)

	byName := make(map[string]*term.Term)
	for _, tm := range terms {
		byName[tm.Name] = tm
	}

	mother := byName["mother"]
	require.NotNil(t, mother)
	assert.Equal(t, "X is the mother of Y", mother.Description)
	assert.Equal(t, []term.Argument{{Name: "X"}, {Name: "Y", Description: "the child"}}, mother.Args)
	assert.Equal(t, []string{"female", "parent"}, mother.MentionedTerms())

	parent := byName["parent"]
	require.Len(t, parent.Facts, 1)
	assert.Equal(t, []term.Binding{term.Const(`"ann"`), term.Const(`"bob"`)}, parent.Facts[0].Values)
	assert.Equal(t, []string{"mother", "orphan"}, parent.ReferredBy)
	assert.Equal(t, []string{"mother", "orphan"}, byName["female"].ReferredBy)

	orphan := byName["orphan"]
	require.Len(t, orphan.Rules, 1)
	neg := orphan.Rules[0].Body[1]
	assert.True(t, neg.Negated)
	assert.Equal(t, []term.Binding{term.Wildcard(), term.Var("X")}, neg.Args)
}

func TestRead_InfersUndeclaredTerms(t *testing.T) {
	terms, err := Read(strings.NewReader(`edge("a", "b").`))
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "edge", terms[0].Name)
	assert.Equal(t, []term.Argument{{Name: "A0"}, {Name: "A1"}}, terms[0].Args)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   error
	}{
		{"undefined call", `Decl a(X). a(X) :- b(X).`, ErrUndefined},
		{"arity mismatch", `Decl a(X). a("x", "y").`, term.ErrArity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.source))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("non-ground fact", func(t *testing.T) {
		_, err := Read(strings.NewReader(`Decl a(X). a(X).`))
		assert.ErrorContains(t, err, "not ground")
	})
	t.Run("syntax", func(t *testing.T) {
		_, err := Read(strings.NewReader(`a(X :- .`))
		assert.ErrorContains(t, err, "parse")
	})
}

func TestWrite_RoundTrip(t *testing.T) {
	terms, err := Read(strings.NewReader(family))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, terms))

	again, err := Read(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(terms, again); diff != "" {
		t.Errorf("write/read round trip differs (-want +got):\n%s", diff)
	}
}

func TestWrite_Deterministic(t *testing.T) {
	parent := term.New("parent", "X", "Y")
	parent.AddFact(term.Const(`"ann"`), term.Const(`"bob"`))
	mother := term.New("mother", "X", "Y")
	mother.Description = "X is the mother of Y"
	mother.AddRule([]term.Binding{term.Var("X"), term.Var("Y")},
		term.Invoke("parent", term.Var("X"), term.Var("Y"), term.Wildcard()))

	var a, b bytes.Buffer
	require.NoError(t, Write(&a, []*term.Term{parent, mother}))
	require.NoError(t, Write(&b, []*term.Term{mother, parent}))
	assert.Equal(t, a.String(), b.String())

	want := `Decl mother(X, Y) descr [doc("X is the mother of Y")].
mother(X, Y) :- parent(X, Y, _).

Decl parent(X, Y).
parent("ann", "bob").
`
	assert.Equal(t, want, a.String())
}

func TestFormat_UnnamedArgs(t *testing.T) {
	tm := &term.Term{Name: "edge", Args: []term.Argument{{}, {Description: "target"}}}
	assert.Equal(t, "Decl edge(A0, A1) descr [arg(A1, \"target\")].\n", Format(tm))
}

func TestReadClause(t *testing.T) {
	name, rule, err := ReadClause(`original(X, Y) :- extra(X), !female(Y).`)
	require.NoError(t, err)
	assert.Equal(t, "original", name)
	assert.Equal(t, []term.Binding{term.Var("X"), term.Var("Y")}, rule.Head)
	require.Len(t, rule.Body, 2)
	assert.Equal(t, "extra", rule.Body[0].Term)
	assert.True(t, rule.Body[1].Negated)

	_, _, err = ReadClause(`a(X) :- b(X). c(X) :- b(X).`)
	assert.ErrorContains(t, err, "expected one clause")
}

func TestReadTerm(t *testing.T) {
	tm, err := ReadTerm(`
Decl daughter(X, Y) descr [doc("Y is a daughter of X")].
daughter(X, Y) :- parent(X, Y), female(Y).
`)
	require.NoError(t, err)
	assert.Equal(t, "daughter", tm.Name)
	assert.Equal(t, "Y is a daughter of X", tm.Description)
	assert.Equal(t, []string{"female", "parent"}, tm.MentionedTerms())
	assert.Empty(t, tm.ReferredBy)

	_, err = ReadTerm(`Decl a(X). Decl b(X).`)
	assert.ErrorContains(t, err, "expected one term")
}
