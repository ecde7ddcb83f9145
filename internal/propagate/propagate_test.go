package propagate

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termbase/internal/change"
	"github.com/roach88/termbase/internal/impact"
	"github.com/roach88/termbase/internal/store"
	"github.com/roach88/termbase/internal/term"
	"github.com/roach88/termbase/internal/testutil"
	"github.com/roach88/termbase/internal/workset"
)

// flush writes the cache's pending entries to m, the way the engine does.
func flush(t *testing.T, m *store.Memory, c *workset.Cache) {
	t.Helper()
	var b store.Batch
	for _, p := range c.Pending() {
		if p.Deleted {
			b.Deletes = append(b.Deletes, p.Name)
			continue
		}
		b.Puts = append(b.Puts, p.Term)
	}
	require.NoError(t, m.ApplyBatch(context.Background(), b))
}

func family() []*term.Term {
	return []*term.Term{
		term.New("parent", "X", "Y"),
		term.New("female", "X"),
		testutil.Rule(term.New("mother", "X", "Y"), "parent", "female"),
	}
}

func edit(t *testing.T, m *store.Memory, name string, fn func(e *change.Editor)) change.Change {
	t.Helper()
	e := change.Edit(testutil.MustGet(t, m, name))
	fn(e)
	c, err := e.Change()
	require.NoError(t, err)
	return c
}

func TestChange_Idempotent(t *testing.T) {
	m := testutil.Seed(t, family()...)
	mother := testutil.MustGet(t, m, "mother")
	c := change.Change{Original: mother, Updated: mother.Clone()}

	assert.Empty(t, impact.OfChange(c))

	res, err := Change(context.Background(), c, workset.New(m))
	require.NoError(t, err)
	assert.Empty(t, res.Updates)
	assert.True(t, term.Equal(mother, res.Self))
}

func TestChange_RenameUnreferred(t *testing.T) {
	ctx := context.Background()
	m := testutil.Seed(t, family()...)
	c := edit(t, m, "mother", func(e *change.Editor) { e.Rename("mom") })

	cache := workset.New(m)
	res, err := Change(ctx, c, cache)
	require.NoError(t, err)
	assert.Equal(t, []string{"female", "parent"}, res.Names())
	assert.Equal(t, []string{"mom"}, res.Updates["parent"].ReferredBy)
	assert.Equal(t, "mom", res.Self.Name)

	flush(t, m, cache)
	assert.Equal(t, []string{"female", "mom", "parent"}, m.Names())
	assert.Equal(t, []string{"mom"}, testutil.MustGet(t, m, "female").ReferredBy)
}

func TestChange_RenameRewritesReferrerCalls(t *testing.T) {
	ctx := context.Background()
	terms := append(family(), testutil.Rule(term.New("grandmother", "X", "Y"), "mother", "parent"))
	m := testutil.Seed(t, terms...)
	c := edit(t, m, "mother", func(e *change.Editor) { e.Rename("mom") })

	cache := workset.New(m)
	res, err := Change(ctx, c, cache)
	require.NoError(t, err)

	gm := res.Updates["grandmother"]
	require.NotNil(t, gm)
	assert.Equal(t, []string{"mom", "parent"}, gm.MentionedTerms())
	assert.Equal(t, []string{"grandmother"}, res.Self.ReferredBy)
}

func TestChange_RenameCollision(t *testing.T) {
	m := testutil.Seed(t, family()...)
	c := edit(t, m, "mother", func(e *change.Editor) { e.Rename("parent") })

	_, err := Change(context.Background(), c, workset.New(m))
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestChange_RenameRoundTrip(t *testing.T) {
	ctx := context.Background()
	terms := append(family(), testutil.Rule(term.New("grandmother", "X", "Y"), "mother", "parent"))
	m := testutil.Seed(t, terms...)
	before, err := m.All(ctx)
	require.NoError(t, err)

	for _, step := range [][2]string{{"mother", "mom"}, {"mom", "mother"}} {
		c := edit(t, m, step[0], func(e *change.Editor) { e.Rename(step[1]) })
		cache := workset.New(m)
		_, err := Change(ctx, c, cache)
		require.NoError(t, err)
		flush(t, m, cache)
	}

	after, err := m.All(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("rename round trip changed the knowledge base (-before +after):\n%s", diff)
	}
}

func TestChange_SelfReferenceRename(t *testing.T) {
	ctx := context.Background()
	m := testutil.Seed(t,
		term.New("parent", "X", "Y"),
		testutil.Rule(term.New("ancestor", "X", "Y"), "parent", "ancestor"),
	)
	c := edit(t, m, "ancestor", func(e *change.Editor) { e.Rename("forebear") })

	cache := workset.New(m)
	res, err := Change(ctx, c, cache)
	require.NoError(t, err)
	assert.Equal(t, []string{"parent"}, res.Names(), "self is never reported as an update")
	assert.Equal(t, []string{"forebear", "parent"}, res.Self.MentionedTerms())
	assert.Equal(t, []string{"forebear"}, res.Self.ReferredBy)

	flush(t, m, cache)
	assert.Equal(t, []string{"forebear"}, testutil.MustGet(t, m, "parent").ReferredBy)
	_, err = m.Get(ctx, "ancestor")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChange_MentionDelta(t *testing.T) {
	ctx := context.Background()
	m := testutil.Seed(t, append(family(), term.New("human", "X"))...)
	c := edit(t, m, "mother", func(e *change.Editor) {
		e.Mutate(func(tm *term.Term) {
			tm.Rules[0].Body[1].Term = "human"
		})
	})

	res, err := Change(ctx, c, workset.New(m))
	require.NoError(t, err)
	assert.Equal(t, []string{"female", "human"}, res.Names())
	assert.Empty(t, res.Updates["female"].ReferredBy)
	assert.Equal(t, []string{"mother"}, res.Updates["human"].ReferredBy)
}

func TestChange_DanglingAddition(t *testing.T) {
	m := testutil.Seed(t, family()...)
	c := edit(t, m, "mother", func(e *change.Editor) {
		e.AddRule([]term.Binding{term.Var("X"), term.Var("Y")}, term.Invoke("ghost", term.Var("X")))
	})

	_, err := Change(context.Background(), c, workset.New(m))
	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling), "expected DanglingReferenceError, got %v", err)
	assert.Equal(t, "ghost", dangling.Missing)
	assert.Equal(t, "mother", dangling.From)
}

func TestChange_AppendRewritesReferrers(t *testing.T) {
	ctx := context.Background()
	m := testutil.Seed(t,
		term.New("original", "X"),
		testutil.Rule(term.New("referring", "X"), "original"),
	)
	c := edit(t, m, "original", func(e *change.Editor) {
		e.AppendArg(term.Argument{Name: "Y"})
	})

	res, err := Change(ctx, c, workset.New(m))
	require.NoError(t, err)
	require.Contains(t, res.Updates, "referring")
	call := res.Updates["referring"].Rules[0].Body[0]
	assert.Equal(t, []term.Binding{term.Var("X"), term.Wildcard()}, call.Args)
	assert.Equal(t, 2, res.Self.Arity())

	// Nothing reaches the store until flushed
	stored := testutil.MustGet(t, m, "referring")
	assert.Len(t, stored.Rules[0].Body[0].Args, 1)
}

func TestChange_ArgumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := testutil.Seed(t,
		term.New("original", "X"),
		testutil.Rule(term.New("referring", "X"), "original"),
		testutil.Rule(term.New("other", "X"), "original", "referring"),
	)
	before, err := m.All(ctx)
	require.NoError(t, err)

	steps := []func(e *change.Editor){
		func(e *change.Editor) { e.AppendArg(term.Argument{Name: "Y"}) },
		func(e *change.Editor) { e.RemoveArg(1) },
	}
	for _, fn := range steps {
		c := edit(t, m, "original", fn)
		cache := workset.New(m)
		_, err := Change(ctx, c, cache)
		require.NoError(t, err)
		flush(t, m, cache)
	}

	after, err := m.All(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("append then remove changed the knowledge base (-before +after):\n%s", diff)
	}
}

func TestChange_NoopRemoveExcluded(t *testing.T) {
	ctx := context.Background()
	shortCall := term.New("short", "X")
	shortCall.AddRule([]term.Binding{term.Var("X")}, term.Invoke("pair", term.Var("X")))
	m := testutil.Seed(t,
		term.New("pair", "X", "Y"),
		testutil.Rule(term.New("full", "X", "Y"), "pair"),
		shortCall,
	)
	c := edit(t, m, "pair", func(e *change.Editor) { e.RemoveArg(1) })

	// Both referrers are affected on paper
	assert.ElementsMatch(t, []string{"full", "short"}, impact.OfChange(c))

	res, err := Change(ctx, c, workset.New(m))
	require.NoError(t, err)
	assert.Equal(t, []string{"full"}, res.Names(), "a remove with nothing to remove is not an update")
}

func TestChange_NewTerm(t *testing.T) {
	ctx := context.Background()
	m := testutil.Seed(t, family()...)
	fresh := testutil.Rule(term.New("sibling", "X", "Y"), "parent")
	c := change.Change{Original: term.New("sibling", "X", "Y"), Updated: fresh}

	cache := workset.New(m)
	res, err := Change(ctx, c, cache)
	require.NoError(t, err)
	assert.Equal(t, []string{"parent"}, res.Names())

	flush(t, m, cache)
	assert.Equal(t, []string{"mother", "sibling"}, testutil.MustGet(t, m, "parent").ReferredBy)
	assert.Empty(t, testutil.MustGet(t, m, "sibling").ReferredBy)
}

func TestChange_WorkingSetAccumulates(t *testing.T) {
	ctx := context.Background()
	m := testutil.Seed(t,
		term.New("original", "X"),
		testutil.Rule(term.New("referring", "X"), "original"),
	)
	cache := workset.New(m)

	first := edit(t, m, "original", func(e *change.Editor) { e.AppendArg(term.Argument{Name: "Y"}) })
	_, err := Change(ctx, first, cache)
	require.NoError(t, err)

	// Second edit starts from the staged snapshot, not the store
	staged, err := cache.Get(ctx, "original")
	require.NoError(t, err)
	second, err := change.Edit(staged).AppendArg(term.Argument{Name: "Z"}).Change()
	require.NoError(t, err)
	res, err := Change(ctx, second, cache)
	require.NoError(t, err)

	call := res.Updates["referring"].Rules[0].Body[0]
	assert.Equal(t, []term.Binding{term.Var("X"), term.Wildcard(), term.Wildcard()}, call.Args)
}

func TestDeletion_Cascade(t *testing.T) {
	ctx := context.Background()
	referring := term.New("referring", "X")
	referring.AddRule([]term.Binding{term.Var("X")}, term.Invoke("original", term.Var("X")))
	referring.AddRule([]term.Binding{term.Var("X")},
		term.Invoke("original", term.Var("X")),
		term.Invoke("other", term.Var("X")),
	)
	m := testutil.Seed(t,
		term.New("other", "X"),
		testutil.Rule(term.New("original", "X"), "other"),
		referring,
	)
	doomed := testutil.MustGet(t, m, "original")

	cache := workset.New(m)
	res, err := Deletion(ctx, change.Deletion{Term: doomed}, cache)
	require.NoError(t, err)
	assert.Equal(t, []string{"other", "referring"}, res.Names())

	got := res.Updates["referring"]
	require.Len(t, got.Rules, 1, "the rule whose body emptied must be dropped")
	assert.Equal(t, []string{"other"}, got.MentionedTerms())
	assert.Equal(t, []string{"referring"}, res.Updates["other"].ReferredBy)

	flush(t, m, cache)
	_, err = m.Get(ctx, "original")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeletion_MissingReferrerIsDangling(t *testing.T) {
	doomed := term.New("original", "X")
	doomed.AddReferredBy("vanished")
	m := store.NewMemory()
	require.NoError(t, m.Put(context.Background(), doomed))

	_, err := Deletion(context.Background(), change.Deletion{Term: doomed}, workset.New(m))
	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling))
	assert.Equal(t, "vanished", dangling.Missing)
}

func TestDeletion_MissingMentionIsDangling(t *testing.T) {
	ctx := context.Background()
	m := testutil.Seed(t, term.New("parent", "X", "Y"))
	doomed := testutil.Rule(term.New("mother", "X", "Y"), "parent", "female")
	require.NoError(t, m.Put(ctx, doomed))

	cache := workset.New(m)
	_, err := Deletion(ctx, change.Deletion{Term: doomed}, cache)
	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling), "got %v", err)
	assert.Equal(t, "mother", dangling.From)
	assert.Equal(t, "female", dangling.Missing)

	assert.Empty(t, cache.Pending())
	assert.True(t, cache.Has("mother"), "nothing is tombstoned")
}

func TestChange_FailedPassLeavesSourceUntouched(t *testing.T) {
	ctx := context.Background()
	m := testutil.Seed(t,
		term.New("original", "X"),
		testutil.Rule(term.New("referring", "X"), "original"),
	)
	c := edit(t, m, "original", func(e *change.Editor) {
		e.AppendArg(term.Argument{Name: "Y"})
		e.AddRule([]term.Binding{term.Var("X"), term.Var("Y")}, term.Invoke("ghost", term.Var("X")))
	})

	cache := workset.New(m)
	_, err := Change(ctx, c, cache)
	var dangling *DanglingReferenceError
	require.True(t, errors.As(err, &dangling))

	assert.Empty(t, cache.Pending())
	staged, err := cache.Get(ctx, "referring")
	require.NoError(t, err)
	assert.Len(t, staged.Rules[0].Body[0].Args, 1)
}
