package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/termbase/internal/change"
	"github.com/roach88/termbase/internal/term"
)

func TestClassifyChange(t *testing.T) {
	lonely := term.New("original", "A")
	referred := term.New("original", "A")
	referred.AddReferredBy("referring")
	selfOnly := term.New("original", "A")
	selfOnly.AddReferredBy("original")

	tests := []struct {
		name string
		orig *term.Term
		ops  bool
		want Decision
	}{
		{"no ops, no referrers", lonely, false, Automatic},
		{"no ops, referrers", referred, false, Automatic},
		{"ops, no referrers", lonely, true, Automatic},
		{"ops, self reference only", selfOnly, true, Automatic},
		{"ops, referrers", referred, true, RequiresConfirmation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ed := change.Edit(tt.orig)
			if tt.ops {
				ed.AppendArg(term.Argument{Name: "B"})
			}
			c, err := ed.Change()
			require.NoError(t, err)
			assert.Equal(t, tt.want, ClassifyChange(c))
		})
	}
}

func TestClassifyChange_RenameWithReferrersIsAutomatic(t *testing.T) {
	orig := term.New("mother", "M", "C")
	orig.AddReferredBy("grandmother")
	c, err := change.Edit(orig).Rename("mom").Change()
	require.NoError(t, err)

	assert.Equal(t, Automatic, ClassifyChange(c))
	assert.Nil(t, Dependents(c))
}

func TestClassifyDeletion(t *testing.T) {
	lonely := term.New("x")
	assert.Equal(t, Automatic, ClassifyDeletion(change.Deletion{Term: lonely}))

	referred := term.New("x")
	referred.AddReferredBy("y")
	assert.Equal(t, RequiresConfirmation, ClassifyDeletion(change.Deletion{Term: referred}))
}

func TestDependents(t *testing.T) {
	orig := term.New("original", "A")
	orig.AddReferredBy("original")
	orig.AddReferredBy("referring")
	c, err := change.Edit(orig).RemoveArg(0).Change()
	require.NoError(t, err)

	assert.Equal(t, []string{"referring"}, Dependents(c))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "automatic", Automatic.String())
	assert.Equal(t, "confirmation", RequiresConfirmation.String())
}
