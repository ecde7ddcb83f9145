package change

import (
	"github.com/roach88/termbase/internal/term"
)

// Editor accumulates edits to one term and produces a Change.
//
//	c, err := change.Edit(original).
//		AppendArg(term.Argument{Name: "Since"}).
//		Rename("mom").
//		Change()
type Editor struct {
	original *term.Term
	updated  *term.Term
	ops      []ArgOp
}

// Edit starts an edit of original. The original is cloned; later
// changes to it do not affect the editor.
func Edit(original *term.Term) *Editor {
	return &Editor{
		original: original.Clone(),
		updated:  original.Clone(),
	}
}

// Rename gives the term a new name.
func (e *Editor) Rename(name string) *Editor {
	e.updated.Name = term.NormalizeName(name)
	return e
}

// Describe replaces the description.
func (e *Editor) Describe(text string) *Editor {
	e.updated.Description = text
	return e
}

// AppendArg adds a trailing argument. The term's own facts, rule heads
// and self-invocations gain a wildcard in that position.
func (e *Editor) AppendArg(arg term.Argument) *Editor {
	return e.apply(Append{Arg: arg}, func(t *term.Term) {
		t.Args = append(t.Args, arg)
	})
}

// RemoveArg drops the argument at index.
func (e *Editor) RemoveArg(index int) *Editor {
	return e.apply(Remove{Index: index}, func(t *term.Term) {
		if index < 0 || index >= len(t.Args) {
			return
		}
		t.Args = append(t.Args[:index:index], t.Args[index+1:]...)
	})
}

// ReorderArgs permutes the arguments: new[i] = old[order[i]].
func (e *Editor) ReorderArgs(order ...int) *Editor {
	op := Reindex{Order: append([]int(nil), order...)}
	return e.apply(op, func(t *term.Term) {
		if len(order) != len(t.Args) || !isPermutation(order) {
			return
		}
		args := make([]term.Argument, len(t.Args))
		for i, from := range order {
			args[i] = t.Args[from]
		}
		t.Args = args
	})
}

// AddRule appends a rule to the updated term.
func (e *Editor) AddRule(head []term.Binding, body ...term.Call) *Editor {
	e.updated.AddRule(head, body...)
	return e
}

// AddFact appends a fact to the updated term.
func (e *Editor) AddFact(values ...term.Binding) *Editor {
	e.updated.AddFact(values...)
	return e
}

// Mutate runs fn against the updated snapshot for edits the builder has
// no method for.
func (e *Editor) Mutate(fn func(t *term.Term)) *Editor {
	fn(e.updated)
	return e
}

// Change validates and returns the accumulated change.
func (e *Editor) Change() (Change, error) {
	c := Change{
		Original: e.original,
		Ops:      append([]ArgOp(nil), e.ops...),
		Updated:  e.updated.Clone(),
	}
	if err := c.Validate(); err != nil {
		return Change{}, err
	}
	return c, nil
}

// apply records op and reshapes the updated term's own bindings.
func (e *Editor) apply(op ArgOp, reshapeArgs func(t *term.Term)) *Editor {
	e.ops = append(e.ops, op)
	t := e.updated
	reshapeArgs(t)
	for i := range t.Facts {
		t.Facts[i].Values, _ = op.Apply(t.Facts[i].Values)
	}
	for i := range t.Rules {
		t.Rules[i].Head, _ = op.Apply(t.Rules[i].Head)
	}
	t.RewriteCalls(e.original.Name, op.Apply)
	return e
}
