package change

import (
	"fmt"

	"github.com/roach88/termbase/internal/term"
)

// ArgOp is a sealed interface over the argument-shape operations.
// Only Append, Reindex and Remove implement it.
type ArgOp interface {
	// Apply reshapes one bound argument vector. It returns the new vector
	// and whether it differs from args. args is never modified.
	Apply(args []term.Binding) ([]term.Binding, bool)

	// Arity returns the arity after the operation, or an error if the
	// operation cannot apply to a term of arity n.
	Arity(n int) (int, error)

	String() string
	argOp()
}

// Append adds a trailing argument.
type Append struct {
	Arg term.Argument
}

func (Append) argOp() {}

// Apply appends a wildcard binding.
func (a Append) Apply(args []term.Binding) ([]term.Binding, bool) {
	out := make([]term.Binding, len(args), len(args)+1)
	copy(out, args)
	return append(out, term.Wildcard()), true
}

// Arity implements ArgOp.
func (a Append) Arity(n int) (int, error) {
	return n + 1, nil
}

func (a Append) String() string {
	return fmt.Sprintf("append(%s)", a.Arg.Name)
}

// Reindex permutes the arguments: position i of the result takes the
// binding previously at Order[i].
type Reindex struct {
	Order []int
}

func (Reindex) argOp() {}

// Apply permutes args. A vector whose length does not match the
// permutation is left untouched.
func (r Reindex) Apply(args []term.Binding) ([]term.Binding, bool) {
	if len(args) != len(r.Order) || !isPermutation(r.Order) {
		return args, false
	}
	out := make([]term.Binding, len(args))
	changed := false
	for i, from := range r.Order {
		out[i] = args[from]
		if from != i {
			changed = true
		}
	}
	if !changed {
		return args, false
	}
	return out, true
}

// Arity implements ArgOp.
func (r Reindex) Arity(n int) (int, error) {
	if len(r.Order) != n {
		return 0, fmt.Errorf("reindex: order has %d entries, arity is %d", len(r.Order), n)
	}
	if !isPermutation(r.Order) {
		return 0, fmt.Errorf("reindex: %v is not a permutation", r.Order)
	}
	return n, nil
}

func (r Reindex) String() string {
	return fmt.Sprintf("reindex(%v)", r.Order)
}

// Remove drops the argument at Index.
type Remove struct {
	Index int
}

func (Remove) argOp() {}

// Take removes the binding at Index and returns it. ok is false when the
// vector has no such position, in which case rest is args unchanged.
func (r Remove) Take(args []term.Binding) (rest []term.Binding, prior term.Binding, ok bool) {
	if r.Index < 0 || r.Index >= len(args) {
		return args, term.Binding{}, false
	}
	rest = make([]term.Binding, 0, len(args)-1)
	rest = append(rest, args[:r.Index]...)
	rest = append(rest, args[r.Index+1:]...)
	return rest, args[r.Index], true
}

// Apply implements ArgOp.
func (r Remove) Apply(args []term.Binding) ([]term.Binding, bool) {
	rest, _, ok := r.Take(args)
	return rest, ok
}

// Arity implements ArgOp.
func (r Remove) Arity(n int) (int, error) {
	if r.Index < 0 || r.Index >= n {
		return 0, fmt.Errorf("remove: index %d out of range for arity %d", r.Index, n)
	}
	return n - 1, nil
}

func (r Remove) String() string {
	return fmt.Sprintf("remove(%d)", r.Index)
}

// ApplyAll applies ops in order and reports whether the final vector
// differs from args.
func ApplyAll(ops []ArgOp, args []term.Binding) ([]term.Binding, bool) {
	out := args
	changed := false
	for _, op := range ops {
		next, ok := op.Apply(out)
		if ok {
			out = next
			changed = true
		}
	}
	if changed && term.EqualBindings(out, args) {
		return args, false
	}
	return out, changed
}

func isPermutation(order []int) bool {
	seen := make([]bool, len(order))
	for _, i := range order {
		if i < 0 || i >= len(order) || seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}
