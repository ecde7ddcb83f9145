package change

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/termbase/internal/term"
)

// ErrInvalid is wrapped by every validation failure of a Change.
var ErrInvalid = errors.New("invalid change")

// Change is a proposed transition of one term from Original to Updated.
//
// Original must be the persisted (or currently staged) snapshot; its
// ReferredBy set is authoritative. Updated is authoritative for the
// term's own description, arguments, facts and rules; its ReferredBy is
// ignored and recomputed by propagation.
type Change struct {
	Original *term.Term
	Ops      []ArgOp
	Updated  *term.Term
}

// Deletion is the removal of a whole term.
type Deletion struct {
	Term *term.Term
}

// Name returns the original name, which keys the term until the change
// is applied.
func (c Change) Name() string {
	return c.Original.Name
}

// Renamed reports whether the change gives the term a new name.
func (c Change) Renamed() bool {
	return c.Original.Name != c.Updated.Name
}

// HasOps reports whether the change reshapes the argument list.
func (c Change) HasOps() bool {
	return len(c.Ops) > 0
}

// Validate checks that both snapshots are well formed and that the
// operation list takes the original arity to the updated arity.
func (c Change) Validate() error {
	if c.Original == nil || c.Updated == nil {
		return fmt.Errorf("%w: missing snapshot", ErrInvalid)
	}
	if err := c.Updated.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	n := c.Original.Arity()
	for i, op := range c.Ops {
		next, err := op.Arity(n)
		if err != nil {
			return fmt.Errorf("%w: op %d: %v", ErrInvalid, i, err)
		}
		n = next
	}
	if n != c.Updated.Arity() {
		return fmt.Errorf("%w: ops yield arity %d, updated term has %d", ErrInvalid, n, c.Updated.Arity())
	}
	return nil
}

// String summarises the change for logs.
func (c Change) String() string {
	var parts []string
	if c.Renamed() {
		parts = append(parts, fmt.Sprintf("rename %s -> %s", c.Original.Name, c.Updated.Name))
	}
	for _, op := range c.Ops {
		parts = append(parts, op.String())
	}
	if len(parts) == 0 {
		parts = append(parts, "edit")
	}
	return c.Original.Name + ": " + strings.Join(parts, ", ")
}
