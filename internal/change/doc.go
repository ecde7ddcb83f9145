// Package change describes proposed edits to a term.
//
// A Change is the triple (original snapshot, ordered argument-shape
// operations, updated snapshot). The operations say how every bound
// occurrence of the term in other terms' rule bodies must be reshaped:
//
//	Append{Arg}      add a trailing argument; callers bind it to "_"
//	Reindex{Order}   permute arguments: new[i] = old[Order[i]]
//	Remove{Index}    drop one argument; the prior binding is reported
//
// A Deletion is the removal of a whole term.
//
// Edit builds a Change from an original term, reshaping the term's own
// facts, rule heads and self-invocations with the same operations so the
// updated snapshot is consistent with the operation list.
package change
