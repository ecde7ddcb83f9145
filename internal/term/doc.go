// Package term provides the knowledge-base term model.
//
// A term is a named logical entry: metadata (description, ordered
// arguments) plus a body of ground facts and rules. Rule bodies invoke
// other terms by name, which makes the knowledge base a directed reference
// graph.
//
// This package contains the data types and the derived relations only.
// All other internal packages import term; term imports nothing internal.
//
// Key invariants:
//   - MentionedTerms is a pure projection over rule bodies, never persisted
//   - ReferredBy is the only persisted derived metadata: for all terms A, B,
//     A mentions B if and only if B.ReferredBy contains A
//   - ReferredBy is kept sorted and duplicate-free by its mutators
//   - A rule never has an empty body (it would read as an unconditional fact)
package term
