// Package textio reads and writes knowledge bases as Datalog text.
//
// The dialect is the one accepted by github.com/google/mangle's parser:
//
//	Decl mother(X, Y) descr [doc("X is the mother of Y"), arg(Y, "the child")].
//	mother(X, Y) :- parent(X, Y), female(X).
//	parent("ann", "bob").
//
// A Decl names a term and its arguments. Ground clauses become facts;
// clauses with a body become rules. Body atoms may be negated with "!".
// Write produces the same dialect deterministically: terms in name order,
// each one's Decl followed by its facts and rules.
package textio
