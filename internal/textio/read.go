package textio

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"

	"github.com/roach88/termbase/internal/term"
)

// ErrUnsupported is wrapped by errors for Datalog constructs that have no
// counterpart in the term model.
var ErrUnsupported = errors.New("unsupported construct")

// ErrUndefined is wrapped when a rule body calls a predicate that is
// neither declared nor defined in the input.
var ErrUndefined = errors.New("undefined predicate")

// Read parses Datalog source into terms ordered by name, with ReferredBy
// computed from the rule bodies.
func Read(r io.Reader) ([]*term.Term, error) {
	unit, err := parse.Unit(r)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	b := newBuilder()
	for _, d := range unit.Decls {
		if err := b.decl(d); err != nil {
			return nil, err
		}
	}
	for _, c := range unit.Clauses {
		if err := b.clause(c); err != nil {
			return nil, err
		}
	}
	return b.finish()
}

type builder struct {
	terms map[string]*term.Term
}

func newBuilder() *builder {
	return &builder{terms: make(map[string]*term.Term)}
}

func (b *builder) decl(d ast.Decl) error {
	sym := d.DeclaredAtom.Predicate.Symbol
	// The parser adds a synthetic package declaration.
	if sym == "" || sym == "Package" {
		return nil
	}
	name := term.NormalizeName(sym)
	if _, ok := b.terms[name]; ok {
		return fmt.Errorf("decl %s: declared twice", name)
	}

	t := &term.Term{Name: name, Args: make([]term.Argument, len(d.DeclaredAtom.Args))}
	index := make(map[string]int)
	for i, arg := range d.DeclaredAtom.Args {
		v, ok := arg.(ast.Variable)
		if !ok {
			return fmt.Errorf("decl %s: argument %d: %w: %s", name, i, ErrUnsupported, arg)
		}
		t.Args[i].Name = v.Symbol
		index[v.Symbol] = i
	}

	for _, descr := range d.Descr {
		switch descr.Predicate.Symbol {
		case "doc":
			var text []string
			for _, a := range descr.Args {
				if s, ok := stringValue(a); ok {
					text = append(text, s)
				}
			}
			t.Description = strings.Join(text, "\n")
		case "arg":
			if len(descr.Args) < 2 {
				continue
			}
			v, ok := descr.Args[0].(ast.Variable)
			if !ok {
				continue
			}
			i, ok := index[v.Symbol]
			if !ok {
				return fmt.Errorf("decl %s: arg description for unknown argument %s", name, v.Symbol)
			}
			if s, ok := stringValue(descr.Args[1]); ok {
				t.Args[i].Description = s
			}
		}
	}
	b.terms[name] = t
	return nil
}

func (b *builder) clause(c ast.Clause) error {
	name := term.NormalizeName(c.Head.Predicate.Symbol)
	if c.Transform != nil {
		return fmt.Errorf("clause for %s: %w: transform", name, ErrUnsupported)
	}
	head, err := bindings(c.Head.Args)
	if err != nil {
		return fmt.Errorf("clause for %s: %w", name, err)
	}

	t, ok := b.terms[name]
	if !ok {
		t = &term.Term{Name: name, Args: positionalArgs(len(head))}
		b.terms[name] = t
	}
	if len(head) != t.Arity() {
		return fmt.Errorf("clause for %s: %w (%d != %d)", name, term.ErrArity, len(head), t.Arity())
	}

	if len(c.Premises) == 0 {
		for i, v := range head {
			if v.Kind != term.KindConstant {
				return fmt.Errorf("fact %s: argument %d is not ground", name, i)
			}
		}
		t.AddFact(head...)
		return nil
	}

	body := make([]term.Call, 0, len(c.Premises))
	for _, p := range c.Premises {
		call, err := premise(p)
		if err != nil {
			return fmt.Errorf("rule for %s: %w", name, err)
		}
		body = append(body, call)
	}
	t.AddRule(head, body...)
	return nil
}

// finish checks that every call resolves and links back-references.
func (b *builder) finish() ([]*term.Term, error) {
	names := make([]string, 0, len(b.terms))
	for n := range b.terms {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]*term.Term, 0, len(names))
	for _, n := range names {
		t := b.terms[n]
		for _, m := range t.MentionedTerms() {
			target, ok := b.terms[m]
			if !ok {
				return nil, fmt.Errorf("%s calls %s: %w", n, m, ErrUndefined)
			}
			target.AddReferredBy(n)
		}
		out = append(out, t)
	}
	for _, t := range out {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func premise(p ast.Term) (term.Call, error) {
	switch a := p.(type) {
	case ast.Atom:
		return call(a, false)
	case ast.NegAtom:
		return call(a.Atom, true)
	default:
		return term.Call{}, fmt.Errorf("%w: premise %s", ErrUnsupported, p)
	}
}

func call(a ast.Atom, negated bool) (term.Call, error) {
	args, err := bindings(a.Args)
	if err != nil {
		return term.Call{}, err
	}
	return term.Call{Term: term.NormalizeName(a.Predicate.Symbol), Args: args, Negated: negated}, nil
}

func bindings(args []ast.BaseTerm) ([]term.Binding, error) {
	out := make([]term.Binding, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case ast.Variable:
			if v.Symbol == "_" {
				out[i] = term.Wildcard()
			} else {
				out[i] = term.Var(v.Symbol)
			}
		case ast.Constant:
			out[i] = term.Const(v.String())
		default:
			return nil, fmt.Errorf("%w: argument %s", ErrUnsupported, arg)
		}
	}
	return out, nil
}

func stringValue(arg ast.BaseTerm) (string, bool) {
	c, ok := arg.(ast.Constant)
	if !ok || c.Type != ast.StringType {
		return "", false
	}
	return c.Symbol, true
}

func positionalArgs(n int) []term.Argument {
	args := make([]term.Argument, n)
	for i := range args {
		args[i].Name = fmt.Sprintf("A%d", i)
	}
	return args
}

// ReadTerm parses the definition of a single term: an optional Decl and
// its clauses. Calls to other terms are not resolved and ReferredBy is
// left empty.
func ReadTerm(src string) (*term.Term, error) {
	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	b := newBuilder()
	for _, d := range unit.Decls {
		if err := b.decl(d); err != nil {
			return nil, err
		}
	}
	for _, c := range unit.Clauses {
		if err := b.clause(c); err != nil {
			return nil, err
		}
	}
	if len(b.terms) != 1 {
		return nil, fmt.Errorf("expected one term, got %d", len(b.terms))
	}
	var t *term.Term
	for _, only := range b.terms {
		t = only
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ReadClause parses a single Datalog clause, such as one rule, and
// returns the name of its head predicate and the clause as a rule. Calls
// are not resolved.
func ReadClause(src string) (string, term.Rule, error) {
	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return "", term.Rule{}, fmt.Errorf("parse: %w", err)
	}
	if len(unit.Clauses) != 1 {
		return "", term.Rule{}, fmt.Errorf("expected one clause, got %d", len(unit.Clauses))
	}
	c := unit.Clauses[0]
	if c.Transform != nil {
		return "", term.Rule{}, fmt.Errorf("%w: transform", ErrUnsupported)
	}
	head, err := bindings(c.Head.Args)
	if err != nil {
		return "", term.Rule{}, err
	}
	body := make([]term.Call, 0, len(c.Premises))
	for _, p := range c.Premises {
		call, err := premise(p)
		if err != nil {
			return "", term.Rule{}, err
		}
		body = append(body, call)
	}
	return term.NormalizeName(c.Head.Predicate.Symbol), term.Rule{Head: head, Body: body}, nil
}
