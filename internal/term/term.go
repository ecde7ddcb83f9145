package term

import (
	"errors"
	"fmt"
	"strings"
)

// Term is a named logical entry in the knowledge base.
type Term struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Args        []Argument `json:"args"`
	Facts       []Fact     `json:"facts,omitempty"`
	Rules       []Rule     `json:"rules,omitempty"`

	// ReferredBy holds the names of terms whose rule bodies invoke this
	// term. Maintained incrementally by the propagation engine.
	ReferredBy []string `json:"referred_by,omitempty"`
}

// Argument is one named positional parameter of a term.
type Argument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Fact is a ground tuple; len(Values) equals the term's arity.
type Fact struct {
	Values []Binding `json:"values"`
}

// Rule derives the term from a conjunction of calls to other terms.
type Rule struct {
	Head []Binding `json:"head"`
	Body []Call    `json:"body"`
}

// Call is one invocation of another term inside a rule body.
type Call struct {
	Term    string    `json:"term"`
	Args    []Binding `json:"args"`
	Negated bool      `json:"negated,omitempty"`
}

// New creates a term with the given name and argument names.
func New(name string, argNames ...string) *Term {
	args := make([]Argument, len(argNames))
	for i, n := range argNames {
		args[i] = Argument{Name: n}
	}
	return &Term{Name: NormalizeName(name), Args: args}
}

// Arity returns the number of arguments.
func (t *Term) Arity() int {
	return len(t.Args)
}

// Clone returns a deep copy of t. Cloning nil returns nil.
func (t *Term) Clone() *Term {
	if t == nil {
		return nil
	}
	c := &Term{
		Name:        t.Name,
		Description: t.Description,
	}
	if t.Args != nil {
		c.Args = make([]Argument, len(t.Args))
		copy(c.Args, t.Args)
	}
	if t.Facts != nil {
		c.Facts = make([]Fact, len(t.Facts))
		for i, f := range t.Facts {
			c.Facts[i] = Fact{Values: CloneBindings(f.Values)}
		}
	}
	if t.Rules != nil {
		c.Rules = make([]Rule, len(t.Rules))
		for i, r := range t.Rules {
			c.Rules[i] = r.clone()
		}
	}
	if t.ReferredBy != nil {
		c.ReferredBy = make([]string, len(t.ReferredBy))
		copy(c.ReferredBy, t.ReferredBy)
	}
	return c
}

func (r Rule) clone() Rule {
	out := Rule{Head: CloneBindings(r.Head)}
	if r.Body != nil {
		out.Body = make([]Call, len(r.Body))
		for i, c := range r.Body {
			out.Body[i] = Call{Term: c.Term, Args: CloneBindings(c.Args), Negated: c.Negated}
		}
	}
	return out
}

// AddFact appends a ground tuple.
func (t *Term) AddFact(values ...Binding) *Term {
	t.Facts = append(t.Facts, Fact{Values: values})
	return t
}

// AddRule appends a rule with the given head and body.
func (t *Term) AddRule(head []Binding, body ...Call) *Term {
	t.Rules = append(t.Rules, Rule{Head: head, Body: body})
	return t
}

// Invoke builds a body call.
func Invoke(name string, args ...Binding) Call {
	return Call{Term: name, Args: args}
}

// Validation errors returned by Validate. Callers match with errors.Is.
var (
	ErrEmptyName  = errors.New("term name is empty")
	ErrArity      = errors.New("binding count does not match arity")
	ErrEmptyBody  = errors.New("rule has an empty body")
	ErrEmptyCall  = errors.New("body call names no term")
	ErrDuplicated = errors.New("duplicate argument name")
)

// Validate checks the structural shape of a term on its own. It does not
// look at other terms, so call arities are not checked here.
func (t *Term) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	seen := make(map[string]bool, len(t.Args))
	for _, a := range t.Args {
		if a.Name == "" {
			continue
		}
		if seen[a.Name] {
			return fmt.Errorf("%s: %w: %q", t.Name, ErrDuplicated, a.Name)
		}
		seen[a.Name] = true
	}
	for i, f := range t.Facts {
		if len(f.Values) != t.Arity() {
			return fmt.Errorf("%s: fact %d: %w (%d != %d)", t.Name, i, ErrArity, len(f.Values), t.Arity())
		}
	}
	for i, r := range t.Rules {
		if len(r.Head) != t.Arity() {
			return fmt.Errorf("%s: rule %d head: %w (%d != %d)", t.Name, i, ErrArity, len(r.Head), t.Arity())
		}
		if len(r.Body) == 0 {
			return fmt.Errorf("%s: rule %d: %w", t.Name, i, ErrEmptyBody)
		}
		for j, c := range r.Body {
			if c.Term == "" {
				return fmt.Errorf("%s: rule %d call %d: %w", t.Name, i, j, ErrEmptyCall)
			}
		}
	}
	return nil
}
