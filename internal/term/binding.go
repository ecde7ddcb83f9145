package term

import (
	"encoding/json"
	"fmt"
)

// BindingKind tags the variant held by a Binding.
type BindingKind string

const (
	// KindWildcard matches anything and binds nothing ("_").
	KindWildcard BindingKind = "wildcard"

	// KindVariable binds a rule variable by name.
	KindVariable BindingKind = "variable"

	// KindConstant is a ground value in its textual form.
	KindConstant BindingKind = "constant"
)

// Binding is one positional argument of a fact, rule head or body call.
// The zero value is a wildcard.
type Binding struct {
	Kind  BindingKind `json:"kind"`
	Value string      `json:"value,omitempty"`
}

// Wildcard returns the "_" binding.
func Wildcard() Binding {
	return Binding{Kind: KindWildcard}
}

// Var returns a variable binding.
func Var(name string) Binding {
	return Binding{Kind: KindVariable, Value: name}
}

// Const returns a constant binding.
func Const(text string) Binding {
	return Binding{Kind: KindConstant, Value: text}
}

// IsWildcard reports whether b binds nothing.
func (b Binding) IsWildcard() bool {
	return b.Kind == KindWildcard || b.Kind == ""
}

// String renders the binding the way it appears in rule text.
func (b Binding) String() string {
	switch b.Kind {
	case KindVariable, KindConstant:
		return b.Value
	default:
		return "_"
	}
}

// UnmarshalJSON normalises an empty kind to a wildcard and rejects
// unknown kinds.
func (b *Binding) UnmarshalJSON(data []byte) error {
	type plain Binding
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	switch p.Kind {
	case "":
		p.Kind = KindWildcard
	case KindWildcard, KindVariable, KindConstant:
	default:
		return fmt.Errorf("unknown binding kind %q", p.Kind)
	}
	*b = Binding(p)
	return nil
}

// CloneBindings returns a copy of bs; nil stays nil.
func CloneBindings(bs []Binding) []Binding {
	if bs == nil {
		return nil
	}
	out := make([]Binding, len(bs))
	copy(out, bs)
	return out
}

// EqualBindings reports whether two binding vectors are identical.
// A nil and an empty vector are equal.
func EqualBindings(a, b []Binding) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind || a[i].Value != b[i].Value {
			if !(a[i].IsWildcard() && b[i].IsWildcard()) {
				return false
			}
		}
	}
	return true
}
