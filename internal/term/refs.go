package term

import (
	"slices"
	"sort"
)

// MentionedTerms returns the names invoked by any rule body, sorted and
// de-duplicated. A self-invocation is included.
func (t *Term) MentionedTerms() []string {
	seen := make(map[string]struct{})
	for _, r := range t.Rules {
		for _, c := range r.Body {
			seen[c.Term] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Mentions reports whether any rule body invokes name.
func (t *Term) Mentions(name string) bool {
	for _, r := range t.Rules {
		for _, c := range r.Body {
			if c.Term == name {
				return true
			}
		}
	}
	return false
}

// IsReferredBy reports whether name is in the back-reference set.
func (t *Term) IsReferredBy(name string) bool {
	_, found := slices.BinarySearch(t.ReferredBy, name)
	return found
}

// AddReferredBy inserts name into the back-reference set.
// Returns false if it was already present.
func (t *Term) AddReferredBy(name string) bool {
	i, found := slices.BinarySearch(t.ReferredBy, name)
	if found {
		return false
	}
	t.ReferredBy = slices.Insert(t.ReferredBy, i, name)
	return true
}

// RemoveReferredBy deletes name from the back-reference set.
// Returns false if it was not present.
func (t *Term) RemoveReferredBy(name string) bool {
	i, found := slices.BinarySearch(t.ReferredBy, name)
	if !found {
		return false
	}
	t.ReferredBy = slices.Delete(t.ReferredBy, i, i+1)
	if len(t.ReferredBy) == 0 {
		t.ReferredBy = nil
	}
	return true
}

// RenameReferredBy replaces oldName with newName in the back-reference
// set. Returns false if oldName was absent or the names are equal.
func (t *Term) RenameReferredBy(oldName, newName string) bool {
	if oldName == newName || !t.RemoveReferredBy(oldName) {
		return false
	}
	t.AddReferredBy(newName)
	return true
}

// ReferrersExcept returns ReferredBy without the given name. Used to ignore
// self references when deciding whether anyone else depends on a term.
func (t *Term) ReferrersExcept(name string) []string {
	out := make([]string, 0, len(t.ReferredBy))
	for _, r := range t.ReferredBy {
		if r != name {
			out = append(out, r)
		}
	}
	return out
}

// RewriteCalls applies fn to the argument vector of every body call to
// name. fn returns the new vector and whether it differs from the old one.
// RewriteCalls reports whether any call changed.
func (t *Term) RewriteCalls(name string, fn func(args []Binding) ([]Binding, bool)) bool {
	changed := false
	for i := range t.Rules {
		body := t.Rules[i].Body
		for j := range body {
			if body[j].Term != name {
				continue
			}
			args, ok := fn(body[j].Args)
			if ok {
				body[j].Args = args
				changed = true
			}
		}
	}
	return changed
}

// RenameCalls points every body call to oldName at newName instead.
func (t *Term) RenameCalls(oldName, newName string) bool {
	if oldName == newName {
		return false
	}
	changed := false
	for i := range t.Rules {
		body := t.Rules[i].Body
		for j := range body {
			if body[j].Term == oldName {
				body[j].Term = newName
				changed = true
			}
		}
	}
	return changed
}

// RemoveCalls strips every body call to name. A rule whose body becomes
// empty is dropped rather than left behind as an unconditional fact.
// Returns whether anything changed and how many rules were dropped.
func (t *Term) RemoveCalls(name string) (changed bool, dropped int) {
	rules := t.Rules[:0]
	for _, r := range t.Rules {
		body := r.Body[:0]
		for _, c := range r.Body {
			if c.Term == name {
				changed = true
				continue
			}
			body = append(body, c)
		}
		if len(body) == 0 {
			dropped++
			continue
		}
		r.Body = body
		rules = append(rules, r)
	}
	if len(rules) == 0 {
		rules = nil
	}
	t.Rules = rules
	return changed, dropped
}
