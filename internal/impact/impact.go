// Package impact computes which other terms a change or deletion touches.
//
// The analysis is pure: it reads only the snapshots carried by the change
// and never consults a store. The result is a flat list that may contain
// duplicates; callers de-duplicate with Dedup before fetching.
package impact

import (
	"sort"

	"github.com/roach88/termbase/internal/change"
)

// OfChange returns the names of other terms whose persisted state must
// change when c is applied.
//
//   - A rename touches every mentioned term (back-reference swap) and every
//     referrer (call rewrite); it supersedes the mention delta.
//   - Otherwise the symmetric difference of mentions is touched.
//   - Shape operations touch every referrer regardless of mentions.
//
// The term itself is never listed.
func OfChange(c change.Change) []string {
	self := c.Original.Name
	var affected []string

	if c.Renamed() {
		affected = append(affected, c.Original.MentionedTerms()...)
		affected = append(affected, c.Updated.MentionedTerms()...)
		affected = append(affected, c.Original.ReferredBy...)
	} else {
		added, removed := MentionDelta(c)
		affected = append(affected, added...)
		affected = append(affected, removed...)
		if c.HasOps() {
			affected = append(affected, c.Original.ReferredBy...)
		}
	}
	return without(affected, self, c.Updated.Name)
}

// OfDeletion returns MentionedTerms(t) ∪ t.ReferredBy, minus t itself.
func OfDeletion(d change.Deletion) []string {
	affected := append(d.Term.MentionedTerms(), d.Term.ReferredBy...)
	return without(affected, d.Term.Name)
}

// MentionDelta returns the terms newly mentioned by the updated snapshot
// and the terms it no longer mentions. A self-invocation under the new
// name counts as the same term as one under the original name.
func MentionDelta(c change.Change) (added, removed []string) {
	before := nameSet(c.Original.MentionedTerms(), "", "")
	after := nameSet(c.Updated.MentionedTerms(), c.Updated.Name, c.Original.Name)

	for n := range after {
		if _, ok := before[n]; !ok {
			added = append(added, n)
		}
	}
	for n := range before {
		if _, ok := after[n]; !ok {
			removed = append(removed, n)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// Dedup returns names sorted with duplicates removed.
func Dedup(names []string) []string {
	set := nameSet(names, "", "")
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// nameSet builds a set, mapping alias to canonical when alias is non-empty.
func nameSet(names []string, alias, canonical string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if alias != "" && n == alias {
			n = canonical
		}
		set[n] = struct{}{}
	}
	return set
}

func without(names []string, self ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !contains(self, n) {
			out = append(out, n)
		}
	}
	return out
}

func contains(names []string, n string) bool {
	for _, s := range names {
		if s == n {
			return true
		}
	}
	return false
}
