package term

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainTerm separates term fingerprints from any other hash.
// Version suffix enables future algorithm migration.
const DomainTerm = "termbase/term/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint returns a content hash of the full term, including
// ReferredBy. Two terms with equal fingerprints are interchangeable.
// Struct field order makes json.Marshal deterministic here; Term holds no maps.
func (t *Term) Fingerprint() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", t.Name, err)
	}
	return hashWithDomain(DomainTerm, data), nil
}

// Equal reports whether two terms have identical content. Nil and empty
// slices compare equal.
func Equal(a, b *Term) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Name != b.Name || a.Description != b.Description {
		return false
	}
	if len(a.Args) != len(b.Args) || len(a.Facts) != len(b.Facts) ||
		len(a.Rules) != len(b.Rules) || len(a.ReferredBy) != len(b.ReferredBy) {
		return false
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return false
		}
	}
	for i := range a.Facts {
		if !EqualBindings(a.Facts[i].Values, b.Facts[i].Values) {
			return false
		}
	}
	for i := range a.Rules {
		if !equalRule(a.Rules[i], b.Rules[i]) {
			return false
		}
	}
	for i := range a.ReferredBy {
		if a.ReferredBy[i] != b.ReferredBy[i] {
			return false
		}
	}
	return true
}

func equalRule(a, b Rule) bool {
	if !EqualBindings(a.Head, b.Head) || len(a.Body) != len(b.Body) {
		return false
	}
	for i := range a.Body {
		x, y := a.Body[i], b.Body[i]
		if x.Term != y.Term || x.Negated != y.Negated || !EqualBindings(x.Args, y.Args) {
			return false
		}
	}
	return true
}
