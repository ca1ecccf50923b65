// Package kv holds the data shapes shared between the Mediator and the
// StorageEndpoint boundary.
package kv

import "github.com/chinnucsk/dynomite/internal/vclock"

// VersionedValue is the opaque unit stored by a StorageEndpoint and
// reconciled by the Mediator. The Mediator never interprets Value; it only
// compares and merges Clock.
type VersionedValue struct {
	Clock vclock.VectorClock
	Value []byte
}

// Resolve reconciles two candidate values for the same key by the spec's
// §4.1 rule: the causally-dominant value wins; concurrent writes are
// returned together as siblings for the caller to preserve.
//
// The returned slice always has length 1 or 2 -- never 0.
func Resolve(a, b VersionedValue) []VersionedValue {
	switch vclock.Compare(a.Clock, b.Clock) {
	case vclock.Greater:
		return []VersionedValue{a}
	case vclock.Less:
		return []VersionedValue{b}
	case vclock.Equal:
		return []VersionedValue{a}
	default: // Concurrent
		return []VersionedValue{a, b}
	}
}

// ResolveAll folds Resolve over base and the remainder, preserving every
// sibling that survives the fold. The caller is expected to treat the
// result as the full, order-independent sibling set.
func ResolveAll(base VersionedValue, rest []VersionedValue) []VersionedValue {
	siblings := []VersionedValue{base}
	for _, candidate := range rest {
		siblings = mergeSiblings(siblings, candidate)
	}
	return siblings
}

// mergeSiblings folds a new candidate into an existing sibling set: any
// existing sibling dominated by (or equal to) the candidate is dropped, and
// the candidate itself is dropped if any existing sibling dominates it.
func mergeSiblings(siblings []VersionedValue, candidate VersionedValue) []VersionedValue {
	out := make([]VersionedValue, 0, len(siblings)+1)
	dominated := false
	for _, s := range siblings {
		switch vclock.Compare(candidate.Clock, s.Clock) {
		case vclock.Less:
			// s dominates candidate; keep s, drop candidate.
			out = append(out, s)
			dominated = true
		case vclock.Greater, vclock.Equal:
			// candidate dominates (or equals) s; drop s.
		default: // Concurrent
			out = append(out, s)
		}
	}
	if !dominated {
		out = append(out, candidate)
	}
	return out
}
