// Package cache holds the single script-scoped workspace shared by every
// rule invocation in a run. Exactly one script's data is resident at a time:
// asking for a different script identity discards everything and adopts the
// new identity.
package cache

import (
	"github.com/iancoleman/orderedmap"
)

// FallbackIdentity stands in for empty or unknown script identities so the
// ownership check always compares real strings.
const FallbackIdentity = "anonymous"

// Store is an explicit cache handle, threaded through the driver, collector
// and sandbox rather than kept as package state. It is not safe for
// concurrent use: the invalidate-on-identity-change contract assumes scripts
// are processed strictly one at a time.
type Store struct {
	owner   string
	entries *orderedmap.OrderedMap
}

// New returns an empty store owned by the fallback identity.
func New() *Store {
	return &Store{
		owner:   FallbackIdentity,
		entries: orderedmap.New(),
	}
}

// Get returns the mapping for the given script identity. When the identity
// differs from the current owner, the mapping is replaced with a fresh one
// and the new identity adopted before returning.
func (s *Store) Get(scriptID string) *orderedmap.OrderedMap {
	if scriptID == "" {
		scriptID = FallbackIdentity
	}
	if scriptID != s.owner {
		s.owner = scriptID
		s.entries = orderedmap.New()
	}
	return s.entries
}

// Active returns the current mapping without any ownership check. Callers
// must run strictly after the driver has activated a script via Get.
func (s *Store) Active() *orderedmap.OrderedMap {
	return s.entries
}

// Owner returns the identity that currently owns the mapping.
func (s *Store) Owner() string {
	return s.owner
}

// Flush empties the mapping in place without changing the owning identity,
// so a following Get with the same identity sees a fresh mapping without
// tripping the invalidation path again.
func (s *Store) Flush() {
	keys := append([]string(nil), s.entries.Keys()...)
	for _, k := range keys {
		s.entries.Delete(k)
	}
}

// Len reports the number of resident entries.
func (s *Store) Len() int {
	return len(s.entries.Keys())
}
