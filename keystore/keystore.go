// Package keystore implements the session-scoped LRU cache described as an
// optional collaborator in the codec's cache contract: advisory, keyed by
// canonical subset-key bytes, with no effect on the core's observable
// behavior whether a lookup hits or misses.
package keystore

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scigolib/abvkey"
	"github.com/scigolib/abvkey/internal/errs"
)

// DefaultCapacity is a suggested capacity for callers that don't have a
// specific capacity budget in mind.
const DefaultCapacity = 256

// Store is a fixed-capacity LRU cache from canonical subset-key bytes to
// the Set they decode to. Safe for concurrent use: golang-lru/v2 guards
// its own internal state, though the cached *abvkey.Set values themselves
// are not safe for concurrent mutation by callers.
type Store struct {
	cache *lru.Cache[string, *abvkey.Set]
}

// New returns a Store with room for capacity entries.
func New(capacity int) (*Store, error) {
	if capacity <= 0 {
		return nil, errs.New(errs.InvariantViolated, "keystore: capacity must be positive")
	}
	c, err := lru.New[string, *abvkey.Set](capacity)
	if err != nil {
		return nil, errs.Wrap(errs.OutOfMemory, "keystore: allocating LRU", err)
	}
	return &Store{cache: c}, nil
}

// Get looks up key (canonical subset-key bytes). The second return value
// is false on a miss.
func (s *Store) Get(key []byte) (*abvkey.Set, bool) {
	return s.cache.Get(string(key))
}

// Put stores set under key, evicting the least-recently-used entry if the
// store is at capacity.
func (s *Store) Put(key []byte, set *abvkey.Set) {
	s.cache.Add(string(key), set)
}

// Adopt computes set's canonical key via Encode and stores it under that
// key. Returns the computed key.
func (s *Store) Adopt(set *abvkey.Set) ([]byte, error) {
	key, err := set.Encode()
	if err != nil {
		return nil, err
	}
	s.Put(key, set)
	return key, nil
}

// Len returns the number of entries currently cached.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Purge evicts every entry.
func (s *Store) Purge() {
	s.cache.Purge()
}
