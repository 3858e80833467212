// Package abvkey establishes a bijection between subsets of a 64-bit
// identifier domain and a canonical, compact byte sequence (the "subset
// key"). Set is the one exported type: a thin wrapper over the internal
// abstract bit vector (internal/abv) and the wire codec (internal/codec).
//
// Set is not safe for concurrent mutation. Concurrent readers of an
// otherwise-idle Set are fine.
package abvkey

import (
	"bytes"

	"github.com/scigolib/abvkey/internal/abv"
	"github.com/scigolib/abvkey/internal/codec"
	"github.com/scigolib/abvkey/internal/errs"
)

// Set is a subset of the 64-bit identifier domain.
type Set struct {
	root *abv.Root
}

// NewEmpty returns a Set with no members.
func NewEmpty() *Set {
	return &Set{root: abv.NewEmpty(codec.FormatZero)}
}

// NewSingleton returns a Set containing exactly id.
func NewSingleton(id uint64) *Set {
	s := NewEmpty()
	s.Add(id)
	return s
}

// Add inserts id into s.
func (s *Set) Add(id uint64) {
	s.root.SetBit(id)
}

// Remove deletes id from s, if present.
func (s *Set) Remove(id uint64) {
	s.root.ClearBit(id)
}

// Contains reports whether id is a member of s.
func (s *Set) Contains(id uint64) bool {
	return s.root.GetBit(id)
}

// Cardinality returns the number of members in s.
func (s *Set) Cardinality() (uint64, error) {
	return s.root.Popcount()
}

// IsEmpty reports whether s has no members.
func (s *Set) IsEmpty() (bool, error) {
	card, err := s.Cardinality()
	if err != nil {
		return false, err
	}
	return card == 0, nil
}

// ToSortedIDs returns every member of s in ascending order.
func (s *Set) ToSortedIDs() ([]uint64, error) {
	return s.root.SortedIDs()
}

// Iterate returns every member of s in ascending order. It is an alias for
// ToSortedIDs kept for parity with the set-operations contract.
func (s *Set) Iterate() ([]uint64, error) {
	return s.root.SortedIDs()
}

// FromSortedIDs builds a Set directly from an ascending, not-necessarily
// deduplicated slice of identifiers. The ascending precondition is the
// caller's; duplicates are tolerated (collapsed during normalization).
func FromSortedIDs(ids []uint64) (*Set, error) {
	root, err := abv.BuildFromIDs(ids, codec.FormatZero)
	if err != nil {
		return nil, err
	}
	return &Set{root: root}, nil
}

// Encode serializes s to its canonical subset-key bytes.
func (s *Set) Encode() ([]byte, error) {
	if err := s.root.Normalize(); err != nil {
		return nil, err
	}
	return codec.Encode(s.root)
}

// Decode parses a canonical subset-key byte sequence into a Set.
func Decode(data []byte) (*Set, error) {
	root, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	return &Set{root: root}, nil
}

// Compare orders a and b the way memcmp would order their canonical byte
// encodings: -1, 0, or +1.
func Compare(a, b *Set) (int, error) {
	ab, err := a.Encode()
	if err != nil {
		return 0, err
	}
	bb, err := b.Encode()
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ab, bb), nil
}

// Union returns the set of identifiers present in a or b.
func Union(a, b *Set) (*Set, error) {
	ids, err := mergeIDs(a, b, unionOp)
	if err != nil {
		return nil, err
	}
	return FromSortedIDs(ids)
}

// Intersect returns the set of identifiers present in both a and b.
func Intersect(a, b *Set) (*Set, error) {
	ids, err := mergeIDs(a, b, intersectOp)
	if err != nil {
		return nil, err
	}
	return FromSortedIDs(ids)
}

// Except returns the set of identifiers present in a but not in b.
func Except(a, b *Set) (*Set, error) {
	ids, err := mergeIDs(a, b, exceptOp)
	if err != nil {
		return nil, err
	}
	return FromSortedIDs(ids)
}

// UnionAll folds Union over sets. Returns an empty Set for a nil/empty
// input slice, since the empty set is the identity element for union.
func UnionAll(sets []*Set) (*Set, error) {
	acc := NewEmpty()
	for _, s := range sets {
		next, err := Union(acc, s)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// IntersectAll folds Intersect over sets. Unlike UnionAll, there is no
// identity element across an unbounded domain, so zero sets is an error.
func IntersectAll(sets []*Set) (*Set, error) {
	if len(sets) == 0 {
		return nil, errs.New(errs.InvariantViolated, "abvkey: IntersectAll requires at least one set")
	}
	acc := sets[0]
	for _, s := range sets[1:] {
		next, err := Intersect(acc, s)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

type mergeKind int

const (
	unionOp mergeKind = iota
	intersectOp
	exceptOp
)

// mergeIDs runs a standard sorted-merge set algebra over a's and b's
// member lists.
func mergeIDs(a, b *Set, kind mergeKind) ([]uint64, error) {
	ai, err := a.ToSortedIDs()
	if err != nil {
		return nil, err
	}
	bi, err := b.ToSortedIDs()
	if err != nil {
		return nil, err
	}

	var out []uint64
	i, j := 0, 0
	for i < len(ai) && j < len(bi) {
		switch {
		case ai[i] < bi[j]:
			if kind == unionOp || kind == exceptOp {
				out = append(out, ai[i])
			}
			i++
		case ai[i] > bi[j]:
			if kind == unionOp {
				out = append(out, bi[j])
			}
			j++
		default:
			if kind == unionOp || kind == intersectOp {
				out = append(out, ai[i])
			}
			i++
			j++
		}
	}
	if kind == unionOp || kind == exceptOp {
		out = append(out, ai[i:]...)
	}
	if kind == unionOp {
		out = append(out, bi[j:]...)
	}
	return out, nil
}
