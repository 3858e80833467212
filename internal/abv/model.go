// Package abv implements the in-memory abstract bit vector: the hierarchical
// partition/segment/chunk tree that the wire codec serializes and
// deserializes, plus the builder protocol used to construct one in strict
// ascending order.
//
// Mutation uses a lazily-normalized, pending-map-backed representation rather
// than a realloc-safe byte arena: spec.md's design notes explicitly sanction
// "a tree of small owning containers... for the mutation path at the cost
// of a serialize step" as an alternative to a pointer-free offset arena, and
// that is the option this port takes (see DESIGN.md).
package abv

import (
	"sort"

	"github.com/scigolib/abvkey/internal/errs"
)

// Canonical thresholds for Format 0. Immutable; a new format version would
// require a new set.
const (
	RareRunThreshold  = 64   // minimum length_bits for a standalone RLE segment
	DominantRunLength = 96   // dominant runs at/above this length become implicit gaps
	MaxSegmentLenHint = 2048 // preferred upper bound on a MIX segment's length_bits
	KEnumMax          = 18   // ENUM chunks have popcount <= this; above it, RAW
)

// Segment covers a contiguous bit range within a partition.
type Segment struct {
	StartBit    uint32
	NBits       uint32
	IsRLE       bool
	Membership  uint8    // RLE only: the uniform bit value
	Blocks      []uint64 // MIX only: ceil(NBits/64) 64-bit bitmaps, LSB-first
	Cardinality uint32
}

// NChunks returns the number of 64-bit chunks a MIX segment of this length
// occupies.
func NChunks(nBits uint32) uint32 {
	return (nBits + 63) / 64
}

// LastChunkBits returns the number of valid bits in the final chunk of a
// segment with nBits total bits (1..64), derived rather than stored.
func LastChunkBits(nBits uint32) uint8 {
	return uint8((nBits-1)%64) + 1
}

// Partition covers a 2^32-wide contiguous ID range.
type Partition struct {
	PartitionID uint32
	RareBit     uint8 // whichever of {0,1} is the minority across this partition
	Segments    []*Segment
	Cardinality uint32
}

// Root is the top-level AbV container.
type Root struct {
	FormatVersion uint16
	RareBit       uint8
	Partitions    []*Partition
	Cardinality   uint64

	pending    map[uint64]bool
	normalized bool
}

// NewEmpty returns an empty Root under the given format version. Its global
// RareBit is 1, the minority value of an empty set, matching what Normalize
// derives for a set with no members.
func NewEmpty(formatVersion uint16) *Root {
	return &Root{
		FormatVersion: formatVersion,
		RareBit:       1,
		pending:       make(map[uint64]bool),
		normalized:    true,
	}
}

// partitionOf splits an identifier into (partition_id, local_bit).
func partitionOf(id uint64) (uint32, uint32) {
	return uint32(id >> 32), uint32(id & 0xFFFFFFFF)
}

// idOf recombines a partition id and local bit into an identifier.
func idOf(partitionID, localBit uint32) uint64 {
	return uint64(partitionID)<<32 | uint64(localBit)
}

// ---------------------------------------------------------------------
// Builder protocol: the ordered construction sequence used by both the
// decoder (rebuilding a Root from bytes) and Normalize (rebuilding a Root
// from mutated membership). Partitions and segments MUST be added in
// strictly ascending order; violating that is a programmer error.
// ---------------------------------------------------------------------

// Builder accumulates a Root under the ascending-order discipline described
// in spec.md §4.4.
type Builder struct {
	root         *Root
	lastPartID   int64 // -1 = none yet
	curPartition *Partition
	lastStart    int64 // -1 = none yet, within current partition
}

// NewBuilder starts building a fresh Root.
func NewBuilder(formatVersion uint16) *Builder {
	return &Builder{
		root:       NewEmpty(formatVersion),
		lastPartID: -1,
		lastStart:  -1,
	}
}

// SetRareBit sets the root-level global rare-bit attribute directly
// (used by the decoder, which reads it off the wire rather than deriving
// it from cardinality).
func (b *Builder) SetRareBit(rareBit uint8) {
	b.root.RareBit = rareBit
}

// BeginPartition opens a new partition. partitionID must be strictly
// greater than the previous partition's id.
func (b *Builder) BeginPartition(partitionID uint32, rareBit uint8) error {
	if b.curPartition != nil {
		if err := b.FinalizePartition(); err != nil {
			return err
		}
	}
	if b.lastPartID >= 0 && int64(partitionID) <= b.lastPartID {
		return errs.New(errs.InvariantViolated, "abv: partitions must be strictly ascending")
	}
	b.curPartition = &Partition{PartitionID: partitionID, RareBit: rareBit}
	b.lastStart = -1
	return nil
}

// AddRLESegment appends a uniform-value segment to the current partition.
func (b *Builder) AddRLESegment(startBit, nBits uint32, membership uint8) error {
	if b.curPartition == nil {
		return errs.New(errs.InvariantViolated, "abv: no open partition")
	}
	if nBits == 0 {
		return errs.New(errs.InvariantViolated, "abv: empty segment")
	}
	if b.lastStart >= 0 && int64(startBit) <= b.lastStart {
		return errs.New(errs.InvariantViolated, "abv: segments must be strictly ascending")
	}
	seg := &Segment{StartBit: startBit, NBits: nBits, IsRLE: true, Membership: membership}
	if membership == 1 {
		seg.Cardinality = nBits
	}
	b.curPartition.Segments = append(b.curPartition.Segments, seg)
	b.lastStart = int64(startBit)
	return nil
}

// BeginMixSegment appends a mixed-content segment with the given blocks
// already filled in (block i's low LastChunkBits(nBits) bits valid for the
// final block).
func (b *Builder) BeginMixSegment(startBit, nBits uint32, blocks []uint64) error {
	if b.curPartition == nil {
		return errs.New(errs.InvariantViolated, "abv: no open partition")
	}
	if nBits == 0 {
		return errs.New(errs.InvariantViolated, "abv: empty segment")
	}
	if b.lastStart >= 0 && int64(startBit) <= b.lastStart {
		return errs.New(errs.InvariantViolated, "abv: segments must be strictly ascending")
	}
	if uint32(len(blocks)) != NChunks(nBits) {
		return errs.New(errs.InvariantViolated, "abv: block count doesn't match nBits")
	}

	var card uint32
	last := LastChunkBits(nBits)
	for i, blk := range blocks {
		width := uint8(64)
		if i == len(blocks)-1 {
			width = last
		}
		masked := blk
		if width < 64 {
			masked &= (uint64(1) << width) - 1
		}
		card += uint32(popcount64(masked))
	}

	seg := &Segment{StartBit: startBit, NBits: nBits, IsRLE: false, Blocks: blocks, Cardinality: card}
	b.curPartition.Segments = append(b.curPartition.Segments, seg)
	b.lastStart = int64(startBit)
	return nil
}

// FinalizePartition closes the current partition, recomputing its cached
// cardinality, and appends it to the root.
func (b *Builder) FinalizePartition() error {
	if b.curPartition == nil {
		return errs.New(errs.InvariantViolated, "abv: no open partition to finalize")
	}
	if len(b.curPartition.Segments) == 0 {
		return errs.New(errs.InvariantViolated, "abv: partition has no segments")
	}
	var card uint32
	for _, s := range b.curPartition.Segments {
		card += s.Cardinality
	}
	b.curPartition.Cardinality = card
	b.root.Partitions = append(b.root.Partitions, b.curPartition)
	b.root.Cardinality += uint64(card)
	b.lastPartID = int64(b.curPartition.PartitionID)
	b.curPartition = nil
	return nil
}

// Finish closes any open partition and returns the completed Root.
func (b *Builder) Finish() (*Root, error) {
	if b.curPartition != nil {
		if err := b.FinalizePartition(); err != nil {
			return nil, err
		}
	}
	b.root.normalized = true
	b.root.pending = make(map[uint64]bool)
	return b.root, nil
}

func popcount64(v uint64) int {
	count := 0
	for v != 0 {
		v &= v - 1
		count++
	}
	return count
}

// sortedUint32 returns a copy of vals sorted in ascending order.
func sortedUint32(vals []uint32) []uint32 {
	out := append([]uint32(nil), vals...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
