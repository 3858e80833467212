package abv

import (
	"testing"

	"github.com/scigolib/abvkey/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestBuilder_AscendingPartitions(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.BeginPartition(1, 1))
	require.NoError(t, b.AddRLESegment(0, 1, 1))
	require.NoError(t, b.BeginPartition(2, 1))
	require.NoError(t, b.AddRLESegment(0, 1, 1))

	err := b.BeginPartition(2, 1)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvariantViolated))
}

func TestBuilder_AscendingSegments(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.BeginPartition(0, 1))
	require.NoError(t, b.AddRLESegment(10, 5, 1))

	err := b.AddRLESegment(10, 5, 1)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvariantViolated))
}

func TestBuilder_EmptySegmentRejected(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.BeginPartition(0, 1))
	err := b.AddRLESegment(0, 0, 1)
	require.Error(t, err)
}

func TestBuilder_NoOpenPartition(t *testing.T) {
	b := NewBuilder(0)
	err := b.AddRLESegment(0, 1, 1)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.InvariantViolated))
}

func TestBuilder_MixSegmentBlockCountMismatch(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.BeginPartition(0, 0))
	err := b.BeginMixSegment(0, 128, []uint64{1})
	require.Error(t, err)
}

func TestBuilder_EmptyPartitionRejected(t *testing.T) {
	b := NewBuilder(0)
	require.NoError(t, b.BeginPartition(0, 1))
	_, err := b.Finish()
	require.Error(t, err)
}

// S1: empty set.
func TestBuildFromIDs_Empty(t *testing.T) {
	r, err := BuildFromIDs(nil, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), r.Cardinality)
	require.Empty(t, r.Partitions)

	ids, err := r.SortedIDs()
	require.NoError(t, err)
	require.Empty(t, ids)
}

// S2: singleton {42}.
func TestBuildFromIDs_Singleton(t *testing.T) {
	r, err := BuildFromIDs([]uint64{42}, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), r.Cardinality)
	require.Len(t, r.Partitions, 1)

	part := r.Partitions[0]
	require.Equal(t, uint32(0), part.PartitionID)
	require.Len(t, part.Segments, 1)

	seg := part.Segments[0]
	require.Equal(t, uint32(42), seg.StartBit)
	require.Equal(t, uint32(1), seg.NBits)

	ids, err := r.SortedIDs()
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, ids)
}

// S3: sparse {10, 20, 30} within one dominant run -> single MIX segment.
func TestBuildFromIDs_Sparse(t *testing.T) {
	r, err := BuildFromIDs([]uint64{10, 20, 30}, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), r.Cardinality)
	require.Len(t, r.Partitions, 1)

	part := r.Partitions[0]
	require.Len(t, part.Segments, 1)

	seg := part.Segments[0]
	require.False(t, seg.IsRLE)
	require.Equal(t, uint32(10), seg.StartBit)
	require.Equal(t, uint32(21), seg.NBits)
	require.Equal(t, uint32(3), seg.Cardinality)

	ids, err := r.SortedIDs()
	require.NoError(t, err)
	require.Equal(t, []uint64{10, 20, 30}, ids)
}

// S4: dense chunk of 30 consecutive bits -> single MIX segment, RAW-eligible
// content (below RLE threshold).
func TestBuildFromIDs_DenseChunk(t *testing.T) {
	ids := make([]uint64, 0, 30)
	for i := uint64(0); i < 30; i++ {
		ids = append(ids, 100+i)
	}
	r, err := BuildFromIDs(ids, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(30), r.Cardinality)

	seg := r.Partitions[0].Segments[0]
	require.False(t, seg.IsRLE)
	require.Equal(t, uint32(100), seg.StartBit)
	require.Equal(t, uint32(30), seg.NBits)
}

// S5: a fully dense run of exactly RareRunThreshold bits becomes RLE.
func TestBuildFromIDs_RLERun(t *testing.T) {
	ids := make([]uint64, 0, RareRunThreshold)
	for i := uint64(0); i < RareRunThreshold; i++ {
		ids = append(ids, i)
	}
	r, err := BuildFromIDs(ids, 0)
	require.NoError(t, err)

	seg := r.Partitions[0].Segments[0]
	require.True(t, seg.IsRLE)
	require.Equal(t, uint32(0), seg.StartBit)
	require.Equal(t, uint32(RareRunThreshold), seg.NBits)
	require.Equal(t, uint8(1), seg.Membership)
	require.Equal(t, uint32(RareRunThreshold), seg.Cardinality)
}

// S6: cross-partition ids each land in their own partition.
func TestBuildFromIDs_CrossPartition(t *testing.T) {
	ids := []uint64{0, uint64(1) << 32, uint64(2) << 32}
	r, err := BuildFromIDs(ids, 0)
	require.NoError(t, err)
	require.Len(t, r.Partitions, 3)

	for i, part := range r.Partitions {
		require.Equal(t, uint32(i), part.PartitionID)
		require.Len(t, part.Segments, 1)
		require.Equal(t, uint32(0), part.Segments[0].StartBit)
		require.Equal(t, uint32(1), part.Segments[0].NBits)
	}

	got, err := r.SortedIDs()
	require.NoError(t, err)
	require.Equal(t, ids, got)
}

func TestBuildFromIDs_DuplicateIDsDeduped(t *testing.T) {
	r, err := BuildFromIDs([]uint64{5, 5, 5}, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), r.Cardinality)
}

func TestNormalize_IdempotentWhenAlreadyNormalized(t *testing.T) {
	r, err := BuildFromIDs([]uint64{1, 2, 3}, 0)
	require.NoError(t, err)
	require.NoError(t, r.Normalize())
	require.Equal(t, uint64(3), r.Cardinality)
}

func TestSetBitClearBit_RoundTrip(t *testing.T) {
	r := NewEmpty(0)
	r.SetBit(7)
	r.SetBit(8)
	require.True(t, r.GetBit(7))
	require.True(t, r.GetBit(8))
	require.False(t, r.GetBit(9))

	card, err := r.Popcount()
	require.NoError(t, err)
	require.Equal(t, uint64(2), card)

	r.ClearBit(7)
	card, err = r.Popcount()
	require.NoError(t, err)
	require.Equal(t, uint64(1), card)
	require.False(t, r.GetBit(7))
	require.True(t, r.GetBit(8))
}

// A gap of exactly DominantRunLength-1 is not wide enough to split a
// cluster in two.
func TestBuildFromIDs_DominantGapBelowThresholdStaysOneSegment(t *testing.T) {
	ids := []uint64{0, DominantRunLength}
	r, err := BuildFromIDs(ids, 0)
	require.NoError(t, err)
	require.Len(t, r.Partitions[0].Segments, 1)

	seg := r.Partitions[0].Segments[0]
	require.Equal(t, uint32(0), seg.StartBit)
	require.Equal(t, uint32(DominantRunLength+1), seg.NBits)
}

// A gap of exactly DominantRunLength splits into two segments, per
// clusterByGap's `gap >= threshold` boundary.
func TestBuildFromIDs_DominantGapAtThresholdSplits(t *testing.T) {
	ids := []uint64{0, DominantRunLength + 1}
	r, err := BuildFromIDs(ids, 0)
	require.NoError(t, err)
	require.Len(t, r.Partitions[0].Segments, 2)

	segs := r.Partitions[0].Segments
	require.Equal(t, uint32(0), segs[0].StartBit)
	require.Equal(t, uint32(DominantRunLength+1), segs[1].StartBit)
}

// denseButGapped returns local-bit positions spanning [0, span) with every
// odd position missing (so it never satisfies emitSegment's dense check)
// except for the final pair, which is always present so the span lands on
// exactly span-1 regardless of parity.
func denseButGapped(span uint32) []uint64 {
	var ids []uint64
	for i := uint32(0); i+2 < span; i += 2 {
		ids = append(ids, uint64(i))
	}
	ids = append(ids, uint64(span-2), uint64(span-1))
	return ids
}

// A cluster whose span is exactly MaxSegmentLenHint is emitted as one
// segment.
func TestBuildFromIDs_MaxSegmentLenHintBoundaryFits(t *testing.T) {
	r, err := BuildFromIDs(denseButGapped(MaxSegmentLenHint), 0)
	require.NoError(t, err)
	require.Len(t, r.Partitions[0].Segments, 1)
	require.Equal(t, uint32(MaxSegmentLenHint), r.Partitions[0].Segments[0].NBits)
}

// A cluster whose span is MaxSegmentLenHint+1 is split at the boundary by
// splitForSize.
func TestBuildFromIDs_MaxSegmentLenHintBoundaryOverflowsSplits(t *testing.T) {
	r, err := BuildFromIDs(denseButGapped(MaxSegmentLenHint+1), 0)
	require.NoError(t, err)
	require.Len(t, r.Partitions[0].Segments, 2)

	segs := r.Partitions[0].Segments
	var total uint32
	for _, s := range segs {
		total += s.NBits
	}
	require.Equal(t, uint32(MaxSegmentLenHint+1), total)
	require.LessOrEqual(t, segs[0].NBits, uint32(MaxSegmentLenHint))
}

func TestSetBit_AfterNormalizePreservesExisting(t *testing.T) {
	r, err := BuildFromIDs([]uint64{1, 2, 3}, 0)
	require.NoError(t, err)

	r.SetBit(100)
	ids, err := r.SortedIDs()
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 3, 100}, ids)
}
