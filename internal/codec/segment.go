package codec

import (
	"github.com/scigolib/abvkey/internal/abv"
	"github.com/scigolib/abvkey/internal/cdu"
	"github.com/scigolib/abvkey/internal/errs"
)

const (
	segKindRLE = 0
	segKindMIX = 1
)

// EncodeSegment writes one segment (kind tag, initial_delta, length_bits,
// body) and returns the bit position immediately after seg's end, for use
// as prevEnd when encoding the next segment in the same partition.
func EncodeSegment(w *Writer, seg *abv.Segment, prevEnd uint32) (uint32, error) {
	if seg.NBits == 0 {
		return 0, errs.New(errs.InvariantViolated, "codec: empty segment")
	}
	if seg.StartBit < prevEnd {
		return 0, errs.New(errs.InvariantViolated, "codec: segment overlaps previous")
	}
	initialDelta := seg.StartBit - prevEnd

	if seg.IsRLE {
		if seg.NBits < abv.RareRunThreshold {
			return 0, errs.New(errs.NonCanonical, "codec: RLE segment below rare_run_threshold")
		}
		if err := w.WriteBit(segKindRLE != 0); err != nil {
			return 0, err
		}
		if err := w.WriteCDU(uint64(initialDelta), cdu.SegmentInitialDelta); err != nil {
			return 0, err
		}
		if err := w.WriteCDU(uint64(seg.NBits), cdu.SegmentLength); err != nil {
			return 0, err
		}
		if err := w.WriteBit(seg.Membership != 0); err != nil {
			return 0, err
		}
		return seg.StartBit + seg.NBits, nil
	}

	if err := w.WriteBit(segKindMIX != 0); err != nil {
		return 0, err
	}
	if err := w.WriteCDU(uint64(initialDelta), cdu.SegmentInitialDelta); err != nil {
		return 0, err
	}
	if err := w.WriteCDU(uint64(seg.NBits), cdu.SegmentLength); err != nil {
		return 0, err
	}
	if err := EncodeTokens(w, seg); err != nil {
		return 0, err
	}
	return seg.StartBit + seg.NBits, nil
}

// DecodeSegment reads one segment and returns it along with the new
// prevEnd for the next segment in the same partition.
func DecodeSegment(r *Reader, prevEnd uint32) (*abv.Segment, uint32, error) {
	kind, err := r.ReadBit()
	if err != nil {
		return nil, 0, err
	}

	initialDelta, err := r.ReadCDU(cdu.SegmentInitialDelta)
	if err != nil {
		return nil, 0, err
	}
	startBit := prevEnd + uint32(initialDelta)

	nBitsU, err := r.ReadCDU(cdu.SegmentLength)
	if err != nil {
		return nil, 0, err
	}
	if nBitsU == 0 {
		return nil, 0, errs.New(errs.NonCanonical, "codec: zero-length segment")
	}
	nBits := uint32(nBitsU)

	if !kind {
		membership, err := r.ReadBit()
		if err != nil {
			return nil, 0, err
		}
		if nBits < abv.RareRunThreshold {
			return nil, 0, errs.New(errs.NonCanonical, "codec: RLE segment below rare_run_threshold")
		}
		var m uint8
		if membership {
			m = 1
		}
		seg := &abv.Segment{StartBit: startBit, NBits: nBits, IsRLE: true, Membership: m}
		if m == 1 {
			seg.Cardinality = nBits
		}
		return seg, startBit + nBits, nil
	}

	nChunks := int(abv.NChunks(nBits))
	lastBits := abv.LastChunkBits(nBits)
	blocks, err := DecodeTokens(r, nChunks, lastBits)
	if err != nil {
		return nil, 0, err
	}

	var card uint32
	for i, blk := range blocks {
		w := uint8(64)
		if i == len(blocks)-1 {
			w = lastBits
		}
		masked := blk
		if w < 64 {
			masked &= (uint64(1) << w) - 1
		}
		card += uint32(popcount64(masked))
	}

	seg := &abv.Segment{StartBit: startBit, NBits: nBits, IsRLE: false, Blocks: blocks, Cardinality: card}
	return seg, startBit + nBits, nil
}

func popcount64(v uint64) int {
	count := 0
	for v != 0 {
		v &= v - 1
		count++
	}
	return count
}
