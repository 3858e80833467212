package codec

import (
	"bytes"
	"fmt"

	"github.com/scigolib/abvkey/internal/abv"
	"github.com/scigolib/abvkey/internal/errs"
)

// Validate checks that data is the canonical byte form of the AbV it
// decodes to: decoding must succeed (which already enforces per-field
// minimality, ordering, RLE thresholds, and RAW/RAW_RUN coalescing as it
// goes), re-encoding the result must reproduce data byte-for-byte, and no
// MIX segment may embed a dominant-bit run that should have been an
// implicit gap between segments instead. Any divergence is surfaced as
// NonCanonical.
func Validate(data []byte) error {
	root, err := Decode(data)
	if err != nil {
		return err
	}

	if err := checkNoEmbeddedDominantRuns(root); err != nil {
		return err
	}

	reencoded, err := Encode(root)
	if err != nil {
		return err
	}

	if !bytes.Equal(data, reencoded) {
		return errs.New(errs.NonCanonical, "codec: re-encoding does not reproduce the input bytes")
	}
	return nil
}

// checkNoEmbeddedDominantRuns rejects any MIX segment whose reconstructed
// bit content contains a run of the partition's dominant value (the
// complement of its rare_bit) of length >= abv.DominantRunLength: that run
// should have caused the encoder to split into a gap between two segments
// (see clusterByGap), so its presence inside one segment can only come from
// a hand-crafted, non-canonical byte stream. Decode does not catch this
// itself, since it reconstructs whatever segment/token structure the bytes
// describe without re-deriving segmentation from bit content.
func checkNoEmbeddedDominantRuns(root *abv.Root) error {
	for _, part := range root.Partitions {
		dominant := uint8(1) - part.RareBit
		for _, seg := range part.Segments {
			if seg.IsRLE {
				continue
			}
			if run := longestRun(seg, dominant); run >= abv.DominantRunLength {
				return errs.New(errs.NonCanonical, fmt.Sprintf(
					"codec: partition %d segment start_bit=%d embeds a dominant-bit run of length %d >= %d",
					part.PartitionID, seg.StartBit, run, abv.DominantRunLength))
			}
		}
	}
	return nil
}

// longestRun returns the longest run of value (0 or 1) within seg's
// reconstructed membership bits.
func longestRun(seg *abv.Segment, value uint8) uint32 {
	want := uint64(value)
	var longest, cur uint32
	for i := uint32(0); i < seg.NBits; i++ {
		bit := (seg.Blocks[i/64] >> (i % 64)) & 1
		if bit == want {
			cur++
			if cur > longest {
				longest = cur
			}
		} else {
			cur = 0
		}
	}
	return longest
}
