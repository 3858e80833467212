package codec

import (
	"github.com/scigolib/abvkey/internal/abv"
	"github.com/scigolib/abvkey/internal/cdu"
	"github.com/scigolib/abvkey/internal/errs"
)

// FormatZero is the only currently supported format version.
const FormatZero = 0

// Encode serializes root into the canonical Format 0 byte stream.
func Encode(root *abv.Root) ([]byte, error) {
	if root.FormatVersion != FormatZero {
		return nil, errs.New(errs.UnsupportedVersion, "codec: unsupported format version")
	}

	w := NewWriter()
	defer w.Release()

	if err := w.WriteCDU(uint64(root.FormatVersion), cdu.FormatVersion); err != nil {
		return nil, err
	}
	if err := w.WriteBit(root.RareBit != 0); err != nil {
		return nil, err
	}
	if len(root.Partitions) > 0xFFFFFFFF {
		return nil, errs.New(errs.Overflow, "codec: partition count exceeds u32")
	}
	if err := w.WriteCDU(uint64(len(root.Partitions)), cdu.PartitionCount); err != nil {
		return nil, err
	}

	var prevPartID int64 = -1
	for _, part := range root.Partitions {
		var delta uint64
		if prevPartID < 0 {
			delta = uint64(part.PartitionID)
		} else {
			delta = uint64(part.PartitionID) - uint64(prevPartID) - 1
		}
		if err := w.WriteCDU(delta, cdu.PartitionDelta); err != nil {
			return nil, err
		}
		if err := w.WriteBit(part.RareBit != 0); err != nil {
			return nil, err
		}
		if len(part.Segments) == 0 {
			return nil, errs.New(errs.InvariantViolated, "codec: partition has no segments")
		}
		if err := w.WriteCDU(uint64(len(part.Segments)), cdu.SegmentCount); err != nil {
			return nil, err
		}

		var prevEnd uint32
		for _, seg := range part.Segments {
			ne, err := EncodeSegment(w, seg, prevEnd)
			if err != nil {
				return nil, err
			}
			prevEnd = ne
		}
		prevPartID = int64(part.PartitionID)
	}

	out := make([]byte, len(w.Bytes()))
	copy(out, w.Bytes())
	return out, nil
}

// Decode parses a canonical Format 0 byte stream into a Root.
func Decode(data []byte) (*abv.Root, error) {
	r := NewReader(data)

	formatVersion, err := r.ReadCDU(cdu.FormatVersion)
	if err != nil {
		return nil, err
	}
	if formatVersion != FormatZero {
		return nil, errs.New(errs.UnsupportedVersion, "codec: unsupported format version")
	}

	globalRare, err := r.ReadBit()
	if err != nil {
		return nil, err
	}

	nPartitions, err := r.ReadCDU(cdu.PartitionCount)
	if err != nil {
		return nil, err
	}

	b := abv.NewBuilder(uint16(formatVersion))
	var grb uint8
	if globalRare {
		grb = 1
	}
	b.SetRareBit(grb)

	var prevPartID int64 = -1
	for p := uint64(0); p < nPartitions; p++ {
		delta, err := r.ReadCDU(cdu.PartitionDelta)
		if err != nil {
			return nil, err
		}
		var partID uint64
		if prevPartID < 0 {
			partID = delta
		} else {
			partID = uint64(prevPartID) + 1 + delta
		}
		if partID > 0xFFFFFFFF {
			return nil, errs.New(errs.Overflow, "codec: partition id exceeds u32")
		}

		partRare, err := r.ReadBit()
		if err != nil {
			return nil, err
		}
		var prb uint8
		if partRare {
			prb = 1
		}

		if err := b.BeginPartition(uint32(partID), prb); err != nil {
			return nil, err
		}

		segCount, err := r.ReadCDU(cdu.SegmentCount)
		if err != nil {
			return nil, err
		}
		if segCount < 1 {
			return nil, errs.New(errs.NonCanonical, "codec: partition with zero segments")
		}

		var prevEnd uint32
		for s := uint64(0); s < segCount; s++ {
			seg, ne, err := DecodeSegment(r, prevEnd)
			if err != nil {
				return nil, err
			}
			if seg.IsRLE {
				if err := b.AddRLESegment(seg.StartBit, seg.NBits, seg.Membership); err != nil {
					return nil, err
				}
			} else {
				if err := b.BeginMixSegment(seg.StartBit, seg.NBits, seg.Blocks); err != nil {
					return nil, err
				}
			}
			prevEnd = ne
		}

		prevPartID = int64(partID)
	}

	root, err := b.Finish()
	if err != nil {
		return nil, err
	}
	return root, nil
}
