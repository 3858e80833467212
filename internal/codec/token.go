package codec

import (
	"github.com/scigolib/abvkey/internal/abv"
	"github.com/scigolib/abvkey/internal/bitops"
	"github.com/scigolib/abvkey/internal/cdu"
	"github.com/scigolib/abvkey/internal/combinadic"
	"github.com/scigolib/abvkey/internal/errs"
)

// Token tags, 2 bits each.
const (
	tagENUM    = 0b00
	tagRAW     = 0b01
	tagRAWRUN  = 0b10
	tagReserve = 0b11
)

// enumCombinedShift packs k (<=18, 5 bits) into the low bits of the
// EnumCombined CDU value, with the combinadic rank in the high bits. k is
// always recoverable regardless of whether the chunk carries a rank (k in
// {0,n} omits the rank per spec, but folding a zero rank into the same
// packed field keeps the wire shape uniform without a special case).
const enumCombinedShift = 5
const enumKMask = (1 << enumCombinedShift) - 1

func maskLow(n uint8) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

// writeEnumToken writes one ENUM token for a chunk's content.
func writeEnumToken(w *Writer, masked uint64, nBits uint8, k int) error {
	if err := w.WriteBits(tagENUM, 2); err != nil {
		return err
	}
	rank, err := combinadic.Rank(masked, int(nBits), k)
	if err != nil {
		return err
	}
	combined := (rank << enumCombinedShift) | uint64(k)
	return w.WriteCDU(combined, cdu.EnumCombined)
}

// readEnumToken reads one ENUM token's payload and returns the chunk value.
func readEnumToken(r *Reader, nBits uint8) (uint64, error) {
	combined, err := r.ReadCDU(cdu.EnumCombined)
	if err != nil {
		return 0, err
	}
	k := int(combined & enumKMask)
	rank := combined >> enumCombinedShift
	if k > abv.KEnumMax || k > int(nBits) {
		return 0, errs.New(errs.InvalidEncoding, "codec: ENUM k out of range")
	}
	return combinadic.Unrank(rank, int(nBits), k)
}

// writeRawToken writes a single, non-coalesced RAW token.
func writeRawToken(w *Writer, masked uint64, nBits uint8) error {
	if err := w.WriteBits(tagRAW, 2); err != nil {
		return err
	}
	return w.WriteBits(masked, nBits)
}

// writeRawRunToken writes a coalesced run of runLen consecutive RAW chunks
// starting at chunk index runStart within blocks. chunkWidth(i) gives the
// valid bit width of chunk i (64 for all but the segment's final chunk).
func writeRawRunToken(w *Writer, blocks []uint64, runStart, runLen int, chunkWidth func(int) uint8) error {
	if err := w.WriteBits(tagRAWRUN, 2); err != nil {
		return err
	}
	if err := w.WriteCDU(uint64(runLen), cdu.RawRunLength); err != nil {
		return err
	}
	for i := 0; i < runLen; i++ {
		idx := runStart + i
		width := chunkWidth(idx)
		masked := blocks[idx] & maskLow(width)
		if err := w.WriteBits(masked, width); err != nil {
			return err
		}
	}
	return nil
}

// EncodeTokens writes a MIX segment's full token stream, coalescing
// consecutive RAW chunks into RAW_RUN as canonicity requires.
func EncodeTokens(w *Writer, seg *abv.Segment) error {
	nChunks := int(abv.NChunks(seg.NBits))
	lastBits := abv.LastChunkBits(seg.NBits)
	chunkWidth := func(i int) uint8 {
		if i == nChunks-1 {
			return lastBits
		}
		return 64
	}

	i := 0
	for i < nChunks {
		width := chunkWidth(i)
		masked := seg.Blocks[i] & maskLow(width)
		k := bitops.Popcount64(masked)

		if k <= abv.KEnumMax {
			if err := writeEnumToken(w, masked, width, k); err != nil {
				return err
			}
			i++
			continue
		}

		runStart := i
		for i < nChunks {
			w2 := chunkWidth(i)
			m2 := seg.Blocks[i] & maskLow(w2)
			if bitops.Popcount64(m2) <= abv.KEnumMax {
				break
			}
			i++
		}
		runLen := i - runStart
		if runLen == 1 {
			if err := writeRawToken(w, masked, width); err != nil {
				return err
			}
		} else {
			if err := writeRawRunToken(w, seg.Blocks, runStart, runLen, chunkWidth); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeTokens reads nChunks tokens (with lastBits valid bits in the final
// chunk) and returns the reconstructed block array, enforcing that no RAW
// token immediately follows another RAW token.
func DecodeTokens(r *Reader, nChunks int, lastBits uint8) ([]uint64, error) {
	blocks := make([]uint64, nChunks)
	chunkWidth := func(i int) uint8 {
		if i == nChunks-1 {
			return lastBits
		}
		return 64
	}

	i := 0
	prevWasRaw := false
	for i < nChunks {
		tag, err := r.ReadBits(2)
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagENUM:
			v, err := readEnumToken(r, chunkWidth(i))
			if err != nil {
				return nil, err
			}
			blocks[i] = v
			prevWasRaw = false
			i++
		case tagRAW:
			if prevWasRaw {
				return nil, errs.New(errs.NonCanonical, "codec: RAW immediately follows RAW")
			}
			v, err := r.ReadBits(chunkWidth(i))
			if err != nil {
				return nil, err
			}
			blocks[i] = v
			prevWasRaw = true
			i++
		case tagRAWRUN:
			runLen64, err := r.ReadCDU(cdu.RawRunLength)
			if err != nil {
				return nil, err
			}
			runLen := int(runLen64)
			if runLen < 2 || i+runLen > nChunks {
				return nil, errs.New(errs.NonCanonical, "codec: RAW_RUN length out of range")
			}
			for j := 0; j < runLen; j++ {
				v, err := r.ReadBits(chunkWidth(i))
				if err != nil {
					return nil, err
				}
				blocks[i] = v
				i++
			}
			prevWasRaw = true
		default:
			return nil, errs.New(errs.InvalidEncoding, "codec: reserved token tag")
		}
	}
	return blocks, nil
}
