// Package bitops implements the endian-neutral bit-level primitives that
// every higher layer of the codec is built from: arbitrary-width field
// read/write at arbitrary bit offsets, population count, and the
// polarity-aware dominant/rare-bit analysis used to decide segment and
// token boundaries.
//
// Bit addressing is LSB-first little-endian: logical bit k is bit k%8 of
// byte k/8. This holds regardless of host byte order.
package bitops

import (
	"math/bits"

	"github.com/scigolib/abvkey/internal/errs"
)

// ReadBits reads n bits (0 <= n <= 64) starting at bit offset p in buf and
// returns them right-aligned in a uint64.
func ReadBits(buf []byte, p uint64, n uint8) (uint64, error) {
	if n > 64 {
		return 0, errs.New(errs.InvalidEncoding, "ReadBits: n > 64")
	}
	if n == 0 {
		return 0, nil
	}
	if p+uint64(n) > uint64(len(buf))*8 {
		return 0, errs.New(errs.Truncated, "ReadBits: out of range")
	}

	var result uint64
	var filled uint8
	byteIdx := p / 8
	bitIdx := uint8(p % 8)

	for filled < n {
		avail := 8 - bitIdx
		take := n - filled
		if take > avail {
			take = avail
		}
		b := buf[byteIdx]
		chunk := uint64((b >> bitIdx) & (byte(1<<take) - 1))
		result |= chunk << filled
		filled += take
		byteIdx++
		bitIdx = 0
	}
	return result, nil
}

// WriteBits writes the low n bits of v starting at bit offset p in buf.
// buf must already be large enough to hold p+n bits.
func WriteBits(buf []byte, p uint64, v uint64, n uint8) error {
	if n > 64 {
		return errs.New(errs.InvalidEncoding, "WriteBits: n > 64")
	}
	if n == 0 {
		return nil
	}
	if p+uint64(n) > uint64(len(buf))*8 {
		return errs.New(errs.Overflow, "WriteBits: out of range")
	}
	if n < 64 {
		v &= (uint64(1) << n) - 1
	}

	var written uint8
	byteIdx := p / 8
	bitIdx := uint8(p % 8)

	for written < n {
		avail := 8 - bitIdx
		take := n - written
		if take > avail {
			take = avail
		}
		mask := byte(1<<take) - 1
		src := byte(v>>written) & mask
		buf[byteIdx] = (buf[byteIdx] &^ (mask << bitIdx)) | (src << bitIdx)
		written += take
		byteIdx++
		bitIdx = 0
	}
	return nil
}

// CopyBits copies n bits from src at bit offset ps to dst at bit offset pd.
// Source and destination ranges must not overlap when src and dst alias the
// same buffer.
func CopyBits(src []byte, ps uint64, dst []byte, pd uint64, n uint64) error {
	for n > 0 {
		take := n
		if take > 64 {
			take = 64
		}
		v, err := ReadBits(src, ps, uint8(take))
		if err != nil {
			return err
		}
		if err := WriteBits(dst, pd, v, uint8(take)); err != nil {
			return err
		}
		ps += take
		pd += take
		n -= take
	}
	return nil
}

// SetBit sets logical bit p of buf to 1.
func SetBit(buf []byte, p uint64) {
	buf[p/8] |= 1 << (p % 8)
}

// ClearBit sets logical bit p of buf to 0.
func ClearBit(buf []byte, p uint64) {
	buf[p/8] &^= 1 << (p % 8)
}

// TestBit returns the value of logical bit p of buf.
func TestBit(buf []byte, p uint64) bool {
	return buf[p/8]&(1<<(p%8)) != 0
}

// Popcount64 returns the number of set bits in v.
func Popcount64(v uint64) int { return bits.OnesCount64(v) }

// Ctz64 returns the number of trailing zero bits in v (64 if v == 0).
func Ctz64(v uint64) int { return bits.TrailingZeros64(v) }

// Clz64 returns the number of leading zero bits in v (64 if v == 0).
func Clz64(v uint64) int { return bits.LeadingZeros64(v) }

// FirstSetBit returns the position of the lowest set bit, or -1 if v == 0.
func FirstSetBit(v uint64) int {
	if v == 0 {
		return -1
	}
	return bits.TrailingZeros64(v)
}

// LastSetBit returns the position of the highest set bit, or -1 if v == 0.
func LastSetBit(v uint64) int {
	if v == 0 {
		return -1
	}
	return 63 - bits.LeadingZeros64(v)
}

// maskLow returns a mask with the low nBits set (nBits in [0,64]).
func maskLow(nBits uint8) uint64 {
	if nBits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << nBits) - 1
}

// DominantBit returns the majority bit value among the low nBits of block,
// with ties resolved to 0.
func DominantBit(block uint64, nBits uint8) uint8 {
	masked := block & maskLow(nBits)
	ones := bits.OnesCount64(masked)
	zeros := int(nBits) - ones
	if ones > zeros {
		return 1
	}
	return 0
}

// RareBits analyzes the low nBits of block against the given dominant
// value and returns the count, first position, and last position of bits
// differing from dominant (the "rare" bits). first/last are -1 when count
// is 0.
func RareBits(block uint64, nBits uint8, dominant uint8) (count int, first int, last int) {
	masked := block & maskLow(nBits)
	var rare uint64
	if dominant == 0 {
		rare = masked
	} else {
		rare = (^masked) & maskLow(nBits)
	}
	count = bits.OnesCount64(rare)
	first = FirstSetBit(rare)
	last = LastSetBit(rare)
	return
}

// IsHomogeneous reports whether the low nBits of block are all the same
// value.
func IsHomogeneous(block uint64, nBits uint8) bool {
	count, _, _ := RareBits(block, nBits, DominantBit(block, nBits))
	return count == 0
}

// LeadingDominantRun returns the number of leading bits (from bit 0,
// low-to-high) of the low nBits of block that equal dominant.
func LeadingDominantRun(block uint64, nBits uint8, dominant uint8) int {
	var rare uint64
	masked := block & maskLow(nBits)
	if dominant == 0 {
		rare = masked
	} else {
		rare = (^masked) & maskLow(nBits)
	}
	if rare == 0 {
		return int(nBits)
	}
	return Ctz64(rare)
}

// TrailingDominantRun returns the number of trailing bits (ending at bit
// nBits-1) of the low nBits of block that equal dominant.
func TrailingDominantRun(block uint64, nBits uint8, dominant uint8) int {
	var rare uint64
	masked := block & maskLow(nBits)
	if dominant == 0 {
		rare = masked
	} else {
		rare = (^masked) & maskLow(nBits)
	}
	if rare == 0 {
		return int(nBits)
	}
	highestRare := LastSetBit(rare)
	return int(nBits) - 1 - highestRare
}
