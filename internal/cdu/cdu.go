// Package cdu implements the Canonical Data Unit codec: a canonical,
// shape-parameterized encoding for unsigned integers used for every
// structural field in the wire format.
//
// Each Type is described by a Param record (base_bits, first, fixed,
// step_size, max_mids). Fixed types write exactly base_bits and stop.
// Variable types write a sequence of steps — first, then step_size
// repeated, then a remainder — each followed by one continuation bit, in
// the spirit of LEB128: a value fits in the shortest step sequence that
// can carry it, which is what makes the encoding canonical.
package cdu

import (
	"github.com/scigolib/abvkey/internal/bitops"
	"github.com/scigolib/abvkey/internal/errs"
)

// Type enumerates the wire fields that rely on CDU. The assignment is
// part of the format specification and is frozen per format version.
type Type int

const (
	FormatVersion Type = iota
	PartitionCount
	PartitionDelta
	SegmentCount
	SegmentInitialDelta
	SegmentLength
	EnumCombined
	RawRunLength
	Raw1
	Raw2
	Raw64
	numTypes
)

// Param is the shape record for one CDU type.
type Param struct {
	BaseBits uint8
	First    uint8
	Fixed    bool
	StepSize uint8
	MaxMids  uint8

	// derived at init
	steps    []uint8
	defSteps int
}

var params [numTypes]Param

func init() {
	params = [numTypes]Param{
		FormatVersion:       {BaseBits: 8, First: 2, StepSize: 3, MaxMids: 3},
		PartitionCount:      {BaseBits: 32, First: 4, StepSize: 7, MaxMids: 10},
		PartitionDelta:      {BaseBits: 32, First: 3, StepSize: 8, MaxMids: 10},
		SegmentCount:        {BaseBits: 16, First: 4, StepSize: 6, MaxMids: 3},
		SegmentInitialDelta: {BaseBits: 32, First: 3, StepSize: 8, MaxMids: 10},
		SegmentLength:       {BaseBits: 16, First: 5, StepSize: 6, MaxMids: 3},
		// BaseBits must cover k (5 bits) packed under a colexicographic
		// rank that can need up to rankBits[combinadic.MaxK][combinadic.MaxN]
		// bits (52, for k=18 over a 64-bit chunk) — 57 bits total.
		EnumCombined: {BaseBits: 57, First: 9, StepSize: 12, MaxMids: 4},
		RawRunLength:        {BaseBits: 32, First: 5, StepSize: 7, MaxMids: 4},
		Raw1:                {BaseBits: 1, Fixed: true},
		Raw2:                {BaseBits: 2, Fixed: true},
		Raw64:               {BaseBits: 64, Fixed: true},
	}

	for i := range params {
		if err := computeSteps(&params[i]); err != nil {
			panic(err) // static table, misconfiguration is a programmer error
		}
	}
}

// computeSteps derives the step-width sequence for a variable-length type:
// the largest k <= MaxMids such that the remainder after k middle steps of
// width StepSize is still >= StepSize becomes the middle-step count; the
// leftover becomes the final step's width.
func computeSteps(p *Param) error {
	if p.Fixed {
		if p.BaseBits == 0 || p.BaseBits > 64 {
			return errs.New(errs.Overflow, "cdu: fixed type base_bits out of range")
		}
		return nil
	}

	k := 0
	for uint8(k+1) <= p.MaxMids {
		remainder := int(p.BaseBits) - int(p.First) - (k+1)*int(p.StepSize)
		if remainder < int(p.StepSize) {
			break
		}
		k++
	}
	remainder := int(p.BaseBits) - int(p.First) - k*int(p.StepSize)
	if remainder < 0 {
		return errs.New(errs.Overflow, "cdu: parameter set has negative remainder")
	}

	steps := make([]uint8, 0, k+2)
	steps = append(steps, p.First)
	for i := 0; i < k; i++ {
		steps = append(steps, p.StepSize)
	}
	steps = append(steps, uint8(remainder))

	total := int(p.BaseBits) + len(steps)
	if total > 64 {
		return errs.New(errs.Overflow, "cdu: encoded length could exceed 64 bits")
	}

	p.steps = steps
	p.defSteps = len(steps)
	return nil
}

// Encode writes value under the given type starting at bit_pos in buf and
// returns the number of bits written.
func Encode(value uint64, t Type, buf []byte, bitPos uint64) (uint64, error) {
	p := &params[t]

	if p.Fixed {
		if err := bitops.WriteBits(buf, bitPos, value, p.BaseBits); err != nil {
			return 0, err
		}
		return uint64(p.BaseBits), nil
	}

	return encodeSteps(value, p, buf, bitPos)
}

// encodeSteps performs the single-pass variable-length write.
func encodeSteps(value uint64, p *Param, buf []byte, bitPos uint64) (uint64, error) {
	var encoded uint64
	bitsUsed := 0
	v := value
	si := 0
	for si < len(p.steps)-1 {
		step := p.steps[si]
		morebit := uint64(1) << step
		if v < morebit {
			break
		}
		encoded |= ((v & (morebit - 1)) | morebit) << bitsUsed
		bitsUsed += int(step) + 1
		v >>= step
		si++
	}
	lastStep := p.steps[si]
	if lastStep < 64 {
		v &= (uint64(1) << lastStep) - 1
	}
	encoded |= v << bitsUsed
	bitsUsed += int(lastStep) + 1

	if bitsUsed > 64 {
		return 0, errs.New(errs.Overflow, "cdu: value does not fit configured shape")
	}
	if err := bitops.WriteBits(buf, bitPos, encoded, uint8(bitsUsed)); err != nil {
		return 0, err
	}
	return uint64(bitsUsed), nil
}

// Decode reads a value of the given type starting at bit_pos in a buf that
// has buf_bits total valid bits, returning the value and bits consumed.
func Decode(buf []byte, bitPos, bufBits uint64, t Type) (uint64, uint64, error) {
	p := &params[t]

	if p.Fixed {
		if bitPos+uint64(p.BaseBits) > bufBits {
			return 0, 0, errs.New(errs.Truncated, "cdu: fixed field truncated")
		}
		v, err := bitops.ReadBits(buf, bitPos, p.BaseBits)
		if err != nil {
			return 0, 0, err
		}
		return v, uint64(p.BaseBits), nil
	}

	var value uint64
	shift := 0
	bitsUsed := uint64(0)
	for si := 0; si < len(p.steps); si++ {
		step := p.steps[si]
		width := uint8(step) + 1 // payload bits + one continuation bit
		if bitPos+bitsUsed+uint64(width) > bufBits {
			return 0, 0, errs.New(errs.Truncated, "cdu: variable field truncated")
		}
		raw, err := bitops.ReadBits(buf, bitPos+bitsUsed, width)
		if err != nil {
			return 0, 0, err
		}
		payload := raw & ((uint64(1) << step) - 1)
		more := raw&(uint64(1)<<step) != 0
		value |= payload << shift
		shift += int(step)
		bitsUsed += uint64(width)

		if !more {
			return value, bitsUsed, validateMinimal(value, p, si)
		}
		if si == len(p.steps)-1 {
			return 0, 0, errs.New(errs.InvalidEncoding, "cdu: continuation set on final step")
		}
	}
	return value, bitsUsed, nil
}

// validateMinimal rejects decodings that terminated early using a step
// count that isn't the minimal one for the resulting value: the decoder
// must refuse encodings that used more continuation overhead than the
// canonical shortest form required.
func validateMinimal(value uint64, p *Param, stoppedAt int) error {
	// Recompute how many steps the canonical encoder would have used for
	// this value and compare against where decoding actually stopped.
	v := value
	want := 0
	for want < len(p.steps)-1 {
		step := p.steps[want]
		morebit := uint64(1) << step
		if v < morebit {
			break
		}
		v >>= step
		want++
	}
	if want != stoppedAt {
		return errs.New(errs.NonCanonical, "cdu: non-minimal encoding")
	}
	return nil
}

// EncodedLen returns the bit length that Encode would produce for value
// under type t, without writing anything.
func EncodedLen(value uint64, t Type) (uint64, error) {
	scratch := make([]byte, 16)
	return Encode(value, t, scratch, 0)
}
