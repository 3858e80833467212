// Package codec implements the wire format: token, segment, and partition
// encode/decode, plus the canonicity validator, built on internal/cdu,
// internal/combinadic, internal/bitops, and internal/abv.
package codec

import (
	"github.com/scigolib/abvkey/internal/bitops"
	"github.com/scigolib/abvkey/internal/bufpool"
	"github.com/scigolib/abvkey/internal/cdu"
	"github.com/scigolib/abvkey/internal/errs"
)

// Writer accumulates a bit stream into a growable, pooled byte buffer.
type Writer struct {
	buf    []byte
	bitLen uint64
}

// NewWriter returns an empty Writer backed by a pooled buffer.
func NewWriter() *Writer {
	return &Writer{buf: bufpool.Get(64)}
}

func (w *Writer) ensureBytes(n uint64) {
	for uint64(len(w.buf)) < n {
		w.buf = append(w.buf, 0)
	}
}

// WriteBits writes the low n bits of v.
func (w *Writer) WriteBits(v uint64, n uint8) error {
	if n == 0 {
		return nil
	}
	w.ensureBytes((w.bitLen + uint64(n) + 7) / 8)
	if err := bitops.WriteBits(w.buf, w.bitLen, v, n); err != nil {
		return err
	}
	w.bitLen += uint64(n)
	return nil
}

// WriteBit writes a single bit flag.
func (w *Writer) WriteBit(b bool) error {
	if b {
		return w.WriteBits(1, 1)
	}
	return w.WriteBits(0, 1)
}

// WriteCDU writes value under CDU type t.
func (w *Writer) WriteCDU(value uint64, t cdu.Type) error {
	n, err := cdu.EncodedLen(value, t)
	if err != nil {
		return err
	}
	w.ensureBytes((w.bitLen + n + 7) / 8)
	written, err := cdu.Encode(value, t, w.buf, w.bitLen)
	if err != nil {
		return err
	}
	w.bitLen += written
	return nil
}

// BitLen returns the number of bits written so far.
func (w *Writer) BitLen() uint64 { return w.bitLen }

// Bytes returns the written stream, zero-padded to a byte boundary.
func (w *Writer) Bytes() []byte {
	return w.buf[:(w.bitLen+7)/8]
}

// Release returns the Writer's backing buffer to the pool. The Writer must
// not be used afterward.
func (w *Writer) Release() {
	bufpool.Release(w.buf)
}

// Reader walks a bit stream produced by Writer (or any canonical byte form).
type Reader struct {
	buf     []byte
	bitPos  uint64
	bufBits uint64
}

// NewReader wraps buf for bit-level reading.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf, bufBits: uint64(len(buf)) * 8}
}

// ReadBits reads n bits and advances the cursor.
func (r *Reader) ReadBits(n uint8) (uint64, error) {
	if r.bitPos+uint64(n) > r.bufBits {
		return 0, errs.New(errs.Truncated, "codec: read past end of stream")
	}
	v, err := bitops.ReadBits(r.buf, r.bitPos, n)
	if err != nil {
		return 0, err
	}
	r.bitPos += uint64(n)
	return v, nil
}

// ReadBit reads a single flag bit.
func (r *Reader) ReadBit() (bool, error) {
	v, err := r.ReadBits(1)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadCDU reads a value of CDU type t and advances the cursor.
func (r *Reader) ReadCDU(t cdu.Type) (uint64, error) {
	v, n, err := cdu.Decode(r.buf, r.bitPos, r.bufBits, t)
	if err != nil {
		return 0, err
	}
	r.bitPos += n
	return v, nil
}

// BitPos returns the current bit cursor.
func (r *Reader) BitPos() uint64 { return r.bitPos }

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() uint64 { return r.bufBits - r.bitPos }

// AtEnd reports whether every bit has been consumed (ignoring trailing pad
// bits within the final byte, which carry no meaning).
func (r *Reader) AtEnd() bool {
	return r.bufBits-r.bitPos < 8
}
