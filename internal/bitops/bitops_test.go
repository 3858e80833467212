package bitops

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadWriteBits_Roundtrip(t *testing.T) {
	tests := []struct {
		name string
		p    uint64
		v    uint64
		n    uint8
	}{
		{"zero width", 0, 0xFF, 0},
		{"single bit aligned", 0, 1, 1},
		{"single bit unaligned", 5, 1, 1},
		{"byte aligned 8", 8, 0xAB, 8},
		{"crosses byte boundary", 4, 0xFF, 8},
		{"full 64 bits", 0, 0xDEADBEEFCAFEBABE, 64},
		{"64 bits unaligned", 3, 0xFFFFFFFFFFFFFFFF, 64},
		{"63 bits", 1, 0x7FFFFFFFFFFFFFFF, 63},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 32)
			err := WriteBits(buf, tt.p, tt.v, tt.n)
			require.NoError(t, err)

			got, err := ReadBits(buf, tt.p, tt.n)
			require.NoError(t, err)

			want := tt.v
			if tt.n < 64 {
				want &= (uint64(1) << tt.n) - 1
			}
			require.Equal(t, want, got)
		})
	}
}

func TestReadBits_OutOfRange(t *testing.T) {
	buf := make([]byte, 2)
	_, err := ReadBits(buf, 10, 10)
	require.Error(t, err)
}

func TestReadBits_NMoreThan64(t *testing.T) {
	buf := make([]byte, 16)
	_, err := ReadBits(buf, 0, 65)
	require.Error(t, err)
}

func TestCopyBits(t *testing.T) {
	src := make([]byte, 16)
	require.NoError(t, WriteBits(src, 3, 0x1F, 5))

	dst := make([]byte, 16)
	require.NoError(t, CopyBits(src, 3, dst, 11, 5))

	got, err := ReadBits(dst, 11, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1F), got)
}

func TestSetClearTestBit(t *testing.T) {
	buf := make([]byte, 2)
	require.False(t, TestBit(buf, 5))
	SetBit(buf, 5)
	require.True(t, TestBit(buf, 5))
	ClearBit(buf, 5)
	require.False(t, TestBit(buf, 5))
}

func TestPopcountCtzClz(t *testing.T) {
	require.Equal(t, 0, Popcount64(0))
	require.Equal(t, 64, Popcount64(^uint64(0)))
	require.Equal(t, 64, Ctz64(0))
	require.Equal(t, 0, Ctz64(1))
	require.Equal(t, 64, Clz64(0))
	require.Equal(t, 0, Clz64(^uint64(0)))
}

func TestFirstLastSetBit(t *testing.T) {
	require.Equal(t, -1, FirstSetBit(0))
	require.Equal(t, -1, LastSetBit(0))
	require.Equal(t, 0, FirstSetBit(1))
	require.Equal(t, 63, LastSetBit(^uint64(0)))
	require.Equal(t, 5, FirstSetBit(1<<5|1<<10))
	require.Equal(t, 10, LastSetBit(1<<5|1<<10))
}

func TestDominantBit(t *testing.T) {
	require.Equal(t, uint8(0), DominantBit(0, 8))
	require.Equal(t, uint8(1), DominantBit(0xFF, 8))
	// tie -> 0
	require.Equal(t, uint8(0), DominantBit(0x0F, 8))
}

func TestRareBits(t *testing.T) {
	// dominant 0, one rare bit at position 3 within 8 bits
	count, first, last := RareBits(1<<3, 8, 0)
	require.Equal(t, 1, count)
	require.Equal(t, 3, first)
	require.Equal(t, 3, last)

	// dominant 1, all ones: no rare bits
	count, first, last = RareBits(0xFF, 8, 1)
	require.Equal(t, 0, count)
	require.Equal(t, -1, first)
	require.Equal(t, -1, last)
}

func TestIsHomogeneous(t *testing.T) {
	require.True(t, IsHomogeneous(0, 64))
	require.True(t, IsHomogeneous(^uint64(0), 64))
	require.False(t, IsHomogeneous(1, 64))
}

func TestLeadingTrailingDominantRun(t *testing.T) {
	// dominant 0, block has a single 1 bit at position 4 within 8 bits
	block := uint64(1 << 4)
	require.Equal(t, 4, LeadingDominantRun(block, 8, 0))
	require.Equal(t, 3, TrailingDominantRun(block, 8, 0))

	require.Equal(t, 64, LeadingDominantRun(0, 64, 0))
	require.Equal(t, 64, TrailingDominantRun(0, 64, 0))
}
