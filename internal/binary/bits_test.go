package binary

import (
	"testing"

	"github.com/CDRayn/binny/internal/types"
)

func TestBitReader_MPEGHeader(t *testing.T) {
	// FF FB 90 64: MPEG-1 Layer III, unprotected, 128 kbps, 44.1 kHz, joint stereo
	br := NewBitReaderBytes([]byte{0xFF, 0xFB, 0x90, 0x64}, 0)

	fields, err := br.ReadFields(11, 2, 2, 1, 4, 2, 1, 1, 2, 2, 1, 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []uint32{0x7FF, 3, 1, 1, 9, 0, 0, 0, 1, 2, 0, 1, 0}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d = %d, want %d", i, fields[i], want[i])
		}
	}
	if br.BitPos() != 32 {
		t.Errorf("BitPos() = %d, want 32", br.BitPos())
	}
}

func TestBitReader_InvalidWidth(t *testing.T) {
	br := NewBitReaderBytes([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 100)

	for _, n := range []int{0, -1, 33, 64} {
		_, err := br.ReadBits(n)
		if types.KindOf(err) != types.InvalidBitWidth {
			t.Errorf("ReadBits(%d): expected InvalidBitWidth, got %v", n, err)
		}
	}
	if br.BitPos() != 0 {
		t.Errorf("invalid widths consumed %d bits", br.BitPos())
	}

	v, err := br.ReadBits(32)
	if err != nil || v != 0xFFFFFFFF {
		t.Errorf("ReadBits(32) = %#x, %v", v, err)
	}
}

func TestBitReader_CrossesByteBoundary(t *testing.T) {
	br := NewBitReaderBytes([]byte{0b1010_1100, 0b0011_0101}, 0)

	if _, err := br.ReadBits(3); err != nil {
		t.Fatal(err)
	}
	v, err := br.ReadBits(9)
	if err != nil {
		t.Fatal(err)
	}
	// remaining bits of byte 0: 01100, then 0011 from byte 1
	if v != 0b0_1100_0011 {
		t.Errorf("ReadBits(9) = %09b", v)
	}
	if br.Offset() != 1 {
		t.Errorf("Offset() = %d, want 1", br.Offset())
	}

	br.Align()
	if br.BitPos() != 16 {
		t.Errorf("BitPos() after Align = %d, want 16", br.BitPos())
	}
}

func TestBitReader_EOF(t *testing.T) {
	br := NewBitReaderBytes([]byte{0xAB}, 7)

	_, err := br.ReadBits(12)
	if types.KindOf(err) != types.UnexpectedEOF {
		t.Fatalf("expected UnexpectedEOF, got %v", err)
	}
}

func TestBitReader_OverCursor(t *testing.T) {
	c := NewBytesCursor([]byte{0x00, 0x80})
	if _, err := c.ReadByte(); err != nil {
		t.Fatal(err)
	}

	br := NewBitReader(c, c.Position())
	flag, err := br.ReadFlag()
	if err != nil || !flag {
		t.Errorf("ReadFlag() = %v, %v; want true", flag, err)
	}
	if c.Position() != 2 {
		t.Errorf("cursor offset = %d, want 2", c.Position())
	}
}
