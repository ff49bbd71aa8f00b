package binary

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriteEndian(t *testing.T) {
	tests := []struct {
		name  string
		write func(*SafeWriter) error
		want  []byte
	}{
		{"u8", func(sw *SafeWriter) error { return WriteEndian[uint8](sw, 0x7F, LittleEndian) }, []byte{0x7F}},
		{"u16 BE", func(sw *SafeWriter) error { return Write[uint16](sw, 0xFFE0) }, []byte{0xFF, 0xE0}},
		{"u16 LE", func(sw *SafeWriter) error { return WriteEndian[uint16](sw, 0x002A, LittleEndian) }, []byte{0x2A, 0x00}},
		{"u32 BE", func(sw *SafeWriter) error { return Write[uint32](sw, 0x0000000D) }, []byte{0, 0, 0, 0x0D}},
		{"u32 LE", func(sw *SafeWriter) error { return WriteEndian[uint32](sw, 0x46464952, LittleEndian) }, []byte("RIFF")},
		{"u64 BE", func(sw *SafeWriter) error { return Write[uint64](sw, 0x0102030405060708) }, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			sw := NewSafeWriter(&buf)
			if err := tt.write(sw); err != nil {
				t.Fatalf("write: %v", err)
			}
			if !bytes.Equal(buf.Bytes(), tt.want) {
				t.Errorf("wrote % x, want % x", buf.Bytes(), tt.want)
			}
			if sw.Offset() != int64(len(tt.want)) {
				t.Errorf("Offset() = %d, want %d", sw.Offset(), len(tt.want))
			}
		})
	}
}

func TestSafeWriter_ChunkHeader(t *testing.T) {
	var buf bytes.Buffer
	sw := NewSafeWriter(&buf)

	// A PNG IHDR header followed by a RIFF fmt header.
	_ = Write[uint32](sw, 13)
	_ = sw.WriteString("IHDR")
	_ = sw.WriteBytes([]byte("fmt "))
	_ = WriteEndian[uint32](sw, 16, LittleEndian)

	want := []byte("\x00\x00\x00\x0dIHDRfmt \x10\x00\x00\x00")
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("wrote %q, want %q", buf.Bytes(), want)
	}
	if sw.Offset() != 16 {
		t.Errorf("Offset() = %d, want 16", sw.Offset())
	}
}

type shortWriter struct{ room int }

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.room {
		n := w.room
		w.room = 0
		return n, errors.New("disk full")
	}
	w.room -= len(p)
	return len(p), nil
}

func TestSafeWriter_PartialWrite(t *testing.T) {
	sw := NewSafeWriter(&shortWriter{room: 3})

	if err := Write[uint16](sw, 1); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := Write[uint32](sw, 2); err == nil {
		t.Fatal("expected error from a full writer")
	}
	// Offset counts the bytes that made it out.
	if sw.Offset() != 3 {
		t.Errorf("Offset() = %d, want 3", sw.Offset())
	}
}

func TestSafeWriter_RoundTripWithCursor(t *testing.T) {
	var buf bytes.Buffer
	sw := NewSafeWriter(&buf)

	_ = WriteEndian[uint16](sw, 0xBEEF, LittleEndian)
	_ = WriteEndian[uint32](sw, 0xCAFEBABE, BigEndian)

	c := NewBytesCursor(buf.Bytes())
	le, err := ReadLE[uint16](c, "le")
	if err != nil || le != 0xBEEF {
		t.Errorf("ReadLE = %#x, %v", le, err)
	}
	be, err := ReadBE[uint32](c, "be")
	if err != nil || be != 0xCAFEBABE {
		t.Errorf("ReadBE = %#x, %v", be, err)
	}
}
