package tiff

import (
	"fmt"

	binutil "github.com/CDRayn/binny/internal/binary"
)

// Field types
const (
	TypeByte      = 1
	TypeASCII     = 2
	TypeShort     = 3
	TypeLong      = 4
	TypeRational  = 5
	TypeSByte     = 6
	TypeUndefined = 7
	TypeSShort    = 8
	TypeSLong     = 9
	TypeSRational = 10
	TypeFloat     = 11
	TypeDouble    = 12
)

var typeSizes = [...]int64{
	TypeByte: 1, TypeASCII: 1, TypeShort: 2, TypeLong: 4, TypeRational: 8,
	TypeSByte: 1, TypeUndefined: 1, TypeSShort: 2, TypeSLong: 4,
	TypeSRational: 8, TypeFloat: 4, TypeDouble: 8,
}

// Tags the parser looks at
const (
	TagImageWidth      = 256
	TagImageLength     = 257
	TagBitsPerSample   = 258
	TagCompression     = 259
	TagPhotometric     = 262
	TagStripOffsets    = 273
	TagSamplesPerPixel = 277
	TagRowsPerStrip    = 278
	TagStripByteCounts = 279
	TagExifIFD         = 34665
	TagGPSIFD          = 34853
)

const entryLen = 12

// Entry is one IFD entry.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint32
	// Value is the raw 4-byte value field. It holds the value itself when
	// it fits, otherwise the offset of the value.
	Value [4]byte
}

// Size returns the byte size of the entry's value.
func (e Entry) Size() int64 {
	return typeSizes[e.Type] * int64(e.Count)
}

// Inline reports whether the value is stored in the entry itself.
func (e Entry) Inline() bool {
	return e.Size() <= 4
}

// IFD is one image file directory.
type IFD struct {
	Name    string // "IFD0", "IFD1", "Exif", "GPS"
	Offset  int64
	Entries []Entry
	Next    uint32 // offset of the next IFD in the chain, 0 at the end
}

// Lookup returns the entry with the given tag.
func (d *IFD) Lookup(tag uint16) (Entry, bool) {
	for _, e := range d.Entries {
		if e.Tag == tag {
			return e, true
		}
	}
	return Entry{}, false
}

// decoder reads entry values in the file's byte order.
type decoder struct {
	order binutil.Endianness
}

// offset returns the value field read as an offset.
func (d decoder) offset(e Entry) int64 {
	return int64(binutil.Decode[uint32](e.Value[:], d.order))
}

// uint returns the first value of an inline BYTE, SHORT or LONG entry.
func (d decoder) uint(e Entry) (uint32, error) {
	if e.Count == 0 || !e.Inline() {
		return 0, fmt.Errorf("tag %d has no inline value", e.Tag)
	}
	switch e.Type {
	case TypeByte:
		return uint32(e.Value[0]), nil
	case TypeShort:
		return uint32(binutil.Decode[uint16](e.Value[:], d.order)), nil
	case TypeLong:
		return binutil.Decode[uint32](e.Value[:], d.order), nil
	}
	return 0, fmt.Errorf("tag %d has type %d, want an unsigned integer", e.Tag, e.Type)
}

// IFDCodec frames an IFD as a chunk: a 2-byte entry count header, the
// entries as payload and the next-IFD offset as a 4-byte trailer.
type IFDCodec struct {
	Order binutil.Endianness
}

// Read implements chunk.Header.
func (h IFDCodec) Read(c *binutil.Cursor) (string, int64, error) {
	n, err := binutil.ReadEndian[uint16](c, "IFD entry count", h.Order)
	if err != nil {
		return "", 0, err
	}
	return "IFD", int64(n) * entryLen, nil
}

// Write implements chunk.Header.
func (h IFDCodec) Write(w *binutil.SafeWriter, _ string, length int64) error {
	if length%entryLen != 0 || length/entryLen > 0xFFFF {
		return fmt.Errorf("IFD payload of %d bytes is not a whole number of entries", length)
	}
	return binutil.WriteEndian(w, uint16(length/entryLen), h.Order)
}

// Len implements chunk.Header.
func (IFDCodec) Len(string) int64 { return 2 }
