package binary

import "encoding/binary"

// Endianness represents byte order for multi-byte values.
type Endianness int

const (
	// BigEndian uses big-endian byte order.
	// Used by: PNG, JPEG, MP3/ID3v2, FLAC, Motorola TIFF.
	BigEndian Endianness = iota

	// LittleEndian uses little-endian byte order.
	// Used by: RIFF/WAV, BMP, GIF, Intel TIFF.
	LittleEndian
)

func (e Endianness) String() string {
	if e == LittleEndian {
		return "little-endian"
	}
	return "big-endian"
}

// Order returns the encoding/binary byte order for e.
func (e Endianness) Order() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Unsigned is the set of fixed-width integers the primitive readers decode.
type Unsigned interface {
	uint8 | uint16 | uint32 | uint64
}

// sizeOf returns the encoded width of T in bytes.
func sizeOf[T Unsigned]() int {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32:
		return 4
	default:
		return 8
	}
}

// Decode converts the leading bytes of buf to T. buf must hold at least
// sizeOf[T]() bytes.
func Decode[T Unsigned](buf []byte, endian Endianness) T {
	order := endian.Order()
	var zero T
	switch any(zero).(type) {
	case uint8:
		return T(buf[0])
	case uint16:
		return T(order.Uint16(buf))
	case uint32:
		return T(order.Uint32(buf))
	default:
		return T(order.Uint64(buf))
	}
}

// ReadLE reads a numeric value of type T using little-endian byte order.
//
// Example:
//
//	size, err := binary.ReadLE[uint32](cur, "RIFF size")
func ReadLE[T Unsigned](c *Cursor, what string) (T, error) {
	return ReadEndian[T](c, what, LittleEndian)
}

// ReadBE reads a numeric value of type T using big-endian byte order.
//
// Example:
//
//	length, err := binary.ReadBE[uint32](cur, "chunk length")
func ReadBE[T Unsigned](c *Cursor, what string) (T, error) {
	return ReadEndian[T](c, what, BigEndian)
}

// ReadEndian reads a numeric value of type T with the specified byte order.
//
// It consumes exactly the width of T or nothing at all.
func ReadEndian[T Unsigned](c *Cursor, what string, endian Endianness) (T, error) {
	var buf [8]byte
	b := buf[:sizeOf[T]()]
	if err := c.ReadInto(b, what); err != nil {
		var zero T
		return zero, err
	}
	return Decode[T](b, endian), nil
}

// ReadU24BE reads a 24-bit big-endian value (FLAC block lengths, ID3 sizes).
func ReadU24BE(c *Cursor, what string) (uint32, error) {
	var buf [3]byte
	if err := c.ReadInto(buf[:], what); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
}

// ReadBytes reads n bytes as an owned slice.
func ReadBytes(c *Cursor, n int64, what string) ([]byte, error) {
	return c.ReadExact(n, what)
}

// Fields decodes consecutive values of one width from a fixed buffer, the way
// header structs are usually laid out. It panics if buf is too short, so
// callers size buf from the struct they decode.
type Fields struct {
	buf    []byte
	endian Endianness
	pos    int
}

// NewFields starts decoding buf in the given byte order.
func NewFields(buf []byte, endian Endianness) *Fields {
	return &Fields{buf: buf, endian: endian}
}

// Next decodes the next T and advances.
func Next[T Unsigned](f *Fields) T {
	n := sizeOf[T]()
	v := Decode[T](f.buf[f.pos:f.pos+n], f.endian)
	f.pos += n
	return v
}

// Skip advances past n bytes.
func (f *Fields) Skip(n int) {
	f.pos += n
}

// Pos returns the number of bytes decoded so far.
func (f *Fields) Pos() int {
	return f.pos
}
