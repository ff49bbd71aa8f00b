package binary

import (
	"io"
)

// SafeWriter wraps io.Writer with position tracking. It is used to emit
// container framing (chunk headers, markers) from a parsed layout.
type SafeWriter struct {
	w      io.Writer
	offset int64
}

// NewSafeWriter creates a new SafeWriter.
func NewSafeWriter(w io.Writer) *SafeWriter {
	return &SafeWriter{w: w}
}

// Offset returns the current position (number of bytes written).
func (sw *SafeWriter) Offset() int64 {
	return sw.offset
}

// WriteBytes writes raw bytes to the underlying writer.
func (sw *SafeWriter) WriteBytes(b []byte) error {
	n, err := sw.w.Write(b)
	sw.offset += int64(n)
	return err
}

// WriteString writes a string as bytes to the underlying writer.
func (sw *SafeWriter) WriteString(s string) error {
	return sw.WriteBytes([]byte(s))
}

// Write writes a value of type T in big-endian byte order.
func Write[T Unsigned](sw *SafeWriter, val T) error {
	return WriteEndian(sw, val, BigEndian)
}

// WriteEndian writes a value of type T in the given byte order.
func WriteEndian[T Unsigned](sw *SafeWriter, val T, endian Endianness) error {
	var buf [8]byte
	b := buf[:sizeOf[T]()]
	order := endian.Order()

	switch v := any(val).(type) {
	case uint8:
		b[0] = v
	case uint16:
		order.PutUint16(b, v)
	case uint32:
		order.PutUint32(b, v)
	case uint64:
		order.PutUint64(b, v)
	}

	return sw.WriteBytes(b)
}
