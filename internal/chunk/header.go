// Package chunk implements the tag-length-value walk shared by every container
// format: read a header, bound the payload, verify a checksum, hand the
// payload to a format interpreter, skip padding, decide whether to continue.
package chunk

import (
	"fmt"

	"github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

// Header reads and writes the framing in front of each payload.
type Header interface {
	// Read decodes one header at the cursor.
	Read(c *binary.Cursor) (tag string, length int64, err error)
	// Write encodes a header for tag and length.
	Write(w *binary.SafeWriter, tag string, length int64) error
	// Len returns the encoded header size for tag.
	Len(tag string) int64
}

// TagLength is "tag, then length" framing as used by RIFF.
type TagLength struct {
	TagWidth    int
	LengthWidth int // 2 or 4
	Order       binary.Endianness
}

// LengthTag is "length, then tag" framing as used by PNG.
type LengthTag struct {
	TagWidth    int
	LengthWidth int // 2 or 4
	Order       binary.Endianness
}

// Read implements Header.
func (h TagLength) Read(c *binary.Cursor) (string, int64, error) {
	tag, err := readTag(c, h.TagWidth)
	if err != nil {
		return "", 0, err
	}
	n, err := readLength(c, h.LengthWidth, h.Order)
	if err != nil {
		return "", 0, err
	}
	return tag, n, nil
}

// Write implements Header.
func (h TagLength) Write(w *binary.SafeWriter, tag string, length int64) error {
	if err := writeTag(w, tag, h.TagWidth); err != nil {
		return err
	}
	return writeLength(w, length, h.LengthWidth, h.Order)
}

// Len implements Header.
func (h TagLength) Len(string) int64 {
	return int64(h.TagWidth + h.LengthWidth)
}

// Read implements Header.
func (h LengthTag) Read(c *binary.Cursor) (string, int64, error) {
	n, err := readLength(c, h.LengthWidth, h.Order)
	if err != nil {
		return "", 0, err
	}
	tag, err := readTag(c, h.TagWidth)
	if err != nil {
		return "", 0, err
	}
	return tag, n, nil
}

// Write implements Header.
func (h LengthTag) Write(w *binary.SafeWriter, tag string, length int64) error {
	if err := writeLength(w, length, h.LengthWidth, h.Order); err != nil {
		return err
	}
	return writeTag(w, tag, h.TagWidth)
}

// Len implements Header.
func (h LengthTag) Len(string) int64 {
	return int64(h.TagWidth + h.LengthWidth)
}

func readTag(c *binary.Cursor, width int) (string, error) {
	return c.ReadString(int64(width), "chunk tag")
}

func readLength(c *binary.Cursor, width int, order binary.Endianness) (int64, error) {
	switch width {
	case 2:
		v, err := binary.ReadEndian[uint16](c, "chunk length", order)
		return int64(v), err
	case 4:
		v, err := binary.ReadEndian[uint32](c, "chunk length", order)
		return int64(v), err
	default:
		panic(fmt.Sprintf("chunk: unsupported length width %d", width))
	}
}

func writeTag(w *binary.SafeWriter, tag string, width int) error {
	if len(tag) != width {
		return fmt.Errorf("tag %q is not %d bytes", tag, width)
	}
	return w.WriteString(tag)
}

func writeLength(w *binary.SafeWriter, length int64, width int, order binary.Endianness) error {
	switch width {
	case 2:
		if length > 0xFFFF {
			return fmt.Errorf("length %d does not fit in 16 bits", length)
		}
		return binary.WriteEndian(w, uint16(length), order)
	case 4:
		if length > 0xFFFFFFFF {
			return fmt.Errorf("length %d does not fit in 32 bits", length)
		}
		return binary.WriteEndian(w, uint32(length), order)
	default:
		return fmt.Errorf("unsupported length width %d", width)
	}
}

// PrintableTag reports whether every byte of tag is printable ASCII, which
// RIFF and PNG require of their four-character codes.
func PrintableTag(tag string) bool {
	for i := 0; i < len(tag); i++ {
		if tag[i] < 0x20 || tag[i] > 0x7E {
			return false
		}
	}
	return true
}

// tagError reports a malformed tag at the header offset.
func tagError(offset int64, tag, reason string) error {
	return &types.ParseError{
		Kind:   types.InvalidTag,
		Offset: offset,
		Tag:    tag,
		Reason: reason,
	}
}
