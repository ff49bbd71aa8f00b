package mp3

import (
	"bytes"
	"encoding/binary"
	"fmt"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

const (
	id3v2HeaderLen = 10
	id3v1Len       = 128

	flagUnsync   = 0x80
	flagExtended = 0x40
	flagFooter   = 0x10
)

// ID3v2 is the header and frame table of a leading ID3v2 tag. Frame
// contents are not interpreted.
type ID3v2 struct {
	Major    byte // 2, 3 or 4
	Revision byte
	Flags    byte
	Size     uint32 // tag body size, excluding header and footer
	Offset   int64
	Frames   []ID3Frame
}

// HasFooter reports whether a 10-byte footer follows the tag body.
func (t *ID3v2) HasFooter() bool {
	return t.Major == 4 && t.Flags&flagFooter != 0
}

// ID3Frame locates one frame inside an ID3v2 tag.
type ID3Frame struct {
	ID     string
	Size   uint32
	Flags  uint16
	Offset int64
}

// ID3v1 is the fixed 128-byte trailer tag.
type ID3v1 struct {
	Title   string
	Artist  string
	Album   string
	Year    string
	Comment string
	Track   uint8 // ID3v1.1 only, 0 if absent
	Genre   uint8
	Offset  int64
}

// decodeSynchsafe decodes a 28-bit synchsafe integer (7 bits per byte).
func decodeSynchsafe(b []byte) uint32 {
	return uint32(b[0]&0x7F)<<21 |
		uint32(b[1]&0x7F)<<14 |
		uint32(b[2]&0x7F)<<7 |
		uint32(b[3]&0x7F)
}

func synchsafe(b []byte) bool {
	for _, x := range b {
		if x&0x80 != 0 {
			return false
		}
	}
	return true
}

// readID3v2 consumes a whole ID3v2 tag at the cursor, which must start
// with "ID3".
func readID3v2(c *binutil.Cursor, maxLength int64) (*ID3v2, error) {
	at := c.Position()
	hdr, err := c.ReadExact(id3v2HeaderLen, "ID3v2 header")
	if err != nil {
		return nil, err
	}

	fieldErr := func(field, format string, args ...any) error {
		return &types.ParseError{
			Kind:   types.FieldOutOfRange,
			Offset: at,
			Tag:    "ID3",
			Field:  field,
			Reason: fmt.Sprintf(format, args...),
		}
	}

	t := &ID3v2{Major: hdr[3], Revision: hdr[4], Flags: hdr[5], Offset: at}
	switch {
	case t.Major < 2 || t.Major > 4:
		return nil, fieldErr("version", "ID3v2.%d is not defined", t.Major)
	case t.Revision == 0xFF:
		return nil, fieldErr("revision", "0xFF is not allowed")
	case !synchsafe(hdr[6:10]):
		return nil, fieldErr("size", "not a synchsafe integer: % x", hdr[6:10])
	}
	t.Size = decodeSynchsafe(hdr[6:10])

	if maxLength > 0 && int64(t.Size) > maxLength {
		return nil, &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: at + 6,
			Tag:    "ID3",
			Reason: fmt.Sprintf("tag size %d exceeds limit %d", t.Size, maxLength),
		}
	}

	bodyAt := c.Position()
	body, err := c.ReadExact(int64(t.Size), "ID3v2 body")
	if err != nil {
		return nil, withTag(err, "ID3")
	}

	if t.Flags&flagUnsync == 0 {
		if err := t.frames(body, bodyAt); err != nil {
			return nil, err
		}
	}

	if t.HasFooter() {
		if err := c.Expect([]byte("3DI"), "ID3v2 footer"); err != nil {
			return nil, err
		}
		if err := c.Skip(id3v2HeaderLen-3, "ID3v2 footer"); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// frames builds the frame table of an ID3v2.2-2.4 tag body. The walk stops
// at the first zero byte, which starts the padding.
func (t *ID3v2) frames(body []byte, base int64) error {
	idLen, sizeLen, hdrLen := 4, 4, 10
	if t.Major == 2 {
		idLen, sizeLen, hdrLen = 3, 3, 6
	}

	pos := 0
	if t.Flags&flagExtended != 0 && t.Major >= 3 {
		if len(body) < 4 {
			return &types.ParseError{Kind: types.LengthMismatch, Offset: base, Tag: "ID3", Reason: "extended header truncated"}
		}
		ext := int(binary.BigEndian.Uint32(body))
		if t.Major == 4 {
			ext = int(decodeSynchsafe(body)) // includes its own size field
		} else {
			ext += 4
		}
		if ext > len(body) {
			return &types.ParseError{Kind: types.LengthMismatch, Offset: base, Tag: "ID3", Reason: fmt.Sprintf("extended header of %d bytes overruns tag", ext)}
		}
		pos = ext
	}

	for pos+hdrLen <= len(body) && body[pos] != 0 {
		id := body[pos : pos+idLen]
		if !frameID(id) {
			return &types.ParseError{
				Kind:   types.InvalidTag,
				Offset: base + int64(pos),
				Tag:    "ID3",
				Reason: fmt.Sprintf("bad frame ID % x", id),
			}
		}

		raw := body[pos+idLen : pos+idLen+sizeLen]
		var size uint32
		switch t.Major {
		case 2:
			size = uint32(raw[0])<<16 | uint32(raw[1])<<8 | uint32(raw[2])
		case 3:
			size = binary.BigEndian.Uint32(raw)
		default:
			size = decodeSynchsafe(raw)
		}

		f := ID3Frame{ID: string(id), Size: size, Offset: base + int64(pos)}
		if t.Major >= 3 {
			f.Flags = binary.BigEndian.Uint16(body[pos+8:])
		}
		if int64(pos)+int64(hdrLen)+int64(size) > int64(len(body)) {
			return &types.ParseError{
				Kind:   types.LengthMismatch,
				Offset: f.Offset,
				Tag:    f.ID,
				Reason: fmt.Sprintf("frame of %d bytes overruns tag", size),
			}
		}
		t.Frames = append(t.Frames, f)
		pos += hdrLen + int(size)
	}
	return nil
}

func frameID(id []byte) bool {
	for _, b := range id {
		if (b < 'A' || b > 'Z') && (b < '0' || b > '9') {
			return false
		}
	}
	return true
}

// readID3v1 consumes the 128-byte trailer tag, which must start with "TAG".
func readID3v1(c *binutil.Cursor) (*ID3v1, error) {
	at := c.Position()
	b, err := c.ReadExact(id3v1Len, "ID3v1 tag")
	if err != nil {
		return nil, withTag(err, "TAG")
	}

	t := &ID3v1{
		Title:   field(b[3:33]),
		Artist:  field(b[33:63]),
		Album:   field(b[63:93]),
		Year:    field(b[93:97]),
		Comment: field(b[97:127]),
		Genre:   b[127],
		Offset:  at,
	}
	if b[125] == 0 && b[126] != 0 {
		t.Comment = field(b[97:125])
		t.Track = b[126]
	}
	return t, nil
}

// field trims NUL padding and trailing spaces from a fixed-width text field.
func field(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(bytes.TrimRight(b, " "))
}

func withTag(err error, tag string) error {
	if pe, ok := err.(*types.ParseError); ok && pe.Tag == "" {
		pe.Tag = tag
	}
	return err
}
