// Package vorbis validates the structure of Vorbis comment blocks, the
// "KEY=VALUE" metadata that FLAC carries in its VORBIS_COMMENT block.
package vorbis

import (
	"fmt"
	"strings"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

// Comment is one field of a comment block.
type Comment struct {
	Key   string
	Value string
}

// Block is a decoded Vorbis comment block.
type Block struct {
	Vendor   string
	Comments []Comment
}

// Get returns the values for key, compared case-insensitively.
func (b *Block) Get(key string) []string {
	var out []string
	for _, c := range b.Comments {
		if strings.EqualFold(c.Key, key) {
			out = append(out, c.Value)
		}
	}
	return out
}

// Parse decodes a comment block held in p. base is the stream offset of
// p[0]; errors are located relative to it.
//
// Lengths are little-endian 32-bit values. A length that runs past the end
// of p fails with types.LengthMismatch; a field without '=' or with a key
// outside 0x20..0x7D fails with types.FieldOutOfRange.
func Parse(p []byte, base int64) (*Block, error) {
	c := binutil.NewBytesCursor(p)
	rebase := func(err error) error {
		if pe, ok := err.(*types.ParseError); ok {
			pe.Offset += base
			if pe.Kind == types.UnexpectedEOF {
				pe.Kind = types.LengthMismatch
			}
		}
		return err
	}

	vendor, err := readString(c, "vendor string")
	if err != nil {
		return nil, rebase(err)
	}
	count, err := binutil.ReadLE[uint32](c, "comment count")
	if err != nil {
		return nil, rebase(err)
	}
	if remaining, _ := c.Remaining(); int64(count)*4 > remaining {
		return nil, rebase(&types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: c.Position() - 4,
			Field:  "comment count",
			Reason: fmt.Sprintf("%d comments cannot fit in %d bytes", count, remaining),
		})
	}

	b := &Block{Vendor: vendor, Comments: make([]Comment, 0, count)}
	for i := uint32(0); i < count; i++ {
		at := c.Position()
		s, err := readString(c, "comment")
		if err != nil {
			return nil, rebase(err)
		}
		key, value, ok := strings.Cut(s, "=")
		if !ok || !validKey(key) {
			return nil, rebase(&types.ParseError{
				Kind:   types.FieldOutOfRange,
				Offset: at,
				Field:  "comment",
				Reason: fmt.Sprintf("comment %d is not KEY=VALUE", i),
			})
		}
		b.Comments = append(b.Comments, Comment{Key: key, Value: value})
	}
	return b, nil
}

func readString(c *binutil.Cursor, what string) (string, error) {
	n, err := binutil.ReadLE[uint32](c, what+" length")
	if err != nil {
		return "", err
	}
	return c.ReadString(int64(n), what)
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x20 || key[i] > 0x7D || key[i] == '=' {
			return false
		}
	}
	return true
}
