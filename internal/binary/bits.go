package binary

import (
	"fmt"
	"io"

	"github.com/CDRayn/binny/internal/types"
)

// BitReader reads MSB-first bit fields that are not byte aligned, such as
// MPEG audio frame headers.
type BitReader struct {
	r    io.ByteReader
	base int64 // stream offset of the first byte
	cur  byte  // byte currently being consumed
	left uint  // unread bits remaining in cur
	bits int64 // total bits consumed
}

// NewBitReader creates a BitReader over r. base is the stream offset of the
// first byte r will return, used to locate errors.
func NewBitReader(r io.ByteReader, base int64) *BitReader {
	return &BitReader{r: r, base: base}
}

// NewBitReaderBytes creates a BitReader over an in-memory buffer.
func NewBitReaderBytes(b []byte, base int64) *BitReader {
	return NewBitReader(&byteSlice{b: b}, base)
}

// ReadBits reads n bits (1 <= n <= 32) and returns them right-aligned.
//
// Widths outside that range fail with types.InvalidBitWidth without
// consuming anything.
func (br *BitReader) ReadBits(n int) (uint32, error) {
	if n < 1 || n > 32 {
		return 0, &types.ParseError{
			Kind:   types.InvalidBitWidth,
			Offset: br.Offset(),
			Reason: fmt.Sprintf("bit width %d outside 1..32", n),
		}
	}

	var v uint64
	need := uint(n)
	for need > 0 {
		if br.left == 0 {
			b, err := br.r.ReadByte()
			if err != nil {
				return 0, br.wrap(err)
			}
			br.cur = b
			br.left = 8
		}
		take := min(need, br.left)
		shift := br.left - take
		chunk := (uint64(br.cur) >> shift) & (1<<take - 1)
		v = v<<take | chunk
		br.left -= take
		need -= take
		br.bits += int64(take)
	}
	return uint32(v), nil
}

// ReadFlag reads a single bit as a bool.
func (br *BitReader) ReadFlag() (bool, error) {
	v, err := br.ReadBits(1)
	return v == 1, err
}

// ReadFields reads consecutive fields of the given widths.
func (br *BitReader) ReadFields(widths ...int) ([]uint32, error) {
	out := make([]uint32, len(widths))
	for i, w := range widths {
		v, err := br.ReadBits(w)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Align discards the unread bits of the current byte.
func (br *BitReader) Align() {
	br.bits += int64(br.left)
	br.left = 0
}

// BitPos returns the number of bits consumed.
func (br *BitReader) BitPos() int64 {
	return br.bits
}

// Offset returns the stream offset of the byte holding the next bit.
func (br *BitReader) Offset() int64 {
	return br.base + br.bits/8
}

func (br *BitReader) wrap(err error) error {
	if types.IsParseError(err) {
		return err
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &types.ParseError{
			Kind:   types.UnexpectedEOF,
			Offset: br.Offset(),
			Reason: "bit field runs past end of input",
		}
	}
	return &types.ParseError{
		Kind:   types.SourceError,
		Offset: br.Offset(),
		Err:    err,
	}
}

type byteSlice struct {
	b   []byte
	pos int
}

func (s *byteSlice) ReadByte() (byte, error) {
	if s.pos >= len(s.b) {
		return 0, io.EOF
	}
	b := s.b[s.pos]
	s.pos++
	return b, nil
}
