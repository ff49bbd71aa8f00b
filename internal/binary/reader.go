// Package binary provides bounds-checked sequential reading primitives over
// arbitrary byte sources.
package binary

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/CDRayn/binny/internal/types"
)

const (
	// PeekLimit is the largest lookahead Peek supports.
	PeekLimit = 64

	// growStep bounds the up-front allocation of a large read, so a lying
	// length field cannot allocate more than the source actually delivers.
	growStep = 64 << 10

	bufferSize = 32 << 10
)

// Cursor wraps an io.Reader with offset tracking, lookahead and bounds checking.
//
// Every read either advances the offset by exactly the bytes it returns or
// fails without moving it. Short input fails with types.UnexpectedEOF; any
// other failure of the underlying reader fails with types.SourceError.
type Cursor struct {
	r    *bufio.Reader
	off  int64
	size int64 // total stream length, -1 if unknown
}

// NewCursor creates a Cursor over r. size is the total stream length if
// known, or -1.
func NewCursor(r io.Reader, size int64) *Cursor {
	if size < 0 {
		size = -1
	}
	return &Cursor{
		r:    bufio.NewReaderSize(r, bufferSize),
		size: size,
	}
}

// NewBytesCursor creates a Cursor over an in-memory buffer of known length.
func NewBytesCursor(b []byte) *Cursor {
	return NewCursor(bytes.NewReader(b), int64(len(b)))
}

// Position returns the number of bytes consumed so far.
func (c *Cursor) Position() int64 {
	return c.off
}

// Remaining returns the number of unread bytes if the total length is known.
func (c *Cursor) Remaining() (int64, bool) {
	if c.size < 0 {
		return 0, false
	}
	return c.size - c.off, true
}

// Size returns the total stream length, or -1 if unknown.
func (c *Cursor) Size() int64 {
	return c.size
}

// check fails up front when the total length is known and n bytes are not there.
func (c *Cursor) check(n int64, what string) error {
	if n < 0 {
		return &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: c.off,
			Field:  what,
			Reason: fmt.Sprintf("negative length %d", n),
		}
	}
	if c.size >= 0 && c.off+n > c.size {
		return c.eof(what, n, c.size-c.off)
	}
	return nil
}

func (c *Cursor) eof(what string, want, got int64) error {
	return &types.ParseError{
		Kind:   types.UnexpectedEOF,
		Offset: c.off,
		Field:  what,
		Reason: fmt.Sprintf("need %d bytes, %d available", want, got),
	}
}

// fail classifies an error from the underlying reader.
func (c *Cursor) fail(err error, what string, want, got int64) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, bufio.ErrBufferFull) {
		return c.eof(what, want, got)
	}
	return &types.ParseError{
		Kind:   types.SourceError,
		Offset: c.off + got,
		Field:  what,
		Err:    err,
	}
}

// ReadExact reads exactly n bytes and returns them as an owned copy.
func (c *Cursor) ReadExact(n int64, what string) ([]byte, error) {
	if err := c.check(n, what); err != nil {
		return nil, err
	}
	if n <= growStep {
		buf := make([]byte, n)
		got, err := io.ReadFull(c.r, buf)
		if err != nil {
			return nil, c.fail(err, what, n, int64(got))
		}
		c.off += n
		return buf, nil
	}

	var buf bytes.Buffer
	buf.Grow(growStep)
	got, err := io.CopyN(&buf, c.r, n)
	if err != nil {
		return nil, c.fail(err, what, n, got)
	}
	c.off += n
	return buf.Bytes(), nil
}

// ReadInto fills b completely. It is ReadExact without the allocation.
func (c *Cursor) ReadInto(b []byte, what string) error {
	n := int64(len(b))
	if err := c.check(n, what); err != nil {
		return err
	}
	got, err := io.ReadFull(c.r, b)
	if err != nil {
		return c.fail(err, what, n, int64(got))
	}
	c.off += n
	return nil
}

// Peek returns the next n bytes without consuming them.
//
// The returned slice aliases the cursor's buffer and is only valid until the
// next call on the cursor. n must not exceed PeekLimit.
func (c *Cursor) Peek(n int, what string) ([]byte, error) {
	if n > PeekLimit {
		return nil, &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: c.off,
			Field:  what,
			Reason: fmt.Sprintf("peek of %d bytes exceeds limit %d", n, PeekLimit),
		}
	}
	if err := c.check(int64(n), what); err != nil {
		return nil, err
	}
	b, err := c.r.Peek(n)
	if err != nil {
		return nil, c.fail(err, what, int64(n), int64(len(b)))
	}
	return b, nil
}

// PeekUpTo returns up to n upcoming bytes without consuming them. A short
// result at end of stream is not an error.
func (c *Cursor) PeekUpTo(n int, what string) ([]byte, error) {
	if n > PeekLimit {
		n = PeekLimit
	}
	b, err := c.r.Peek(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, c.fail(err, what, int64(n), int64(len(b)))
	}
	return b, nil
}

// AtEOF reports whether the stream has no more bytes.
func (c *Cursor) AtEOF() (bool, error) {
	if c.size >= 0 {
		return c.off >= c.size, nil
	}
	_, err := c.r.Peek(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	if err != nil {
		return false, c.fail(err, "end of stream", 1, 0)
	}
	return false, nil
}

// Skip advances past n bytes without materializing them.
func (c *Cursor) Skip(n int64, what string) error {
	if err := c.check(n, what); err != nil {
		return err
	}
	got, err := c.r.Discard(int(n))
	if err != nil {
		return c.fail(err, what, n, int64(got))
	}
	c.off += n
	return nil
}

// ReadByte reads a single byte. It satisfies io.ByteReader so a BitReader
// can sit on top of a cursor.
func (c *Cursor) ReadByte() (byte, error) {
	if c.size >= 0 && c.off >= c.size {
		return 0, c.eof("byte", 1, 0)
	}
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, c.fail(err, "byte", 1, 0)
	}
	c.off++
	return b, nil
}

// ReadString reads n bytes as a string.
func (c *Cursor) ReadString(n int64, what string) (string, error) {
	b, err := c.ReadExact(n, what)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Expect consumes len(magic) bytes and fails with types.InvalidSignature if
// they differ from magic.
func (c *Cursor) Expect(magic []byte, what string) error {
	start := c.off
	got, err := c.ReadExact(int64(len(magic)), what)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, magic) {
		return &types.ParseError{
			Kind:   types.InvalidSignature,
			Offset: start,
			Field:  what,
			Reason: fmt.Sprintf("got % x, want % x", got, magic),
		}
	}
	return nil
}

// ReadRest reads everything up to the end of the stream as an owned copy.
func (c *Cursor) ReadRest(what string) ([]byte, error) {
	if n, ok := c.Remaining(); ok {
		return c.ReadExact(n, what)
	}
	var buf bytes.Buffer
	got, err := buf.ReadFrom(c.r)
	if err != nil {
		return nil, &types.ParseError{
			Kind:   types.SourceError,
			Offset: c.off + got,
			Field:  what,
			Err:    err,
		}
	}
	c.off += got
	return buf.Bytes(), nil
}
