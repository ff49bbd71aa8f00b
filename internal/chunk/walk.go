package chunk

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"log/slog"

	"github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

// scratchMax is the largest payload read into the walk's reusable buffer.
// Larger payloads get their own allocation.
const scratchMax = 64 << 10

// Checksum configures a per-chunk integrity field stored after the payload.
type Checksum struct {
	New      func() hash.Hash32
	Order    binary.Endianness
	CoverTag bool // whether the tag bytes precede the payload in the checksum
}

// CRC32 is the PNG chunk checksum: IEEE CRC-32 over tag and payload,
// stored big-endian.
var CRC32 = &Checksum{
	New:      crc32.NewIEEE,
	Order:    binary.BigEndian,
	CoverTag: true,
}

// Rules configure one container walk. They are plain data; each format
// parser builds its own.
type Rules struct {
	// Header decodes the framing in front of each payload.
	Header Header

	// Checksum, if set, is read after the payload and verified against the
	// bytes actually read.
	Checksum *Checksum

	// ValidateTag rejects malformed tags before the length is trusted.
	ValidateTag func(tag string) bool

	// Stop ends the walk after the chunk with this tag has been handled.
	Stop func(tag string) bool

	// Logger receives a debug record per chunk.
	Logger *slog.Logger

	Format types.Format

	// Align pads payloads to a multiple of Align bytes (RIFF uses 2).
	Align int64

	// MaxLength rejects larger declared payloads with LengthMismatch (0 = no cap).
	MaxLength int64

	// Limit is the byte budget of the walk, counted from where it starts, as
	// declared by an enclosing structure (-1 = unbounded). A walk that uses
	// the budget exactly ends cleanly.
	Limit int64

	// AllowEOF ends the walk cleanly when the stream ends between chunks.
	AllowEOF bool
}

// Raw is the transient view of one chunk handed to a Handler.
//
// Payload is borrowed from the walk's buffer and is only valid for the
// duration of the Handler call; copy anything that must outlive it.
type Raw struct {
	Tag           string
	Payload       []byte
	Offset        int64 // header offset
	PayloadOffset int64
}

// Field returns a FieldOutOfRange error located in this chunk.
func (r Raw) Field(field string, format string, args ...any) error {
	return &types.ParseError{
		Kind:   types.FieldOutOfRange,
		Offset: r.PayloadOffset,
		Tag:    r.Tag,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Error returns a ParseError of the given kind located at this chunk's header.
func (r Raw) Error(kind types.Kind, format string, args ...any) error {
	return &types.ParseError{
		Kind:   kind,
		Offset: r.Offset,
		Tag:    r.Tag,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Handler interprets one chunk. Returning an error aborts the walk.
type Handler func(raw Raw) error

// Walk runs the chunk loop over c and returns the validated layout.
//
// Each iteration reads a header, bounds the declared length, reads the
// payload, verifies the checksum, calls handle, skips alignment padding and
// evaluates the termination rules. The first failure aborts the walk with
// the cursor left at the point of failure.
func Walk(c *binary.Cursor, rules Rules, handle Handler) (types.Layout, error) {
	log := rules.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var (
		layout  types.Layout
		scratch []byte
		start   = c.Position()
	)

	for {
		pos := c.Position()

		if rules.Limit >= 0 {
			used := pos - start
			if used == rules.Limit {
				return layout, nil
			}
			if used > rules.Limit {
				return nil, &types.ParseError{
					Kind:   types.LengthMismatch,
					Offset: pos,
					Reason: fmt.Sprintf("chunks overran container by %d bytes", used-rules.Limit),
				}
			}
		}

		if rules.AllowEOF {
			eof, err := c.AtEOF()
			if err != nil {
				return nil, err
			}
			if eof {
				return layout, nil
			}
		}

		tag, length, err := rules.Header.Read(c)
		if err != nil {
			return nil, err
		}
		if rules.ValidateTag != nil && !rules.ValidateTag(tag) {
			return nil, tagError(pos, tag, "malformed chunk tag")
		}
		headerLen := c.Position() - pos

		if rules.MaxLength > 0 && length > rules.MaxLength {
			return nil, &types.ParseError{
				Kind:   types.LengthMismatch,
				Offset: pos,
				Tag:    tag,
				Reason: fmt.Sprintf("declared length %d exceeds limit %d", length, rules.MaxLength),
			}
		}

		var trailerLen, pad int64
		if rules.Checksum != nil {
			trailerLen = 4
		}
		if rules.Align > 1 && length%rules.Align != 0 {
			pad = rules.Align - length%rules.Align
		}

		if rules.Limit >= 0 {
			end := pos - start + headerLen + length + trailerLen + pad
			if end > rules.Limit {
				return nil, &types.ParseError{
					Kind:   types.LengthMismatch,
					Offset: pos,
					Tag:    tag,
					Reason: fmt.Sprintf("chunk of %d bytes extends %d bytes past its container", length, end-rules.Limit),
				}
			}
		}

		log.Debug("chunk",
			slog.String("format", rules.Format.String()),
			slog.String("tag", tag),
			slog.Int64("offset", pos),
			slog.Int64("length", length),
		)

		payloadOffset := c.Position()
		var payload []byte
		if length <= scratchMax {
			if int64(cap(scratch)) < length {
				scratch = make([]byte, length)
			}
			payload = scratch[:length]
			err = c.ReadInto(payload, "chunk payload")
		} else {
			payload, err = c.ReadExact(length, "chunk payload")
		}
		if err != nil {
			return nil, withTag(err, tag)
		}

		if rules.Checksum != nil {
			if err := verify(c, rules.Checksum, tag, payload); err != nil {
				return nil, err
			}
		}

		if err := handle(Raw{Tag: tag, Payload: payload, Offset: pos, PayloadOffset: payloadOffset}); err != nil {
			return nil, err
		}

		if pad > 0 {
			if err := c.Skip(pad, "chunk padding"); err != nil {
				return nil, withTag(err, tag)
			}
		}

		layout = append(layout, types.Chunk{
			Tag:        tag,
			Offset:     pos,
			HeaderLen:  headerLen,
			Length:     length,
			TrailerLen: trailerLen,
			Pad:        pad,
		})

		if rules.Stop != nil && rules.Stop(tag) {
			return layout, nil
		}
	}
}

// verify reads the stored checksum and compares it to one computed over the
// bytes just read.
func verify(c *binary.Cursor, sum *Checksum, tag string, payload []byte) error {
	at := c.Position()
	stored, err := binary.ReadEndian[uint32](c, "chunk checksum", sum.Order)
	if err != nil {
		return withTag(err, tag)
	}

	h := sum.New()
	if sum.CoverTag {
		_, _ = io.WriteString(h, tag)
	}
	_, _ = h.Write(payload)

	if got := h.Sum32(); got != stored {
		return &types.ParseError{
			Kind:   types.ChecksumMismatch,
			Offset: at,
			Tag:    tag,
			Reason: fmt.Sprintf("stored %08x, computed %08x", stored, got),
		}
	}
	return nil
}

// withTag attaches the chunk tag to a cursor error that has none.
func withTag(err error, tag string) error {
	if pe, ok := err.(*types.ParseError); ok && pe.Tag == "" {
		pe.Tag = tag
	}
	return err
}

// WriteFraming writes the header of every chunk in layout, in order,
// omitting payloads. Comparing the result against the header bytes of the
// original stream checks that the layout captured the framing exactly.
func WriteFraming(w io.Writer, h Header, layout types.Layout) error {
	sw := binary.NewSafeWriter(w)
	for _, ch := range layout {
		if err := h.Write(sw, ch.Tag, ch.Length); err != nil {
			return fmt.Errorf("write %q header: %w", ch.Tag, err)
		}
	}
	return nil
}
