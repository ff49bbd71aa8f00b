// Package png validates the chunk structure of PNG images.
package png

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/chunk"
	"github.com/CDRayn/binny/internal/types"
)

// Signature is the fixed 8-byte PNG magic.
var Signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// Colour types
const (
	ColorGrayscale      = 0
	ColorTruecolor      = 2
	ColorIndexed        = 3
	ColorGrayscaleAlpha = 4
	ColorTruecolorAlpha = 6
)

// maxLength is the largest chunk length PNG allows (2^31-1).
const maxLength = 1<<31 - 1

// allowedDepths maps colour type to its legal bit depths.
var allowedDepths = map[uint8][]uint8{
	ColorGrayscale:      {1, 2, 4, 8, 16},
	ColorTruecolor:      {8, 16},
	ColorIndexed:        {1, 2, 4, 8},
	ColorGrayscaleAlpha: {8, 16},
	ColorTruecolorAlpha: {8, 16},
}

// Header is the decoded IHDR chunk.
type Header struct {
	Width             uint32
	Height            uint32
	BitDepth          uint8
	ColorType         uint8
	CompressionMethod uint8
	FilterMethod      uint8
	InterlaceMethod   uint8
}

// Text is a tEXt keyword/value pair.
type Text struct {
	Keyword string
	Value   string
}

// File is the structural model of a PNG image.
type File struct {
	Header

	// Layout is every chunk in stream order, IHDR first and IEND last.
	Layout types.Layout

	// Palette holds the PLTE entries (RGB triples), if present.
	Palette []byte

	// Text lists tEXt chunks in order.
	Text []Text

	// Gamma is the gAMA value times 100000 (0 if absent).
	Gamma uint32

	// PixelsPerUnitX/Y and Unit come from pHYs (Unit 1 = metre).
	PixelsPerUnitX uint32
	PixelsPerUnitY uint32
	Unit           uint8

	// ImageDataLength is the total payload length of all IDAT chunks.
	ImageDataLength int64
}

// Format implements types.Model.
func (f *File) Format() types.Format { return types.FormatPNG }

// Chunks implements types.Model.
func (f *File) Chunks() types.Layout { return f.Layout }

// HeaderCodec is the PNG chunk framing: 4-byte big-endian length, then a
// 4-byte ASCII tag.
var HeaderCodec = chunk.LengthTag{TagWidth: 4, LengthWidth: 4, Order: binutil.BigEndian}

// Parse validates a PNG stream read from c.
func Parse(c *binutil.Cursor, opts types.Options) (*File, error) {
	opts = opts.Normalize()
	m := types.NewMachine(types.FormatPNG)

	if err := c.Expect(Signature, "PNG signature"); err != nil {
		return nil, m.Fail(err)
	}
	m.Advance(types.StateSignatureVerified)

	p := &walker{file: &File{}}
	rules := chunk.Rules{
		Format:      types.FormatPNG,
		Header:      HeaderCodec,
		Checksum:    chunk.CRC32,
		ValidateTag: validTag,
		MaxLength:   maxLength,
		Limit:       -1,
		AllowEOF:    true,
		Stop:        func(tag string) bool { return tag == "IEND" },
		Logger:      opts.Logger,
	}
	if opts.MaxChunkLength > 0 && opts.MaxChunkLength < maxLength {
		rules.MaxLength = opts.MaxChunkLength
	}

	m.Advance(types.StateBodyWalking)
	layout, err := chunk.Walk(c, rules, p.handle)
	if err != nil {
		return nil, m.Fail(err)
	}
	p.file.Layout = layout

	if err := p.finish(c.Position()); err != nil {
		return nil, m.Fail(err)
	}

	m.Advance(types.StateBodyComplete)
	return p.file, nil
}

// validTag accepts four ASCII letters, the only legal PNG chunk type bytes.
func validTag(tag string) bool {
	for i := 0; i < len(tag); i++ {
		ch := tag[i] | 0x20
		if ch < 'a' || ch > 'z' {
			return false
		}
	}
	return true
}

// critical reports whether a chunk type must be understood (uppercase first letter).
func critical(tag string) bool {
	return tag[0]&0x20 == 0
}

// walker carries ordering state across chunks.
type walker struct {
	file     *File
	seen     map[string]int
	last     string
	idatDone bool // an IDAT run has ended
}

func (p *walker) handle(raw chunk.Raw) error {
	if p.seen == nil {
		if raw.Tag != "IHDR" {
			return raw.Error(types.InvalidTag, "first chunk must be IHDR")
		}
		p.seen = map[string]int{}
	}
	p.seen[raw.Tag]++
	defer func() { p.last = raw.Tag }()

	if p.last == "IDAT" && raw.Tag != "IDAT" {
		p.idatDone = true
	}

	switch raw.Tag {
	case "IHDR":
		if p.seen["IHDR"] > 1 {
			return raw.Error(types.DuplicateMandatoryChunk, "IHDR appears more than once")
		}
		return p.header(raw)

	case "PLTE":
		if p.seen["PLTE"] > 1 {
			return raw.Error(types.DuplicateMandatoryChunk, "PLTE appears more than once")
		}
		if p.seen["IDAT"] > 0 {
			return raw.Error(types.InvalidTag, "PLTE after IDAT")
		}
		return p.palette(raw)

	case "IDAT":
		if p.idatDone {
			return raw.Error(types.InvalidTag, "IDAT chunks are not consecutive")
		}
		if p.file.ColorType == ColorIndexed && p.seen["PLTE"] == 0 {
			return raw.Error(types.MissingMandatoryChunk, "indexed image has no PLTE before IDAT")
		}
		p.file.ImageDataLength += int64(len(raw.Payload))
		return nil

	case "IEND":
		if len(raw.Payload) != 0 {
			return raw.Error(types.LengthMismatch, "IEND must be empty, has %d bytes", len(raw.Payload))
		}
		return nil

	case "tEXt":
		return p.text(raw)

	case "gAMA":
		if len(raw.Payload) != 4 {
			return raw.Error(types.LengthMismatch, "gAMA must be 4 bytes, has %d", len(raw.Payload))
		}
		p.file.Gamma = binary.BigEndian.Uint32(raw.Payload)
		return nil

	case "pHYs":
		if len(raw.Payload) != 9 {
			return raw.Error(types.LengthMismatch, "pHYs must be 9 bytes, has %d", len(raw.Payload))
		}
		p.file.PixelsPerUnitX = binary.BigEndian.Uint32(raw.Payload[0:4])
		p.file.PixelsPerUnitY = binary.BigEndian.Uint32(raw.Payload[4:8])
		p.file.Unit = raw.Payload[8]
		if p.file.Unit > 1 {
			return raw.Field("unit specifier", "got %d, want 0 or 1", p.file.Unit)
		}
		return nil

	default:
		if critical(raw.Tag) {
			return raw.Error(types.InvalidTag, "unknown critical chunk")
		}
		return nil
	}
}

func (p *walker) header(raw chunk.Raw) error {
	if len(raw.Payload) != 13 {
		return raw.Error(types.LengthMismatch, "IHDR must be 13 bytes, has %d", len(raw.Payload))
	}

	f := binutil.NewFields(raw.Payload, binutil.BigEndian)
	h := Header{
		Width:             binutil.Next[uint32](f),
		Height:            binutil.Next[uint32](f),
		BitDepth:          binutil.Next[uint8](f),
		ColorType:         binutil.Next[uint8](f),
		CompressionMethod: binutil.Next[uint8](f),
		FilterMethod:      binutil.Next[uint8](f),
		InterlaceMethod:   binutil.Next[uint8](f),
	}

	switch {
	case h.Width == 0 || h.Width > maxLength:
		return raw.Field("width", "%d outside 1..2^31-1", h.Width)
	case h.Height == 0 || h.Height > maxLength:
		return raw.Field("height", "%d outside 1..2^31-1", h.Height)
	}

	depths, ok := allowedDepths[h.ColorType]
	if !ok {
		return raw.Field("color type", "unknown color type %d", h.ColorType)
	}
	if !slices.Contains(depths, h.BitDepth) {
		return raw.Field("bit depth", "%d not allowed for color type %d", h.BitDepth, h.ColorType)
	}

	switch {
	case h.CompressionMethod != 0:
		return raw.Field("compression method", "got %d, want 0", h.CompressionMethod)
	case h.FilterMethod != 0:
		return raw.Field("filter method", "got %d, want 0", h.FilterMethod)
	case h.InterlaceMethod > 1:
		return raw.Field("interlace method", "got %d, want 0 or 1", h.InterlaceMethod)
	}

	p.file.Header = h
	return nil
}

func (p *walker) palette(raw chunk.Raw) error {
	ct := p.file.ColorType
	if ct == ColorGrayscale || ct == ColorGrayscaleAlpha {
		return raw.Error(types.InvalidTag, "PLTE not allowed for color type %d", ct)
	}

	n := len(raw.Payload)
	if n == 0 || n%3 != 0 {
		return raw.Error(types.LengthMismatch, "PLTE length %d is not a positive multiple of 3", n)
	}
	entries := n / 3
	if entries > 256 || (ct == ColorIndexed && entries > 1<<p.file.BitDepth) {
		return raw.Field("palette entries", "%d entries for bit depth %d", entries, p.file.BitDepth)
	}

	p.file.Palette = bytes.Clone(raw.Payload)
	return nil
}

func (p *walker) text(raw chunk.Raw) error {
	keyword, value, ok := bytes.Cut(raw.Payload, []byte{0})
	if !ok {
		return raw.Field("keyword", "missing null separator")
	}
	if len(keyword) == 0 || len(keyword) > 79 {
		return raw.Field("keyword", "length %d outside 1..79", len(keyword))
	}
	p.file.Text = append(p.file.Text, Text{Keyword: string(keyword), Value: string(value)})
	return nil
}

// finish applies the whole-file cardinality rules once the walk has ended.
func (p *walker) finish(at int64) error {
	if p.seen == nil {
		return &types.ParseError{
			Kind:   types.MissingMandatoryChunk,
			Offset: at,
			Tag:    "IHDR",
			Reason: "no chunks after signature",
		}
	}
	if p.last != "IEND" {
		return &types.ParseError{
			Kind:   types.MissingMandatoryChunk,
			Offset: at,
			Tag:    "IEND",
			Reason: fmt.Sprintf("stream ended after %s", p.last),
		}
	}
	return nil
}

// String returns a one-line summary of the header.
func (h Header) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%dx%d depth=%d color=%d", h.Width, h.Height, h.BitDepth, h.ColorType)
	if h.InterlaceMethod == 1 {
		b.WriteString(" interlaced")
	}
	return b.String()
}
