// Package bmp validates Windows bitmap files: the file header, one of the
// DIB header revisions, optional bit masks and palette, and the extent of
// the pixel array.
package bmp

import (
	"fmt"
	"log/slog"
	"slices"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

// Magic is the file type field of every bitmap file.
var Magic = []byte("BM")

const fileHeaderLen = 14

// DIB header sizes
const (
	CoreHeader = 12  // BITMAPCOREHEADER
	InfoHeader = 40  // BITMAPINFOHEADER
	V2Header   = 52  // BITMAPV2INFOHEADER
	V3Header   = 56  // BITMAPV3INFOHEADER
	V4Header   = 108 // BITMAPV4HEADER
	V5Header   = 124 // BITMAPV5HEADER
)

var headerSizes = []uint32{CoreHeader, InfoHeader, V2Header, V3Header, V4Header, V5Header}

// Compression methods
const (
	CompressionRGB = iota
	CompressionRLE8
	CompressionRLE4
	CompressionBitfields
	CompressionJPEG
	CompressionPNG
	CompressionAlphaBitfields
)

var compressionNames = [...]string{"RGB", "RLE8", "RLE4", "BITFIELDS", "JPEG", "PNG", "ALPHABITFIELDS"}

var bitCounts = []uint16{1, 4, 8, 16, 24, 32}

// Header is the decoded DIB header.
type Header struct {
	Size        uint32
	Width       int32
	Height      int32 // negative for top-down rows
	Planes      uint16
	BitCount    uint16
	Compression uint32
	ImageSize   uint32
	XPelsPerM   int32
	YPelsPerM   int32
	ColorsUsed  uint32
	Important   uint32

	// Channel masks, from the header itself (V2 and later) or from the
	// fields that follow an INFO header with BITFIELDS compression.
	RedMask, GreenMask, BlueMask, AlphaMask uint32
}

// TopDown reports whether rows are stored top row first.
func (h *Header) TopDown() bool { return h.Height < 0 }

// CompressionName returns the name of the compression method.
func (h *Header) CompressionName() string {
	if int(h.Compression) < len(compressionNames) {
		return compressionNames[h.Compression]
	}
	return fmt.Sprintf("Compression(%d)", h.Compression)
}

// File is the structural model of a bitmap file.
type File struct {
	Header

	// FileSize is the size recorded in the file header (0 if unset).
	FileSize    uint32
	PixelOffset uint32

	Layout types.Layout

	// Palette holds the colour table entries as stored (BGR or BGRX).
	Palette []byte
	// Pixels is an owned copy of the pixel array.
	Pixels []byte
}

// Format implements types.Model.
func (f *File) Format() types.Format { return types.FormatBMP }

// Chunks implements types.Model.
func (f *File) Chunks() types.Layout { return f.Layout }

// Parse validates a bitmap file read from c.
func Parse(c *binutil.Cursor, opts types.Options) (*File, error) {
	opts = opts.Normalize()
	m := types.NewMachine(types.FormatBMP)
	p := &walker{file: &File{}, opts: opts}

	if err := p.fileHeader(c); err != nil {
		return nil, m.Fail(err)
	}
	m.Advance(types.StateSignatureVerified)

	m.Advance(types.StateBodyWalking)
	for _, step := range []func(*binutil.Cursor) error{p.dib, p.masks, p.palette, p.pixels} {
		if err := step(c); err != nil {
			return nil, m.Fail(err)
		}
	}
	for _, ch := range p.file.Layout {
		opts.Logger.Debug("chunk",
			slog.String("format", types.FormatBMP.String()),
			slog.String("tag", ch.Tag),
			slog.Int64("offset", ch.Offset),
			slog.Int64("length", ch.Length),
		)
	}

	m.Advance(types.StateBodyComplete)
	return p.file, nil
}

type walker struct {
	file *File
	opts types.Options
}

func (p *walker) add(tag string, at, headerLen, length int64) {
	p.file.Layout = append(p.file.Layout, types.Chunk{Tag: tag, Offset: at, HeaderLen: headerLen, Length: length})
}

func fieldErr(at int64, tag, field, format string, args ...any) error {
	return &types.ParseError{
		Kind:   types.FieldOutOfRange,
		Offset: at,
		Tag:    tag,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

func (p *walker) fileHeader(c *binutil.Cursor) error {
	at := c.Position()
	if err := c.Expect(Magic, "bitmap signature"); err != nil {
		return err
	}
	b := make([]byte, fileHeaderLen-2)
	if err := c.ReadInto(b, "bitmap file header"); err != nil {
		return err
	}
	f := binutil.NewFields(b, binutil.LittleEndian)
	p.file.FileSize = binutil.Next[uint32](f)
	f.Skip(4) // reserved
	p.file.PixelOffset = binutil.Next[uint32](f)

	if total := c.Size(); total >= 0 && int64(p.file.FileSize) > total {
		return &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: at + 2,
			Tag:    "FileHeader",
			Reason: fmt.Sprintf("file header declares %d bytes, stream has %d", p.file.FileSize, total),
		}
	}
	p.add("FileHeader", at, fileHeaderLen, 0)
	return nil
}

func (p *walker) dib(c *binutil.Cursor) error {
	at := c.Position()
	size, err := binutil.ReadLE[uint32](c, "DIB header size")
	if err != nil {
		return err
	}
	if !slices.Contains(headerSizes, size) {
		return fieldErr(at, "DIB", "header size", "%d is not a known DIB header size", size)
	}
	b := make([]byte, size-4)
	if err := c.ReadInto(b, "DIB header"); err != nil {
		return err
	}

	h := &p.file.Header
	h.Size = size
	f := binutil.NewFields(b, binutil.LittleEndian)
	if size == CoreHeader {
		h.Width = int32(binutil.Next[uint16](f))
		h.Height = int32(binutil.Next[uint16](f))
		h.Planes = binutil.Next[uint16](f)
		h.BitCount = binutil.Next[uint16](f)
	} else {
		h.Width = int32(binutil.Next[uint32](f))
		h.Height = int32(binutil.Next[uint32](f))
		h.Planes = binutil.Next[uint16](f)
		h.BitCount = binutil.Next[uint16](f)
		h.Compression = binutil.Next[uint32](f)
		h.ImageSize = binutil.Next[uint32](f)
		h.XPelsPerM = int32(binutil.Next[uint32](f))
		h.YPelsPerM = int32(binutil.Next[uint32](f))
		h.ColorsUsed = binutil.Next[uint32](f)
		h.Important = binutil.Next[uint32](f)
		if size >= V2Header {
			h.RedMask = binutil.Next[uint32](f)
			h.GreenMask = binutil.Next[uint32](f)
			h.BlueMask = binutil.Next[uint32](f)
		}
		if size >= V3Header {
			h.AlphaMask = binutil.Next[uint32](f)
		}
	}

	field := func(name, format string, args ...any) error {
		return fieldErr(at, "DIB", name, format, args...)
	}
	compressed := h.Compression == CompressionJPEG || h.Compression == CompressionPNG
	switch {
	case h.Width <= 0:
		return field("width", "%d must be positive", h.Width)
	case h.Height == 0:
		return field("height", "must be non-zero")
	case h.Planes != 1:
		return field("planes", "%d, want 1", h.Planes)
	case h.Compression > CompressionAlphaBitfields:
		return field("compression", "%d outside 0..6", h.Compression)
	case !slices.Contains(bitCounts, h.BitCount) && !(compressed && h.BitCount == 0):
		return field("bits per pixel", "%d not in {1, 4, 8, 16, 24, 32}", h.BitCount)
	case h.Compression == CompressionRLE8 && h.BitCount != 8:
		return field("compression", "RLE8 requires 8 bits per pixel, have %d", h.BitCount)
	case h.Compression == CompressionRLE4 && h.BitCount != 4:
		return field("compression", "RLE4 requires 4 bits per pixel, have %d", h.BitCount)
	case (h.Compression == CompressionBitfields || h.Compression == CompressionAlphaBitfields) && h.BitCount != 16 && h.BitCount != 32:
		return field("compression", "%s requires 16 or 32 bits per pixel, have %d", h.CompressionName(), h.BitCount)
	case h.TopDown() && (h.Compression == CompressionRLE8 || h.Compression == CompressionRLE4):
		return field("height", "run-length encoded bitmaps cannot be top-down")
	case h.BitCount > 0 && h.BitCount <= 8 && h.ColorsUsed > 1<<h.BitCount:
		return field("colors used", "%d exceeds %d for %d bits per pixel", h.ColorsUsed, 1<<h.BitCount, h.BitCount)
	}

	p.add("DIB", at, 4, int64(size-4))
	return nil
}

// masks reads the channel masks that follow an INFO header when the
// compression method says they are present.
func (p *walker) masks(c *binutil.Cursor) error {
	h := &p.file.Header
	if h.Size != InfoHeader {
		return nil
	}
	var n int
	switch h.Compression {
	case CompressionBitfields:
		n = 3
	case CompressionAlphaBitfields:
		n = 4
	default:
		return nil
	}
	at := c.Position()
	b := make([]byte, 4*n)
	if err := c.ReadInto(b, "channel masks"); err != nil {
		return err
	}
	f := binutil.NewFields(b, binutil.LittleEndian)
	h.RedMask = binutil.Next[uint32](f)
	h.GreenMask = binutil.Next[uint32](f)
	h.BlueMask = binutil.Next[uint32](f)
	if n == 4 {
		h.AlphaMask = binutil.Next[uint32](f)
	}
	p.add("Masks", at, 0, int64(len(b)))
	return nil
}

func (p *walker) palette(c *binutil.Cursor) error {
	h := &p.file.Header
	entries := int64(h.ColorsUsed)
	if entries == 0 && h.BitCount > 0 && h.BitCount <= 8 {
		entries = 1 << h.BitCount
	}
	if entries == 0 {
		return nil
	}
	entrySize := int64(4)
	if h.Size == CoreHeader {
		entrySize = 3
	}

	at := c.Position()
	n := entries * entrySize
	if end := at + n; end > int64(p.file.PixelOffset) {
		return fieldErr(fileHeaderLen-4, "FileHeader", "pixel offset",
			"%d falls inside the headers and palette, which end at %d", p.file.PixelOffset, end)
	}
	table, err := c.ReadExact(n, "colour table")
	if err != nil {
		return err
	}
	p.file.Palette = table
	p.add("Palette", at, 0, n)
	return nil
}

// rowSize returns the stride of an uncompressed row, padded to 4 bytes.
func (h *Header) rowSize() int64 {
	return (int64(h.BitCount)*int64(h.Width) + 31) / 32 * 4
}

func (p *walker) pixels(c *binutil.Cursor) error {
	h := &p.file.Header
	at := c.Position()
	if int64(p.file.PixelOffset) < at {
		return fieldErr(fileHeaderLen-4, "FileHeader", "pixel offset",
			"%d falls inside the headers, which end at %d", p.file.PixelOffset, at)
	}
	if gap := int64(p.file.PixelOffset) - at; gap > 0 {
		if err := c.Skip(gap, "gap before pixel array"); err != nil {
			return err
		}
	}
	at = c.Position()

	var (
		data []byte
		err  error
	)
	switch h.Compression {
	case CompressionRGB, CompressionBitfields, CompressionAlphaBitfields:
		height := int64(h.Height)
		if height < 0 {
			height = -height
		}
		want := h.rowSize() * height
		if h.ImageSize != 0 && int64(h.ImageSize) < want {
			return fieldErr(at, "DIB", "image size", "%d is smaller than the %d bytes the dimensions need", h.ImageSize, want)
		}
		if p.opts.MaxChunkLength > 0 && want > p.opts.MaxChunkLength {
			return &types.ParseError{
				Kind:   types.LengthMismatch,
				Offset: at,
				Tag:    "Pixels",
				Reason: fmt.Sprintf("pixel array of %d bytes exceeds limit %d", want, p.opts.MaxChunkLength),
			}
		}
		data, err = c.ReadExact(want, "pixel array")
	default:
		if h.ImageSize != 0 {
			data, err = c.ReadExact(int64(h.ImageSize), "pixel array")
		} else {
			data, err = c.ReadRest("pixel array")
		}
	}
	if err != nil {
		return withTag(err, "Pixels")
	}
	p.file.Pixels = data
	p.add("Pixels", at, 0, int64(len(data)))
	return nil
}

func withTag(err error, tag string) error {
	if pe, ok := err.(*types.ParseError); ok && pe.Tag == "" {
		pe.Tag = tag
	}
	return err
}
