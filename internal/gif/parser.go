// Package gif validates the block structure of GIF87a and GIF89a images.
//
// Image data is walked sub-block by sub-block to find where it ends but is
// never LZW-decoded.
package gif

import (
	"fmt"
	"log/slog"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/chunk"
	"github.com/CDRayn/binny/internal/types"
)

// Signatures
var (
	Magic87a = []byte("GIF87a")
	Magic89a = []byte("GIF89a")
)

// Block introducers and extension labels
const (
	introExtension = 0x21
	introImage     = 0x2C
	introTrailer   = 0x3B

	labelPlainText      = 0x01
	labelGraphicControl = 0xF9
	labelComment        = 0xFE
	labelApplication    = 0xFF
)

const (
	screenLen     = 7
	descriptorLen = 9
	colorTableBit = 0x80
)

var extensionNames = map[byte]string{
	labelPlainText:      "PlainText",
	labelGraphicControl: "GraphicControl",
	labelComment:        "Comment",
	labelApplication:    "Application",
}

// ExtensionName returns the layout tag for an extension label.
func ExtensionName(label byte) string {
	if name, ok := extensionNames[label]; ok {
		return name
	}
	return fmt.Sprintf("Extension%02X", label)
}

// Screen is the logical screen descriptor.
type Screen struct {
	Width           uint16
	Height          uint16
	ColorResolution uint8 // bits per primary colour
	Sorted          bool
	ColorTableSize  int // entries in the global colour table, 0 if absent
	Background      uint8
	AspectRatio     uint8
}

// GraphicControl is a graphic control extension.
type GraphicControl struct {
	Disposal         uint8
	UserInput        bool
	Delay            uint16 // hundredths of a second
	Transparent      bool
	TransparentIndex uint8
}

// Image is one image descriptor with its table-based image data.
type Image struct {
	Left, Top      uint16
	Width, Height  uint16
	Interlaced     bool
	Sorted         bool
	ColorTableSize int // entries in the local colour table, 0 if absent
	LZWMinCodeSize uint8

	// Control is the graphic control extension that preceded the image, if any.
	Control *GraphicControl

	Offset     int64
	DataOffset int64
	DataLength int64 // sum of sub-block payloads
}

// Extension records an extension block.
type Extension struct {
	Label  byte
	Offset int64
	// Application identifier and authentication code for application
	// extensions ("NETSCAPE2.0").
	Application string
}

// File is the structural model of a GIF image.
type File struct {
	Version string // "87a" or "89a"
	Screen  Screen

	// GlobalColorTable is an owned copy of the RGB triplets.
	GlobalColorTable []byte

	// Layout lists the top-level blocks in stream order.
	Layout types.Layout

	Images     []Image
	Extensions []Extension
	Comments   []string
	// LoopCount is the NETSCAPE2.0 repeat count, -1 if absent.
	LoopCount int
}

// Format implements types.Model.
func (f *File) Format() types.Format { return types.FormatGIF }

// Chunks implements types.Model.
func (f *File) Chunks() types.Layout { return f.Layout }

// Parse validates a GIF stream read from c.
func Parse(c *binutil.Cursor, opts types.Options) (*File, error) {
	opts = opts.Normalize()
	m := types.NewMachine(types.FormatGIF)
	p := &walker{file: &File{LoopCount: -1}, opts: opts}

	if err := p.header(c); err != nil {
		return nil, m.Fail(err)
	}
	m.Advance(types.StateSignatureVerified)

	if err := p.screen(c); err != nil {
		return nil, m.Fail(err)
	}

	m.Advance(types.StateBodyWalking)
	if err := p.blocks(c); err != nil {
		return nil, m.Fail(err)
	}

	m.Advance(types.StateBodyComplete)
	return p.file, nil
}

type walker struct {
	file    *File
	opts    types.Options
	control *GraphicControl
}

func (p *walker) header(c *binutil.Cursor) error {
	at := c.Position()
	sig, err := c.ReadExact(6, "GIF signature")
	if err != nil {
		return err
	}
	switch string(sig) {
	case string(Magic87a), string(Magic89a):
		p.file.Version = string(sig[3:])
		return nil
	}
	return &types.ParseError{
		Kind:   types.InvalidSignature,
		Offset: at,
		Reason: fmt.Sprintf("got %q, want GIF87a or GIF89a", sig),
	}
}

func (p *walker) screen(c *binutil.Cursor) error {
	at := c.Position()
	b := make([]byte, screenLen)
	if err := c.ReadInto(b, "logical screen descriptor"); err != nil {
		return err
	}
	f := binutil.NewFields(b, binutil.LittleEndian)
	s := Screen{
		Width:  binutil.Next[uint16](f),
		Height: binutil.Next[uint16](f),
	}
	packed := binutil.Next[uint8](f)
	s.ColorResolution = (packed>>4)&0x07 + 1
	s.Sorted = packed&0x08 != 0
	s.Background = binutil.Next[uint8](f)
	s.AspectRatio = binutil.Next[uint8](f)

	ch := types.Chunk{Tag: "LogicalScreen", Offset: at, HeaderLen: screenLen}
	if packed&colorTableBit != 0 {
		s.ColorTableSize = tableSize(packed)
		table, err := c.ReadExact(int64(3*s.ColorTableSize), "global colour table")
		if err != nil {
			return err
		}
		p.file.GlobalColorTable = table
		ch.Length = int64(len(table))
	}
	p.file.Screen = s
	p.file.Layout = append(p.file.Layout, ch)
	return nil
}

// tableSize decodes the 3-bit colour table size field.
func tableSize(packed uint8) int {
	return 1 << (packed&0x07 + 1)
}

func (p *walker) blocks(c *binutil.Cursor) error {
	for {
		at := c.Position()
		intro, err := c.ReadByte()
		if err != nil {
			return err
		}

		switch intro {
		case introExtension:
			err = p.extension(c, at)
		case introImage:
			err = p.image(c, at)
		case introTrailer:
			p.file.Layout = append(p.file.Layout, types.Chunk{Tag: "Trailer", Offset: at, HeaderLen: 1})
			if len(p.file.Images) == 0 {
				return &types.ParseError{
					Kind:   types.MissingMandatoryChunk,
					Offset: at,
					Tag:    "Image",
					Reason: "trailer before any image",
				}
			}
			return nil
		default:
			return &types.ParseError{
				Kind:   types.InvalidTag,
				Offset: at,
				Reason: fmt.Sprintf("unknown block introducer 0x%02X", intro),
			}
		}
		if err != nil {
			return err
		}

		last := p.file.Layout[len(p.file.Layout)-1]
		p.opts.Logger.Debug("block",
			slog.String("format", types.FormatGIF.String()),
			slog.String("tag", last.Tag),
			slog.Int64("offset", last.Offset),
			slog.Int64("length", last.Length),
		)
	}
}

func (p *walker) extension(c *binutil.Cursor, at int64) error {
	label, err := c.ReadByte()
	if err != nil {
		return err
	}
	tag := ExtensionName(label)
	ext := Extension{Label: label, Offset: at}

	var comment []byte
	chain, err := subBlocks(c, p.opts, func(i int, raw chunk.Raw) error {
		raw.Tag = tag
		switch label {
		case labelGraphicControl:
			if i > 0 {
				return raw.Error(types.LengthMismatch, "graphic control extension has more than one sub-block")
			}
			return p.graphicControl(raw)
		case labelApplication:
			if i == 0 {
				if len(raw.Payload) != 11 {
					return raw.Error(types.LengthMismatch, "application identifier block must be 11 bytes, has %d", len(raw.Payload))
				}
				ext.Application = string(raw.Payload)
			} else if i == 1 && ext.Application == "NETSCAPE2.0" && len(raw.Payload) == 3 && raw.Payload[0] == 1 {
				p.file.LoopCount = int(binutil.Decode[uint16](raw.Payload[1:], binutil.LittleEndian))
			}
		case labelPlainText:
			if i == 0 && len(raw.Payload) != 12 {
				return raw.Error(types.LengthMismatch, "plain text header must be 12 bytes, has %d", len(raw.Payload))
			}
		case labelComment:
			comment = append(comment, raw.Payload...)
		}
		return nil
	})
	if err != nil {
		return withTag(err, tag)
	}

	if label == labelPlainText {
		// a graphic control extension applies to the next graphic rendering block
		p.control = nil
	}
	if label == labelComment {
		p.file.Comments = append(p.file.Comments, string(comment))
	}
	p.file.Extensions = append(p.file.Extensions, ext)
	p.file.Layout = append(p.file.Layout, types.Chunk{Tag: tag, Offset: at, HeaderLen: 2, Length: chainLength(chain)})
	return nil
}

func (p *walker) graphicControl(raw chunk.Raw) error {
	if len(raw.Payload) != 4 {
		return raw.Error(types.LengthMismatch, "graphic control block must be 4 bytes, has %d", len(raw.Payload))
	}
	packed := raw.Payload[0]
	gc := &GraphicControl{
		Disposal:         (packed >> 2) & 0x07,
		UserInput:        packed&0x02 != 0,
		Transparent:      packed&0x01 != 0,
		Delay:            binutil.Decode[uint16](raw.Payload[1:], binutil.LittleEndian),
		TransparentIndex: raw.Payload[3],
	}
	if gc.Disposal > 3 {
		return raw.Field("disposal method", "%d is reserved", gc.Disposal)
	}
	p.control = gc
	return nil
}

func (p *walker) image(c *binutil.Cursor, at int64) error {
	b := make([]byte, descriptorLen)
	if err := c.ReadInto(b, "image descriptor"); err != nil {
		return withTag(err, "Image")
	}
	f := binutil.NewFields(b, binutil.LittleEndian)
	img := Image{
		Left:    binutil.Next[uint16](f),
		Top:     binutil.Next[uint16](f),
		Width:   binutil.Next[uint16](f),
		Height:  binutil.Next[uint16](f),
		Offset:  at,
		Control: p.control,
	}
	packed := binutil.Next[uint8](f)
	img.Interlaced = packed&0x40 != 0
	img.Sorted = packed&0x20 != 0
	p.control = nil

	if packed&colorTableBit != 0 {
		img.ColorTableSize = tableSize(packed)
		if err := c.Skip(int64(3*img.ColorTableSize), "local colour table"); err != nil {
			return withTag(err, "Image")
		}
	} else if p.file.GlobalColorTable == nil {
		return &types.ParseError{
			Kind:   types.MissingMandatoryChunk,
			Offset: at,
			Tag:    "Image",
			Reason: "image has no local colour table and the stream has no global one",
		}
	}

	codeAt := c.Position()
	code, err := c.ReadByte()
	if err != nil {
		return withTag(err, "Image")
	}
	if code < 2 || code > 8 {
		return &types.ParseError{
			Kind:   types.FieldOutOfRange,
			Offset: codeAt,
			Tag:    "Image",
			Field:  "LZW minimum code size",
			Reason: fmt.Sprintf("%d outside 2..8", code),
		}
	}
	img.LZWMinCodeSize = code
	img.DataOffset = c.Position()

	chain, err := subBlocks(c, p.opts, nil)
	if err != nil {
		return withTag(err, "Image")
	}
	for _, ch := range chain {
		img.DataLength += ch.Length
	}
	if img.DataLength == 0 {
		return &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: img.DataOffset,
			Tag:    "Image",
			Reason: "image has no data sub-blocks",
		}
	}

	p.file.Images = append(p.file.Images, img)
	p.file.Layout = append(p.file.Layout, types.Chunk{
		Tag:       "Image",
		Offset:    at,
		HeaderLen: img.DataOffset - at,
		Length:    chainLength(chain),
	})
	return nil
}

func withTag(err error, tag string) error {
	if pe, ok := err.(*types.ParseError); ok && (pe.Tag == "" || pe.Tag == tagSub || pe.Tag == tagTerminator) {
		pe.Tag = tag
	}
	return err
}
