// Package wav validates RIFF/WAVE audio containers.
package wav

import (
	"bytes"
	"fmt"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/chunk"
	"github.com/CDRayn/binny/internal/types"
)

// Audio format codes accepted in the fmt chunk
const (
	FormatPCM        = 0x0001
	FormatADPCM      = 0x0002
	FormatFloat      = 0x0003
	FormatALaw       = 0x0006
	FormatMuLaw      = 0x0007
	FormatIMAADPCM   = 0x0011
	FormatExtensible = 0xFFFE
)

var formatNames = map[uint16]string{
	FormatPCM:        "PCM",
	FormatADPCM:      "MS ADPCM",
	FormatFloat:      "IEEE float",
	FormatALaw:       "A-law",
	FormatMuLaw:      "mu-law",
	FormatIMAADPCM:   "IMA ADPCM",
	FormatExtensible: "extensible",
}

const (
	maxChannels = 256
	fmtMinLen   = 16
	extMinLen   = 40 // fmt length when cbSize covers the extensible fields
	extCbSize   = 22
)

// HeaderCodec is the RIFF chunk framing: 4-byte tag, then a 4-byte
// little-endian length.
var HeaderCodec = chunk.TagLength{TagWidth: 4, LengthWidth: 4, Order: binutil.LittleEndian}

// Fmt is the decoded fmt chunk.
type Fmt struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16

	// Extensible is set for WAVE_FORMAT_EXTENSIBLE.
	Extensible *Extensible
}

// Extensible holds the WAVE_FORMAT_EXTENSIBLE tail of the fmt chunk.
type Extensible struct {
	ValidBitsPerSample uint16
	ChannelMask        uint32
	SubFormat          [16]byte
}

// SubFormatCode returns the audio format code embedded in the sub-format GUID.
func (e *Extensible) SubFormatCode() uint16 {
	return uint16(e.SubFormat[0]) | uint16(e.SubFormat[1])<<8
}

// InfoEntry is one sub-chunk of a LIST/INFO chunk.
type InfoEntry struct {
	ID    string
	Value string
}

// File is the structural model of a WAV file.
type File struct {
	Fmt

	// RIFFSize is the size field of the RIFF header.
	RIFFSize uint32

	// Layout lists the chunks inside the RIFF body in stream order.
	Layout types.Layout

	// Data is an owned copy of the data chunk payload.
	Data       []byte
	DataOffset int64

	// SampleFrames comes from the fact chunk; HasFact reports its presence.
	SampleFrames uint32
	HasFact      bool

	Info []InfoEntry
}

// Format implements types.Model.
func (f *File) Format() types.Format { return types.FormatWAV }

// Chunks implements types.Model.
func (f *File) Chunks() types.Layout { return f.Layout }

// FormatName returns a readable name for the audio format code.
func (f Fmt) FormatName() string {
	if name, ok := formatNames[f.AudioFormat]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", f.AudioFormat)
}

// Parse validates a RIFF/WAVE stream read from c.
func Parse(c *binutil.Cursor, opts types.Options) (*File, error) {
	opts = opts.Normalize()
	m := types.NewMachine(types.FormatWAV)

	size, err := signature(c)
	if err != nil {
		return nil, m.Fail(err)
	}
	m.Advance(types.StateSignatureVerified)

	p := &walker{file: &File{RIFFSize: size}, seen: map[string]int{}}
	rules := chunk.Rules{
		Format:      types.FormatWAV,
		Header:      HeaderCodec,
		ValidateTag: chunk.PrintableTag,
		Align:       2,
		Limit:       int64(size) - 4, // "WAVE" counts toward the RIFF size
		MaxLength:   opts.MaxChunkLength,
		Logger:      opts.Logger,
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

// signature consumes "RIFF" <size> "WAVE" and returns the size field.
func signature(c *binutil.Cursor) (uint32, error) {
	if err := c.Expect([]byte("RIFF"), "RIFF signature"); err != nil {
		return 0, err
	}
	sizeAt := c.Position()
	size, err := binutil.ReadLE[uint32](c, "RIFF size")
	if err != nil {
		return 0, err
	}
	if err := c.Expect([]byte("WAVE"), "WAVE form type"); err != nil {
		return 0, err
	}

	if size < 4 {
		return 0, &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: sizeAt,
			Field:  "RIFF size",
			Reason: fmt.Sprintf("%d is smaller than the form type", size),
		}
	}
	if total := c.Size(); total >= 0 && int64(size)+8 > total {
		return 0, &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: sizeAt,
			Field:  "RIFF size",
			Reason: fmt.Sprintf("declares %d bytes, stream has %d", int64(size)+8, total),
		}
	}
	return size, nil
}

type walker struct {
	file *File
	seen map[string]int
}

func (p *walker) handle(raw chunk.Raw) error {
	p.seen[raw.Tag]++

	switch raw.Tag {
	case "fmt ":
		if p.seen["fmt "] > 1 {
			return raw.Error(types.DuplicateMandatoryChunk, "fmt chunk appears more than once")
		}
		return p.format(raw)

	case "data":
		if p.seen["fmt "] == 0 {
			return raw.Error(types.InvalidTag, "data chunk before fmt chunk")
		}
		if p.seen["data"] > 1 {
			return raw.Error(types.DuplicateMandatoryChunk, "data chunk appears more than once")
		}
		p.file.Data = bytes.Clone(raw.Payload)
		p.file.DataOffset = raw.PayloadOffset
		return nil

	case "fact":
		if len(raw.Payload) < 4 {
			return raw.Error(types.LengthMismatch, "fact chunk has %d bytes, need 4", len(raw.Payload))
		}
		p.file.SampleFrames = binutil.Decode[uint32](raw.Payload, binutil.LittleEndian)
		p.file.HasFact = true
		return nil

	case "LIST":
		return p.list(raw)
	}
	return nil
}

func (p *walker) format(raw chunk.Raw) error {
	n := len(raw.Payload)
	if n < fmtMinLen {
		return raw.Error(types.LengthMismatch, "fmt chunk has %d bytes, need %d", n, fmtMinLen)
	}

	f := binutil.NewFields(raw.Payload, binutil.LittleEndian)
	h := Fmt{
		AudioFormat:   binutil.Next[uint16](f),
		Channels:      binutil.Next[uint16](f),
		SampleRate:    binutil.Next[uint32](f),
		ByteRate:      binutil.Next[uint32](f),
		BlockAlign:    binutil.Next[uint16](f),
		BitsPerSample: binutil.Next[uint16](f),
	}

	if _, ok := formatNames[h.AudioFormat]; !ok {
		return raw.Field("audio format", "unsupported code 0x%04X", h.AudioFormat)
	}
	switch {
	case h.Channels == 0 || h.Channels > maxChannels:
		return raw.Field("channels", "%d outside 1..%d", h.Channels, maxChannels)
	case h.SampleRate == 0:
		return raw.Field("sample rate", "must be non-zero")
	case h.BitsPerSample == 0:
		return raw.Field("bits per sample", "must be non-zero")
	case h.BlockAlign == 0:
		return raw.Field("block align", "must be non-zero")
	}

	if h.AudioFormat == FormatPCM || h.AudioFormat == FormatFloat {
		want := uint32(h.Channels) * ((uint32(h.BitsPerSample) + 7) / 8)
		if uint32(h.BlockAlign) != want {
			return raw.Field("block align", "got %d, want %d for %d channels of %d bits",
				h.BlockAlign, want, h.Channels, h.BitsPerSample)
		}
		if uint64(h.ByteRate) != uint64(h.SampleRate)*uint64(h.BlockAlign) {
			return raw.Field("byte rate", "got %d, want %d", h.ByteRate, uint64(h.SampleRate)*uint64(h.BlockAlign))
		}
	}

	if n >= fmtMinLen+2 {
		cbSize := int(binutil.Next[uint16](f))
		if fmtMinLen+2+cbSize > n {
			return raw.Error(types.LengthMismatch, "cbSize %d overruns fmt chunk of %d bytes", cbSize, n)
		}
		if h.AudioFormat == FormatExtensible {
			if cbSize < extCbSize || n < extMinLen {
				return raw.Error(types.LengthMismatch, "extensible fmt needs cbSize >= %d, got %d", extCbSize, cbSize)
			}
			ext := &Extensible{
				ValidBitsPerSample: binutil.Next[uint16](f),
				ChannelMask:        binutil.Next[uint32](f),
			}
			copy(ext.SubFormat[:], raw.Payload[f.Pos():f.Pos()+16])
			if ext.ValidBitsPerSample > h.BitsPerSample {
				return raw.Field("valid bits per sample", "%d exceeds container size %d",
					ext.ValidBitsPerSample, h.BitsPerSample)
			}
			h.Extensible = ext
		}
	} else if h.AudioFormat == FormatExtensible {
		return raw.Error(types.LengthMismatch, "extensible fmt chunk has no extension")
	}

	p.file.Fmt = h
	return nil
}

// list records the sub-chunks of a LIST/INFO chunk. Other list types are
// kept in the layout but not interpreted.
func (p *walker) list(raw chunk.Raw) error {
	if len(raw.Payload) < 4 {
		return raw.Error(types.LengthMismatch, "LIST chunk has %d bytes, need 4", len(raw.Payload))
	}
	if string(raw.Payload[:4]) != "INFO" {
		return nil
	}

	body := raw.Payload[4:]
	rules := chunk.Rules{
		Format:      types.FormatWAV,
		Header:      HeaderCodec,
		ValidateTag: chunk.PrintableTag,
		Align:       2,
		Limit:       int64(len(body)),
	}
	_, err := chunk.Walk(binutil.NewBytesCursor(body), rules, func(sub chunk.Raw) error {
		value, _, _ := bytes.Cut(sub.Payload, []byte{0})
		p.file.Info = append(p.file.Info, InfoEntry{ID: sub.Tag, Value: string(value)})
		return nil
	})
	return rebase(err, raw.PayloadOffset+4)
}

// rebase shifts the offset of an error found inside a nested walk so it is
// relative to the enclosing stream.
func rebase(err error, base int64) error {
	if pe, ok := err.(*types.ParseError); ok {
		pe.Offset += base
	}
	return err
}

func (p *walker) finish(at int64) error {
	for _, tag := range []string{"fmt ", "data"} {
		if p.seen[tag] == 0 {
			return &types.ParseError{
				Kind:   types.MissingMandatoryChunk,
				Offset: at,
				Tag:    tag,
				Reason: "required chunk not found",
			}
		}
	}
	return nil
}
