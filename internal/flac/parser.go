// Package flac validates native FLAC streams: the "fLaC" marker, the chain
// of metadata blocks and the presence of a frame sync where audio begins.
package flac

import (
	"fmt"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/chunk"
	"github.com/CDRayn/binny/internal/types"
	"github.com/CDRayn/binny/internal/vorbis"
)

// Magic is the stream marker every native FLAC file begins with.
var Magic = []byte("fLaC")

// Metadata block types
const (
	BlockStreamInfo    = 0
	BlockPadding       = 1
	BlockApplication   = 2
	BlockSeekTable     = 3
	BlockVorbisComment = 4
	BlockCueSheet      = 5
	BlockPicture       = 6
	blockInvalid       = 127
)

var blockNames = map[uint8]string{
	BlockStreamInfo:    "STREAMINFO",
	BlockPadding:       "PADDING",
	BlockApplication:   "APPLICATION",
	BlockSeekTable:     "SEEKTABLE",
	BlockVorbisComment: "VORBIS_COMMENT",
	BlockCueSheet:      "CUESHEET",
	BlockPicture:       "PICTURE",
}

// BlockName returns the tag used for a block type in the layout.
func BlockName(typ uint8) string {
	if name, ok := blockNames[typ]; ok {
		return name
	}
	return fmt.Sprintf("RESERVED%d", typ)
}

func blockType(tag string) (uint8, bool) {
	for typ, name := range blockNames {
		if name == tag {
			return typ, true
		}
	}
	var n uint8
	if _, err := fmt.Sscanf(tag, "RESERVED%d", &n); err == nil && n != blockInvalid {
		return n, true
	}
	return 0, false
}

// StreamInfo is the decoded STREAMINFO block.
type StreamInfo struct {
	MinBlockSize  uint16
	MaxBlockSize  uint16
	MinFrameSize  uint32 // 0 if unknown
	MaxFrameSize  uint32 // 0 if unknown
	SampleRate    uint32
	Channels      uint8
	BitsPerSample uint8
	TotalSamples  uint64 // 0 if unknown
	MD5           [16]byte
}

// Application is an APPLICATION block.
type Application struct {
	ID   string
	Data []byte
}

// SeekPoint is one SEEKTABLE entry.
type SeekPoint struct {
	Sample  uint64
	Offset  uint64
	Samples uint16
}

// File is the structural model of a FLAC stream.
type File struct {
	StreamInfo

	// Layout lists the metadata blocks in stream order.
	Layout types.Layout

	Comments     *vorbis.Block
	Pictures     []Picture
	SeekTable    []SeekPoint
	CueSheet     *CueSheet
	Applications []Application
	Padding      int64

	// Frames is an owned copy of the audio frame data following the
	// metadata. It is not decoded.
	Frames       []byte
	FramesOffset int64
}

// Format implements types.Model.
func (f *File) Format() types.Format { return types.FormatFLAC }

// Chunks implements types.Model.
func (f *File) Chunks() types.Layout { return f.Layout }

// Parse validates a FLAC stream read from c.
func Parse(c *binutil.Cursor, opts types.Options) (*File, error) {
	opts = opts.Normalize()
	m := types.NewMachine(types.FormatFLAC)

	if err := c.Expect(Magic, "FLAC marker"); err != nil {
		return nil, m.Fail(err)
	}
	m.Advance(types.StateSignatureVerified)

	codec := &BlockHeader{}
	p := &walker{file: &File{}}
	rules := chunk.Rules{
		Format:    types.FormatFLAC,
		Header:    codec,
		Limit:     -1,
		MaxLength: opts.MaxChunkLength,
		Stop:      func(string) bool { return codec.Last },
		Logger:    opts.Logger,
	}

	m.Advance(types.StateBodyWalking)
	layout, err := chunk.Walk(c, rules, p.handle)
	if err != nil {
		return nil, m.Fail(err)
	}
	p.file.Layout = layout

	if err := p.frames(c); err != nil {
		return nil, m.Fail(err)
	}

	m.Advance(types.StateBodyComplete)
	return p.file, nil
}

type walker struct {
	file       *File
	streamInfo bool
}

func (p *walker) handle(raw chunk.Raw) error {
	if !p.streamInfo && raw.Tag != "STREAMINFO" {
		return raw.Error(types.InvalidTag, "first metadata block must be STREAMINFO")
	}

	switch raw.Tag {
	case "STREAMINFO":
		if p.streamInfo {
			return raw.Error(types.DuplicateMandatoryChunk, "STREAMINFO appears more than once")
		}
		p.streamInfo = true
		return p.info(raw)

	case "PADDING":
		p.file.Padding += int64(len(raw.Payload))
		return nil

	case "APPLICATION":
		if len(raw.Payload) < 4 {
			return raw.Error(types.LengthMismatch, "APPLICATION block has %d bytes, need 4", len(raw.Payload))
		}
		p.file.Applications = append(p.file.Applications, Application{
			ID:   string(raw.Payload[:4]),
			Data: append([]byte(nil), raw.Payload[4:]...),
		})
		return nil

	case "SEEKTABLE":
		return p.seekTable(raw)

	case "VORBIS_COMMENT":
		if p.file.Comments != nil {
			return raw.Error(types.DuplicateMandatoryChunk, "VORBIS_COMMENT appears more than once")
		}
		block, err := vorbis.Parse(raw.Payload, raw.PayloadOffset)
		if err != nil {
			return withTag(err, raw.Tag)
		}
		p.file.Comments = block
		return nil

	case "CUESHEET":
		cs, err := parseCueSheet(raw)
		if err != nil {
			return err
		}
		p.file.CueSheet = cs
		return nil

	case "PICTURE":
		pic, err := parsePicture(raw)
		if err != nil {
			return err
		}
		p.file.Pictures = append(p.file.Pictures, *pic)
		return nil
	}
	return nil
}

func (p *walker) info(raw chunk.Raw) error {
	if len(raw.Payload) != 34 {
		return raw.Error(types.LengthMismatch, "STREAMINFO must be 34 bytes, has %d", len(raw.Payload))
	}

	br := binutil.NewBitReaderBytes(raw.Payload, raw.PayloadOffset)
	v, err := br.ReadFields(16, 16, 24, 24, 20, 3, 5, 4, 32)
	if err != nil {
		return err
	}
	si := StreamInfo{
		MinBlockSize:  uint16(v[0]),
		MaxBlockSize:  uint16(v[1]),
		MinFrameSize:  v[2],
		MaxFrameSize:  v[3],
		SampleRate:    v[4],
		Channels:      uint8(v[5]) + 1,
		BitsPerSample: uint8(v[6]) + 1,
		TotalSamples:  uint64(v[7])<<32 | uint64(v[8]),
	}
	copy(si.MD5[:], raw.Payload[18:])

	switch {
	case si.MinBlockSize < 16:
		return raw.Field("min block size", "%d is below 16", si.MinBlockSize)
	case si.MaxBlockSize < 16:
		return raw.Field("max block size", "%d is below 16", si.MaxBlockSize)
	case si.MinBlockSize > si.MaxBlockSize:
		return raw.Field("min block size", "%d exceeds max block size %d", si.MinBlockSize, si.MaxBlockSize)
	case si.MinFrameSize != 0 && si.MaxFrameSize != 0 && si.MinFrameSize > si.MaxFrameSize:
		return raw.Field("min frame size", "%d exceeds max frame size %d", si.MinFrameSize, si.MaxFrameSize)
	case si.SampleRate == 0 || si.SampleRate > 655350:
		return raw.Field("sample rate", "%d outside 1..655350", si.SampleRate)
	case si.BitsPerSample < 4:
		return raw.Field("bits per sample", "%d outside 4..32", si.BitsPerSample)
	}

	p.file.StreamInfo = si
	return nil
}

func (p *walker) seekTable(raw chunk.Raw) error {
	if len(raw.Payload)%18 != 0 {
		return raw.Error(types.LengthMismatch, "SEEKTABLE length %d is not a multiple of 18", len(raw.Payload))
	}
	f := binutil.NewFields(raw.Payload, binutil.BigEndian)
	var prev uint64
	for i := 0; i < len(raw.Payload)/18; i++ {
		sp := SeekPoint{
			Sample:  binutil.Next[uint64](f),
			Offset:  binutil.Next[uint64](f),
			Samples: binutil.Next[uint16](f),
		}
		placeholder := sp.Sample == 0xFFFFFFFFFFFFFFFF
		if i > 0 && !placeholder && sp.Sample <= prev {
			return raw.Field("seek point", "point %d is not in ascending sample order", i)
		}
		if !placeholder {
			prev = sp.Sample
		}
		p.file.SeekTable = append(p.file.SeekTable, sp)
	}
	return nil
}

// frames checks that audio frames, if any, begin with a frame sync and
// keeps them as an opaque byte range.
func (p *walker) frames(c *binutil.Cursor) error {
	at := c.Position()
	eof, err := c.AtEOF()
	if err != nil || eof {
		return err
	}
	sync, err := c.Peek(2, "frame sync")
	if err != nil {
		return err
	}
	if sync[0] != 0xFF || sync[1]&0xFE != 0xF8 {
		return &types.ParseError{
			Kind:   types.InvalidTag,
			Offset: at,
			Tag:    "frame",
			Reason: fmt.Sprintf("expected frame sync after metadata, found % x", sync),
		}
	}
	data, err := c.ReadRest("audio frames")
	if err != nil {
		return err
	}
	p.file.Frames = data
	p.file.FramesOffset = at
	return nil
}

// sub returns a cursor over a block payload and a function that rebases
// its errors to stream offsets. Running out of payload is a length error in
// the block, not a truncated stream.
func sub(raw chunk.Raw) (*binutil.Cursor, func(error) error) {
	return binutil.NewBytesCursor(raw.Payload), func(err error) error {
		if pe, ok := err.(*types.ParseError); ok {
			pe.Offset += raw.PayloadOffset
			pe.Tag = raw.Tag
			if pe.Kind == types.UnexpectedEOF {
				pe.Kind = types.LengthMismatch
			}
		}
		return err
	}
}

func withTag(err error, tag string) error {
	if pe, ok := err.(*types.ParseError); ok && pe.Tag == "" {
		pe.Tag = tag
	}
	return err
}
