// Package mp3 validates MPEG audio streams: an optional leading ID3v2 tag,
// a run of frames whose headers are decoded bit by bit, and an optional
// trailing ID3v1 tag.
package mp3

import (
	"bytes"
	"log/slog"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

// Frame is one MPEG audio frame.
type Frame struct {
	Header FrameHeader
	Offset int64
	// Data is an owned copy of everything after the 4-byte header,
	// including the CRC when the frame is protected.
	Data []byte
}

// VBRInfo is a Xing, Info or VBRI header found in the first frame.
type VBRInfo struct {
	Kind   string // "Xing", "Info" or "VBRI"
	Frames uint32 // 0 if the header does not carry a frame count
}

// File is the structural model of an MP3 stream.
type File struct {
	Layout types.Layout

	ID3v2  *ID3v2
	Frames []Frame
	VBR    *VBRInfo
	ID3v1  *ID3v1
}

// Format implements types.Model.
func (f *File) Format() types.Format { return types.FormatMP3 }

// Chunks implements types.Model.
func (f *File) Chunks() types.Layout { return f.Layout }

// Parse validates an MPEG audio stream read from c.
func Parse(c *binutil.Cursor, opts types.Options) (*File, error) {
	opts = opts.Normalize()
	m := types.NewMachine(types.FormatMP3)
	file := &File{}

	lead, err := c.PeekUpTo(4, "MP3 signature")
	if err != nil {
		return nil, m.Fail(err)
	}
	switch {
	case bytes.HasPrefix(lead, []byte("ID3")):
		tag, err := readID3v2(c, opts.MaxChunkLength)
		if err != nil {
			return nil, m.Fail(err)
		}
		file.ID3v2 = tag
		ch := types.Chunk{Tag: "ID3", Offset: tag.Offset, HeaderLen: id3v2HeaderLen, Length: int64(tag.Size)}
		if tag.HasFooter() {
			ch.TrailerLen = id3v2HeaderLen
		}
		file.Layout = append(file.Layout, ch)

	case len(lead) < 4 && (bytes.HasPrefix([]byte("ID3"), lead) || lead[0] == 0xFF):
		_, err := c.Peek(4, "MP3 signature")
		return nil, m.Fail(err)

	case lead[0] == 0xFF && lead[1]&0xE0 == 0xE0:
	default:
		return nil, m.Fail(&types.ParseError{
			Kind:   types.InvalidSignature,
			Offset: c.Position(),
			Reason: "neither an ID3v2 tag nor a frame sync",
		})
	}
	m.Advance(types.StateSignatureVerified)

	m.Advance(types.StateBodyWalking)
	if err := walkFrames(c, file, opts.Logger); err != nil {
		return nil, m.Fail(err)
	}

	if len(file.Frames) == 0 {
		return nil, m.Fail(&types.ParseError{
			Kind:   types.MissingMandatoryChunk,
			Offset: c.Position(),
			Tag:    "frame",
			Reason: "stream has no audio frames",
		})
	}

	m.Advance(types.StateBodyComplete)
	return file, nil
}

// walkFrames reads frames until end of stream or an ID3v1 trailer.
func walkFrames(c *binutil.Cursor, file *File, log *slog.Logger) error {
	for {
		eof, err := c.AtEOF()
		if err != nil {
			return err
		}
		if eof {
			return nil
		}

		at := c.Position()
		lead, err := c.PeekUpTo(3, "frame header")
		if err != nil {
			return err
		}
		if bytes.Equal(lead, []byte("TAG")) {
			return trailer(c, file)
		}

		raw, err := c.Peek(4, "frame header")
		if err != nil {
			return withTag(err, "frame")
		}
		h, err := DecodeHeader(raw, at)
		if err != nil {
			return err
		}

		n := int64(h.Length())
		if n < 4 {
			return &types.ParseError{Kind: types.LengthMismatch, Offset: at, Tag: "frame", Reason: "frame shorter than its header"}
		}
		if err := c.Skip(4, "frame header"); err != nil {
			return err
		}
		data, err := c.ReadExact(n-4, "frame data")
		if err != nil {
			return withTag(err, "frame")
		}

		log.Debug("frame",
			slog.Int64("offset", at),
			slog.String("header", h.String()),
			slog.Int64("length", n),
		)

		if len(file.Frames) == 0 {
			file.VBR = vbrHeader(h, data)
		}
		file.Frames = append(file.Frames, Frame{Header: h, Offset: at, Data: data})
		file.Layout = append(file.Layout, types.Chunk{Tag: "frame", Offset: at, HeaderLen: 4, Length: n - 4})
	}
}

// trailer consumes an ID3v1 tag, which must end the stream.
func trailer(c *binutil.Cursor, file *File) error {
	tag, err := readID3v1(c)
	if err != nil {
		return err
	}
	eof, err := c.AtEOF()
	if err != nil {
		return err
	}
	if !eof {
		return &types.ParseError{
			Kind:   types.InvalidTag,
			Offset: c.Position(),
			Tag:    "TAG",
			Reason: "data after ID3v1 tag",
		}
	}
	file.ID3v1 = tag
	file.Layout = append(file.Layout, types.Chunk{Tag: "TAG", Offset: tag.Offset, HeaderLen: 3, Length: id3v1Len - 3})
	return nil
}

// vbrHeader looks for a Xing/Info header after the side information, or a
// VBRI header at its fixed position, in the data of the first frame.
func vbrHeader(h FrameHeader, data []byte) *VBRInfo {
	if h.Layer != 3 {
		return nil
	}
	off := h.sideInfoLen()
	if h.Protected {
		off += 2
	}
	if len(data) >= off+12 {
		kind := string(data[off : off+4])
		if kind == "Xing" || kind == "Info" {
			v := &VBRInfo{Kind: kind}
			if flags := binutil.Decode[uint32](data[off+4:], binutil.BigEndian); flags&0x1 != 0 {
				v.Frames = binutil.Decode[uint32](data[off+8:], binutil.BigEndian)
			}
			return v
		}
	}
	if len(data) >= 32+18 && string(data[32:36]) == "VBRI" {
		return &VBRInfo{Kind: "VBRI", Frames: binutil.Decode[uint32](data[32+14:], binutil.BigEndian)}
	}
	return nil
}
