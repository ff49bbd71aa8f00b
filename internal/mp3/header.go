package mp3

import (
	"fmt"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

// Version is the MPEG audio version ID.
type Version uint8

const (
	MPEG25 Version = 0 // unofficial MPEG 2.5
	MPEG2  Version = 2
	MPEG1  Version = 3
)

func (v Version) String() string {
	switch v {
	case MPEG1:
		return "MPEG-1"
	case MPEG2:
		return "MPEG-2"
	case MPEG25:
		return "MPEG-2.5"
	default:
		return "reserved"
	}
}

// ChannelMode values
const (
	Stereo = iota
	JointStereo
	DualChannel
	SingleChannel
)

// Emphasis value the format reserves
const emphasisReserved = 2

// Bitrates in kbps, indexed by bitrate index. Index 0 is free format and
// index 15 is invalid; both are rejected before lookup.
var (
	bitratesV1L1 = [16]int{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0}
	bitratesV1L2 = [16]int{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0}
	bitratesV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	bitratesV2L1 = [16]int{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0}
	bitratesV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

// Sample rates in Hz by version, indexed by sample-rate index.
var sampleRates = map[Version][3]int{
	MPEG1:  {44100, 48000, 32000},
	MPEG2:  {22050, 24000, 16000},
	MPEG25: {11025, 12000, 8000},
}

// FrameHeader is the decoded 32-bit MPEG audio frame header.
type FrameHeader struct {
	Version       Version
	Layer         int  // 1, 2 or 3
	Protected     bool // a 16-bit CRC follows the header
	BitrateIndex  uint8
	Bitrate       int // bits per second
	SampleRate    int // Hz
	Padded        bool
	Private       bool
	ChannelMode   uint8
	ModeExtension uint8
	Copyright     bool
	Original      bool
	Emphasis      uint8
}

// headerWidths are the bit widths of the header fields, sync first.
var headerWidths = []int{11, 2, 2, 1, 4, 2, 1, 1, 2, 2, 1, 1, 2}

// DecodeHeader decodes and validates a frame header from the first four
// bytes of b. offset is the stream position of b[0], used in errors.
func DecodeHeader(b []byte, offset int64) (FrameHeader, error) {
	br := binutil.NewBitReaderBytes(b[:4], offset)
	v, err := br.ReadFields(headerWidths...)
	if err != nil {
		return FrameHeader{}, err
	}

	fieldErr := func(field, format string, args ...any) error {
		return &types.ParseError{
			Kind:   types.FieldOutOfRange,
			Offset: offset,
			Tag:    "frame",
			Field:  field,
			Reason: fmt.Sprintf(format, args...),
		}
	}

	if v[0] != 0x7FF {
		return FrameHeader{}, &types.ParseError{
			Kind:   types.InvalidTag,
			Offset: offset,
			Tag:    "frame",
			Reason: fmt.Sprintf("lost frame sync, found % x", b[:4]),
		}
	}

	h := FrameHeader{
		Version:       Version(v[1]),
		Layer:         4 - int(v[2]),
		Protected:     v[3] == 0,
		BitrateIndex:  uint8(v[4]),
		Padded:        v[6] == 1,
		Private:       v[7] == 1,
		ChannelMode:   uint8(v[8]),
		ModeExtension: uint8(v[9]),
		Copyright:     v[10] == 1,
		Original:      v[11] == 1,
		Emphasis:      uint8(v[12]),
	}

	switch {
	case v[1] == 1:
		return FrameHeader{}, fieldErr("version", "reserved version ID")
	case v[2] == 0:
		return FrameHeader{}, fieldErr("layer", "reserved layer")
	case v[4] == 0:
		return FrameHeader{}, fieldErr("bitrate", "free-format bitrate is not supported")
	case v[4] == 15:
		return FrameHeader{}, fieldErr("bitrate", "bad bitrate index 15")
	case v[5] == 3:
		return FrameHeader{}, fieldErr("sample rate", "reserved sample rate index")
	case v[12] == emphasisReserved:
		return FrameHeader{}, fieldErr("emphasis", "reserved emphasis")
	}

	h.Bitrate = h.bitrates()[h.BitrateIndex] * 1000
	h.SampleRate = sampleRates[h.Version][v[5]]
	return h, nil
}

func (h FrameHeader) bitrates() *[16]int {
	if h.Version == MPEG1 {
		switch h.Layer {
		case 1:
			return &bitratesV1L1
		case 2:
			return &bitratesV1L2
		default:
			return &bitratesV1L3
		}
	}
	if h.Layer == 1 {
		return &bitratesV2L1
	}
	return &bitratesV2L3
}

// Samples returns the number of samples per channel carried by one frame.
func (h FrameHeader) Samples() int {
	switch {
	case h.Layer == 1:
		return 384
	case h.Layer == 3 && h.Version != MPEG1:
		return 576
	default:
		return 1152
	}
}

// Length returns the frame length in bytes, header included.
func (h FrameHeader) Length() int {
	pad := 0
	if h.Padded {
		pad = 1
	}
	if h.Layer == 1 {
		return (12*h.Bitrate/h.SampleRate + pad) * 4
	}
	return h.Samples()/8*h.Bitrate/h.SampleRate + pad
}

// Channels returns 1 for single-channel frames and 2 otherwise.
func (h FrameHeader) Channels() int {
	if h.ChannelMode == SingleChannel {
		return 1
	}
	return 2
}

// sideInfoLen returns the Layer III side information size, which is where
// a Xing/Info header sits in the first frame.
func (h FrameHeader) sideInfoLen() int {
	switch {
	case h.Version == MPEG1 && h.ChannelMode != SingleChannel:
		return 32
	case h.Version == MPEG1, h.ChannelMode != SingleChannel:
		return 17
	default:
		return 9
	}
}

// String returns a short description such as "MPEG-1 Layer 3, 128 kbps, 44100 Hz".
func (h FrameHeader) String() string {
	return fmt.Sprintf("%s Layer %d, %d kbps, %d Hz", h.Version, h.Layer, h.Bitrate/1000, h.SampleRate)
}
