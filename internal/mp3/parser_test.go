package mp3

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

// MPEG-1 Layer III, 128 kbps, 44100 Hz, joint stereo, no CRC, no padding.
var header128 = []byte{0xFF, 0xFB, 0x90, 0x64}

const frameLen128 = 417

func frame(hdr []byte, length int) []byte {
	out := make([]byte, length)
	copy(out, hdr)
	return out
}

func frames(n int) []byte {
	var out []byte
	for i := 0; i < n; i++ {
		out = append(out, frame(header128, frameLen128)...)
	}
	return out
}

func id3v2(major byte, body []byte) []byte {
	n := len(body)
	out := []byte{'I', 'D', '3', major, 0, 0,
		byte(n >> 21 & 0x7F), byte(n >> 14 & 0x7F), byte(n >> 7 & 0x7F), byte(n & 0x7F)}
	return append(out, body...)
}

func id3Frame(id string, payload []byte) []byte {
	n := len(payload)
	out := append([]byte(id), byte(n>>24), byte(n>>16), byte(n>>8), byte(n), 0, 0)
	return append(out, payload...)
}

func id3v1(title string, track byte) []byte {
	b := make([]byte, id3v1Len)
	copy(b, "TAG")
	copy(b[3:], title)
	b[126] = track
	b[127] = 17
	return b
}

func parse(data []byte) (*File, error) {
	return Parse(binutil.NewBytesCursor(data), types.Options{})
}

func TestDecodeHeader(t *testing.T) {
	h, err := DecodeHeader(header128, 0)
	require.NoError(t, err)

	assert.Equal(t, MPEG1, h.Version)
	assert.Equal(t, 3, h.Layer)
	assert.False(t, h.Protected)
	assert.Equal(t, 128000, h.Bitrate)
	assert.Equal(t, 44100, h.SampleRate)
	assert.Equal(t, uint8(JointStereo), h.ChannelMode)
	assert.Equal(t, 2, h.Channels())
	assert.Equal(t, 1152, h.Samples())
	assert.Equal(t, frameLen128, h.Length())
	assert.True(t, h.Original)
	assert.Equal(t, "MPEG-1 Layer 3, 128 kbps, 44100 Hz", h.String())
}

func TestDecodeHeader_FrameLengths(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		length int
	}{
		{"MPEG-1 L3 128k padded", []byte{0xFF, 0xFB, 0x92, 0x64}, 418},
		{"MPEG-1 L3 320k 48kHz", []byte{0xFF, 0xFB, 0xE4, 0x00}, 960},
		{"MPEG-2 L3 64k 22050", []byte{0xFF, 0xF3, 0x80, 0xC0}, 208},
		{"MPEG-1 L1 384k 44100", []byte{0xFF, 0xFF, 0xC0, 0x00}, 416},
		{"MPEG-1 L2 192k 48kHz", []byte{0xFF, 0xFD, 0xA4, 0x00}, 576},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := DecodeHeader(tt.header, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.length, h.Length())
		})
	}
}

func TestDecodeHeader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		kind   types.Kind
		field  string
	}{
		{"no sync", []byte{0xFF, 0x1B, 0x90, 0x64}, types.InvalidTag, ""},
		{"reserved version", []byte{0xFF, 0xEB, 0x90, 0x64}, types.FieldOutOfRange, "version"},
		{"reserved layer", []byte{0xFF, 0xF9, 0x90, 0x64}, types.FieldOutOfRange, "layer"},
		{"free bitrate", []byte{0xFF, 0xFB, 0x00, 0x64}, types.FieldOutOfRange, "bitrate"},
		{"bad bitrate", []byte{0xFF, 0xFB, 0xF0, 0x64}, types.FieldOutOfRange, "bitrate"},
		{"reserved sample rate", []byte{0xFF, 0xFB, 0x9C, 0x64}, types.FieldOutOfRange, "sample rate"},
		{"reserved emphasis", []byte{0xFF, 0xFB, 0x90, 0x66}, types.FieldOutOfRange, "emphasis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeHeader(tt.header, 100)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			var pe *types.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, int64(100), pe.Offset)
			assert.Equal(t, tt.field, pe.Field)
		})
	}
}

func TestParse_BareFrames(t *testing.T) {
	f, err := parse(frames(3))
	require.NoError(t, err)

	assert.Equal(t, types.FormatMP3, f.Format())
	assert.Len(t, f.Frames, 3)
	assert.Nil(t, f.ID3v2)
	assert.Nil(t, f.ID3v1)
	assert.Equal(t, []string{"frame", "frame", "frame"}, f.Chunks().Tags())
	assert.Equal(t, int64(2*frameLen128), f.Frames[2].Offset)
	assert.Len(t, f.Frames[0].Data, frameLen128-4)
}

func TestParse_WithTags(t *testing.T) {
	body := append(id3Frame("TIT2", []byte("\x00Title")), id3Frame("TPE1", []byte("\x00Artist"))...)
	body = append(body, make([]byte, 20)...) // padding
	data := append(id3v2(3, body), frames(2)...)
	data = append(data, id3v1("Song", 7)...)

	f, err := parse(data)
	require.NoError(t, err)

	require.NotNil(t, f.ID3v2)
	assert.Equal(t, byte(3), f.ID3v2.Major)
	require.Len(t, f.ID3v2.Frames, 2)
	assert.Equal(t, "TIT2", f.ID3v2.Frames[0].ID)
	assert.Equal(t, int64(10), f.ID3v2.Frames[0].Offset)
	assert.Equal(t, "TPE1", f.ID3v2.Frames[1].ID)

	require.NotNil(t, f.ID3v1)
	assert.Equal(t, "Song", f.ID3v1.Title)
	assert.Equal(t, uint8(7), f.ID3v1.Track)
	assert.Equal(t, uint8(17), f.ID3v1.Genre)

	assert.Equal(t, []string{"ID3", "frame", "frame", "TAG"}, f.Layout.Tags())
	assert.Equal(t, int64(len(data)), f.Layout.End())
}

func TestParse_XingHeader(t *testing.T) {
	first := frame(header128, frameLen128)
	copy(first[4+32:], "Xing\x00\x00\x00\x01\x00\x00\x01\x00")
	data := append(first, frames(1)...)

	f, err := parse(data)
	require.NoError(t, err)
	require.NotNil(t, f.VBR)
	assert.Equal(t, "Xing", f.VBR.Kind)
	assert.Equal(t, uint32(256), f.VBR.Frames)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		kind types.Kind
	}{
		{"no signature", append([]byte{0x00, 0x01}, frames(1)...), types.InvalidSignature},
		{"ID3 only", id3v2(4, nil), types.MissingMandatoryChunk},
		{"garbage after frames", append(frames(2), 0x00, 0x00, 0x00, 0x00), types.InvalidTag},
		{"truncated frame", frames(2)[:frameLen128+100], types.UnexpectedEOF},
		{"data after ID3v1", append(append(frames(1), id3v1("x", 0)...), 0xFF), types.InvalidTag},
		{"short ID3v1", append(frames(1), []byte("TAG")...), types.UnexpectedEOF},
		{"bad ID3 version", id3v2(5, nil), types.FieldOutOfRange},
		{"bad ID3 frame id", id3v2(3, id3Frame("ti t", nil)), types.InvalidTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestParse_ID3FrameOverrun(t *testing.T) {
	body := id3Frame("TIT2", []byte("abc"))
	body[7] = 50 // declared size runs past the tag
	_, err := parse(append(id3v2(3, body), frames(1)...))
	assert.ErrorIs(t, err, types.LengthMismatch)
}

func TestParse_ID3SizeNotSynchsafe(t *testing.T) {
	data := append(id3v2(4, nil), frames(1)...)
	data[9] = 0x80

	_, err := parse(data)
	assert.ErrorIs(t, err, types.FieldOutOfRange)
}

func TestParse_Truncated(t *testing.T) {
	data := frames(2)

	for cut := 1; cut < len(data); cut++ {
		if cut == frameLen128 {
			continue // a whole frame is a valid stream
		}
		_, err := Parse(binutil.NewCursor(bytes.NewReader(data[:cut]), -1), types.Options{})
		assert.ErrorIs(t, err, types.UnexpectedEOF, "cut at %d", cut)
	}
}
