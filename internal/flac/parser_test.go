package flac

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/chunk"
	"github.com/CDRayn/binny/internal/types"
)

type info struct {
	minBlock, maxBlock uint16
	rate               uint32
	channels, bits     uint8
	total              uint64
}

var cd = info{minBlock: 4096, maxBlock: 4096, rate: 44100, channels: 2, bits: 16, total: 441000}

func (i info) bytes() []byte {
	b := binary.BigEndian.AppendUint16(nil, i.minBlock)
	b = binary.BigEndian.AppendUint16(b, i.maxBlock)
	b = append(b, 0, 0, 0, 0, 0, 0)
	v := uint64(i.rate)<<44 | uint64(i.channels-1)<<41 | uint64(i.bits-1)<<36 | i.total
	b = binary.BigEndian.AppendUint64(b, v)
	return append(b, bytes.Repeat([]byte{0xAB}, 16)...)
}

func block(typ byte, last bool, payload []byte) []byte {
	if last {
		typ |= lastBlockFlag
	}
	n := len(payload)
	return append([]byte{typ, byte(n >> 16), byte(n >> 8), byte(n)}, payload...)
}

func comments(vendor string, entries ...string) []byte {
	b := binary.LittleEndian.AppendUint32(nil, uint32(len(vendor)))
	b = append(b, vendor...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(entries)))
	for _, e := range entries {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(e)))
		b = append(b, e...)
	}
	return b
}

func picture(typ uint32, mime string, data []byte) []byte {
	b := binary.BigEndian.AppendUint32(nil, typ)
	b = binary.BigEndian.AppendUint32(b, uint32(len(mime)))
	b = append(b, mime...)
	b = binary.BigEndian.AppendUint32(b, 5)
	b = append(b, "cover"...)
	for _, v := range []uint32{300, 200, 24, 0, uint32(len(data))} {
		b = binary.BigEndian.AppendUint32(b, v)
	}
	return append(b, data...)
}

func seekPoint(sample, offset uint64, samples uint16) []byte {
	b := binary.BigEndian.AppendUint64(nil, sample)
	b = binary.BigEndian.AppendUint64(b, offset)
	return binary.BigEndian.AppendUint16(b, samples)
}

func cueSheet(cdda bool, tracks ...byte) []byte {
	b := make([]byte, cueHeaderLen)
	copy(b, "1234567890123")
	binary.BigEndian.PutUint64(b[128:], 88200)
	if cdda {
		b[136] = 0x80
	}
	b[cueHeaderLen-1] = byte(len(tracks))
	for i, n := range tracks {
		t := make([]byte, cueTrackLen)
		binary.BigEndian.PutUint64(t, uint64(i)*588)
		t[8] = n
		if n != leadOut {
			t[cueTrackLen-1] = 1
			t = append(t, make([]byte, cueIndexLen)...)
			t[cueTrackLen+8] = 1
		}
		b = append(b, t...)
	}
	return b
}

var audio = []byte{0xFF, 0xF8, 0x69, 0x08, 0x00, 0x13, 0x37}

func stream(blocks ...[]byte) []byte {
	out := bytes.Clone(Magic)
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

func parse(data []byte) (*File, error) {
	return Parse(binutil.NewBytesCursor(data), types.Options{})
}

func TestParse_Minimal(t *testing.T) {
	data := stream(block(BlockStreamInfo, true, cd.bytes()), audio)

	f, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, types.FormatFLAC, f.Format())
	assert.Equal(t, []string{"STREAMINFO"}, f.Chunks().Tags())
	assert.Equal(t, uint32(44100), f.SampleRate)
	assert.Equal(t, uint8(2), f.Channels)
	assert.Equal(t, uint8(16), f.BitsPerSample)
	assert.Equal(t, uint64(441000), f.TotalSamples)
	assert.Equal(t, uint16(4096), f.MinBlockSize)
	assert.Equal(t, byte(0xAB), f.MD5[15])
	assert.Equal(t, audio, f.Frames)
	assert.Equal(t, int64(42), f.FramesOffset)
}

func TestParse_AllBlocks(t *testing.T) {
	data := stream(
		block(BlockStreamInfo, false, cd.bytes()),
		block(BlockSeekTable, false, append(seekPoint(0, 0, 4096), seekPoint(0xFFFFFFFFFFFFFFFF, 0, 0)...)),
		block(BlockVorbisComment, false, comments("reference libFLAC 1.4.3", "TITLE=Intro", "ARTIST=Someone")),
		block(BlockPicture, false, picture(3, "image/png", []byte{1, 2, 3})),
		block(BlockApplication, false, []byte("riffdata")),
		block(BlockCueSheet, false, cueSheet(true, 1, 2, leadOut)),
		block(9, false, []byte{0x00}),
		block(BlockPadding, true, make([]byte, 32)),
		audio,
	)

	f, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"STREAMINFO", "SEEKTABLE", "VORBIS_COMMENT", "PICTURE", "APPLICATION", "CUESHEET", "RESERVED9", "PADDING",
	}, f.Layout.Tags())

	require.Len(t, f.SeekTable, 2)
	assert.Equal(t, uint16(4096), f.SeekTable[0].Samples)

	require.NotNil(t, f.Comments)
	assert.Equal(t, "reference libFLAC 1.4.3", f.Comments.Vendor)
	assert.Equal(t, []string{"Intro"}, f.Comments.Get("title"))

	require.Len(t, f.Pictures, 1)
	pic := f.Pictures[0]
	assert.Equal(t, uint32(3), pic.Type)
	assert.Equal(t, "image/png", pic.MIME)
	assert.Equal(t, "cover", pic.Description)
	assert.Equal(t, uint32(300), pic.Width)
	assert.Equal(t, []byte{1, 2, 3}, pic.Data)

	require.Len(t, f.Applications, 1)
	assert.Equal(t, "riff", f.Applications[0].ID)
	assert.Equal(t, []byte("data"), f.Applications[0].Data)

	require.NotNil(t, f.CueSheet)
	assert.True(t, f.CueSheet.CD)
	assert.Equal(t, "1234567890123", f.CueSheet.CatalogNumber)
	require.Len(t, f.CueSheet.Tracks, 3)
	assert.Len(t, f.CueSheet.Tracks[0].Indices, 1)
	assert.Equal(t, uint8(leadOut), f.CueSheet.Tracks[2].Number)

	assert.Equal(t, int64(32), f.Padding)
	assert.Equal(t, audio, f.Frames)
}

func TestParse_NoAudio(t *testing.T) {
	f, err := parse(stream(block(BlockStreamInfo, true, cd.bytes())))
	require.NoError(t, err)
	assert.Empty(t, f.Frames)
}

func TestParse_Errors(t *testing.T) {
	si := block(BlockStreamInfo, false, cd.bytes())
	lastInfo := func(i info) []byte { return block(BlockStreamInfo, true, i.bytes()) }
	with := func(edit func(*info)) info {
		i := cd
		edit(&i)
		return i
	}

	tests := []struct {
		name string
		data []byte
		kind types.Kind
	}{
		{"bad marker", append([]byte("fLaX"), lastInfo(cd)...), types.InvalidSignature},
		{"short marker", []byte("fL"), types.UnexpectedEOF},
		{"padding first", stream(block(BlockPadding, false, nil), lastInfo(cd)), types.InvalidTag},
		{"short STREAMINFO", stream(block(BlockStreamInfo, true, cd.bytes()[:33])), types.LengthMismatch},
		{"two STREAMINFO", stream(si, lastInfo(cd)), types.DuplicateMandatoryChunk},
		{"block type 127", stream(si, block(127, true, nil)), types.InvalidTag},
		{"sample rate 0", stream(lastInfo(with(func(i *info) { i.rate = 0 }))), types.FieldOutOfRange},
		{"sample rate too high", stream(lastInfo(with(func(i *info) { i.rate = 700000 }))), types.FieldOutOfRange},
		{"3 bits per sample", stream(lastInfo(with(func(i *info) { i.bits = 3 }))), types.FieldOutOfRange},
		{"block size below 16", stream(lastInfo(with(func(i *info) { i.minBlock = 8 }))), types.FieldOutOfRange},
		{"min block over max", stream(lastInfo(with(func(i *info) { i.maxBlock = 1024 }))), types.FieldOutOfRange},
		{"seek table length", stream(si, block(BlockSeekTable, true, make([]byte, 17))), types.LengthMismatch},
		{"seek points out of order", stream(si, block(BlockSeekTable, true, append(seekPoint(10, 0, 1), seekPoint(5, 0, 1)...))), types.FieldOutOfRange},
		{"short application", stream(si, block(BlockApplication, true, []byte("abc"))), types.LengthMismatch},
		{"picture overrun", stream(si, block(BlockPicture, true, picture(3, "image/png", []byte{1, 2, 3})[:40])), types.LengthMismatch},
		{"picture trailing bytes", stream(si, block(BlockPicture, true, append(picture(3, "image/png", nil), 0))), types.LengthMismatch},
		{"picture type", stream(si, block(BlockPicture, true, picture(21, "image/png", nil))), types.FieldOutOfRange},
		{"comment count overrun", stream(si, block(BlockVorbisComment, true, comments("v")[:8])), types.LengthMismatch},
		{"two comment blocks", stream(si, block(BlockVorbisComment, false, comments("v")), block(BlockVorbisComment, true, comments("v"))), types.DuplicateMandatoryChunk},
		{"short cue sheet", stream(si, block(BlockCueSheet, true, make([]byte, 100))), types.LengthMismatch},
		{"cue sheet without lead-out", stream(si, block(BlockCueSheet, true, cueSheet(true, 1, 2))), types.FieldOutOfRange},
		{"bad frame sync", stream(lastInfo(cd), []byte{0xFF, 0x00, 0x00}), types.InvalidTag},
		{"no last block", stream(si), types.UnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestParse_ErrorOffset(t *testing.T) {
	bad := cd
	bad.rate = 0
	data := stream(block(BlockStreamInfo, true, bad.bytes()))

	_, err := parse(data)
	var pe *types.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, types.FormatFLAC, pe.Format)
	assert.Equal(t, "STREAMINFO", pe.Tag)
	assert.Equal(t, "sample rate", pe.Field)
	assert.Equal(t, int64(8), pe.Offset)
}

func TestParse_Truncated(t *testing.T) {
	data := stream(
		block(BlockStreamInfo, false, cd.bytes()),
		block(BlockVorbisComment, false, comments("v", "A=b")),
		block(BlockPadding, true, make([]byte, 8)),
	)
	metaEnd := len(data)
	data = append(data, audio...)

	for cut := 0; cut < metaEnd; cut++ {
		_, err := parse(data[:cut])
		assert.ErrorIs(t, err, types.UnexpectedEOF, "cut at %d", cut)
	}
}

func TestParse_FramingRoundTrip(t *testing.T) {
	data := stream(
		block(BlockStreamInfo, false, cd.bytes()),
		block(BlockApplication, false, []byte("abcd")),
		block(12, false, nil),
		block(BlockPadding, true, make([]byte, 4)),
	)

	f, err := parse(data)
	require.NoError(t, err)

	var want bytes.Buffer
	for _, ch := range f.Layout {
		hdr := bytes.Clone(data[ch.Offset : ch.Offset+ch.HeaderLen])
		hdr[0] &^= lastBlockFlag
		want.Write(hdr)
	}
	var got bytes.Buffer
	require.NoError(t, chunk.WriteFraming(&got, &BlockHeader{}, f.Layout))
	assert.Equal(t, want.Bytes(), got.Bytes())
}

func TestBlockName(t *testing.T) {
	assert.Equal(t, "STREAMINFO", BlockName(BlockStreamInfo))
	assert.Equal(t, "PICTURE", BlockName(BlockPicture))
	assert.Equal(t, "RESERVED42", BlockName(42))

	typ, ok := blockType("RESERVED42")
	assert.True(t, ok)
	assert.Equal(t, uint8(42), typ)

	_, ok = blockType("RESERVED127")
	assert.False(t, ok)
}

func TestParse_PayloadsOwned(t *testing.T) {
	data := stream(
		block(BlockStreamInfo, false, cd.bytes()),
		block(BlockApplication, false, []byte("abcdEFGH")),
		block(BlockPadding, true, nil),
	)

	f, err := parse(data)
	require.NoError(t, err)

	for i := range data {
		data[i] = 0
	}
	assert.Equal(t, []byte("EFGH"), f.Applications[0].Data)
}
