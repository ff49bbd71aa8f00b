package bmp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

type info struct {
	size        uint32
	width       int32
	height      int32
	planes      uint16
	bits        uint16
	compression uint32
	imageSize   uint32
	colors      uint32
}

func (i info) bytes() []byte {
	b := binary.LittleEndian.AppendUint32(nil, i.size)
	if i.size == CoreHeader {
		b = binary.LittleEndian.AppendUint16(b, uint16(i.width))
		b = binary.LittleEndian.AppendUint16(b, uint16(i.height))
		b = binary.LittleEndian.AppendUint16(b, i.planes)
		return binary.LittleEndian.AppendUint16(b, i.bits)
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(i.width))
	b = binary.LittleEndian.AppendUint32(b, uint32(i.height))
	b = binary.LittleEndian.AppendUint16(b, i.planes)
	b = binary.LittleEndian.AppendUint16(b, i.bits)
	for _, v := range []uint32{i.compression, i.imageSize, 2835, 2835, i.colors, 0} {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return append(b, make([]byte, int(i.size)-len(b))...)
}

// build assembles a bitmap with the given DIB header, extra bytes between
// the header and the pixel array, and pixel data.
func build(dib info, extra, pixels []byte) []byte {
	hdr := dib.bytes()
	offset := fileHeaderLen + len(hdr) + len(extra)
	out := []byte("BM")
	out = binary.LittleEndian.AppendUint32(out, uint32(offset+len(pixels)))
	out = append(out, 0, 0, 0, 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(offset))
	out = append(out, hdr...)
	out = append(out, extra...)
	return append(out, pixels...)
}

// rgb2x2 is a 2x2 24-bit bitmap: two 6-byte rows padded to 8.
var rgb2x2 = info{size: InfoHeader, width: 2, height: 2, planes: 1, bits: 24}

func parse(data []byte) (*File, error) {
	return Parse(binutil.NewBytesCursor(data), types.Options{})
}

func TestParse_TrueColor(t *testing.T) {
	pixels := bytes.Repeat([]byte{0x10}, 16)
	data := build(rgb2x2, nil, pixels)

	f, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, types.FormatBMP, f.Format())
	assert.Equal(t, int32(2), f.Width)
	assert.Equal(t, uint16(24), f.BitCount)
	assert.Equal(t, "RGB", f.CompressionName())
	assert.False(t, f.TopDown())
	assert.Equal(t, uint32(54), f.PixelOffset)
	assert.Equal(t, pixels, f.Pixels)
	assert.Nil(t, f.Palette)
	assert.Equal(t, []string{"FileHeader", "DIB", "Pixels"}, f.Chunks().Tags())
	assert.Equal(t, int64(len(data)), f.Layout.End())
}

func TestParse_Indexed(t *testing.T) {
	dib := info{size: InfoHeader, width: 3, height: -2, planes: 1, bits: 8, colors: 3}
	palette := []byte{0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0xFF, 0}
	pixels := []byte{0, 1, 2, 0, 2, 1, 0, 0}

	f, err := parse(build(dib, palette, pixels))
	require.NoError(t, err)

	assert.True(t, f.TopDown())
	assert.Equal(t, palette, f.Palette)
	assert.Equal(t, pixels, f.Pixels)
	assert.Equal(t, []string{"FileHeader", "DIB", "Palette", "Pixels"}, f.Layout.Tags())
}

func TestParse_CoreHeader(t *testing.T) {
	dib := info{size: CoreHeader, width: 8, height: 1, planes: 1, bits: 1}
	palette := []byte{0, 0, 0, 0xFF, 0xFF, 0xFF}

	f, err := parse(build(dib, palette, []byte{0xAA, 0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, palette, f.Palette)
}

func TestParse_Bitfields(t *testing.T) {
	dib := info{size: InfoHeader, width: 1, height: 1, planes: 1, bits: 16, compression: CompressionBitfields}
	masks := binary.LittleEndian.AppendUint32(nil, 0xF800)
	masks = binary.LittleEndian.AppendUint32(masks, 0x07E0)
	masks = binary.LittleEndian.AppendUint32(masks, 0x001F)

	f, err := parse(build(dib, masks, []byte{0xFF, 0xFF, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xF800), f.RedMask)
	assert.Equal(t, uint32(0x001F), f.BlueMask)
	assert.Equal(t, []string{"FileHeader", "DIB", "Masks", "Pixels"}, f.Layout.Tags())
}

func TestParse_V5WithGap(t *testing.T) {
	dib := info{size: V5Header, width: 1, height: 1, planes: 1, bits: 32}
	data := build(dib, make([]byte, 10), []byte{1, 2, 3, 4})

	f, err := parse(data)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, f.Pixels)
	assert.Equal(t, int64(fileHeaderLen+V5Header+10), f.Layout[len(f.Layout)-1].Offset)
}

func TestParse_RLE(t *testing.T) {
	dib := info{size: InfoHeader, width: 4, height: 1, planes: 1, bits: 8, compression: CompressionRLE8, colors: 2}
	palette := make([]byte, 8)
	rle := []byte{4, 1, 0, 0, 0, 1}

	f, err := parse(build(dib, palette, rle))
	require.NoError(t, err)
	assert.Equal(t, rle, f.Pixels)
}

func TestParse_Errors(t *testing.T) {
	with := func(edit func(*info)) []byte {
		i := rgb2x2
		edit(&i)
		return build(i, nil, make([]byte, 16))
	}

	sizeTooBig := build(rgb2x2, nil, make([]byte, 16))
	binary.LittleEndian.PutUint32(sizeTooBig[2:], 1000)

	offsetInHeader := build(rgb2x2, nil, make([]byte, 16))
	binary.LittleEndian.PutUint32(offsetInHeader[10:], 40)

	tests := []struct {
		name string
		data []byte
		kind types.Kind
	}{
		{"bad signature", append([]byte("BA"), with(func(*info) {})[2:]...), types.InvalidSignature},
		{"file size over stream", sizeTooBig, types.LengthMismatch},
		{"header size", with(func(i *info) { i.size = 64 }), types.FieldOutOfRange},
		{"zero width", with(func(i *info) { i.width = 0 }), types.FieldOutOfRange},
		{"negative width", with(func(i *info) { i.width = -2 }), types.FieldOutOfRange},
		{"zero height", with(func(i *info) { i.height = 0 }), types.FieldOutOfRange},
		{"two planes", with(func(i *info) { i.planes = 2 }), types.FieldOutOfRange},
		{"bits per pixel", with(func(i *info) { i.bits = 12 }), types.FieldOutOfRange},
		{"compression", with(func(i *info) { i.compression = 7 }), types.FieldOutOfRange},
		{"RLE8 at 24 bits", with(func(i *info) { i.compression = CompressionRLE8 }), types.FieldOutOfRange},
		{"too many colours", with(func(i *info) { i.bits = 1; i.colors = 3 }), types.FieldOutOfRange},
		{"pixel offset inside headers", offsetInHeader, types.FieldOutOfRange},
		{"pixels truncated", build(rgb2x2, nil, make([]byte, 12)), types.UnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(tt.data)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestParse_PaletteOverlapsPixels(t *testing.T) {
	// 8-bit with no colour count needs 256 entries, but the pixel array
	// starts right after a 2-entry table.
	dib := info{size: InfoHeader, width: 4, height: 1, planes: 1, bits: 8}
	data := build(dib, make([]byte, 8), make([]byte, 4))

	_, err := parse(data)
	var pe *types.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, types.FieldOutOfRange, pe.Kind)
	assert.Equal(t, "pixel offset", pe.Field)
	assert.Equal(t, int64(10), pe.Offset)
}

func TestParse_MaxChunkLength(t *testing.T) {
	data := build(rgb2x2, nil, make([]byte, 16))

	_, err := Parse(binutil.NewBytesCursor(data), types.Options{MaxChunkLength: 8})
	assert.ErrorIs(t, err, types.LengthMismatch)
}

func TestParse_Truncated(t *testing.T) {
	dib := info{size: InfoHeader, width: 1, height: 1, planes: 1, bits: 1, colors: 2}
	data := build(dib, make([]byte, 8), []byte{0x80, 0, 0, 0})
	// the file size field would fail first on a sized source
	binary.LittleEndian.PutUint32(data[2:], 0)

	for cut := 0; cut < len(data); cut++ {
		_, err := parse(data[:cut])
		assert.ErrorIs(t, err, types.UnexpectedEOF, "cut at %d", cut)
	}
}
