package chunk

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

var riffRules = Rules{
	Header:   TagLength{TagWidth: 4, LengthWidth: 4, Order: binutil.LittleEndian},
	Align:    2,
	Limit:    -1,
	AllowEOF: true,
}

var pngRules = Rules{
	Header:   LengthTag{TagWidth: 4, LengthWidth: 4, Order: binutil.BigEndian},
	Checksum: CRC32,
	Limit:    -1,
	Stop:     func(tag string) bool { return tag == "IEND" },
}

func riffChunk(tag string, payload []byte) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString(tag)
	binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)
	if len(payload)%2 == 1 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func crcChunk(tag string, payload []byte) []byte {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, uint32(len(payload)))
	buf.WriteString(tag)
	buf.Write(payload)
	binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(append([]byte(tag), payload...)))
	return buf.Bytes()
}

func collect(data []byte, rules Rules) (types.Layout, map[string][]byte, error) {
	payloads := map[string][]byte{}
	layout, err := Walk(binutil.NewBytesCursor(data), rules, func(raw Raw) error {
		payloads[raw.Tag] = bytes.Clone(raw.Payload)
		return nil
	})
	return layout, payloads, err
}

func TestWalk_RIFFPadding(t *testing.T) {
	data := append(riffChunk("odd ", []byte{1, 2, 3}), riffChunk("even", []byte{4, 5})...)

	layout, payloads, err := collect(data, riffRules)
	require.NoError(t, err)

	require.Len(t, layout, 2)
	assert.Equal(t, []string{"odd ", "even"}, layout.Tags())
	assert.Equal(t, int64(1), layout[0].Pad)
	assert.Equal(t, int64(12), layout[1].Offset)
	assert.Equal(t, int64(len(data)), layout.End())
	assert.Equal(t, []byte{1, 2, 3}, payloads["odd "])
	assert.Equal(t, []byte{4, 5}, payloads["even"])
}

func TestWalk_Checksum(t *testing.T) {
	data := append(crcChunk("abCD", []byte("hello")), crcChunk("IEND", nil)...)

	layout, _, err := collect(data, pngRules)
	require.NoError(t, err)
	assert.Equal(t, []string{"abCD", "IEND"}, layout.Tags())
	assert.Equal(t, int64(4), layout[0].TrailerLen)
}

func TestWalk_ChecksumUsesBytesRead(t *testing.T) {
	data := append(crcChunk("abCD", []byte("hello")), crcChunk("IEND", nil)...)
	data[8] ^= 0x01 // flip a payload bit, keep the stored CRC

	_, _, err := collect(data, pngRules)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ChecksumMismatch)

	var pe *types.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "abCD", pe.Tag)
	assert.Equal(t, int64(13), pe.Offset)
}

func TestWalk_StopAtTerminator(t *testing.T) {
	data := append(crcChunk("IEND", nil), crcChunk("junk", []byte{1})...)

	layout, _, err := collect(data, pngRules)
	require.NoError(t, err)
	assert.Equal(t, []string{"IEND"}, layout.Tags())
}

func TestWalk_Limit(t *testing.T) {
	data := append(riffChunk("aaaa", []byte{1, 2}), riffChunk("bbbb", []byte{3, 4})...)

	rules := riffRules
	rules.AllowEOF = false
	rules.Limit = 10

	layout, _, err := collect(data, rules)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaa"}, layout.Tags())

	rules.Limit = 14
	_, _, err = collect(data, rules)
	assert.ErrorIs(t, err, types.LengthMismatch)
}

func TestWalk_MaxLength(t *testing.T) {
	data := riffChunk("big ", make([]byte, 100))

	rules := riffRules
	rules.MaxLength = 64

	_, _, err := collect(data, rules)
	assert.ErrorIs(t, err, types.LengthMismatch)
}

func TestWalk_ValidateTag(t *testing.T) {
	data := riffChunk("a\x00bc", []byte{1, 2})

	rules := riffRules
	rules.ValidateTag = PrintableTag

	_, _, err := collect(data, rules)
	assert.ErrorIs(t, err, types.InvalidTag)
}

func TestWalk_HandlerErrorAborts(t *testing.T) {
	data := append(riffChunk("aaaa", []byte{1, 2}), riffChunk("bbbb", []byte{3, 4})...)

	calls := 0
	_, err := Walk(binutil.NewBytesCursor(data), riffRules, func(raw Raw) error {
		calls++
		return raw.Field("value", "rejected")
	})
	assert.ErrorIs(t, err, types.FieldOutOfRange)
	assert.Equal(t, 1, calls)
}

func TestWalk_TruncatedEverywhere(t *testing.T) {
	data := append(crcChunk("abCD", []byte("hello")), crcChunk("IEND", nil)...)

	for cut := 1; cut < len(data); cut++ {
		src := iotest.OneByteReader(bytes.NewReader(data[:cut]))
		_, err := Walk(binutil.NewCursor(src, -1), pngRules, func(Raw) error { return nil })
		assert.ErrorIs(t, err, types.UnexpectedEOF, "cut at %d", cut)
	}
}

func TestWalk_PayloadIsBorrowed(t *testing.T) {
	data := append(riffChunk("aaaa", []byte{1, 2}), riffChunk("bbbb", []byte{3, 4})...)

	var kept [][]byte
	_, err := Walk(binutil.NewBytesCursor(data), riffRules, func(raw Raw) error {
		kept = append(kept, raw.Payload)
		return nil
	})
	require.NoError(t, err)

	// Both views share the scratch buffer; retaining without a copy is a bug
	// the handler must avoid.
	assert.Equal(t, kept[0], kept[1])
}

func TestWriteFraming_RoundTrip(t *testing.T) {
	data := append(crcChunk("IHDR", make([]byte, 13)), crcChunk("IDAT", []byte{1, 2, 3})...)
	data = append(data, crcChunk("IEND", nil)...)

	layout, _, err := collect(data, pngRules)
	require.NoError(t, err)

	var want bytes.Buffer
	for _, ch := range layout {
		want.Write(data[ch.Offset : ch.Offset+ch.HeaderLen])
	}

	var got bytes.Buffer
	require.NoError(t, WriteFraming(&got, pngRules.Header, layout))
	assert.Equal(t, want.Bytes(), got.Bytes())
}

func TestWriteFraming_RejectsBadTag(t *testing.T) {
	layout := types.Layout{{Tag: "toolong", Length: 1}}
	err := WriteFraming(io.Discard, riffRules.Header, layout)
	assert.Error(t, err)
}
