package types

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Chunk describes one validated chunk/segment/block as it sits on the wire.
//
// The on-wire extent is Offset .. Offset+Size(). Payload bytes are not kept
// here; models copy out what they retain.
type Chunk struct {
	Tag string // Format-defined identifier ("IHDR", "fmt ", "SOF0", "STREAMINFO")

	Offset     int64 // Position of the chunk header in the stream
	HeaderLen  int64 // Bytes of tag/length framing before the payload
	Length     int64 // Declared payload length
	TrailerLen int64 // Bytes after the payload (PNG CRC)
	Pad        int64 // Alignment padding after the trailer (RIFF)
}

// PayloadOffset returns the stream offset of the first payload byte.
func (c Chunk) PayloadOffset() int64 {
	return c.Offset + c.HeaderLen
}

// Size returns the total number of bytes the chunk occupies, framing included.
func (c Chunk) Size() int64 {
	return c.HeaderLen + c.Length + c.TrailerLen + c.Pad
}

// End returns the stream offset just past the chunk.
func (c Chunk) End() int64 {
	return c.Offset + c.Size()
}

// Layout is the ordered chunk table of a parsed container.
type Layout []Chunk

// Tags returns the chunk tags in stream order.
func (l Layout) Tags() []string {
	tags := make([]string, len(l))
	for i, c := range l {
		tags[i] = c.Tag
	}
	return tags
}

// Count returns how many chunks carry the given tag.
func (l Layout) Count(tag string) int {
	n := 0
	for _, c := range l {
		if c.Tag == tag {
			n++
		}
	}
	return n
}

// End returns the offset just past the last chunk, or 0 for an empty layout.
func (l Layout) End() int64 {
	if len(l) == 0 {
		return 0
	}
	return l[len(l)-1].End()
}

// Fingerprint hashes the framing (tags and lengths, in order) of the layout.
//
// Two files with identical container structure share a fingerprint even when
// their payload bytes differ.
func (l Layout) Fingerprint() uint64 {
	d := xxhash.New()
	var n [8]byte
	for _, c := range l {
		_, _ = d.Write([]byte{byte(len(c.Tag))})
		_, _ = d.WriteString(c.Tag)
		binary.BigEndian.PutUint64(n[:], uint64(c.Length))
		_, _ = d.Write(n[:])
	}
	return d.Sum64()
}

// Model is implemented by every per-format structural model.
type Model interface {
	// Format identifies the container format of the model.
	Format() Format
	// Chunks returns the validated chunk/segment table in stream order.
	Chunks() Layout
}
