package flac

import (
	"fmt"
	"strings"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/chunk"
	"github.com/CDRayn/binny/internal/types"
)

// Picture is a PICTURE block. Data is an owned copy of the image bytes.
type Picture struct {
	Type        uint32
	MIME        string
	Description string
	Width       uint32
	Height      uint32
	Depth       uint32
	Colors      uint32
	Data        []byte
}

// Picture types run 0 (other) through 20 (publisher logo).
const maxPictureType = 20

func parsePicture(raw chunk.Raw) (*Picture, error) {
	c, rebase := sub(raw)
	pic := &Picture{}

	var err error
	if pic.Type, err = binutil.ReadBE[uint32](c, "picture type"); err != nil {
		return nil, rebase(err)
	}
	if pic.Type > maxPictureType {
		return nil, raw.Field("picture type", "%d is not a defined picture type", pic.Type)
	}
	if pic.MIME, err = lengthPrefixed(c, "MIME type"); err != nil {
		return nil, rebase(err)
	}
	for i := 0; i < len(pic.MIME); i++ {
		if pic.MIME[i] < 0x20 || pic.MIME[i] > 0x7E {
			return nil, raw.Field("MIME type", "not printable ASCII: %q", pic.MIME)
		}
	}
	if pic.Description, err = lengthPrefixed(c, "description"); err != nil {
		return nil, rebase(err)
	}

	dims := make([]byte, 16)
	if err := c.ReadInto(dims, "picture dimensions"); err != nil {
		return nil, rebase(err)
	}
	f := binutil.NewFields(dims, binutil.BigEndian)
	pic.Width = binutil.Next[uint32](f)
	pic.Height = binutil.Next[uint32](f)
	pic.Depth = binutil.Next[uint32](f)
	pic.Colors = binutil.Next[uint32](f)

	n, err := binutil.ReadBE[uint32](c, "picture data length")
	if err != nil {
		return nil, rebase(err)
	}
	if pic.Data, err = c.ReadExact(int64(n), "picture data"); err != nil {
		return nil, rebase(err)
	}
	if err := exhausted(c, raw); err != nil {
		return nil, err
	}
	return pic, nil
}

func lengthPrefixed(c *binutil.Cursor, what string) (string, error) {
	n, err := binutil.ReadBE[uint32](c, what+" length")
	if err != nil {
		return "", err
	}
	return c.ReadString(int64(n), what)
}

// exhausted fails if bytes are left over in a block whose fields should
// account for every byte.
func exhausted(c *binutil.Cursor, raw chunk.Raw) error {
	if left, _ := c.Remaining(); left != 0 {
		return &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: raw.PayloadOffset + c.Position(),
			Tag:    raw.Tag,
			Reason: fmt.Sprintf("%d bytes left over after last field", left),
		}
	}
	return nil
}

// CueSheet is a CUESHEET block.
type CueSheet struct {
	CatalogNumber string
	LeadIn        uint64
	CD            bool
	Tracks        []CueTrack
}

// CueTrack is one track of a cue sheet.
type CueTrack struct {
	Offset      uint64 // samples from start of audio
	Number      uint8  // 1-99, or 170 for the CD lead-out
	ISRC        string
	Audio       bool
	PreEmphasis bool
	Indices     []CueIndex
}

// CueIndex is an index point within a track.
type CueIndex struct {
	Offset uint64 // samples from start of track
	Number uint8
}

const (
	cueHeaderLen = 128 + 8 + 1 + 258 + 1
	cueTrackLen  = 8 + 1 + 12 + 1 + 13 + 1
	cueIndexLen  = 8 + 1 + 3
	leadOut      = 170
)

func parseCueSheet(raw chunk.Raw) (*CueSheet, error) {
	if len(raw.Payload) < cueHeaderLen {
		return nil, raw.Error(types.LengthMismatch, "CUESHEET has %d bytes, need at least %d", len(raw.Payload), cueHeaderLen)
	}
	c, rebase := sub(raw)

	hdr := make([]byte, cueHeaderLen)
	if err := c.ReadInto(hdr, "cue sheet header"); err != nil {
		return nil, rebase(err)
	}
	cs := &CueSheet{
		CatalogNumber: strings.TrimRight(string(hdr[:128]), "\x00"),
		LeadIn:        binutil.Decode[uint64](hdr[128:], binutil.BigEndian),
		CD:            hdr[136]&0x80 != 0,
	}
	count := int(hdr[cueHeaderLen-1])
	if count == 0 {
		return nil, raw.Field("track count", "cue sheet has no tracks")
	}
	if cs.CD && count > 100 {
		return nil, raw.Field("track count", "%d tracks exceeds the CD limit of 100", count)
	}

	for i := 0; i < count; i++ {
		at := raw.PayloadOffset + c.Position()
		b := make([]byte, cueTrackLen)
		if err := c.ReadInto(b, "cue track"); err != nil {
			return nil, rebase(err)
		}
		tr := CueTrack{
			Offset:      binutil.Decode[uint64](b, binutil.BigEndian),
			Number:      b[8],
			ISRC:        strings.TrimRight(string(b[9:21]), "\x00"),
			Audio:       b[21]&0x80 == 0,
			PreEmphasis: b[21]&0x40 != 0,
		}
		last := i == count-1
		switch {
		case tr.Number == 0:
			return nil, trackErr(at, "track number 0 is not allowed")
		case last && cs.CD && tr.Number != leadOut:
			return nil, trackErr(at, "last CD track must be the lead-out (170), got %d", tr.Number)
		case !last && cs.CD && tr.Number > 99:
			return nil, trackErr(at, "CD track number %d outside 1..99", tr.Number)
		}

		n := int(b[cueTrackLen-1])
		for j := 0; j < n; j++ {
			ib := make([]byte, cueIndexLen)
			if err := c.ReadInto(ib, "cue index"); err != nil {
				return nil, rebase(err)
			}
			tr.Indices = append(tr.Indices, CueIndex{
				Offset: binutil.Decode[uint64](ib, binutil.BigEndian),
				Number: ib[8],
			})
		}
		cs.Tracks = append(cs.Tracks, tr)
	}

	if err := exhausted(c, raw); err != nil {
		return nil, err
	}
	return cs, nil
}

func trackErr(at int64, format string, args ...any) error {
	return &types.ParseError{
		Kind:   types.FieldOutOfRange,
		Offset: at,
		Tag:    "CUESHEET",
		Field:  "track number",
		Reason: fmt.Sprintf(format, args...),
	}
}
