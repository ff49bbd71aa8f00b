package binny

import (
	"bytes"
	"io"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/registry"
	"github.com/CDRayn/binny/internal/types"
)

// Format identifies a supported container format.
type Format = types.Format

// Supported formats.
const (
	FormatUnknown = types.FormatUnknown
	FormatPNG     = types.FormatPNG
	FormatJPEG    = types.FormatJPEG
	FormatGIF     = types.FormatGIF
	FormatBMP     = types.FormatBMP
	FormatTIFF    = types.FormatTIFF
	FormatWAV     = types.FormatWAV
	FormatFLAC    = types.FormatFLAC
	FormatMP3     = types.FormatMP3
)

// Formats lists every supported format in detection order.
func Formats() []Format {
	return types.Formats()
}

// Match returns the format whose signature lead begins with, or
// FormatUnknown. Sixteen bytes are always enough.
func Match(lead []byte) Format {
	return registry.Match(lead)
}

// Detect reads up to 16 leading bytes from r and identifies the format.
//
// Detect consumes what it reads. The returned reader yields the whole
// stream, sniffed bytes included, so it can be handed to Parse.
//
// Example:
//
//	format, r, err := binny.Detect(conn)
//	if err != nil {
//		return err
//	}
//	model, err := binny.Parse(r, binny.WithFormat(format))
func Detect(r io.Reader) (Format, io.Reader, error) {
	lead := make([]byte, registry.SniffLen)
	n, err := io.ReadFull(r, lead)
	lead = lead[:n]
	replay := io.MultiReader(bytes.NewReader(lead), r)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return FormatUnknown, replay, &ParseError{Kind: SourceError, Offset: int64(n), Err: err}
	}

	f, err := registry.Detect(binutil.NewBytesCursor(lead))
	return f, replay, err
}
