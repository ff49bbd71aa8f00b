// Package registry holds the closed table of supported formats: how each
// is recognized from its leading bytes and which parser validates it.
package registry

import (
	"bytes"
	"fmt"
	"log/slog"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/bmp"
	"github.com/CDRayn/binny/internal/flac"
	"github.com/CDRayn/binny/internal/gif"
	"github.com/CDRayn/binny/internal/jpeg"
	"github.com/CDRayn/binny/internal/mp3"
	"github.com/CDRayn/binny/internal/png"
	"github.com/CDRayn/binny/internal/tiff"
	"github.com/CDRayn/binny/internal/types"
	"github.com/CDRayn/binny/internal/wav"
)

// SniffLen is the number of leading bytes detection looks at.
const SniffLen = 16

// Parser validates one format from a cursor positioned at the start of
// the stream.
type Parser func(c *binutil.Cursor, opts types.Options) (types.Model, error)

type entry struct {
	format types.Format
	match  func(lead []byte) bool
	parse  Parser
}

// table is checked in order. MP3 comes last because a bare frame sync is
// the weakest signature.
var table = []entry{
	{types.FormatPNG, prefix(png.Signature), adapt(png.Parse)},
	{types.FormatJPEG, prefix(jpeg.SOI), adapt(jpeg.Parse)},
	{types.FormatGIF, func(b []byte) bool { return prefix(gif.Magic87a)(b) || prefix(gif.Magic89a)(b) }, adapt(gif.Parse)},
	{types.FormatBMP, prefix(bmp.Magic), adapt(bmp.Parse)},
	{types.FormatTIFF, func(b []byte) bool { return prefix(tiff.MagicLE)(b) || prefix(tiff.MagicBE)(b) }, adapt(tiff.Parse)},
	{types.FormatWAV, isWAVE, adapt(wav.Parse)},
	{types.FormatFLAC, prefix(flac.Magic), adapt(flac.Parse)},
	{types.FormatMP3, isMPEG, adapt(mp3.Parse)},
}

// adapt turns a format parser into a Parser. A failed parse yields a nil
// interface, never an interface holding a nil model.
func adapt[M types.Model](parse func(*binutil.Cursor, types.Options) (M, error)) Parser {
	return func(c *binutil.Cursor, opts types.Options) (types.Model, error) {
		m, err := parse(c, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

func prefix(sig []byte) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, sig) }
}

func isWAVE(b []byte) bool {
	return len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE"))
}

func isMPEG(b []byte) bool {
	if bytes.HasPrefix(b, []byte("ID3")) {
		return true
	}
	return len(b) >= 2 && b[0] == 0xFF && b[1]&0xE0 == 0xE0
}

// Match returns the format whose signature lead starts with, or
// FormatUnknown.
func Match(lead []byte) types.Format {
	for _, e := range table {
		if e.match(lead) {
			return e.format
		}
	}
	return types.FormatUnknown
}

// Detect peeks at the leading bytes of c without consuming them and
// returns the matching format. It fails with InvalidSignature if nothing
// matches.
func Detect(c *binutil.Cursor) (types.Format, error) {
	at := c.Position()
	lead, err := c.PeekUpTo(SniffLen, "signature")
	if err != nil {
		return types.FormatUnknown, err
	}
	if f := Match(lead); f != types.FormatUnknown {
		return f, nil
	}
	return types.FormatUnknown, &types.ParseError{
		Kind:   types.InvalidSignature,
		Offset: at,
		Reason: fmt.Sprintf("leading bytes % x match no supported format", lead),
	}
}

// Get returns the parser for a format, or nil if the format is not supported.
func Get(f types.Format) Parser {
	for _, e := range table {
		if e.format == f {
			return e.parse
		}
	}
	return nil
}

// Parse detects the format of c and runs its parser. A non-zero hint
// selects the parser directly; if the leading bytes positively identify a
// different format the parse fails with InvalidSignature.
func Parse(c *binutil.Cursor, hint types.Format, opts types.Options) (types.Model, error) {
	opts = opts.Normalize()

	model, err := dispatch(c, hint, opts)
	if err != nil {
		opts.Logger.Debug("parse failed",
			slog.String("format", hint.String()),
			slog.String("kind", types.KindOf(err).String()),
			slog.Any("error", err),
		)
		return nil, err
	}
	return model, nil
}

func dispatch(c *binutil.Cursor, hint types.Format, opts types.Options) (types.Model, error) {
	detected, err := Detect(c)
	if hint == types.FormatUnknown {
		if err != nil {
			return nil, err
		}
		return Get(detected)(c, opts)
	}

	parse := Get(hint)
	if parse == nil {
		return nil, &types.ParseError{
			Kind:   types.InvalidSignature,
			Offset: c.Position(),
			Reason: fmt.Sprintf("no parser for format %d", int(hint)),
		}
	}
	if types.KindOf(err) == types.SourceError {
		return nil, err
	}
	if detected != types.FormatUnknown && detected != hint {
		return nil, &types.ParseError{
			Kind:   types.InvalidSignature,
			Format: hint,
			Offset: c.Position(),
			Reason: fmt.Sprintf("expected %s, leading bytes identify %s", hint, detected),
		}
	}
	return parse(c, opts)
}
