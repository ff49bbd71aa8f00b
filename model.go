package binny

import (
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

// Model is the structural model of a parsed file. Type-switch on it, or
// use ParseAs, to reach the format-specific fields.
type Model = types.Model

// Chunk locates one framed unit of a file.
type Chunk = types.Chunk

// Layout is the ordered list of chunks a parse walked.
type Layout = types.Layout

// Format-specific models.
type (
	PNGFile  = png.File
	JPEGFile = jpeg.File
	GIFFile  = gif.File
	BMPFile  = bmp.File
	TIFFFile = tiff.File
	WAVFile  = wav.File
	FLACFile = flac.File
	MP3File  = mp3.File
)
