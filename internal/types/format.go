package types

// Format represents a container format the library can validate.
type Format int

const (
	// FormatUnknown represents an unknown or unsupported format.
	FormatUnknown Format = iota // Unknown
	// FormatPNG represents PNG images.
	FormatPNG // PNG
	// FormatJPEG represents JPEG/JFIF images.
	FormatJPEG // JPEG
	// FormatGIF represents GIF87a/GIF89a images.
	FormatGIF // GIF
	// FormatBMP represents Windows bitmap images.
	FormatBMP // BMP
	// FormatTIFF represents TIFF images in either byte order.
	FormatTIFF // TIFF
	// FormatWAV represents RIFF/WAVE audio.
	FormatWAV // WAV
	// FormatFLAC represents native FLAC streams.
	FormatFLAC // FLAC
	// FormatMP3 represents MPEG audio streams, with or without ID3 tags.
	FormatMP3 // MP3
)

var formatNames = [...]string{
	FormatUnknown: "Unknown",
	FormatPNG:     "PNG",
	FormatJPEG:    "JPEG",
	FormatGIF:     "GIF",
	FormatBMP:     "BMP",
	FormatTIFF:    "TIFF",
	FormatWAV:     "WAV",
	FormatFLAC:    "FLAC",
	FormatMP3:     "MP3",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return formatNames[FormatUnknown]
	}
	return formatNames[f]
}

// Formats lists every supported format in dispatch order.
func Formats() []Format {
	return []Format{FormatPNG, FormatJPEG, FormatGIF, FormatBMP, FormatTIFF, FormatWAV, FormatFLAC, FormatMP3}
}

// Extensions returns common file extensions for this format.
func (f Format) Extensions() []string {
	switch f {
	case FormatPNG:
		return []string{".png"}
	case FormatJPEG:
		return []string{".jpg", ".jpeg", ".jpe", ".jfif"}
	case FormatGIF:
		return []string{".gif"}
	case FormatBMP:
		return []string{".bmp", ".dib"}
	case FormatTIFF:
		return []string{".tif", ".tiff"}
	case FormatWAV:
		return []string{".wav"}
	case FormatFLAC:
		return []string{".flac"}
	case FormatMP3:
		return []string{".mp3"}
	default:
		return nil
	}
}

// MIMEType returns the registered media type for this format.
func (f Format) MIMEType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	case FormatWAV:
		return "audio/wav"
	case FormatFLAC:
		return "audio/flac"
	case FormatMP3:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
