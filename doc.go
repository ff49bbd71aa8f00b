// Package binny parses and structurally validates binary media containers:
// PNG, JPEG, GIF, BMP, TIFF, WAV, FLAC and MP3.
//
// binny is not a decoder. It walks the framing of a file (signatures,
// chunk and segment tables, metadata blocks, frame headers), checks every
// structural rule it knows about and returns either a typed model of that
// structure or the first violation it found. Compressed audio and image
// payloads are kept as opaque owned byte ranges.
//
// # Quick Start
//
//	f, err := os.Open("photo.png")
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//
//	model, err := binny.Parse(f)
//	if err != nil {
//		var pe *binny.ParseError
//		if errors.As(err, &pe) {
//			fmt.Printf("%s at offset %d\n", pe.Kind, pe.Offset)
//		}
//		return err
//	}
//	fmt.Println(model.Format(), model.Chunks().Tags())
//
// When the format is known up front, ParseAs returns the concrete model:
//
//	png, err := binny.ParseAs[*binny.PNGFile](f)
//	fmt.Println(png.Width, png.Height)
//
// # Errors
//
// Every failure is a *ParseError carrying a Kind from a closed set, the
// byte offset where it was detected and, where it applies, the chunk tag
// and field name. Kinds work directly with errors.Is:
//
//	if errors.Is(err, binny.ChecksumMismatch) { ... }
//
// Failures of the byte source itself are reported as SourceError and wrap
// the underlying error, so a malformed file can be told apart from an I/O
// failure or a cancelled context.
//
// # Concurrency
//
// A parse owns its source for its whole duration and shares nothing with
// other parses. ParseMany runs independent parses in parallel.
package binny
