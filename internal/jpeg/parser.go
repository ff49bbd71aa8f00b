// Package jpeg validates the marker structure of JPEG/JFIF images.
//
// The marker segments are walked with the shared chunk engine. Entropy-coded
// data following each SOS segment is scanned only to find the next marker; it
// is kept as an owned byte range and never decoded.
package jpeg

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/chunk"
	"github.com/CDRayn/binny/internal/types"
)

// SOI is the start-of-image marker every JPEG begins with.
var SOI = []byte{0xFF, markerSOI}

// Component is one image component declared by the frame header.
type Component struct {
	ID         uint8
	H, V       uint8 // sampling factors
	QuantTable uint8
}

// Frame is the decoded SOFn segment.
type Frame struct {
	Marker     string // "SOF0", "SOF2", ...
	Precision  uint8
	Height     uint16 // 0 means defined later by DNL
	Width      uint16
	Components []Component
}

// Progressive reports whether the frame uses progressive DCT.
func (f *Frame) Progressive() bool {
	switch f.Marker {
	case "SOF2", "SOF6", "SOF10", "SOF14":
		return true
	}
	return false
}

// ScanComponent selects a frame component and its entropy tables.
type ScanComponent struct {
	Selector uint8
	DCTable  uint8
	ACTable  uint8
}

// Scan is one SOS segment together with the entropy-coded data after it.
type Scan struct {
	Components []ScanComponent
	Ss, Se     uint8 // spectral selection
	Ah, Al     uint8 // successive approximation

	Offset     int64 // of the SOS marker
	DataOffset int64
	// Data is an owned copy of the entropy-coded bytes, including stuffed
	// zeros and restart markers.
	Data     []byte
	Restarts int
}

// App records the identifier of an APPn segment.
type App struct {
	Marker     string // "APP0", "APP1", ...
	Identifier string // "JFIF", "Exif", ... (empty if none)
	Length     int64
}

// File is the structural model of a JPEG image.
type File struct {
	// Layout lists every marker segment in stream order, SOI and EOI
	// included. Entropy-coded data is not part of the layout; see Scans.
	Layout types.Layout

	Frame           *Frame
	Scans           []Scan
	Apps            []App
	Comments        []string
	RestartInterval uint16
}

// Format implements types.Model.
func (f *File) Format() types.Format { return types.FormatJPEG }

// Chunks implements types.Model.
func (f *File) Chunks() types.Layout { return f.Layout }

// HeaderCodec is the JPEG marker framing.
var HeaderCodec = MarkerCodec{}

// Parse validates a JPEG stream read from c.
func Parse(c *binutil.Cursor, opts types.Options) (*File, error) {
	opts = opts.Normalize()
	m := types.NewMachine(types.FormatJPEG)

	soiAt := c.Position()
	if err := c.Expect(SOI, "start-of-image marker"); err != nil {
		return nil, m.Fail(err)
	}
	m.Advance(types.StateSignatureVerified)

	p := &walker{file: &File{
		Layout: types.Layout{{Tag: "SOI", Offset: soiAt, HeaderLen: 2}},
	}}
	rules := chunk.Rules{
		Format:    types.FormatJPEG,
		Header:    HeaderCodec,
		Limit:     -1,
		MaxLength: opts.MaxChunkLength,
		Stop:      func(tag string) bool { return tag == "SOS" || tag == "EOI" },
		Logger:    opts.Logger,
	}

	m.Advance(types.StateBodyWalking)
	for {
		layout, err := chunk.Walk(c, rules, p.handle)
		if err != nil {
			return nil, m.Fail(err)
		}
		p.file.Layout = append(p.file.Layout, layout...)

		if layout[len(layout)-1].Tag == "EOI" {
			break
		}
		if err := p.entropy(c); err != nil {
			return nil, m.Fail(err)
		}
		s := p.file.Scans[len(p.file.Scans)-1]
		opts.Logger.Debug("entropy-coded data",
			slog.Int64("offset", s.DataOffset),
			slog.Int("length", len(s.Data)),
			slog.Int("restarts", s.Restarts),
		)
	}

	if err := p.finish(c.Position()); err != nil {
		return nil, m.Fail(err)
	}

	m.Advance(types.StateBodyComplete)
	return p.file, nil
}

type walker struct {
	file *File
}

func (p *walker) handle(raw chunk.Raw) error {
	code := markerCodes[raw.Tag]

	switch {
	case code == markerSOI:
		return raw.Error(types.InvalidTag, "SOI inside image")

	case code >= markerRST && code <= markerRST+7:
		return raw.Error(types.InvalidTag, "restart marker outside entropy-coded data")

	case reserved(code):
		return raw.Error(types.InvalidTag, "reserved marker")

	case isSOF(code):
		if p.file.Frame != nil {
			return raw.Error(types.DuplicateMandatoryChunk, "second frame header %s after %s", raw.Tag, p.file.Frame.Marker)
		}
		return p.frame(raw)

	case code == markerSOS:
		if p.file.Frame == nil {
			return raw.Error(types.InvalidTag, "SOS before frame header")
		}
		return p.scan(raw)

	case code == markerDQT:
		return p.quant(raw)

	case code == markerDHT:
		return p.huffman(raw)

	case code == markerDRI:
		if len(raw.Payload) != 2 {
			return raw.Error(types.LengthMismatch, "DRI must be 2 bytes, has %d", len(raw.Payload))
		}
		p.file.RestartInterval = binutil.Decode[uint16](raw.Payload, binutil.BigEndian)
		return nil

	case code == markerDNL:
		if len(raw.Payload) != 2 {
			return raw.Error(types.LengthMismatch, "DNL must be 2 bytes, has %d", len(raw.Payload))
		}
		if len(p.file.Scans) == 0 {
			return raw.Error(types.InvalidTag, "DNL before first scan")
		}
		return nil

	case code >= markerAPP && code <= markerAPP+15:
		p.file.Apps = append(p.file.Apps, App{
			Marker:     raw.Tag,
			Identifier: identifier(raw.Payload),
			Length:     int64(len(raw.Payload)),
		})
		return nil

	case code == markerCOM:
		p.file.Comments = append(p.file.Comments, string(raw.Payload))
		return nil
	}
	return nil
}

// identifier returns the NUL-terminated ASCII prefix of an APPn payload.
func identifier(payload []byte) string {
	id, _, ok := bytes.Cut(payload[:min(len(payload), 32)], []byte{0})
	if !ok {
		return ""
	}
	for _, b := range id {
		if b < 0x20 || b > 0x7E {
			return ""
		}
	}
	return string(id)
}

func (p *walker) frame(raw chunk.Raw) error {
	if len(raw.Payload) < 6 {
		return raw.Error(types.LengthMismatch, "frame header has %d bytes, need 6", len(raw.Payload))
	}
	f := binutil.NewFields(raw.Payload, binutil.BigEndian)
	fr := &Frame{
		Marker:    raw.Tag,
		Precision: binutil.Next[uint8](f),
		Height:    binutil.Next[uint16](f),
		Width:     binutil.Next[uint16](f),
	}
	n := int(binutil.Next[uint8](f))

	if want := 6 + 3*n; len(raw.Payload) != want {
		return raw.Error(types.LengthMismatch, "frame header with %d components must be %d bytes, has %d", n, want, len(raw.Payload))
	}
	switch {
	case !slices.Contains([]uint8{8, 12, 16}, fr.Precision):
		return raw.Field("precision", "%d not in {8, 12, 16}", fr.Precision)
	case fr.Width == 0:
		return raw.Field("width", "must be non-zero")
	case n < 1 || n > 4:
		return raw.Field("components", "%d outside 1..4", n)
	}

	for i := 0; i < n; i++ {
		id := binutil.Next[uint8](f)
		hv := binutil.Next[uint8](f)
		comp := Component{ID: id, H: hv >> 4, V: hv & 0x0F, QuantTable: binutil.Next[uint8](f)}
		if comp.H < 1 || comp.H > 4 || comp.V < 1 || comp.V > 4 {
			return raw.Field("sampling factor", "component %d has %dx%d", id, comp.H, comp.V)
		}
		if comp.QuantTable > 3 {
			return raw.Field("quantization table", "component %d selects table %d", id, comp.QuantTable)
		}
		if slices.ContainsFunc(fr.Components, func(c Component) bool { return c.ID == id }) {
			return raw.Field("component id", "%d declared twice", id)
		}
		fr.Components = append(fr.Components, comp)
	}

	p.file.Frame = fr
	return nil
}

func (p *walker) scan(raw chunk.Raw) error {
	if len(raw.Payload) < 1 {
		return raw.Error(types.LengthMismatch, "empty SOS segment")
	}
	n := int(raw.Payload[0])
	if n < 1 || n > 4 {
		return raw.Field("scan components", "%d outside 1..4", n)
	}
	if want := 1 + 2*n + 3; len(raw.Payload) != want {
		return raw.Error(types.LengthMismatch, "SOS with %d components must be %d bytes, has %d", n, want, len(raw.Payload))
	}

	f := binutil.NewFields(raw.Payload, binutil.BigEndian)
	f.Skip(1)
	s := Scan{Offset: raw.Offset}
	for i := 0; i < n; i++ {
		sel := binutil.Next[uint8](f)
		tables := binutil.Next[uint8](f)
		if !slices.ContainsFunc(p.file.Frame.Components, func(c Component) bool { return c.ID == sel }) {
			return raw.Field("component selector", "%d not declared by the frame", sel)
		}
		s.Components = append(s.Components, ScanComponent{Selector: sel, DCTable: tables >> 4, ACTable: tables & 0x0F})
	}
	s.Ss = binutil.Next[uint8](f)
	s.Se = binutil.Next[uint8](f)
	a := binutil.Next[uint8](f)
	s.Ah, s.Al = a>>4, a&0x0F

	if s.Ss > 63 || s.Se > 63 || s.Ss > s.Se {
		return raw.Field("spectral selection", "%d..%d", s.Ss, s.Se)
	}

	p.file.Scans = append(p.file.Scans, s)
	return nil
}

func (p *walker) quant(raw chunk.Raw) error {
	for rest := raw.Payload; len(rest) > 0; {
		pq, tq := rest[0]>>4, rest[0]&0x0F
		if pq > 1 {
			return raw.Field("table precision", "%d, want 0 or 1", pq)
		}
		if tq > 3 {
			return raw.Field("table id", "%d, want 0..3", tq)
		}
		size := 1 + 64*(1+int(pq))
		if len(rest) < size {
			return raw.Error(types.LengthMismatch, "quantization table %d truncated", tq)
		}
		rest = rest[size:]
	}
	return nil
}

func (p *walker) huffman(raw chunk.Raw) error {
	for rest := raw.Payload; len(rest) > 0; {
		if len(rest) < 17 {
			return raw.Error(types.LengthMismatch, "huffman table header truncated")
		}
		tc, th := rest[0]>>4, rest[0]&0x0F
		if tc > 1 || th > 3 {
			return raw.Field("huffman table", "class %d id %d", tc, th)
		}
		symbols := 0
		for _, n := range rest[1:17] {
			symbols += int(n)
		}
		if len(rest) < 17+symbols {
			return raw.Error(types.LengthMismatch, "huffman table declares %d symbols, %d present", symbols, len(rest)-17)
		}
		rest = rest[17+symbols:]
	}
	return nil
}

// entropy consumes the entropy-coded data after an SOS segment, stopping in
// front of the first marker that is neither a restart marker nor a stuffed
// zero.
func (p *walker) entropy(c *binutil.Cursor) error {
	s := &p.file.Scans[len(p.file.Scans)-1]
	s.DataOffset = c.Position()
	var data bytes.Buffer

	for {
		window, err := c.PeekUpTo(binutil.PeekLimit, "entropy-coded data")
		if err != nil {
			return err
		}
		if len(window) == 0 {
			return &types.ParseError{
				Kind:   types.UnexpectedEOF,
				Offset: c.Position(),
				Tag:    "SOS",
				Reason: "stream ended inside entropy-coded data",
			}
		}

		i := bytes.IndexByte(window, 0xFF)
		if i < 0 {
			data.Write(window)
			if err := c.Skip(int64(len(window)), "entropy-coded data"); err != nil {
				return err
			}
			continue
		}
		if i > 0 {
			data.Write(window[:i])
			if err := c.Skip(int64(i), "entropy-coded data"); err != nil {
				return err
			}
		}

		pair, err := c.Peek(2, "marker after entropy-coded data")
		if err != nil {
			return withTag(err, "SOS")
		}
		next := pair[1]
		switch {
		case next == 0x00:
			data.Write(pair)
			if err := c.Skip(2, "stuffed byte"); err != nil {
				return err
			}
		case next >= markerRST && next <= markerRST+7:
			data.Write(pair)
			s.Restarts++
			if err := c.Skip(2, "restart marker"); err != nil {
				return err
			}
		default:
			s.Data = data.Bytes()
			return nil
		}
	}
}

func withTag(err error, tag string) error {
	if pe, ok := err.(*types.ParseError); ok && pe.Tag == "" {
		pe.Tag = tag
	}
	return err
}

func (p *walker) finish(at int64) error {
	missing := func(tag, reason string) error {
		return &types.ParseError{Kind: types.MissingMandatoryChunk, Offset: at, Tag: tag, Reason: reason}
	}
	if p.file.Frame == nil {
		return missing("SOF", "image has no frame header")
	}
	if len(p.file.Scans) == 0 {
		return missing("SOS", "image has no scan")
	}
	return nil
}

// String returns a one-line summary of the frame.
func (f *Frame) String() string {
	return fmt.Sprintf("%s %dx%d %d-bit, %d components", f.Marker, f.Width, f.Height, f.Precision, len(f.Components))
}
