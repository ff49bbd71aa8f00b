// Package tiff validates the header and image file directories of TIFF
// files in either byte order.
//
// Directories are read strictly front to back. A directory offset that
// points behind the bytes already consumed is rejected, which also rules
// out cycles in the chain. Values stored outside their entries are bounds
// checked against the stream length when it is known but not read.
package tiff

import (
	"fmt"
	"slices"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/chunk"
	"github.com/CDRayn/binny/internal/types"
)

// Byte order marks
var (
	MagicLE = []byte{'I', 'I', 42, 0}
	MagicBE = []byte{'M', 'M', 0, 42}
)

const headerLen = 8

// File is the structural model of a TIFF file.
type File struct {
	Order  binutil.Endianness
	Layout types.Layout

	// IFDs in stream order. IFDs[0] is always IFD0.
	IFDs []IFD

	Width           uint32
	Height          uint32
	Compression     uint32
	Photometric     uint32
	SamplesPerPixel uint32
}

// Format implements types.Model.
func (f *File) Format() types.Format { return types.FormatTIFF }

// Chunks implements types.Model.
func (f *File) Chunks() types.Layout { return f.Layout }

// IFD returns the directory with the given name.
func (f *File) IFD(name string) (*IFD, bool) {
	for i := range f.IFDs {
		if f.IFDs[i].Name == name {
			return &f.IFDs[i], true
		}
	}
	return nil, false
}

// pointer is a directory offset waiting to be visited.
type pointer struct {
	name   string
	target int64
	at     int64 // where the offset was read, for errors
	chain  int   // position in the IFD0 chain, -1 for sub-directories
}

// Parse validates a TIFF file read from c.
func Parse(c *binutil.Cursor, opts types.Options) (*File, error) {
	opts = opts.Normalize()
	m := types.NewMachine(types.FormatTIFF)
	p := &walker{file: &File{}, opts: opts, c: c}

	first, err := p.header()
	if err != nil {
		return nil, m.Fail(err)
	}
	m.Advance(types.StateSignatureVerified)

	m.Advance(types.StateBodyWalking)
	if err := p.push(first); err != nil {
		return nil, m.Fail(err)
	}
	for len(p.pending) > 0 {
		next := p.pop()
		if err := p.directory(next); err != nil {
			return nil, m.Fail(err)
		}
	}

	if err := p.finish(); err != nil {
		return nil, m.Fail(err)
	}

	m.Advance(types.StateBodyComplete)
	return p.file, nil
}

type walker struct {
	file    *File
	opts    types.Options
	c       *binutil.Cursor
	dec     decoder
	pending []pointer
}

func (p *walker) header() (pointer, error) {
	at := p.c.Position()
	sig, err := p.c.ReadExact(4, "TIFF header")
	if err != nil {
		return pointer{}, err
	}
	switch {
	case slices.Equal(sig, MagicLE):
		p.file.Order = binutil.LittleEndian
	case slices.Equal(sig, MagicBE):
		p.file.Order = binutil.BigEndian
	default:
		return pointer{}, &types.ParseError{
			Kind:   types.InvalidSignature,
			Offset: at,
			Reason: fmt.Sprintf("got % x, want II*\\0 or MM\\0*", sig),
		}
	}
	p.dec = decoder{order: p.file.Order}

	ptrAt := p.c.Position()
	off, err := binutil.ReadEndian[uint32](p.c, "IFD0 offset", p.file.Order)
	if err != nil {
		return pointer{}, err
	}
	if off < headerLen {
		return pointer{}, &types.ParseError{
			Kind:   types.FieldOutOfRange,
			Offset: ptrAt,
			Field:  "IFD0 offset",
			Reason: fmt.Sprintf("%d points into the header", off),
		}
	}
	p.file.Layout = append(p.file.Layout, types.Chunk{Tag: "Header", Offset: at, HeaderLen: headerLen})
	return pointer{name: "IFD0", target: int64(off), at: ptrAt, chain: 0}, nil
}

// pop removes and returns the pending directory with the lowest offset.
func (p *walker) pop() pointer {
	i := 0
	for j, ptr := range p.pending {
		if ptr.target < p.pending[i].target {
			i = j
		}
	}
	ptr := p.pending[i]
	p.pending = slices.Delete(p.pending, i, i+1)
	return ptr
}

func (p *walker) push(ptr pointer) error {
	if total := p.c.Size(); total >= 0 && ptr.target >= total {
		return &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: ptr.at,
			Field:  ptr.name + " offset",
			Reason: fmt.Sprintf("%d is past the end of the stream (%d bytes)", ptr.target, total),
		}
	}
	p.pending = append(p.pending, ptr)
	return nil
}

func (p *walker) directory(ptr pointer) error {
	if pos := p.c.Position(); ptr.target < pos {
		return &types.ParseError{
			Kind:   types.FieldOutOfRange,
			Offset: ptr.at,
			Field:  ptr.name + " offset",
			Reason: fmt.Sprintf("%d points behind already consumed data ending at %d", ptr.target, pos),
		}
	}
	if err := p.c.Skip(ptr.target-p.c.Position(), "data before "+ptr.name); err != nil {
		return err
	}

	ifd := IFD{Name: ptr.name, Offset: ptr.target}
	rules := chunk.Rules{
		Format:    types.FormatTIFF,
		Header:    IFDCodec{Order: p.file.Order},
		Limit:     -1,
		MaxLength: p.opts.MaxChunkLength,
		Stop:      func(string) bool { return true },
		Logger:    p.opts.Logger,
	}
	layout, err := chunk.Walk(p.c, rules, func(raw chunk.Raw) error {
		raw.Tag = ptr.name
		return p.entries(&ifd, raw)
	})
	if err != nil {
		return withTag(err, ptr.name)
	}

	nextAt := p.c.Position()
	next, err := binutil.ReadEndian[uint32](p.c, "next IFD offset", p.file.Order)
	if err != nil {
		return withTag(err, ptr.name)
	}
	ifd.Next = next

	ch := layout[0]
	ch.Tag = ptr.name
	ch.TrailerLen = 4
	p.file.Layout = append(p.file.Layout, ch)
	p.file.IFDs = append(p.file.IFDs, ifd)

	if ptr.chain >= 0 && next != 0 {
		n := ptr.chain + 1
		if err := p.push(pointer{name: fmt.Sprintf("IFD%d", n), target: int64(next), at: nextAt, chain: n}); err != nil {
			return err
		}
	}
	if ptr.chain == 0 {
		return p.subDirectories(&ifd)
	}
	return nil
}

func (p *walker) entries(ifd *IFD, raw chunk.Raw) error {
	if len(raw.Payload) == 0 {
		return raw.Field("entry count", "directory has no entries")
	}
	f := binutil.NewFields(raw.Payload, p.file.Order)
	for i := 0; i < len(raw.Payload)/entryLen; i++ {
		at := raw.PayloadOffset + int64(i*entryLen)
		e := Entry{
			Tag:   binutil.Next[uint16](f),
			Type:  binutil.Next[uint16](f),
			Count: binutil.Next[uint32](f),
		}
		copy(e.Value[:], raw.Payload[f.Pos():])
		f.Skip(4)

		if e.Type < TypeByte || e.Type > TypeDouble {
			return &types.ParseError{
				Kind:   types.FieldOutOfRange,
				Offset: at,
				Tag:    raw.Tag,
				Field:  "field type",
				Reason: fmt.Sprintf("tag %d has type %d, want 1..12", e.Tag, e.Type),
			}
		}
		if n := len(ifd.Entries); n > 0 && e.Tag <= ifd.Entries[n-1].Tag {
			return &types.ParseError{
				Kind:   types.InvalidTag,
				Offset: at,
				Tag:    raw.Tag,
				Reason: fmt.Sprintf("tag %d follows tag %d; entries must be in ascending order", e.Tag, ifd.Entries[n-1].Tag),
			}
		}
		if !e.Inline() {
			if err := p.bounds(at, raw.Tag, fmt.Sprintf("tag %d value", e.Tag), p.dec.offset(e), e.Size()); err != nil {
				return err
			}
		}
		ifd.Entries = append(ifd.Entries, e)
	}
	return nil
}

// bounds checks that [off, off+n) lies inside a stream of known length.
func (p *walker) bounds(at int64, tag, what string, off, n int64) error {
	total := p.c.Size()
	if total < 0 || off+n <= total {
		return nil
	}
	return &types.ParseError{
		Kind:   types.LengthMismatch,
		Offset: at,
		Tag:    tag,
		Field:  what,
		Reason: fmt.Sprintf("%d bytes at offset %d run past the end of the stream (%d bytes)", n, off, total),
	}
}

// subDirectories queues the Exif and GPS directories referenced by IFD0.
func (p *walker) subDirectories(ifd *IFD) error {
	for _, sub := range []struct {
		tag  uint16
		name string
	}{{TagExifIFD, "Exif"}, {TagGPSIFD, "GPS"}} {
		e, ok := ifd.Lookup(sub.tag)
		if !ok {
			continue
		}
		off, err := p.dec.uint(e)
		if err != nil || e.Count != 1 {
			return &types.ParseError{
				Kind:   types.FieldOutOfRange,
				Offset: ifd.Offset,
				Tag:    ifd.Name,
				Field:  sub.name + " pointer",
				Reason: "must be a single LONG",
			}
		}
		if err := p.push(pointer{name: sub.name, target: int64(off), at: ifd.Offset, chain: -1}); err != nil {
			return err
		}
	}
	return nil
}

// finish checks IFD0 for the entries every image needs and records the
// basic image fields.
func (p *walker) finish() error {
	ifd0, _ := p.file.IFD("IFD0")
	get := func(tag uint16, name string, required bool) (uint32, error) {
		e, ok := ifd0.Lookup(tag)
		if !ok {
			if required {
				return 0, &types.ParseError{
					Kind:   types.MissingMandatoryChunk,
					Offset: ifd0.Offset,
					Tag:    "IFD0",
					Field:  name,
					Reason: fmt.Sprintf("IFD0 has no %s entry (tag %d)", name, tag),
				}
			}
			return 0, nil
		}
		v, err := p.dec.uint(e)
		if err != nil {
			return 0, &types.ParseError{
				Kind:   types.FieldOutOfRange,
				Offset: ifd0.Offset,
				Tag:    "IFD0",
				Field:  name,
				Reason: err.Error(),
			}
		}
		return v, nil
	}

	var err error
	f := p.file
	if f.Width, err = get(TagImageWidth, "ImageWidth", true); err != nil {
		return err
	}
	if f.Height, err = get(TagImageLength, "ImageLength", true); err != nil {
		return err
	}
	if f.Compression, err = get(TagCompression, "Compression", false); err != nil {
		return err
	}
	if f.Photometric, err = get(TagPhotometric, "PhotometricInterpretation", false); err != nil {
		return err
	}
	if f.SamplesPerPixel, err = get(TagSamplesPerPixel, "SamplesPerPixel", false); err != nil {
		return err
	}
	if f.Width == 0 || f.Height == 0 {
		return &types.ParseError{
			Kind:   types.FieldOutOfRange,
			Offset: ifd0.Offset,
			Tag:    "IFD0",
			Field:  "dimensions",
			Reason: fmt.Sprintf("%dx%d", f.Width, f.Height),
		}
	}
	return p.strip(ifd0)
}

// strip checks a single-strip image's data range against the stream length.
func (p *walker) strip(ifd *IFD) error {
	off, ok1 := ifd.Lookup(TagStripOffsets)
	n, ok2 := ifd.Lookup(TagStripByteCounts)
	if !ok1 || !ok2 || off.Count != 1 || n.Count != 1 {
		return nil
	}
	o, err1 := p.dec.uint(off)
	l, err2 := p.dec.uint(n)
	if err1 != nil || err2 != nil {
		return nil
	}
	return p.bounds(ifd.Offset, ifd.Name, "strip", int64(o), int64(l))
}

func withTag(err error, tag string) error {
	if pe, ok := err.(*types.ParseError); ok && (pe.Tag == "" || pe.Tag == "IFD") {
		pe.Tag = tag
	}
	return err
}
