package types

import (
	"errors"
	"fmt"
	"strings"
)

// Kind enumerates the structural rules a parse can violate.
//
// Kind implements error so callers can match a whole class of failures:
//
//	if errors.Is(err, types.ChecksumMismatch) { ... }
type Kind int

const (
	// UnexpectedEOF means fewer bytes were available than a field or chunk declared.
	UnexpectedEOF Kind = iota + 1
	// InvalidSignature means the magic bytes do not match the expected format.
	InvalidSignature
	// InvalidTag means an unrecognized or out-of-order chunk/segment tag.
	InvalidTag
	// LengthMismatch means a declared length contradicts the stream or a format rule.
	LengthMismatch
	// ChecksumMismatch means a recomputed checksum differs from the stored value.
	ChecksumMismatch
	// FieldOutOfRange means a decoded field is outside the format's legal domain.
	FieldOutOfRange
	// DuplicateMandatoryChunk means a chunk that must appear once appeared again.
	DuplicateMandatoryChunk
	// MissingMandatoryChunk means a required chunk never appeared.
	MissingMandatoryChunk
	// InvalidBitWidth means a bit-level read asked for an unsupported width.
	InvalidBitWidth
	// SourceError means the byte source itself failed (I/O, cancellation).
	SourceError
)

var kindNames = map[Kind]string{
	UnexpectedEOF:           "unexpected EOF",
	InvalidSignature:        "invalid signature",
	InvalidTag:              "invalid tag",
	LengthMismatch:          "length mismatch",
	ChecksumMismatch:        "checksum mismatch",
	FieldOutOfRange:         "field out of range",
	DuplicateMandatoryChunk: "duplicate mandatory chunk",
	MissingMandatoryChunk:   "missing mandatory chunk",
	InvalidBitWidth:         "invalid bit width",
	SourceError:             "source error",
}

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error makes Kind usable as an errors.Is target.
func (k Kind) Error() string {
	return k.String()
}

// ParseError describes the first structural violation found in a stream.
//
// Parsing stops at the first ParseError; errors are never aggregated.
type ParseError struct {
	// Underlying source failure, set only for SourceError.
	Err error

	// Format being parsed (FormatUnknown during detection)
	Format Format

	// Offending chunk/segment tag, if any ("IHDR", "fmt ", "SOF0")
	Tag string

	// Offending field name, if any ("bit depth", "sample rate")
	Field string

	// Free-form detail
	Reason string

	// Byte offset at which the violation was detected
	Offset int64

	Kind Kind
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.Format != FormatUnknown {
		b.WriteString(e.Format.String())
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s at offset %d", e.Kind, e.Offset)
	if e.Tag != "" {
		fmt.Fprintf(&b, " in %q", e.Tag)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " (%s)", e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying source error, if any.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind of this error.
func (e *ParseError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Errorf builds a ParseError of the given kind with a formatted reason.
func Errorf(kind Kind, offset int64, format string, args ...any) *ParseError {
	return &ParseError{
		Kind:   kind,
		Offset: offset,
		Reason: fmt.Sprintf(format, args...),
	}
}

// WithFormat stamps the format on a ParseError found anywhere in err's chain.
// Errors that already carry a format are left as they are.
func WithFormat(err error, f Format) error {
	var pe *ParseError
	if errors.As(err, &pe) && pe.Format == FormatUnknown {
		pe.Format = f
	}
	return err
}

// KindOf returns the Kind of a ParseError in err's chain, or 0 if there is none.
func KindOf(err error) Kind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// IsParseError checks if an error is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
