package binny

import (
	"github.com/CDRayn/binny/internal/types"
)

// ParseError describes the first structural violation found in a stream.
type ParseError = types.ParseError

// Kind classifies a ParseError. Kinds are comparable with errors.Is.
type Kind = types.Kind

// Violation kinds.
const (
	UnexpectedEOF           = types.UnexpectedEOF
	InvalidSignature        = types.InvalidSignature
	InvalidTag              = types.InvalidTag
	LengthMismatch          = types.LengthMismatch
	ChecksumMismatch        = types.ChecksumMismatch
	FieldOutOfRange         = types.FieldOutOfRange
	DuplicateMandatoryChunk = types.DuplicateMandatoryChunk
	MissingMandatoryChunk   = types.MissingMandatoryChunk
	InvalidBitWidth         = types.InvalidBitWidth
	SourceError             = types.SourceError
)

// KindOf returns the Kind of the ParseError in err's chain, or 0 if err
// holds none.
func KindOf(err error) Kind {
	return types.KindOf(err)
}

// IsParseError reports whether err's chain holds a ParseError.
func IsParseError(err error) bool {
	return types.IsParseError(err)
}

// IsKind reports whether err's chain holds a ParseError of the given kind.
// It is errors.Is(err, kind) spelled out.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
