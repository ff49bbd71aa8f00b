package types

import (
	"io"
	"log/slog"
)

// Options carries per-parse settings from the facade down to format parsers.
type Options struct {
	// Logger receives debug traces of the walk. Never nil once Normalize ran.
	Logger *slog.Logger

	// MaxChunkLength caps any single declared payload length (0 = format limit only).
	MaxChunkLength int64
}

// Normalize fills zero fields with defaults and returns the result.
func (o Options) Normalize() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.MaxChunkLength < 0 {
		o.MaxChunkLength = 0
	}
	return o
}
