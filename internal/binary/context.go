package binary

import (
	"context"
	"io"
)

// ContextReader makes reads fail once ctx is done.
//
// The cursor reports the failure as types.SourceError wrapping ctx.Err(), so
// callers can tell cancellation apart from a malformed file.
type ContextReader struct {
	ctx context.Context
	r   io.Reader
}

// NewContextReader wraps r so that reads observe ctx.
func NewContextReader(ctx context.Context, r io.Reader) *ContextReader {
	return &ContextReader{ctx: ctx, r: r}
}

func (cr *ContextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
