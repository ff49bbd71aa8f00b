package binny

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/registry"
)

// Parse validates the stream read from r and returns its structural model.
//
// The format is detected from the leading bytes unless WithFormat is given.
// Parse reads r sequentially and never seeks; it stops at the first
// violation and returns it as a *ParseError.
//
// Example:
//
//	model, err := binny.Parse(r)
//	if err != nil {
//		return err
//	}
//	switch m := model.(type) {
//	case *binny.PNGFile:
//		fmt.Println(m.Width, m.Height)
//	case *binny.MP3File:
//		fmt.Println(len(m.Frames), "frames")
//	}
func Parse(r io.Reader, opts ...Option) (Model, error) {
	return parse(r, buildOptions(opts))
}

// ParseBytes validates an in-memory file.
func ParseBytes(b []byte, opts ...Option) (Model, error) {
	o := buildOptions(opts)
	o.size = int64(len(b))
	return parse(bytes.NewReader(b), o)
}

// ParseAs validates r as the format of T and returns the concrete model.
// The signature must match T's format. With T = Model the format is
// detected as in Parse.
//
// Example:
//
//	wav, err := binny.ParseAs[*binny.WAVFile](r)
//	if err != nil {
//		return err
//	}
//	fmt.Println(wav.SampleRate)
func ParseAs[T Model](r io.Reader, opts ...Option) (T, error) {
	var zero T
	o := buildOptions(opts)
	if any(zero) != nil {
		o.format = zero.Format()
	}

	m, err := parse(r, o)
	if err != nil {
		return zero, err
	}
	t, ok := m.(T)
	if !ok {
		return zero, fmt.Errorf("parsed %s model %T, want %T", m.Format(), m, zero)
	}
	return t, nil
}

// ParseMany validates several independent sources concurrently.
//
// Sources are parsed in parallel using up to WithWorkers goroutines.
// Results are returned in the same order as the input. The first failure
// cancels the remaining parses and is returned wrapped with the index of
// its source; the others then stop with SourceError at their next read.
//
// Options apply to every source; WithSize and WithFormat rarely make sense
// here.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//
//	models, err := binny.ParseMany(ctx, []io.Reader{f1, f2, f3})
//	if err != nil {
//		log.Fatal(err)
//	}
func ParseMany(ctx context.Context, sources []io.Reader, opts ...Option) ([]Model, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	o := buildOptions(opts)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	results := make([]Model, len(sources))
	for i, r := range sources {
		i, r := i, r
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			each := *o
			if each.size < 0 {
				each.size = sizeOf(r)
			}
			m, err := parse(binutil.NewContextReader(ctx, r), &each)
			if err != nil {
				return fmt.Errorf("source %d: %w", i, err)
			}
			results[i] = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// sized is implemented by in-memory readers such as *bytes.Reader and
// *strings.Reader. Len reports the unread length.
type sized interface {
	Len() int
}

func sizeOf(r io.Reader) int64 {
	if s, ok := r.(sized); ok {
		return int64(s.Len())
	}
	return -1
}

func parse(r io.Reader, o *parseOptions) (Model, error) {
	size := o.size
	if size < 0 {
		size = sizeOf(r)
	}
	c := binutil.NewCursor(r, size)
	return registry.Parse(c, o.format, o.internal())
}
