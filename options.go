package binny

import (
	"log/slog"
	"runtime"

	"github.com/CDRayn/binny/internal/types"
)

// Option configures a parse.
//
// Options use the functional options pattern:
//
//	model, err := binny.Parse(r,
//	    binny.WithFormat(binny.FormatPNG),
//	    binny.WithMaxChunkLength(16<<20),
//	)
type Option func(*parseOptions)

type parseOptions struct {
	logger         *slog.Logger
	format         Format
	size           int64 // -1 if unknown
	maxChunkLength int64
	workers        int
}

func defaultOptions() *parseOptions {
	return &parseOptions{
		size:    -1,
		workers: runtime.NumCPU(),
	}
}

func buildOptions(opts []Option) *parseOptions {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *parseOptions) internal() types.Options {
	return types.Options{Logger: o.logger, MaxChunkLength: o.maxChunkLength}.Normalize()
}

// WithLogger sends debug traces of the walk to l: one record per chunk and
// one per failed parse. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *parseOptions) {
		o.logger = l
	}
}

// WithFormat skips signature detection and runs the parser for f.
//
// If the leading bytes positively identify a different format the parse
// fails with InvalidSignature.
func WithFormat(f Format) Option {
	return func(o *parseOptions) {
		o.format = f
	}
}

// WithSize declares the total length of the source.
//
// A known size lets parsers reject declared lengths that run past the end
// of the stream before reading them. Sources with a Len() int method, such
// as *bytes.Reader, are sized automatically. For an *os.File pass the
// size from Stat.
func WithSize(n int64) Option {
	return func(o *parseOptions) {
		o.size = n
	}
}

// WithMaxChunkLength rejects any chunk, segment or block whose declared
// payload exceeds n bytes with LengthMismatch. Zero means no limit beyond
// the format's own.
func WithMaxChunkLength(n int64) Option {
	return func(o *parseOptions) {
		o.maxChunkLength = n
	}
}

// WithWorkers bounds how many sources ParseMany parses at once. The
// default is runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(o *parseOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithConfig applies the non-zero settings of cfg.
func WithConfig(cfg Config) Option {
	return func(o *parseOptions) {
		if cfg.MaxChunkLength > 0 {
			o.maxChunkLength = cfg.MaxChunkLength
		}
		if cfg.Workers > 0 {
			o.workers = cfg.Workers
		}
		if l := cfg.logger(); l != nil {
			o.logger = l
		}
	}
}
