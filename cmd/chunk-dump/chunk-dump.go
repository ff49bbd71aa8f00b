package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/CDRayn/binny"
)

// Prints the validated chunk layout of a file, or where validation stopped.
func main() {
	configPath := flag.String("config", "", "YAML config file")
	format := flag.String("format", "", "skip detection and parse as this format (png, jpg, tiff, ...)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: chunk-dump [-config binny.yaml] [-format png] <file>")
		os.Exit(1)
	}

	var opts []binny.Option
	if *configPath != "" {
		cfg, err := binny.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, binny.WithConfig(cfg))
	}
	if *format != "" {
		f, ok := lookupFormat(*format)
		if !ok {
			fmt.Printf("Error: unknown format %q\n", *format)
			os.Exit(1)
		}
		opts = append(opts, binny.WithFormat(f))
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	opts = append(opts, binny.WithSize(stat.Size()))

	model, err := binny.Parse(f, opts...)
	if err != nil {
		var pe *binny.ParseError
		if errors.As(err, &pe) {
			fmt.Printf("invalid %s: %s\n", pe.Format, pe.Kind)
			fmt.Printf("  offset: %d\n", pe.Offset)
			if pe.Tag != "" {
				fmt.Printf("  tag:    %s\n", pe.Tag)
			}
			if pe.Field != "" {
				fmt.Printf("  field:  %s\n", pe.Field)
			}
			if pe.Reason != "" {
				fmt.Printf("  reason: %s\n", pe.Reason)
			}
			os.Exit(2)
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	dumpLayout(model)
}

func dumpLayout(m binny.Model) {
	layout := m.Chunks()
	fmt.Printf("%s, %d chunks, %d bytes, fingerprint %016x\n", m.Format(), len(layout), layout.End(), layout.Fingerprint())
	for _, c := range layout {
		fmt.Printf("  %-16s (offset: %d, header: %d, length: %d", c.Tag, c.Offset, c.HeaderLen, c.Length)
		if c.TrailerLen > 0 {
			fmt.Printf(", trailer: %d", c.TrailerLen)
		}
		if c.Pad > 0 {
			fmt.Printf(", pad: %d", c.Pad)
		}
		fmt.Println(")")
	}
}

func lookupFormat(name string) (binny.Format, bool) {
	ext := "." + strings.TrimPrefix(strings.ToLower(name), ".")
	for _, f := range binny.Formats() {
		if strings.EqualFold(f.String(), name) || slices.Contains(f.Extensions(), ext) {
			return f, true
		}
	}
	return binny.FormatUnknown, false
}
