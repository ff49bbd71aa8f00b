package gif

import (
	"fmt"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/chunk"
	"github.com/CDRayn/binny/internal/types"
)

// Sub-block tags produced by SubBlockCodec.
const (
	tagSub        = "sub"
	tagTerminator = "end"
)

// SubBlockCodec frames the data sub-blocks that follow extensions and image
// descriptors: one length byte, then up to 255 bytes. A zero length is the
// block terminator.
type SubBlockCodec struct{}

// Read implements chunk.Header.
func (SubBlockCodec) Read(c *binutil.Cursor) (string, int64, error) {
	n, err := c.ReadByte()
	if err != nil {
		return "", 0, err
	}
	if n == 0 {
		return tagTerminator, 0, nil
	}
	return tagSub, int64(n), nil
}

// Write implements chunk.Header.
func (SubBlockCodec) Write(w *binutil.SafeWriter, tag string, length int64) error {
	if (tag == tagTerminator) != (length == 0) || length > 0xFF {
		return fmt.Errorf("bad sub-block %q of %d bytes", tag, length)
	}
	return w.WriteBytes([]byte{byte(length)})
}

// Len implements chunk.Header.
func (SubBlockCodec) Len(string) int64 { return 1 }

// subBlocks walks a sub-block chain up to and including its terminator and
// returns the layout of the chain. handle sees every non-empty sub-block in
// order along with its index.
func subBlocks(c *binutil.Cursor, opts types.Options, handle func(i int, raw chunk.Raw) error) (types.Layout, error) {
	i := 0
	rules := chunk.Rules{
		Format:    types.FormatGIF,
		Header:    SubBlockCodec{},
		Limit:     -1,
		MaxLength: opts.MaxChunkLength,
		Stop:      func(tag string) bool { return tag == tagTerminator },
	}
	return chunk.Walk(c, rules, func(raw chunk.Raw) error {
		if raw.Tag == tagTerminator || handle == nil {
			return nil
		}
		err := handle(i, raw)
		i++
		return err
	})
}

// chainLength returns the number of bytes a sub-block chain occupies.
func chainLength(l types.Layout) int64 {
	var n int64
	for _, ch := range l {
		n += ch.Size()
	}
	return n
}
