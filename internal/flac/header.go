package flac

import (
	"fmt"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

const lastBlockFlag = 0x80

// BlockHeader is the 4-byte metadata block header: a last-block flag, a
// 7-bit block type and a 24-bit big-endian length.
//
// Read records the last-block flag of the header it just decoded so the
// walk can stop after that block. A BlockHeader is not safe for concurrent
// use and must not be shared between walks.
type BlockHeader struct {
	Last bool
}

// Read implements chunk.Header.
func (h *BlockHeader) Read(c *binutil.Cursor) (string, int64, error) {
	at := c.Position()
	b, err := c.ReadByte()
	if err != nil {
		return "", 0, err
	}
	typ := b &^ lastBlockFlag
	if typ == blockInvalid {
		return "", 0, &types.ParseError{
			Kind:   types.InvalidTag,
			Offset: at,
			Reason: "block type 127 is invalid",
		}
	}
	n, err := binutil.ReadU24BE(c, "block length")
	if err != nil {
		return "", 0, err
	}
	h.Last = b&lastBlockFlag != 0
	return BlockName(typ), int64(n), nil
}

// Write implements chunk.Header. The last-block flag is not part of the
// layout, so it is written clear.
func (h *BlockHeader) Write(w *binutil.SafeWriter, tag string, length int64) error {
	typ, ok := blockType(tag)
	if !ok {
		return fmt.Errorf("unknown block tag %q", tag)
	}
	if length > 0xFFFFFF {
		return fmt.Errorf("length %d does not fit in 24 bits", length)
	}
	return w.WriteBytes([]byte{typ, byte(length >> 16), byte(length >> 8), byte(length)})
}

// Len implements chunk.Header.
func (h *BlockHeader) Len(string) int64 { return 4 }
