package jpeg

import (
	"fmt"

	binutil "github.com/CDRayn/binny/internal/binary"
	"github.com/CDRayn/binny/internal/types"
)

// Marker codes with special handling
const (
	markerTEM = 0x01
	markerSOF = 0xC0
	markerDHT = 0xC4
	markerJPG = 0xC8
	markerDAC = 0xCC
	markerRST = 0xD0
	markerSOI = 0xD8
	markerEOI = 0xD9
	markerSOS = 0xDA
	markerDQT = 0xDB
	markerDNL = 0xDC
	markerDRI = 0xDD
	markerAPP = 0xE0
	markerCOM = 0xFE
)

var (
	markerNames [256]string
	markerCodes = map[string]byte{}
)

func init() {
	for code := 0x01; code <= 0xFE; code++ {
		var name string
		switch {
		case code == markerTEM:
			name = "TEM"
		case code == markerDHT:
			name = "DHT"
		case code == markerJPG:
			name = "JPG"
		case code == markerDAC:
			name = "DAC"
		case code >= markerSOF && code <= 0xCF:
			name = fmt.Sprintf("SOF%d", code-markerSOF)
		case code >= markerRST && code <= 0xD7:
			name = fmt.Sprintf("RST%d", code-markerRST)
		case code >= markerAPP && code <= 0xEF:
			name = fmt.Sprintf("APP%d", code-markerAPP)
		case code >= 0xF0 && code <= 0xFD:
			name = fmt.Sprintf("JPG%d", code-0xF0)
		default:
			name = map[int]string{
				markerSOI: "SOI", markerEOI: "EOI", markerSOS: "SOS", markerDQT: "DQT",
				markerDNL: "DNL", markerDRI: "DRI", 0xDE: "DHP", 0xDF: "EXP", markerCOM: "COM",
			}[code]
			if name == "" {
				name = fmt.Sprintf("RES%02X", code)
			}
		}
		markerNames[code] = name
		markerCodes[name] = byte(code)
	}
}

// MarkerName returns the mnemonic for a marker code ("SOF0", "APP1", "RST3").
func MarkerName(code byte) string {
	if code == 0x00 || code == 0xFF {
		return fmt.Sprintf("%02X", code)
	}
	return markerNames[code]
}

// standalone reports whether a marker carries no length field.
func standalone(code byte) bool {
	return code == markerTEM || (code >= markerRST && code <= markerEOI)
}

// isSOF reports whether code starts a frame.
func isSOF(code byte) bool {
	return code >= markerSOF && code <= 0xCF && code != markerDHT && code != markerJPG && code != markerDAC
}

// reserved reports whether code is outside every marker range the format
// assigns.
func reserved(code byte) bool {
	return code >= 0x02 && code <= 0xBF
}

// MarkerCodec is the chunk.Header for JPEG marker segments: 0xFF, any
// number of 0xFF fill bytes, the marker code, then a big-endian length that
// counts itself. Standalone markers have no length.
type MarkerCodec struct{}

// Read implements chunk.Header.
func (MarkerCodec) Read(c *binutil.Cursor) (string, int64, error) {
	at := c.Position()
	b, err := c.ReadByte()
	if err != nil {
		return "", 0, err
	}
	if b != 0xFF {
		return "", 0, &types.ParseError{
			Kind:   types.InvalidTag,
			Offset: at,
			Reason: fmt.Sprintf("expected marker, found byte %02X", b),
		}
	}

	code := byte(0xFF)
	for code == 0xFF {
		if code, err = c.ReadByte(); err != nil {
			return "", 0, err
		}
	}
	if code == 0x00 {
		return "", 0, &types.ParseError{
			Kind:   types.InvalidTag,
			Offset: at,
			Reason: "stuffed zero outside entropy-coded data",
		}
	}

	tag := MarkerName(code)
	if standalone(code) {
		return tag, 0, nil
	}

	lengthAt := c.Position()
	n, err := binutil.ReadBE[uint16](c, "segment length")
	if err != nil {
		return "", 0, err
	}
	if n < 2 {
		return "", 0, &types.ParseError{
			Kind:   types.LengthMismatch,
			Offset: lengthAt,
			Tag:    tag,
			Field:  "segment length",
			Reason: fmt.Sprintf("%d is smaller than the length field", n),
		}
	}
	return tag, int64(n) - 2, nil
}

// Write implements chunk.Header.
func (MarkerCodec) Write(w *binutil.SafeWriter, tag string, length int64) error {
	code, ok := markerCodes[tag]
	if !ok {
		return fmt.Errorf("unknown marker %q", tag)
	}
	if err := w.WriteBytes([]byte{0xFF, code}); err != nil {
		return err
	}
	if standalone(code) {
		if length != 0 {
			return fmt.Errorf("standalone marker %s cannot carry %d bytes", tag, length)
		}
		return nil
	}
	if length+2 > 0xFFFF {
		return fmt.Errorf("segment of %d bytes does not fit a 16-bit length", length)
	}
	return binutil.Write(w, uint16(length+2))
}

// Len implements chunk.Header. Fill bytes are not counted.
func (MarkerCodec) Len(tag string) int64 {
	if code, ok := markerCodes[tag]; ok && standalone(code) {
		return 2
	}
	return 4
}
