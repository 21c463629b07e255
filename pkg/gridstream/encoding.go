package gridstream

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Encoding is the text encoding applied to emitted chunks.
type Encoding string

const (
	// EncodingNone emits raw bytes only.
	EncodingNone   Encoding = ""
	EncodingUTF8   Encoding = "utf8"
	EncodingASCII  Encoding = "ascii"
	EncodingBase64 Encoding = "base64"
)

// ParseEncoding validates an encoding name. The empty string selects raw
// bytes; "utf-8" is accepted as an alias of "utf8".
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(s) {
	case "":
		return EncodingNone, nil
	case "utf8", "utf-8":
		return EncodingUTF8, nil
	case "ascii":
		return EncodingASCII, nil
	case "base64":
		return EncodingBase64, nil
	default:
		return EncodingNone, fmt.Errorf("%q: %w", s, ErrInvalidEncoding)
	}
}

// decoder turns a chunk sequence into text. Multi-byte UTF-8 sequences and
// base64 groups split across chunks are carried over to the next chunk.
type decoder struct {
	enc   Encoding
	carry []byte
}

func newDecoder(enc Encoding) *decoder {
	return &decoder{enc: enc}
}

func (d *decoder) decode(p []byte) string {
	switch d.enc {
	case EncodingUTF8:
		buf := append(d.carry, p...)
		cut := incompleteSuffix(buf)
		d.carry = append([]byte(nil), buf[cut:]...)
		return strings.ToValidUTF8(string(buf[:cut]), string(utf8.RuneError))

	case EncodingASCII:
		out := make([]byte, len(p))
		for i, b := range p {
			out[i] = b & 0x7f
		}
		return string(out)

	case EncodingBase64:
		buf := append(d.carry, p...)
		cut := len(buf) - len(buf)%3
		d.carry = append([]byte(nil), buf[cut:]...)
		return base64.StdEncoding.EncodeToString(buf[:cut])

	default:
		return ""
	}
}

// flush returns whatever is still carried over at end of stream.
func (d *decoder) flush() string {
	rest := d.carry
	d.carry = nil
	if len(rest) == 0 {
		return ""
	}

	switch d.enc {
	case EncodingUTF8:
		return strings.ToValidUTF8(string(rest), string(utf8.RuneError))
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(rest)
	default:
		return ""
	}
}

// incompleteSuffix returns the index where a trailing, not yet complete
// UTF-8 sequence starts, or len(p) when p ends on a rune boundary.
func incompleteSuffix(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax+1; i-- {
		if utf8.RuneStart(p[i]) {
			if utf8.FullRune(p[i:]) {
				return len(p)
			}
			return i
		}
	}
	return len(p)
}
