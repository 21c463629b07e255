package gridstream

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    Encoding
		wantErr bool
	}{
		{"", EncodingNone, false},
		{"utf8", EncodingUTF8, false},
		{"UTF-8", EncodingUTF8, false},
		{"ascii", EncodingASCII, false},
		{"base64", EncodingBase64, false},
		{"hex", EncodingNone, true},
		{"latin1", EncodingNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEncoding(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEncoding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// decodeAll feeds input to a decoder in pieces of size n.
func decodeAll(enc Encoding, input []byte, n int) string {
	d := newDecoder(enc)
	out := ""
	for len(input) > 0 {
		k := min(n, len(input))
		out += d.decode(input[:k])
		input = input[k:]
	}
	return out + d.flush()
}

func TestDecoder_UTF8CarriesSplitRunes(t *testing.T) {
	input := []byte("héllo wörld ✓")
	for n := 1; n <= 5; n++ {
		assert.Equal(t, string(input), decodeAll(EncodingUTF8, input, n), "piece size %d", n)
	}
}

func TestDecoder_UTF8InvalidTail(t *testing.T) {
	// A lone lead byte at end of stream decodes to the replacement rune.
	assert.Equal(t, "ok�", decodeAll(EncodingUTF8, []byte{'o', 'k', 0xe2}, 2))
}

func TestDecoder_Base64CarriesGroups(t *testing.T) {
	input := []byte("Hello John")
	want := base64.StdEncoding.EncodeToString(input)
	for n := 1; n <= 4; n++ {
		assert.Equal(t, want, decodeAll(EncodingBase64, input, n), "piece size %d", n)
	}
}

func TestDecoder_ASCIIClearsHighBit(t *testing.T) {
	assert.Equal(t, "Ai", decodeAll(EncodingASCII, []byte{'A', 0xe9}, 1))
}

func TestDecoder_None(t *testing.T) {
	assert.Equal(t, "", decodeAll(EncodingNone, []byte("raw"), 2))
}
