package chunkstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for _, s := range []string{"r", "w", "w+"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}

	_, err := ParseMode("a")
	assert.ErrorIs(t, err, ErrInvalidMode)

	assert.False(t, ModeRead.Writable())
	assert.True(t, ModeOverwrite.Writable())
	assert.True(t, ModeAppend.Writable())
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	assert.Equal(t, DefaultRoot, opts.Root)
	assert.Equal(t, DefaultChunkSize, opts.ChunkSize)
	assert.Equal(t, DefaultContentType, opts.ContentType)

	opts = Options{Root: "images", ChunkSize: 3, ContentType: "text/plain"}.WithDefaults()
	assert.Equal(t, "images", opts.Root)
	assert.Equal(t, 3, opts.ChunkSize)
	assert.Equal(t, "text/plain", opts.ContentType)
}

func TestFileInfoChunks(t *testing.T) {
	tests := []struct {
		name      string
		length    int64
		chunkSize int
		chunks    int
		lastLen   int64
	}{
		{"empty", 0, 4, 0, 0},
		{"single partial", 3, 4, 1, 3},
		{"exact multiple", 8, 4, 2, 4},
		{"trailing partial", 13, 3, 5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := FileInfo{Length: tt.length, ChunkSize: tt.chunkSize}
			assert.Equal(t, tt.chunks, info.NumChunks())
			if tt.chunks > 0 {
				start, end := info.ChunkBounds(tt.chunks - 1)
				assert.Equal(t, tt.lastLen, end-start)
			}
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "f/fs/a%2Fb", fileKey("fs", "a/b"))
	assert.Equal(t, "c/fs/abc/0000000012", chunkKey("fs", "abc", 12))

	id, n, ok := parseChunkKey("fs", chunkKey("fs", "abc", 12))
	require.True(t, ok)
	assert.Equal(t, "abc", id)
	assert.Equal(t, 12, n)

	_, _, ok = parseChunkKey("fs", "c/images/abc/0000000001")
	assert.False(t, ok)

	assert.ErrorIs(t, validateNames("", "fs"), ErrInvalidName)
	assert.ErrorIs(t, validateNames("x", "a/b"), ErrInvalidName)
	assert.NoError(t, validateNames("dir/x", "fs"))
}
