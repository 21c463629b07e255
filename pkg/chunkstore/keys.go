package chunkstore

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Key Namespace Design
// ====================
//
// Every backend is a flat ordered key space, so the layout engine prefixes
// keys to keep file documents and chunks apart and to make per-root and
// per-file range scans possible.
//
// Data Type        Prefix  Key Format                          Value Type
// ======================================================================
// File Document    "f/"    f/<root>/<escaped name>             FileInfo (JSON)
// Chunk            "c/"    c/<root>/<file id>/<%010d index>    raw bytes
//
// Names are path-escaped so that a name containing "/" never collides with
// the separator. Roots may not contain "/" (see validateNames).
//
// Chunk indexes are zero-padded so lexical order equals numeric order. This
// matters for backends that list keys in byte order (badger, bolt, s3).

const (
	prefixFile  = "f/"
	prefixChunk = "c/"
)

// fileKey returns the key of the file document for name in root.
func fileKey(root, name string) string {
	return prefixFile + root + "/" + url.PathEscape(name)
}

// filePrefix returns the prefix shared by every file document in root.
func filePrefix(root string) string {
	return prefixFile + root + "/"
}

// chunkKey returns the key of chunk n of the file with the given id.
func chunkKey(root, id string, n int) string {
	return fmt.Sprintf("%s%s/%s/%010d", prefixChunk, root, id, n)
}

// chunkFilePrefix returns the prefix shared by every chunk of one file.
func chunkFilePrefix(root, id string) string {
	return prefixChunk + root + "/" + id + "/"
}

// chunkRootPrefix returns the prefix shared by every chunk in root.
func chunkRootPrefix(root string) string {
	return prefixChunk + root + "/"
}

// parseChunkKey splits a chunk key into its file id and chunk index.
func parseChunkKey(root, key string) (id string, n int, ok bool) {
	rest, found := strings.CutPrefix(key, chunkRootPrefix(root))
	if !found {
		return "", 0, false
	}
	id, idx, found := strings.Cut(rest, "/")
	if !found {
		return "", 0, false
	}
	n, err := strconv.Atoi(idx)
	if err != nil {
		return "", 0, false
	}
	return id, n, true
}

// validateNames rejects names and roots the key layout cannot represent.
func validateNames(name, root string) error {
	if name == "" {
		return fmt.Errorf("empty file name: %w", ErrInvalidName)
	}
	if root == "" || strings.Contains(root, "/") {
		return fmt.Errorf("root %q: %w", root, ErrInvalidName)
	}
	return nil
}
