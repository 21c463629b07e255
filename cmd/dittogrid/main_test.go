package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/dittogrid/pkg/chunkstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// boltConfig writes a config using a bolt store under a temp dir.
func boltConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "config.yaml")
	content := "logging:\n  level: ERROR\n" +
		"store:\n  type: bolt\n  bolt:\n    path: " + filepath.Join(dir, "grid.db") + "\n" +
		"grid:\n  chunk_size: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_PutGetRm(t *testing.T) {
	cfg := boltConfig(t)

	src := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(src, []byte("Hello John"), 0o644))

	out, err := run(t, "", "put", "-c", cfg, src)
	require.NoError(t, err)
	assert.Contains(t, out, "fs/hello.txt: 10 bytes in 3 chunks, md5 97a2438326f171fd885e3a16ebadb65c")

	out, err = run(t, "", "get", "-c", cfg, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "Hello John", out)

	dst := filepath.Join(t.TempDir(), "copy.txt")
	_, err = run(t, "", "get", "-c", cfg, "--offset", "6", "hello.txt", dst)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "John", string(data))

	_, err = run(t, "", "rm", "-c", cfg, "hello.txt")
	require.NoError(t, err)

	_, err = run(t, "", "get", "-c", cfg, "hello.txt")
	assert.ErrorIs(t, err, chunkstore.ErrNotFound)
}

func TestCLI_StdinAppendAndCat(t *testing.T) {
	cfg := boltConfig(t)

	_, err := run(t, "abc", "put", "-c", cfg, "-", "log")
	require.NoError(t, err)
	_, err = run(t, "def", "put", "-c", cfg, "--mode", "w+", "-", "log")
	require.NoError(t, err)

	out, err := run(t, "", "cat", "-c", cfg, "--encoding", "base64", "log")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("abcdef")), out)

	_, err = run(t, "", "cat", "-c", cfg, "--encoding", "ebcdic", "log")
	assert.Error(t, err)
}

func TestCLI_LsRoots(t *testing.T) {
	cfg := boltConfig(t)

	_, err := run(t, "one", "put", "-c", cfg, "-", "a")
	require.NoError(t, err)
	_, err = run(t, "two", "put", "-c", cfg, "--root", "photos", "-", "b")
	require.NoError(t, err)

	out, err := run(t, "", "ls", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "a ")
	assert.NotContains(t, out, "b ")

	out, err = run(t, "", "ls", "-c", cfg, "--root", "photos", "--json")
	require.NoError(t, err)
	var files []chunkstore.FileInfo
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	require.Len(t, files, 1)
	assert.Equal(t, "b", files[0].Name)
	assert.Equal(t, "photos", files[0].Root)
}

func TestCLI_GC(t *testing.T) {
	cfg := boltConfig(t)

	_, err := run(t, "data", "put", "-c", cfg, "-", "kept")
	require.NoError(t, err)

	out, err := run(t, "", "gc", "-c", cfg, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "orphaned=0")
}

func TestCLI_Init(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	out, err := run(t, "", "init", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, "", "init", "-c", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "", "init", "-c", path, "--force")
	assert.NoError(t, err)
}

func TestCLI_BadMode(t *testing.T) {
	cfg := boltConfig(t)

	_, err := run(t, "x", "put", "-c", cfg, "--mode", "r", "-", "f")
	assert.Error(t, err)
}
