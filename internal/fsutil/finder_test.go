package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFilesByExtension(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	for _, name := range []string{"b.json", "a.json", "tiles.parquet", "processed/31UFU/metadata.json"} {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))
	}

	// --- Act ---
	flat, err := FindFilesByExtension(root, ".json", false)
	require.NoError(t, err)
	deep, err := FindFilesByExtension(root, ".json", true)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, []string{filepath.Join(root, "a.json"), filepath.Join(root, "b.json")}, flat)
	assert.Len(t, deep, 3)
}

func TestFindFilesByExtension_PanicsOnEmptyExtension(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { _, _ = FindFilesByExtension(t.TempDir(), "", false) })
}

func TestExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "bands.npy")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	ok, err := Exists(file)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Exists(filepath.Join(dir, "masks.npy"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Exists(dir)
	require.NoError(t, err)
	assert.False(t, ok, "directories are not artifacts")
}

func TestIsPathComponent(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		want bool
	}{
		{name: "31UFU", want: true},
		{name: ".hidden", want: true},
		{name: "", want: false},
		{name: ".", want: false},
		{name: "..", want: false},
		{name: "a/b", want: false},
		{name: `a\b`, want: false},
		{name: "/abs", want: false},
		{name: "tile/", want: false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, IsPathComponent(tc.name), "IsPathComponent(%q)", tc.name)
	}
}
