package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/tilestackgo/internal/failure"
)

const sampleItem = `{
  "type": "Feature",
  "id": "S2B_31UFU_20240517_0_L2A",
  "properties": {
    "datetime": "2024-05-17T10:46:19.024000Z",
    "grid:code": "MGRS-31UFU",
    "s2:processing_baseline": "05.10"
  },
  "assets": {
    "red": {"href": "https://example.test/B04.tif", "type": "image/tiff"},
    "scl": {"href": "https://example.test/SCL.tif"},
    "thumbnail": {"href": ""}
  }
}`

func TestReadItems(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "item.json"), []byte(sampleItem), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	// --- Act ---
	got, err := ReadItems(dir)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, "S2B_31UFU_20240517_0_L2A", a.ID)
	assert.Equal(t, "31UFU", a.TileCode)
	assert.Equal(t, "05.10", a.Baseline)
	assert.True(t, a.Timestamp.Equal(time.Date(2024, 5, 17, 10, 46, 19, 24000000, time.UTC)))
	assert.Equal(t, map[string]string{
		"red": "https://example.test/B04.tif",
		"scl": "https://example.test/SCL.tif",
	}, a.Assets)
}

func TestReadItems_BadJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	_, err := ReadItems(dir)
	assert.True(t, failure.IsConfig(err))
}
