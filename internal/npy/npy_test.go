package npy

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead_Uint16(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	data := []uint16{1, 2, 3, 4, 5, 6, 65535, 0, 9, 10, 11, 12}
	var buf bytes.Buffer

	// --- Act ---
	require.NoError(t, Write(&buf, []int{2, 3, 2}, data))
	h, got, err := Read[uint16](bytes.NewReader(buf.Bytes()))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "<u2", h.Descr)
	assert.Equal(t, []int{2, 3, 2}, h.Shape)
	assert.Equal(t, data, got)
}

func TestHeaderLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []int{3}, []uint8{0, 1, 1}))
	raw := buf.Bytes()

	assert.Equal(t, "\x93NUMPY", string(raw[:6]))
	assert.Equal(t, []byte{1, 0}, raw[6:8])
	headerEnd := 10 + int(raw[8]) + int(raw[9])<<8
	assert.Zero(t, headerEnd%64, "data must start on a 64-byte boundary")
	assert.Equal(t, byte('\n'), raw[headerEnd-1])
	assert.Contains(t, string(raw[:headerEnd]), "'descr': '|u1'")
	assert.Contains(t, string(raw[:headerEnd]), "'shape': (3,)")
	assert.Equal(t, []byte{0, 1, 1}, raw[headerEnd:])
}

func TestWrite_ShapeMismatch(t *testing.T) {
	t.Parallel()

	err := Write(&bytes.Buffer{}, []int{2, 2}, []uint8{1, 2, 3})
	assert.ErrorContains(t, err, "holds 4 elements")
}

func TestRead_Rejects(t *testing.T) {
	t.Parallel()

	var u8 bytes.Buffer
	require.NoError(t, Write(&u8, []int{1}, []uint8{7}))

	tests := []struct {
		name string
		raw  []byte
	}{
		{"short", []byte("\x93NUM")},
		{"bad magic", []byte("NOTNUMPYxxxxxxxxxxxxxx")},
		{"dtype mismatch", u8.Bytes()},
		{"truncated body", func() []byte {
			var b bytes.Buffer
			require.NoError(t, Write(&b, []int{4}, []uint16{1, 2, 3, 4}))
			return b.Bytes()[:b.Len()-3]
		}()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Read[uint16](bytes.NewReader(tc.raw))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestWrite_ZeroLengthAxis(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []int{0, 4, 4}, []uint8{}))

	h, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 4, 4}, h.Shape)
	assert.Zero(t, h.Len())
}
