package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/specialistvlad/tilestackgo/internal/raster"
)

// TIFF tag ids written by EncodeGeoTIFF.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagGDALNoData      = 42113
)

const (
	typeASCII = 2
	typeShort = 3
	typeLong  = 4
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value uint32
}

// EncodeGeoTIFF writes g as an uncompressed, little-endian, single-strip
// grayscale TIFF with 8 or 16 bits per sample. A non-empty nodata is stored
// verbatim in the GDAL no-data tag, which lets tests feed malformed values.
func EncodeGeoTIFF(w io.Writer, g raster.Grid[uint16], bits int, nodata string) error {
	if bits != 8 && bits != 16 {
		return fmt.Errorf("testutil: unsupported bit depth %d", bits)
	}
	bytesPerPixel := bits / 8
	pixelBytes := uint32(g.Width * g.Height * bytesPerPixel)

	const headerSize = 8
	ifdOffset := headerSize + pixelBytes
	if ifdOffset%2 == 1 {
		ifdOffset++
	}

	entries := []ifdEntry{
		{tagImageWidth, typeLong, 1, uint32(g.Width)},
		{tagImageLength, typeLong, 1, uint32(g.Height)},
		{tagBitsPerSample, typeShort, 1, uint32(bits)},
		{tagCompression, typeShort, 1, 1},
		{tagPhotometric, typeShort, 1, 1},
		{tagStripOffsets, typeLong, 1, headerSize},
		{tagSamplesPerPixel, typeShort, 1, 1},
		{tagRowsPerStrip, typeLong, 1, uint32(g.Height)},
		{tagStripByteCounts, typeLong, 1, pixelBytes},
	}

	ifdSize := 2 + 12*uint32(len(entries)+1) + 4
	var ascii []byte
	if nodata != "" {
		ascii = append([]byte(nodata), 0)
		e := ifdEntry{tagGDALNoData, typeASCII, uint32(len(ascii)), 0}
		if len(ascii) <= 4 {
			var inline [4]byte
			copy(inline[:], ascii)
			e.value = binary.LittleEndian.Uint32(inline[:])
			ascii = nil
		} else {
			e.value = ifdOffset + ifdSize
		}
		entries = append(entries, e)
	} else {
		ifdSize -= 12
	}

	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("II")
	_ = binary.Write(&buf, le, uint16(42))
	_ = binary.Write(&buf, le, ifdOffset)

	for _, v := range g.Pix {
		if bits == 8 {
			buf.WriteByte(uint8(v))
		} else {
			_ = binary.Write(&buf, le, v)
		}
	}
	for uint32(buf.Len()) < ifdOffset {
		buf.WriteByte(0)
	}

	_ = binary.Write(&buf, le, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&buf, le, e.tag)
		_ = binary.Write(&buf, le, e.typ)
		_ = binary.Write(&buf, le, e.count)
		if e.typ == typeShort {
			// SHORT values are left-justified in the 4-byte slot.
			_ = binary.Write(&buf, le, uint16(e.value))
			_ = binary.Write(&buf, le, uint16(0))
		} else {
			_ = binary.Write(&buf, le, e.value)
		}
	}
	_ = binary.Write(&buf, le, uint32(0))
	buf.Write(ascii)

	_, err := w.Write(buf.Bytes())
	return err
}
