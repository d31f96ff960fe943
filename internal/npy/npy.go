// Package npy reads and writes NumPy .npy (format version 1.0) files for the
// unsigned integer arrays the pipeline produces.
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var magic = []byte("\x93NUMPY")

// ErrFormat is returned for files that are not valid .npy data.
var ErrFormat = errors.New("npy: invalid format")

// Element is the set of array element types the codec supports.
type Element interface {
	~uint8 | ~uint16
}

// Header describes an array stored in a .npy file.
type Header struct {
	Descr string
	Shape []int
}

// Len returns the number of elements described by the shape.
func (h Header) Len() int {
	n := 1
	for _, d := range h.Shape {
		n *= d
	}
	return n
}

func descrOf[T Element]() string {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return "|u1"
	default:
		return "<u2"
	}
}

// Write stores data with the given shape in C order. len(data) must equal
// the product of shape.
func Write[T Element](w io.Writer, shape []int, data []T) error {
	h := Header{Descr: descrOf[T](), Shape: shape}
	if h.Len() != len(data) {
		return fmt.Errorf("npy: shape %v holds %d elements, got %d", shape, h.Len(), len(data))
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(encodeHeader(h)); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
		return err
	}
	return bw.Flush()
}

func encodeHeader(h Header) []byte {
	dims := make([]string, len(h.Shape))
	for i, d := range h.Shape {
		dims[i] = strconv.Itoa(d)
	}
	shape := strings.Join(dims, ", ")
	if len(h.Shape) == 1 {
		shape += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", h.Descr, shape)

	// magic(6) + version(2) + header length(2), then the dict padded with
	// spaces and a trailing newline to a multiple of 64 bytes.
	const prefix = 10
	total := prefix + len(dict) + 1
	pad := (64 - total%64) % 64

	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(dict)+pad+1))
	buf.WriteString(dict)
	buf.WriteString(strings.Repeat(" ", pad))
	buf.WriteByte('\n')
	return buf.Bytes()
}

var (
	descrRe   = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	fortranRe = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	shapeRe   = regexp.MustCompile(`'shape':\s*\(([^)]*)\)`)
)

// ReadHeader parses the header and leaves r positioned at the first element.
func ReadHeader(r io.Reader) (Header, error) {
	var pre [10]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if !bytes.Equal(pre[:6], magic) {
		return Header{}, fmt.Errorf("%w: bad magic", ErrFormat)
	}
	if pre[6] != 1 {
		return Header{}, fmt.Errorf("%w: unsupported version %d.%d", ErrFormat, pre[6], pre[7])
	}

	dict := make([]byte, binary.LittleEndian.Uint16(pre[8:]))
	if _, err := io.ReadFull(r, dict); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	var h Header
	if m := descrRe.FindSubmatch(dict); m != nil {
		h.Descr = string(m[1])
	} else {
		return Header{}, fmt.Errorf("%w: missing descr", ErrFormat)
	}
	if m := fortranRe.FindSubmatch(dict); m == nil || string(m[1]) != "False" {
		return Header{}, fmt.Errorf("%w: only C order is supported", ErrFormat)
	}
	m := shapeRe.FindSubmatch(dict)
	if m == nil {
		return Header{}, fmt.Errorf("%w: missing shape", ErrFormat)
	}
	for _, part := range strings.Split(string(m[1]), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil || d < 0 {
			return Header{}, fmt.Errorf("%w: bad dimension %q", ErrFormat, part)
		}
		h.Shape = append(h.Shape, d)
	}
	return h, nil
}

// Read loads a whole array whose element type must match T.
func Read[T Element](r io.Reader) (Header, []T, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	if want := descrOf[T](); h.Descr != want {
		return Header{}, nil, fmt.Errorf("%w: dtype %s, want %s", ErrFormat, h.Descr, want)
	}
	data := make([]T, h.Len())
	if err := binary.Read(bufio.NewReader(r), binary.LittleEndian, data); err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return h, data, nil
}
