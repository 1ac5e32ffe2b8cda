// Package codec implements the little-endian binary primitives shared by
// every on-disk structure: fixed-width integers and floats, u64
// length-prefixed byte strings, and raw float32 slices.
//
// The byte order is little-endian irrespective of host order. Floats use
// IEEE-754 binary32/binary64. Strings are raw bytes, not null-terminated.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// maxStringLen bounds length-prefixed reads so a corrupted prefix cannot
// force a multi-gigabyte allocation.
const maxStringLen = 1 << 30

// ErrCorrupt is returned when a length prefix or payload cannot be read.
var ErrCorrupt = errors.New("codec: corrupt stream")

// Writer serializes primitives to an io.Writer.
type Writer struct {
	w   io.Writer
	buf [8]byte
}

// NewWriter creates a Writer targeting w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteUint8 writes a single byte.
func (bw *Writer) WriteUint8(v uint8) error {
	bw.buf[0] = v
	_, err := bw.w.Write(bw.buf[:1])
	return err
}

// WriteUint32 writes a little-endian uint32.
func (bw *Writer) WriteUint32(v uint32) error {
	binary.LittleEndian.PutUint32(bw.buf[:4], v)
	_, err := bw.w.Write(bw.buf[:4])
	return err
}

// WriteUint64 writes a little-endian uint64.
func (bw *Writer) WriteUint64(v uint64) error {
	binary.LittleEndian.PutUint64(bw.buf[:8], v)
	_, err := bw.w.Write(bw.buf[:8])
	return err
}

// WriteInt64 writes a little-endian two's-complement int64.
func (bw *Writer) WriteInt64(v int64) error {
	return bw.WriteUint64(uint64(v))
}

// WriteFloat32 writes an IEEE-754 binary32 value.
func (bw *Writer) WriteFloat32(v float32) error {
	return bw.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 writes an IEEE-754 binary64 value.
func (bw *Writer) WriteFloat64(v float64) error {
	return bw.WriteUint64(math.Float64bits(v))
}

// WriteString writes a u64 length prefix followed by the raw bytes.
func (bw *Writer) WriteString(s string) error {
	if err := bw.WriteUint64(uint64(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	_, err := io.WriteString(bw.w, s)
	return err
}

// WriteFloat32Slice writes the elements of vec back to back, without a
// length prefix. Callers write the element count themselves.
func (bw *Writer) WriteFloat32Slice(vec []float32) error {
	for _, v := range vec {
		if err := bw.WriteFloat32(v); err != nil {
			return err
		}
	}
	return nil
}

// Reader deserializes primitives from an io.Reader.
type Reader struct {
	r   io.Reader
	buf [8]byte
}

// NewReader creates a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (br *Reader) fill(n int) error {
	if _, err := io.ReadFull(br.r, br.buf[:n]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return err
	}
	return nil
}

// ReadUint8 reads a single byte.
func (br *Reader) ReadUint8() (uint8, error) {
	if err := br.fill(1); err != nil {
		return 0, err
	}
	return br.buf[0], nil
}

// ReadUint32 reads a little-endian uint32.
func (br *Reader) ReadUint32() (uint32, error) {
	if err := br.fill(4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(br.buf[:4]), nil
}

// ReadUint64 reads a little-endian uint64.
func (br *Reader) ReadUint64() (uint64, error) {
	if err := br.fill(8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(br.buf[:8]), nil
}

// ReadInt64 reads a little-endian two's-complement int64.
func (br *Reader) ReadInt64() (int64, error) {
	v, err := br.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE-754 binary32 value.
func (br *Reader) ReadFloat32() (float32, error) {
	v, err := br.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE-754 binary64 value.
func (br *Reader) ReadFloat64() (float64, error) {
	v, err := br.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadString reads a u64 length prefix and the following raw bytes.
func (br *Reader) ReadString() (string, error) {
	n, err := br.ReadUint64()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n > maxStringLen {
		return "", fmt.Errorf("%w: string length %d", ErrCorrupt, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br.r, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return string(b), nil
}

// ReadBytes reads exactly n raw bytes.
func (br *Reader) ReadBytes(n uint64) ([]byte, error) {
	if n > maxStringLen {
		return nil, fmt.Errorf("%w: blob length %d", ErrCorrupt, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br.r, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return b, nil
}

// ReadFloat32Slice reads count consecutive binary32 values.
func (br *Reader) ReadFloat32Slice(count int) ([]float32, error) {
	if count == 0 {
		return nil, nil
	}
	if count < 0 || count > maxStringLen/4 {
		return nil, fmt.Errorf("%w: vector length %d", ErrCorrupt, count)
	}
	out := make([]float32, count)
	for i := range out {
		v, err := br.ReadFloat32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
