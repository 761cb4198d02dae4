// Package binary provides the offset/length-aware encoding primitives used to
// read and write HDF5 metadata.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Undefined is the all-ones address HDF5 uses for "no address" with 8-byte offsets.
const Undefined = ^uint64(0)

// ErrInvalidSize is returned when an invalid offset or length size is specified.
var ErrInvalidSize = errors.New("invalid offset/length size: must be 2, 4, or 8")

// Config describes the variable-width fields of a file, taken from its superblock.
type Config struct {
	ByteOrder  binary.ByteOrder
	OffsetSize int // 2, 4, or 8 bytes
	LengthSize int // 2, 4, or 8 bytes
}

// DefaultConfig returns little-endian 8-byte offsets and lengths, which is what
// every file written by this module uses.
func DefaultConfig() Config {
	return Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: 8,
		LengthSize: 8,
	}
}

// Validate checks the field sizes.
func (c Config) Validate() error {
	for _, n := range []int{c.OffsetSize, c.LengthSize} {
		if n != 2 && n != 4 && n != 8 {
			return fmt.Errorf("%w: %d", ErrInvalidSize, n)
		}
	}
	return nil
}

// IsUndefined reports whether addr is the undefined address for the offset size.
func (c Config) IsUndefined(addr uint64) bool {
	if c.OffsetSize >= 8 || c.OffsetSize == 0 {
		return addr == Undefined
	}
	return addr == uint64(1)<<(8*c.OffsetSize)-1
}

// Reader decodes values from an io.ReaderAt. The first error is sticky: once a
// read fails every later read returns zero values and Err reports the failure.
type Reader struct {
	r   io.ReaderAt
	cfg Config
	pos int64
	err error
}

// NewReader creates a Reader at offset 0.
func NewReader(r io.ReaderAt, cfg Config) *Reader {
	return &Reader{r: r, cfg: cfg}
}

// At returns a new reader positioned at the given offset sharing the source.
func (r *Reader) At(offset int64) *Reader {
	return &Reader{r: r.r, cfg: r.cfg, pos: offset}
}

// Pos returns the current read position.
func (r *Reader) Pos() int64 { return r.pos }

// Config returns the field configuration.
func (r *Reader) Config() Config { return r.cfg }

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Skip advances the position without reading.
func (r *Reader) Skip(n int) { r.pos += int64(n) }

// Bytes reads exactly n bytes.
func (r *Reader) Bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 {
		r.err = fmt.Errorf("negative read size %d at offset %d", n, r.pos)
		return nil
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf
	}
	read, err := r.r.ReadAt(buf, r.pos)
	if read < n {
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		r.err = fmt.Errorf("reading %d bytes at offset %d: %w", n, r.pos, err)
		return nil
	}
	r.pos += int64(n)
	return buf
}

// Uint8 reads one byte.
func (r *Reader) Uint8() uint8 {
	b := r.Bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint16 reads a 16-bit value.
func (r *Reader) Uint16() uint16 { return uint16(r.UintN(2)) }

// Uint32 reads a 32-bit value.
func (r *Reader) Uint32() uint32 { return uint32(r.UintN(4)) }

// Uint64 reads a 64-bit value.
func (r *Reader) Uint64() uint64 { return r.UintN(8) }

// UintN reads an unsigned integer of n bytes.
func (r *Reader) UintN(n int) uint64 {
	b := r.Bytes(n)
	if b == nil {
		return 0
	}
	return decodeUint(r.cfg.ByteOrder, b)
}

// Offset reads a file address using the configured offset size.
func (r *Reader) Offset() uint64 {
	v := r.UintN(r.cfg.OffsetSize)
	if r.cfg.IsUndefined(v) {
		return Undefined
	}
	return v
}

// Length reads a length using the configured length size.
func (r *Reader) Length() uint64 { return r.UintN(r.cfg.LengthSize) }

func decodeUint(order binary.ByteOrder, b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	case 8:
		return order.Uint64(b)
	}
	var v uint64
	if order == binary.BigEndian {
		for _, c := range b {
			v = v<<8 | uint64(c)
		}
		return v
	}
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
