package binary

import (
	"encoding/binary"
	"io"
)

// Writer encodes values to an io.WriterAt. Like Reader, the first error is
// sticky and reported by Err.
type Writer struct {
	w   io.WriterAt
	cfg Config
	pos int64
	err error
}

// NewWriter creates a Writer at offset 0.
func NewWriter(w io.WriterAt, cfg Config) *Writer {
	return &Writer{w: w, cfg: cfg}
}

// NewBufferWriter returns a Writer backed by a growable in-memory buffer.
func NewBufferWriter(cfg Config) (*Writer, *Buffer) {
	buf := &Buffer{}
	return NewWriter(buf, cfg), buf
}

// At returns a new writer positioned at the given offset sharing the sink.
func (w *Writer) At(offset int64) *Writer {
	return &Writer{w: w.w, cfg: w.cfg, pos: offset}
}

// Pos returns the current write position.
func (w *Writer) Pos() int64 { return w.pos }

// Config returns the field configuration.
func (w *Writer) Config() Config { return w.cfg }

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// WriteBytes writes p at the current position.
func (w *Writer) WriteBytes(p []byte) {
	if w.err != nil || len(p) == 0 {
		return
	}
	n, err := w.w.WriteAt(p, w.pos)
	w.pos += int64(n)
	if err != nil {
		w.err = err
	}
}

// WriteUint8 writes one byte.
func (w *Writer) WriteUint8(v uint8) { w.WriteBytes([]byte{v}) }

// WriteUint16 writes a 16-bit value.
func (w *Writer) WriteUint16(v uint16) { w.WriteUintN(uint64(v), 2) }

// WriteUint32 writes a 32-bit value.
func (w *Writer) WriteUint32(v uint32) { w.WriteUintN(uint64(v), 4) }

// WriteUint64 writes a 64-bit value.
func (w *Writer) WriteUint64(v uint64) { w.WriteUintN(v, 8) }

// WriteUintN writes an unsigned integer of n bytes.
func (w *Writer) WriteUintN(v uint64, n int) {
	buf := make([]byte, n)
	switch n {
	case 1:
		buf[0] = uint8(v)
	case 2:
		w.cfg.ByteOrder.PutUint16(buf, uint16(v))
	case 4:
		w.cfg.ByteOrder.PutUint32(buf, uint32(v))
	case 8:
		w.cfg.ByteOrder.PutUint64(buf, v)
	default:
		for i := 0; i < n; i++ {
			buf[i] = byte(v >> (8 * i))
		}
		if w.cfg.ByteOrder == binary.BigEndian {
			for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
				buf[i], buf[j] = buf[j], buf[i]
			}
		}
	}
	w.WriteBytes(buf)
}

// WriteOffset writes a file address using the configured offset size.
// Undefined is narrowed to the all-ones value of that size.
func (w *Writer) WriteOffset(v uint64) { w.WriteUintN(v, w.cfg.OffsetSize) }

// WriteUndefinedOffset writes the undefined address.
func (w *Writer) WriteUndefinedOffset() { w.WriteOffset(Undefined) }

// WriteLength writes a length using the configured length size.
func (w *Writer) WriteLength(v uint64) { w.WriteUintN(v, w.cfg.LengthSize) }

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) {
	if n > 0 {
		w.WriteBytes(make([]byte, n))
	}
}

// Buffer is an in-memory io.WriterAt that grows on demand.
type Buffer struct {
	buf []byte
}

// WriteAt implements io.WriterAt.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[off:], p)
	return len(p), nil
}

// Bytes returns the buffered data.
func (b *Buffer) Bytes() []byte { return b.buf }

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int { return len(b.buf) }
