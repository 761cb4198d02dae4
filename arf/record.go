package arf

import (
	"encoding/binary"
	"fmt"

	"github.com/robert-malhotra/go-arf/container"
)

// Record is one packed compound element being assembled for a schema.
type Record struct {
	schema container.ElementType
	buf    []byte
}

// NewRecord returns a zeroed record for schema.
func NewRecord(schema container.ElementType) *Record {
	return &Record{schema: schema, buf: make([]byte, schema.Size())}
}

// Reset zeroes every field.
func (r *Record) Reset() { clear(r.buf) }

// Bytes returns the packed record. The slice is reused by later Sets.
func (r *Record) Bytes() []byte { return r.buf }

func (r *Record) field(name string) (container.Field, []byte, error) {
	f, ok := r.schema.Field(name)
	if !ok {
		return f, nil, fmt.Errorf("%w: no field %q in %s", container.ErrNotFound, name, r.schema)
	}
	return f, r.buf[f.Offset : f.Offset+f.Type.Size()], nil
}

// Set stores v in the named field. Numeric fields take the Go type of the
// same width and kind, string fields take a string (truncated to leave a
// terminating zero), and array fields take a slice of their base type no
// longer than the array; the rest of the slot is zeroed. A []byte is copied
// raw.
func (r *Record) Set(name string, v any) error {
	f, slot, err := r.field(name)
	if err != nil {
		return err
	}
	clear(slot)
	switch val := v.(type) {
	case string:
		if f.Type.Kind() != container.KindString {
			return fmt.Errorf("%w: string for %s field %q", container.ErrTypeMismatch, f.Type, name)
		}
		copy(slot[:len(slot)-1], val)
		return nil
	case []byte:
		copy(slot, val)
		return nil
	}

	want := f.Type
	if want.Kind() == container.KindArray {
		want = want.Base()
	}
	got, ok := goType(v)
	if !ok || !got.Equal(want) {
		return fmt.Errorf("%w: %T for %s field %q", container.ErrTypeMismatch, v, f.Type, name)
	}
	data, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		return err
	}
	if len(data) > len(slot) {
		return fmt.Errorf("%w: %d bytes for %d-byte field %q", ErrCapacityExceeded, len(data), len(slot), name)
	}
	copy(slot, data)
	return nil
}

// SetBytes copies raw bytes into the named field, truncating to the field
// size. String fields keep their terminating zero.
func (r *Record) SetBytes(name string, b []byte) error {
	f, slot, err := r.field(name)
	if err != nil {
		return err
	}
	clear(slot)
	if f.Type.Kind() == container.KindString {
		slot = slot[:len(slot)-1]
	}
	copy(slot, b)
	return nil
}

func goType(v any) (container.ElementType, bool) {
	switch v.(type) {
	case int8, []int8:
		return container.Int8, true
	case int16, []int16:
		return container.Int16, true
	case int32, []int32:
		return container.Int32, true
	case int64, []int64:
		return container.Int64, true
	case uint8:
		return container.Uint8, true
	case uint16, []uint16:
		return container.Uint16, true
	case uint32, []uint32:
		return container.Uint32, true
	case uint64, []uint64:
		return container.Uint64, true
	case float32, []float32:
		return container.Float32, true
	case float64, []float64:
		return container.Float64, true
	}
	return container.ElementType{}, false
}

// CompoundRecordWriter appends records to a 1-D compound array.
type CompoundRecordWriter struct {
	arr    *container.ExtendableArray
	schema container.ElementType
}

// NewCompoundRecordWriter wraps arr, which must hold compound elements.
func NewCompoundRecordWriter(arr *container.ExtendableArray) (*CompoundRecordWriter, error) {
	t := arr.Type()
	if t.Kind() != container.KindCompound || arr.Rank() != 1 {
		return nil, fmt.Errorf("%w: %s is a rank %d %s array", container.ErrTypeMismatch, arr.Path(), arr.Rank(), t)
	}
	return &CompoundRecordWriter{arr: arr, schema: t}, nil
}

// Schema returns the record type.
func (w *CompoundRecordWriter) Schema() container.ElementType { return w.schema }

// NewRecord returns an empty record for the writer's schema.
func (w *CompoundRecordWriter) NewRecord() *Record { return NewRecord(w.schema) }

// Write appends r as one element.
func (w *CompoundRecordWriter) Write(r *Record) error {
	if !r.schema.Equal(w.schema) {
		return fmt.Errorf("%w: record %s for %s", container.ErrTypeMismatch, r.schema, w.arr.Path())
	}
	return w.arr.AppendCompound(r.buf)
}

// Len returns the number of records written so far.
func (w *CompoundRecordWriter) Len() uint64 { return w.arr.Extent()[0] }
