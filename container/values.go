package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// goElementType returns the element type matching a Go numeric value or slice
// and whether the value is a slice.
func goElementType(v any) (ElementType, bool, error) {
	switch v.(type) {
	case int8:
		return Int8, false, nil
	case int16:
		return Int16, false, nil
	case int32:
		return Int32, false, nil
	case int64:
		return Int64, false, nil
	case uint8:
		return Uint8, false, nil
	case uint16:
		return Uint16, false, nil
	case uint32:
		return Uint32, false, nil
	case uint64:
		return Uint64, false, nil
	case float32:
		return Float32, false, nil
	case float64:
		return Float64, false, nil
	case []int8:
		return Int8, true, nil
	case []int16:
		return Int16, true, nil
	case []int32:
		return Int32, true, nil
	case []int64:
		return Int64, true, nil
	case []uint8:
		return Uint8, true, nil
	case []uint16:
		return Uint16, true, nil
	case []uint32:
		return Uint32, true, nil
	case []uint64:
		return Uint64, true, nil
	case []float32:
		return Float32, true, nil
	case []float64:
		return Float64, true, nil
	}
	return ElementType{}, false, fmt.Errorf("%w: unsupported Go type %T", ErrTypeMismatch, v)
}

// encodeElements packs data for an array of type t. A []byte is taken as
// already packed elements; []string fills fixed-string arrays; numeric slices
// must match t exactly.
func encodeElements(t ElementType, data any) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		if len(v)%int(t.size) != 0 {
			return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-byte elements", ErrInvalidShape, len(v), t.size)
		}
		return v, nil
	case []string:
		if t.kind != KindString {
			return nil, fmt.Errorf("%w: []string for %s array", ErrTypeMismatch, t)
		}
		out := make([]byte, 0, len(v)*int(t.size))
		for _, s := range v {
			out = appendFixedString(out, s, int(t.size))
		}
		return out, nil
	}
	gt, isSlice, err := goElementType(data)
	if err != nil {
		return nil, err
	}
	if !isSlice {
		return nil, fmt.Errorf("%w: array data must be a slice, got %T", ErrTypeMismatch, data)
	}
	if !gt.Equal(t) {
		return nil, fmt.Errorf("%w: %T for %s array", ErrTypeMismatch, data, t)
	}
	return binary.Append(nil, binary.LittleEndian, data)
}

// appendFixedString writes s into a size-byte null-terminated slot,
// truncating to size-1 bytes.
func appendFixedString(dst []byte, s string, size int) []byte {
	if len(s) > size-1 {
		s = s[:max(size-1, 0)]
	}
	dst = append(dst, s...)
	return append(dst, make([]byte, size-len(s))...)
}

// decodeValue converts raw attribute data into a Go value: a string for string
// types, a scalar for single numeric elements and a slice otherwise.
func decodeValue(t ElementType, data []byte, scalar bool) (any, error) {
	if t.kind == KindString {
		if i := bytes.IndexByte(data, 0); i >= 0 {
			data = data[:i]
		}
		return string(data), nil
	}
	n := len(data) / max(int(t.size), 1)
	if scalar && n == 0 {
		return nil, fmt.Errorf("%w: empty scalar %s value", ErrInvalidShape, t)
	}
	var out any
	switch {
	case t.Equal(Int8):
		out = make([]int8, n)
	case t.Equal(Int16):
		out = make([]int16, n)
	case t.Equal(Int32):
		out = make([]int32, n)
	case t.Equal(Int64):
		out = make([]int64, n)
	case t.Equal(Uint8):
		out = make([]uint8, n)
	case t.Equal(Uint16):
		out = make([]uint16, n)
	case t.Equal(Uint32):
		out = make([]uint32, n)
	case t.Equal(Uint64):
		out = make([]uint64, n)
	case t.Equal(Float32):
		out = make([]float32, n)
	case t.Equal(Float64):
		out = make([]float64, n)
	default:
		return data, nil
	}
	if _, err := binary.Decode(data, binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("decoding %s values: %w", t, err)
	}
	if !scalar {
		return out, nil
	}
	switch s := out.(type) {
	case []int8:
		return s[0], nil
	case []int16:
		return s[0], nil
	case []int32:
		return s[0], nil
	case []int64:
		return s[0], nil
	case []uint8:
		return s[0], nil
	case []uint16:
		return s[0], nil
	case []uint32:
		return s[0], nil
	case []uint64:
		return s[0], nil
	case []float32:
		return s[0], nil
	case []float64:
		return s[0], nil
	}
	return out, nil
}
