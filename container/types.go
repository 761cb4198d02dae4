package container

import (
	"fmt"
	"slices"
	"strings"

	"github.com/robert-malhotra/go-arf/internal/message"
)

// Kind classifies element types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindUint
	KindFloat
	KindString
	KindCompound
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindCompound:
		return "compound"
	case KindArray:
		return "array"
	}
	return "invalid"
}

// ElementType describes one array element as stored in the file. All
// numeric types are little-endian.
type ElementType struct {
	kind   Kind
	size   uint32
	fields []Field
	base   *ElementType
	dims   []uint32
}

// Field is one named member of a compound schema.
type Field struct {
	Name   string
	Offset uint32
	Type   ElementType
}

// Predefined numeric element types.
var (
	Int8    = ElementType{kind: KindInt, size: 1}
	Int16   = ElementType{kind: KindInt, size: 2}
	Int32   = ElementType{kind: KindInt, size: 4}
	Int64   = ElementType{kind: KindInt, size: 8}
	Uint8   = ElementType{kind: KindUint, size: 1}
	Uint16  = ElementType{kind: KindUint, size: 2}
	Uint32  = ElementType{kind: KindUint, size: 4}
	Uint64  = ElementType{kind: KindUint, size: 8}
	Float32 = ElementType{kind: KindFloat, size: 4}
	Float64 = ElementType{kind: KindFloat, size: 8}
)

// FixedString returns a null-terminated string type occupying size bytes.
func FixedString(size uint32) ElementType {
	return ElementType{kind: KindString, size: size}
}

// ArrayOf returns a fixed-shape array of base, stored row-major.
func ArrayOf(base ElementType, dims ...uint32) ElementType {
	size := base.size
	for _, d := range dims {
		size *= d
	}
	b := base
	return ElementType{kind: KindArray, size: size, base: &b, dims: slices.Clone(dims)}
}

// NewSchema builds a compound type of the given record size. Fields must have
// unique non-empty names and must not overlap or run past the record.
func NewSchema(size uint32, fields ...Field) (ElementType, error) {
	if size == 0 {
		return ElementType{}, fmt.Errorf("%w: empty compound record", ErrInvalidShape)
	}
	if len(fields) == 0 {
		return ElementType{}, fmt.Errorf("%w: compound without fields", ErrInvalidShape)
	}
	byOffset := slices.Clone(fields)
	slices.SortFunc(byOffset, func(a, b Field) int { return int(a.Offset) - int(b.Offset) })
	seen := make(map[string]bool, len(fields))
	var end uint32
	for i, f := range byOffset {
		switch {
		case f.Name == "":
			return ElementType{}, fmt.Errorf("%w: unnamed field at offset %d", ErrInvalidShape, f.Offset)
		case seen[f.Name]:
			return ElementType{}, fmt.Errorf("%w: duplicate field %q", ErrInvalidShape, f.Name)
		case f.Type.kind == KindInvalid || f.Type.size == 0:
			return ElementType{}, fmt.Errorf("%w: field %q has no type", ErrInvalidShape, f.Name)
		case i > 0 && f.Offset < end:
			return ElementType{}, fmt.Errorf("%w: field %q overlaps previous field", ErrInvalidShape, f.Name)
		case f.Offset+f.Type.size > size:
			return ElementType{}, fmt.Errorf("%w: field %q ends at %d past record size %d", ErrInvalidShape, f.Name, f.Offset+f.Type.size, size)
		}
		seen[f.Name] = true
		end = f.Offset + f.Type.size
	}
	return ElementType{kind: KindCompound, size: size, fields: slices.Clone(fields)}, nil
}

func (t ElementType) Kind() Kind     { return t.kind }
func (t ElementType) Size() uint32   { return t.size }
func (t ElementType) Fields() []Field { return slices.Clone(t.fields) }

// Dims returns the shape of an array type.
func (t ElementType) Dims() []uint32 { return slices.Clone(t.dims) }

// Base returns the element type of an array type.
func (t ElementType) Base() ElementType {
	if t.base == nil {
		return ElementType{}
	}
	return *t.base
}

// Field returns the compound field with the given name.
func (t ElementType) Field(name string) (Field, bool) {
	for _, f := range t.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Equal reports whether two types have the same layout.
func (t ElementType) Equal(o ElementType) bool {
	if t.kind != o.kind || t.size != o.size {
		return false
	}
	switch t.kind {
	case KindCompound:
		return slices.EqualFunc(t.fields, o.fields, func(a, b Field) bool {
			return a.Name == b.Name && a.Offset == b.Offset && a.Type.Equal(b.Type)
		})
	case KindArray:
		return slices.Equal(t.dims, o.dims) && t.base.Equal(*o.base)
	}
	return true
}

func (t ElementType) String() string {
	switch t.kind {
	case KindInt, KindUint, KindFloat:
		return fmt.Sprintf("%s%d", t.kind, t.size*8)
	case KindString:
		return fmt.Sprintf("string[%d]", t.size)
	case KindArray:
		dims := make([]string, len(t.dims))
		for i, d := range t.dims {
			dims[i] = fmt.Sprint(d)
		}
		return fmt.Sprintf("%s[%s]", t.base, strings.Join(dims, "x"))
	case KindCompound:
		parts := make([]string, len(t.fields))
		for i, f := range t.fields {
			parts[i] = fmt.Sprintf("%s@%d:%s", f.Name, f.Offset, f.Type)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "invalid"
}

func (t ElementType) datatype() *message.Datatype {
	switch t.kind {
	case KindInt:
		return message.NewInteger(t.size, true)
	case KindUint:
		return message.NewInteger(t.size, false)
	case KindFloat:
		return message.NewFloat(t.size)
	case KindString:
		return message.NewString(t.size)
	case KindArray:
		return message.NewArray(t.base.datatype(), t.dims...)
	case KindCompound:
		members := make([]message.Member, len(t.fields))
		for i, f := range t.fields {
			members[i] = message.Member{Name: f.Name, Offset: f.Offset, Type: f.Type.datatype()}
		}
		return message.NewCompound(t.size, members...)
	}
	return nil
}

// elementTypeOf maps a stored datatype back to an ElementType.
func elementTypeOf(dt *message.Datatype) (ElementType, error) {
	if dt.BigEndian {
		return ElementType{}, fmt.Errorf("%w: big-endian %s", ErrUnsupported, dt)
	}
	switch dt.Class {
	case message.ClassFixedPoint:
		if dt.Signed {
			return ElementType{kind: KindInt, size: dt.Size}, nil
		}
		return ElementType{kind: KindUint, size: dt.Size}, nil
	case message.ClassFloat:
		return ElementType{kind: KindFloat, size: dt.Size}, nil
	case message.ClassString:
		return FixedString(dt.Size), nil
	case message.ClassArray:
		base, err := elementTypeOf(dt.Base)
		if err != nil {
			return ElementType{}, err
		}
		return ArrayOf(base, dt.Dims...), nil
	case message.ClassCompound:
		fields := make([]Field, len(dt.Members))
		for i, m := range dt.Members {
			ft, err := elementTypeOf(m.Type)
			if err != nil {
				return ElementType{}, fmt.Errorf("field %q: %w", m.Name, err)
			}
			fields[i] = Field{Name: m.Name, Offset: m.Offset, Type: ft}
		}
		return ElementType{kind: KindCompound, size: dt.Size, fields: fields}, nil
	}
	return ElementType{}, fmt.Errorf("%w: datatype %s", ErrUnsupported, dt)
}
