package message

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Class identifies a datatype class.
type Class uint8

const (
	ClassFixedPoint Class = 0
	ClassFloat      Class = 1
	ClassTime       Class = 2
	ClassString     Class = 3
	ClassBitfield   Class = 4
	ClassOpaque     Class = 5
	ClassCompound   Class = 6
	ClassReference  Class = 7
	ClassEnum       Class = 8
	ClassVarLen     Class = 9
	ClassArray      Class = 10
)

func (c Class) String() string {
	switch c {
	case ClassFixedPoint:
		return "integer"
	case ClassFloat:
		return "float"
	case ClassTime:
		return "time"
	case ClassString:
		return "string"
	case ClassBitfield:
		return "bitfield"
	case ClassOpaque:
		return "opaque"
	case ClassCompound:
		return "compound"
	case ClassReference:
		return "reference"
	case ClassEnum:
		return "enum"
	case ClassVarLen:
		return "vlen"
	case ClassArray:
		return "array"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// String padding types.
const (
	PadNullTerm  uint8 = 0
	PadNullPad   uint8 = 1
	PadSpacePad  uint8 = 2
	CharsetASCII uint8 = 0
	CharsetUTF8  uint8 = 1
)

// ErrUnsupportedDatatype is returned for datatype encodings this package cannot decode.
var ErrUnsupportedDatatype = errors.New("unsupported datatype")

// Member is one field of a compound datatype.
type Member struct {
	Name   string
	Offset uint32
	Type   *Datatype
}

// Datatype describes the in-file representation of one element (message 0x0003).
type Datatype struct {
	Class     Class
	Version   uint8
	Size      uint32
	BigEndian bool

	// Fixed-point, bitfield and float.
	Signed    bool
	BitOffset uint16
	Precision uint16

	// Float only.
	SignLocation     uint8
	ExponentLocation uint8
	ExponentSize     uint8
	MantissaLocation uint8
	MantissaSize     uint8
	ExponentBias     uint32

	// String only.
	Padding uint8
	Charset uint8

	// Compound only.
	Members []Member

	// Array, enum and vlen.
	Dims []uint32
	Base *Datatype
}

func (m *Datatype) Type() Type { return TypeDatatype }

// NewInteger returns a little-endian integer type of the given byte size.
func NewInteger(size uint32, signed bool) *Datatype {
	return &Datatype{Class: ClassFixedPoint, Version: 1, Size: size, Signed: signed, Precision: uint16(size * 8)}
}

// NewFloat returns an IEEE 754 little-endian float of 4 or 8 bytes.
func NewFloat(size uint32) *Datatype {
	dt := &Datatype{Class: ClassFloat, Version: 1, Size: size, Signed: true, Precision: uint16(size * 8)}
	if size == 4 {
		dt.SignLocation, dt.ExponentLocation, dt.ExponentSize = 31, 23, 8
		dt.MantissaLocation, dt.MantissaSize, dt.ExponentBias = 0, 23, 127
	} else {
		dt.SignLocation, dt.ExponentLocation, dt.ExponentSize = 63, 52, 11
		dt.MantissaLocation, dt.MantissaSize, dt.ExponentBias = 0, 52, 1023
	}
	return dt
}

// NewString returns a fixed-length null-terminated ASCII string type.
func NewString(size uint32) *Datatype {
	return &Datatype{Class: ClassString, Version: 1, Size: size, Padding: PadNullTerm, Charset: CharsetASCII}
}

// NewCompound returns a compound type with the given members.
func NewCompound(size uint32, members ...Member) *Datatype {
	return &Datatype{Class: ClassCompound, Version: 3, Size: size, Members: members}
}

// NewArray returns a fixed-dimension array of base.
func NewArray(base *Datatype, dims ...uint32) *Datatype {
	size := base.Size
	for _, d := range dims {
		size *= d
	}
	return &Datatype{Class: ClassArray, Version: 3, Size: size, Dims: dims, Base: base}
}

// Equal reports whether two datatypes describe the same element layout.
// The encoding version is ignored.
func (m *Datatype) Equal(o *Datatype) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Class != o.Class || m.Size != o.Size || m.BigEndian != o.BigEndian {
		return false
	}
	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		return m.Signed == o.Signed
	case ClassString:
		return m.Padding == o.Padding
	case ClassCompound:
		if len(m.Members) != len(o.Members) {
			return false
		}
		for i := range m.Members {
			a, b := m.Members[i], o.Members[i]
			if a.Name != b.Name || a.Offset != b.Offset || !a.Type.Equal(b.Type) {
				return false
			}
		}
		return true
	case ClassArray:
		if len(m.Dims) != len(o.Dims) {
			return false
		}
		for i := range m.Dims {
			if m.Dims[i] != o.Dims[i] {
				return false
			}
		}
		return m.Base.Equal(o.Base)
	case ClassEnum, ClassVarLen:
		return m.Base.Equal(o.Base)
	}
	return true
}

// String renders the type the way h5dump-style tools print it.
func (m *Datatype) String() string {
	switch m.Class {
	case ClassFixedPoint:
		if m.Signed {
			return fmt.Sprintf("int%d", m.Size*8)
		}
		return fmt.Sprintf("uint%d", m.Size*8)
	case ClassFloat:
		return fmt.Sprintf("float%d", m.Size*8)
	case ClassString:
		return fmt.Sprintf("string[%d]", m.Size)
	case ClassArray:
		dims := make([]string, len(m.Dims))
		for i, d := range m.Dims {
			dims[i] = fmt.Sprint(d)
		}
		return fmt.Sprintf("%s[%s]", m.Base, strings.Join(dims, "x"))
	case ClassCompound:
		fields := make([]string, len(m.Members))
		for i, f := range m.Members {
			fields[i] = fmt.Sprintf("%s@%d:%s", f.Name, f.Offset, f.Type)
		}
		return "{" + strings.Join(fields, ", ") + "}"
	}
	return fmt.Sprintf("%s(%d)", m.Class, m.Size)
}

func (m *Datatype) classBits() uint32 {
	var bits uint32
	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		if m.BigEndian {
			bits |= 0x01
		}
		if m.Signed {
			bits |= 0x08
		}
	case ClassFloat:
		if m.BigEndian {
			bits |= 0x01
		}
		bits |= 0x20 // implied leading mantissa bit
		bits |= uint32(m.SignLocation) << 8
	case ClassString:
		bits = uint32(m.Padding&0x0f) | uint32(m.Charset&0x0f)<<4
	case ClassCompound:
		bits = uint32(len(m.Members)) & 0xffff
	}
	return bits
}

// Serialize writes the datatype message.
func (m *Datatype) Serialize(w *binary.Writer) {
	version := m.Version
	if version == 0 {
		version = 1
	}
	if m.Class == ClassCompound || m.Class == ClassArray {
		version = 3
	}
	bits := m.classBits()
	w.WriteUint8(uint8(m.Class)&0x0f | version<<4)
	w.WriteUint8(uint8(bits))
	w.WriteUint8(uint8(bits >> 8))
	w.WriteUint8(uint8(bits >> 16))
	w.WriteUint32(m.Size)

	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		w.WriteUint16(m.BitOffset)
		w.WriteUint16(m.Precision)
	case ClassFloat:
		w.WriteUint16(m.BitOffset)
		w.WriteUint16(m.Precision)
		w.WriteUint8(m.ExponentLocation)
		w.WriteUint8(m.ExponentSize)
		w.WriteUint8(m.MantissaLocation)
		w.WriteUint8(m.MantissaSize)
		w.WriteUint32(m.ExponentBias)
	case ClassCompound:
		n := memberOffsetSize(m.Size)
		for _, f := range m.Members {
			w.WriteBytes([]byte(f.Name))
			w.WriteUint8(0)
			w.WriteUintN(uint64(f.Offset), n)
			f.Type.Serialize(w)
		}
	case ClassArray:
		w.WriteUint8(uint8(len(m.Dims)))
		for _, d := range m.Dims {
			w.WriteUint32(d)
		}
		m.Base.Serialize(w)
	case ClassEnum, ClassVarLen:
		if m.Base != nil {
			m.Base.Serialize(w)
		}
	}
}

// memberOffsetSize is the width of a version 3 compound member offset.
func memberOffsetSize(size uint32) int {
	switch {
	case size <= 0xff:
		return 1
	case size <= 0xffff:
		return 2
	case size <= 0xffffff:
		return 3
	}
	return 4
}

// ParseDatatype decodes a datatype starting at the reader's position.
func ParseDatatype(r *binary.Reader) (*Datatype, error) {
	head := r.Uint8()
	b0, b1, b2 := r.Uint8(), r.Uint8(), r.Uint8()
	bits := uint32(b0) | uint32(b1)<<8 | uint32(b2)<<16
	dt := &Datatype{
		Class:   Class(head & 0x0f),
		Version: head >> 4,
		Size:    r.Uint32(),
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		dt.BigEndian = bits&0x01 != 0
		dt.Signed = bits&0x08 != 0
		dt.BitOffset = r.Uint16()
		dt.Precision = r.Uint16()
	case ClassFloat:
		dt.BigEndian = bits&0x01 != 0
		dt.Signed = true
		dt.SignLocation = uint8(bits >> 8)
		dt.BitOffset = r.Uint16()
		dt.Precision = r.Uint16()
		dt.ExponentLocation = r.Uint8()
		dt.ExponentSize = r.Uint8()
		dt.MantissaLocation = r.Uint8()
		dt.MantissaSize = r.Uint8()
		dt.ExponentBias = r.Uint32()
	case ClassTime:
		dt.BigEndian = bits&0x01 != 0
		dt.Precision = r.Uint16()
	case ClassString:
		dt.Padding = uint8(bits & 0x0f)
		dt.Charset = uint8(bits>>4) & 0x0f
	case ClassOpaque:
		r.Skip(int(bits & 0xff)) // ascii tag
	case ClassReference:
	case ClassCompound:
		if err := parseCompoundMembers(r, dt, int(bits&0xffff)); err != nil {
			return nil, err
		}
	case ClassArray:
		ndims := int(r.Uint8())
		if dt.Version < 3 {
			r.Skip(3)
		}
		dt.Dims = make([]uint32, ndims)
		for i := range dt.Dims {
			dt.Dims[i] = r.Uint32()
		}
		if dt.Version < 3 {
			r.Skip(4 * ndims) // permutation
		}
		base, err := ParseDatatype(r)
		if err != nil {
			return nil, err
		}
		dt.Base = base
	case ClassVarLen:
		base, err := ParseDatatype(r)
		if err != nil {
			return nil, err
		}
		dt.Base = base
	case ClassEnum:
		base, err := ParseDatatype(r)
		if err != nil {
			return nil, err
		}
		dt.Base = base
		n := int(bits & 0xffff)
		for range n {
			readMemberName(r, dt.Version)
		}
		r.Skip(n * int(base.Size))
	default:
		return nil, fmt.Errorf("%w: class %d", ErrUnsupportedDatatype, dt.Class)
	}
	return dt, r.Err()
}

func parseCompoundMembers(r *binary.Reader, dt *Datatype, n int) error {
	dt.Members = make([]Member, n)
	for i := range dt.Members {
		f := &dt.Members[i]
		f.Name = readMemberName(r, dt.Version)
		switch dt.Version {
		case 1:
			f.Offset = r.Uint32()
			ndims := int(r.Uint8())
			r.Skip(3 + 4 + 4 + 16) // reserved, permutation, reserved, dims
			if ndims != 0 {
				return fmt.Errorf("%w: version 1 compound member %q with %d dims", ErrUnsupportedDatatype, f.Name, ndims)
			}
		case 2:
			f.Offset = r.Uint32()
		default:
			f.Offset = uint32(r.UintN(memberOffsetSize(dt.Size)))
		}
		typ, err := ParseDatatype(r)
		if err != nil {
			return fmt.Errorf("member %q: %w", f.Name, err)
		}
		f.Type = typ
	}
	return r.Err()
}

// readMemberName reads a NUL-terminated name; versions before 3 pad it to a
// multiple of 8 bytes.
func readMemberName(r *binary.Reader, version uint8) string {
	var name bytes.Buffer
	for r.Err() == nil {
		c := r.Uint8()
		if c == 0 {
			break
		}
		name.WriteByte(c)
	}
	if version < 3 {
		n := name.Len() + 1
		if pad := (8 - n%8) % 8; pad > 0 {
			r.Skip(pad)
		}
	}
	return name.String()
}
