package message

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Unlimited is the maximum dimension size meaning "may grow without bound".
const Unlimited = ^uint64(0)

// Dataspace describes the shape of a dataset or attribute (message 0x0001).
// A dataspace with no dimensions is scalar.
type Dataspace struct {
	Dims    []uint64
	MaxDims []uint64 // nil when equal to Dims
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// NewScalarDataspace returns a rank-0 dataspace.
func NewScalarDataspace() *Dataspace { return &Dataspace{} }

// NewSimpleDataspace returns a fixed-size dataspace.
func NewSimpleDataspace(dims ...uint64) *Dataspace {
	return &Dataspace{Dims: append([]uint64(nil), dims...)}
}

// IsScalar reports whether the dataspace has rank 0.
func (m *Dataspace) IsScalar() bool { return len(m.Dims) == 0 }

// NumElements returns the number of elements described.
func (m *Dataspace) NumElements() uint64 {
	n := uint64(1)
	for _, d := range m.Dims {
		n *= d
	}
	return n
}

// Serialize writes a version 2 dataspace message.
func (m *Dataspace) Serialize(w *binary.Writer) {
	w.WriteUint8(2)
	w.WriteUint8(uint8(len(m.Dims)))
	var flags uint8
	if m.MaxDims != nil {
		flags |= 0x01
	}
	w.WriteUint8(flags)
	if len(m.Dims) == 0 {
		w.WriteUint8(0) // scalar
	} else {
		w.WriteUint8(1) // simple
	}
	for _, d := range m.Dims {
		w.WriteLength(d)
	}
	for _, d := range m.MaxDims {
		w.WriteLength(d)
	}
}

func parseDataspace(r *binary.Reader) (*Dataspace, error) {
	version := r.Uint8()
	rank := int(r.Uint8())
	flags := r.Uint8()

	switch version {
	case 1:
		r.Skip(5) // reserved(1) + reserved(4)
	case 2:
		if kind := r.Uint8(); kind == 2 {
			return &Dataspace{}, nil // null dataspace, treated as empty scalar
		}
	default:
		return nil, fmt.Errorf("unsupported dataspace version %d", version)
	}

	ds := &Dataspace{}
	if rank > 0 {
		ds.Dims = make([]uint64, rank)
		for i := range ds.Dims {
			ds.Dims[i] = r.Length()
		}
	}
	if flags&0x01 != 0 && rank > 0 {
		ds.MaxDims = make([]uint64, rank)
		for i := range ds.MaxDims {
			ds.MaxDims[i] = r.Length()
			if r.Config().LengthSize < 8 && ds.MaxDims[i] == uint64(1)<<(8*r.Config().LengthSize)-1 {
				ds.MaxDims[i] = Unlimited
			}
		}
	}
	return ds, nil
}
