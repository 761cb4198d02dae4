package message

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Space allocation and fill write times.
const (
	AllocEarly       uint8 = 1
	AllocLate        uint8 = 2
	AllocIncremental uint8 = 3

	FillOnAlloc uint8 = 0
	FillNever   uint8 = 1
	FillIfSet   uint8 = 2
)

// FillValue is the fill value message (0x0005).
type FillValue struct {
	AllocTime uint8
	WriteTime uint8
	Defined   bool
	Value     []byte
}

func (m *FillValue) Type() Type { return TypeFillValue }

// NewChunkedFillValue returns the fill value settings used for chunked datasets:
// incremental allocation and no user-defined value.
func NewChunkedFillValue() *FillValue {
	return &FillValue{AllocTime: AllocIncremental, WriteTime: FillIfSet}
}

// Serialize writes a version 3 fill value message.
func (m *FillValue) Serialize(w *binary.Writer) {
	flags := m.AllocTime&0x03 | (m.WriteTime&0x03)<<2
	if m.Defined {
		flags |= 0x20
	}
	w.WriteUint8(3)
	w.WriteUint8(flags)
	if m.Defined {
		w.WriteUint32(uint32(len(m.Value)))
		w.WriteBytes(m.Value)
	}
}

func parseFillValue(r *binary.Reader) (*FillValue, error) {
	version := r.Uint8()
	fv := &FillValue{}
	switch version {
	case 1, 2:
		fv.AllocTime = r.Uint8()
		fv.WriteTime = r.Uint8()
		fv.Defined = r.Uint8() != 0
		if version == 1 || fv.Defined {
			size := r.Uint32()
			if size > 0 {
				fv.Value = r.Bytes(int(size))
			}
		}
	case 3:
		flags := r.Uint8()
		fv.AllocTime = flags & 0x03
		fv.WriteTime = (flags >> 2) & 0x03
		fv.Defined = flags&0x20 != 0
		if fv.Defined {
			fv.Value = r.Bytes(int(r.Uint32()))
		}
	default:
		return nil, fmt.Errorf("unsupported fill value version %d", version)
	}
	return fv, nil
}
