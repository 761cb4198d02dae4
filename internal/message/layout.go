package message

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// LayoutClass is the storage layout of a dataset.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
)

func (c LayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	}
	return fmt.Sprintf("layout(%d)", uint8(c))
}

// Layout is the data layout message (0x0008), version 3.
type Layout struct {
	Class LayoutClass

	// Address of the contiguous data or the chunk B-tree root.
	Address uint64
	// Size of contiguous data.
	Size uint64
	// Chunk dimensions. The last entry is the element size in bytes.
	ChunkDims []uint32
	// Raw data of a compact dataset.
	Data []byte
}

func (m *Layout) Type() Type { return TypeDataLayout }

// NewChunkedLayout returns a chunked layout with the element size appended to dims.
func NewChunkedLayout(btreeAddr uint64, elemSize uint32, dims ...uint64) *Layout {
	cd := make([]uint32, 0, len(dims)+1)
	for _, d := range dims {
		cd = append(cd, uint32(d))
	}
	return &Layout{Class: LayoutChunked, Address: btreeAddr, ChunkDims: append(cd, elemSize)}
}

// Chunk returns the chunk shape without the trailing element-size dimension.
func (m *Layout) Chunk() []uint64 {
	if len(m.ChunkDims) == 0 {
		return nil
	}
	out := make([]uint64, len(m.ChunkDims)-1)
	for i := range out {
		out[i] = uint64(m.ChunkDims[i])
	}
	return out
}

// Serialize writes a version 3 layout message.
func (m *Layout) Serialize(w *binary.Writer) {
	w.WriteUint8(3)
	w.WriteUint8(uint8(m.Class))
	switch m.Class {
	case LayoutCompact:
		w.WriteUint16(uint16(len(m.Data)))
		w.WriteBytes(m.Data)
	case LayoutContiguous:
		w.WriteOffset(m.Address)
		w.WriteLength(m.Size)
	case LayoutChunked:
		w.WriteUint8(uint8(len(m.ChunkDims)))
		w.WriteOffset(m.Address)
		for _, d := range m.ChunkDims {
			w.WriteUint32(d)
		}
	}
}

func parseLayout(r *binary.Reader) (*Layout, error) {
	version := r.Uint8()
	if version != 3 {
		return nil, fmt.Errorf("unsupported layout version %d", version)
	}
	l := &Layout{Class: LayoutClass(r.Uint8())}
	switch l.Class {
	case LayoutCompact:
		l.Data = r.Bytes(int(r.Uint16()))
	case LayoutContiguous:
		l.Address = r.Offset()
		l.Size = r.Length()
	case LayoutChunked:
		n := int(r.Uint8())
		l.Address = r.Offset()
		l.ChunkDims = make([]uint32, n)
		for i := range l.ChunkDims {
			l.ChunkDims[i] = r.Uint32()
		}
	default:
		return nil, fmt.Errorf("unknown layout class %d", l.Class)
	}
	return l, nil
}
