package message

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Registered filter identifiers.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSzip        uint16 = 4
	FilterNbit        uint16 = 5
	FilterScaleOffset uint16 = 6
	FilterLZ4         uint16 = 32004
	FilterZstd        uint16 = 32015
)

// FilterOptional marks a filter that may be skipped when it fails.
const FilterOptional uint16 = 0x0001

// FilterInfo describes one filter in a pipeline.
type FilterInfo struct {
	ID         uint16
	Name       string
	Flags      uint16
	ClientData []uint32
}

// FilterPipeline is the filter pipeline message (0x000B).
type FilterPipeline struct {
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

// Serialize writes a version 2 pipeline. Names are written only for
// non-predefined filters.
func (m *FilterPipeline) Serialize(w *binary.Writer) {
	w.WriteUint8(2)
	w.WriteUint8(uint8(len(m.Filters)))
	for _, f := range m.Filters {
		w.WriteUint16(f.ID)
		if f.ID >= 256 {
			w.WriteUint16(uint16(len(f.Name) + 1))
		}
		w.WriteUint16(f.Flags)
		w.WriteUint16(uint16(len(f.ClientData)))
		if f.ID >= 256 {
			w.WriteBytes([]byte(f.Name))
			w.WriteUint8(0)
		}
		for _, v := range f.ClientData {
			w.WriteUint32(v)
		}
	}
}

func parseFilterPipeline(r *binary.Reader) (*FilterPipeline, error) {
	version := r.Uint8()
	n := int(r.Uint8())
	if version != 1 && version != 2 {
		return nil, fmt.Errorf("unsupported filter pipeline version %d", version)
	}
	if version == 1 {
		r.Skip(6)
	}
	p := &FilterPipeline{Filters: make([]FilterInfo, n)}
	for i := range p.Filters {
		f := &p.Filters[i]
		f.ID = r.Uint16()
		var nameLen int
		if version == 1 || f.ID >= 256 {
			nameLen = int(r.Uint16())
		}
		f.Flags = r.Uint16()
		ncd := int(r.Uint16())
		if nameLen > 0 {
			if version == 1 {
				nameLen = (nameLen + 7) &^ 7
			}
			f.Name = strings.TrimRight(string(r.Bytes(nameLen)), "\x00")
		}
		f.ClientData = make([]uint32, ncd)
		for j := range f.ClientData {
			f.ClientData[j] = r.Uint32()
		}
		if version == 1 && ncd%2 == 1 {
			r.Skip(4)
		}
	}
	return p, nil
}
