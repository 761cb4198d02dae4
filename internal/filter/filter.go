package filter

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/message"
)

// Filter is the interface implemented by all filters.
type Filter interface {
	ID() uint16
	Encode(input []byte) ([]byte, error)
	Decode(input []byte) ([]byte, error)
}

var ErrUnsupported = errors.New("unsupported filter")

// Registry maps filter IDs to constructors taking the filter's client data.
var Registry = map[uint16]func([]uint32) Filter{
	message.FilterDeflate:    func(cd []uint32) Filter { return NewDeflate(cd) },
	message.FilterShuffle:    func(cd []uint32) Filter { return NewShuffle(cd) },
	message.FilterFletcher32: func(cd []uint32) Filter { return NewFletcher32(cd) },
	message.FilterLZ4:        func(cd []uint32) Filter { return NewLZ4(cd) },
	message.FilterZstd:       func(cd []uint32) Filter { return NewZstd(cd) },
}

var filterNames = map[uint16]string{
	message.FilterDeflate:     "deflate",
	message.FilterShuffle:     "shuffle",
	message.FilterFletcher32:  "fletcher32",
	message.FilterSzip:        "szip",
	message.FilterNbit:        "nbit",
	message.FilterScaleOffset: "scaleoffset",
	message.FilterLZ4:         "lz4",
	message.FilterZstd:        "zstd",
}

// Name returns the conventional name of a filter ID.
func Name(id uint16) string {
	if n, ok := filterNames[id]; ok {
		return n
	}
	return fmt.Sprintf("filter-%d", id)
}

// New creates a filter from its pipeline description. Optional filters that
// are not available return nil.
func New(info message.FilterInfo) (Filter, error) {
	ctor, ok := Registry[info.ID]
	if !ok {
		if info.Flags&message.FilterOptional != 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s (ID %d)", ErrUnsupported, Name(info.ID), info.ID)
	}
	return ctor(info.ClientData), nil
}
