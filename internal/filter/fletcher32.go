package filter

import (
	"encoding/binary"
	"errors"

	arfbin "github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
)

var ErrChecksum = errors.New("fletcher32 checksum mismatch")

// Fletcher32 appends a 4-byte checksum to each chunk and verifies it on read.
type Fletcher32 struct{}

func NewFletcher32(_ []uint32) *Fletcher32 { return &Fletcher32{} }

func (f *Fletcher32) ID() uint16 { return message.FilterFletcher32 }

func (f *Fletcher32) Encode(input []byte) ([]byte, error) {
	out := make([]byte, len(input)+4)
	copy(out, input)
	binary.LittleEndian.PutUint32(out[len(input):], arfbin.Fletcher32(input))
	return out, nil
}

func (f *Fletcher32) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, errors.New("fletcher32: input shorter than checksum")
	}
	n := len(input) - 4
	if arfbin.Fletcher32(input[:n]) != binary.LittleEndian.Uint32(input[n:]) {
		return nil, ErrChecksum
	}
	return input[:n], nil
}
