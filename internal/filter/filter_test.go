package filter

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-arf/internal/message"
)

// samples returns a slowly varying int16 signal, which compresses well after shuffling.
func samples(n int) []byte {
	out := make([]byte, 0, 2*n)
	for i := range n {
		out = binary.LittleEndian.AppendUint16(out, uint16(int16(i%200-100)))
	}
	return out
}

func TestFilterRoundTrips(t *testing.T) {
	data := samples(4096)
	filters := []Filter{
		NewDeflate([]uint32{6}),
		NewShuffle([]uint32{2}),
		NewFletcher32(nil),
		NewLZ4(nil),
		NewLZ4([]uint32{1000}),
		NewZstd(nil),
		NewZstd([]uint32{9}),
	}
	for _, f := range filters {
		t.Run(Name(f.ID()), func(t *testing.T) {
			enc, err := f.Encode(data)
			require.NoError(t, err)
			dec, err := f.Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, data, dec)
		})
	}
}

func TestCompressionShrinksSignal(t *testing.T) {
	data := samples(8192)
	for _, f := range []Filter{NewDeflate(nil), NewLZ4(nil), NewZstd(nil)} {
		enc, err := f.Encode(data)
		require.NoError(t, err)
		assert.Less(t, len(enc), len(data), Name(f.ID()))
	}
}

func TestShuffleLayout(t *testing.T) {
	f := NewShuffle([]uint32{2})
	enc, err := f.Encode([]byte{1, 2, 3, 4, 5, 6, 7})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 3, 5, 2, 4, 6, 7}, enc)
}

func TestLZ4Framing(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 3000)
	enc, err := NewLZ4([]uint32{1024}).Encode(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), binary.BigEndian.Uint64(enc[0:]))
	assert.Equal(t, uint32(1024), binary.BigEndian.Uint32(enc[8:]))

	// Random-looking bytes are stored raw.
	noise := make([]byte, 64)
	for i := range noise {
		noise[i] = byte(i * 151 % 251)
	}
	enc, err = NewLZ4(nil).Encode(noise)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), binary.BigEndian.Uint32(enc[12:]))
	dec, err := NewLZ4(nil).Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, noise, dec)

	_, err = NewLZ4(nil).Decode(enc[:8])
	assert.Error(t, err)
}

func TestFletcher32DetectsCorruption(t *testing.T) {
	f := NewFletcher32(nil)
	enc, err := f.Encode(samples(100))
	require.NoError(t, err)
	enc[3] ^= 0x10
	_, err = f.Decode(enc)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestPipeline(t *testing.T) {
	p, err := NewPipeline(&message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: message.FilterShuffle, ClientData: []uint32{2}},
		{ID: message.FilterDeflate, ClientData: []uint32{4}},
		{ID: message.FilterFletcher32},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	data := samples(1000)
	enc, mask, err := p.Encode(data)
	require.NoError(t, err)
	assert.Zero(t, mask)
	dec, err := p.Decode(enc, mask)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestPipelineMaskSkipsFilters(t *testing.T) {
	p, err := NewPipeline(&message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: message.FilterShuffle, ClientData: []uint32{2}},
		{ID: message.FilterDeflate},
	}})
	require.NoError(t, err)

	data := samples(50)
	shuffled, err := NewShuffle([]uint32{2}).Encode(data)
	require.NoError(t, err)
	dec, err := p.Decode(shuffled, 0b10)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestPipelineUnknownFilters(t *testing.T) {
	_, err := NewPipeline(&message.FilterPipeline{Filters: []message.FilterInfo{{ID: message.FilterSzip}}})
	assert.ErrorIs(t, err, ErrUnsupported)

	p, err := NewPipeline(&message.FilterPipeline{Filters: []message.FilterInfo{
		{ID: 40000, Name: "vendor", Flags: message.FilterOptional},
		{ID: message.FilterDeflate},
	}})
	require.NoError(t, err)
	data := samples(64)
	enc, mask, err := p.Encode(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), mask)
	dec, err := p.Decode(enc, mask)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestEmptyPipeline(t *testing.T) {
	p, err := NewPipeline(nil)
	require.NoError(t, err)
	assert.True(t, p.Empty())
	out, mask, err := p.Encode([]byte{1, 2})
	require.NoError(t, err)
	assert.Zero(t, mask)
	assert.Equal(t, []byte{1, 2}, out)
}
