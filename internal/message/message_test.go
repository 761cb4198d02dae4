package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

func roundTrip[T Message](t *testing.T, m Serializable) T {
	t.Helper()
	cfg := binary.DefaultConfig()
	data, err := Encode(m, cfg)
	require.NoError(t, err)
	parsed, err := Parse(m.Type(), data, cfg)
	require.NoError(t, err)
	out, ok := parsed.(T)
	require.True(t, ok, "parsed %T", parsed)
	return out
}

func TestDataspace(t *testing.T) {
	t.Run("scalar", func(t *testing.T) {
		ds := roundTrip[*Dataspace](t, NewScalarDataspace())
		assert.True(t, ds.IsScalar())
		assert.Equal(t, uint64(1), ds.NumElements())
	})

	t.Run("extendable", func(t *testing.T) {
		in := &Dataspace{Dims: []uint64{10, 3}, MaxDims: []uint64{Unlimited, 3}}
		ds := roundTrip[*Dataspace](t, in)
		assert.Equal(t, in.Dims, ds.Dims)
		assert.Equal(t, in.MaxDims, ds.MaxDims)
		assert.Equal(t, uint64(30), ds.NumElements())
	})

	t.Run("encoding", func(t *testing.T) {
		data, err := Encode(NewSimpleDataspace(5), binary.DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, []byte{2, 1, 0, 1, 5, 0, 0, 0, 0, 0, 0, 0}, data)
	})
}

func TestDatatypeEncoding(t *testing.T) {
	cfg := binary.DefaultConfig()

	data, err := Encode(NewFloat(4), cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x11, 0x20, 0x1f, 0x00, 4, 0, 0, 0,
		0, 0, 32, 0, 23, 8, 0, 23, 127, 0, 0, 0,
	}, data)

	data, err = Encode(NewInteger(2, true), cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x10, 0x08, 0, 0, 2, 0, 0, 0, 0, 0, 16, 0}, data)

	data, err = Encode(NewString(16), cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x13, 0, 0, 0, 16, 0, 0, 0}, data)
}

func TestDatatypeCompoundRoundTrip(t *testing.T) {
	wave := NewArray(NewInteger(2, true), 4, 2)
	in := NewCompound(24,
		Member{Name: "start", Offset: 0, Type: NewFloat(4)},
		Member{Name: "recording", Offset: 4, Type: NewInteger(4, true)},
		Member{Name: "waveform", Offset: 8, Type: wave},
	)
	assert.Equal(t, uint32(16), wave.Size)

	out := roundTrip[*Datatype](t, in)
	assert.True(t, in.Equal(out))
	require.Len(t, out.Members, 3)
	assert.Equal(t, "waveform", out.Members[2].Name)
	assert.Equal(t, []uint32{4, 2}, out.Members[2].Type.Dims)
	assert.Equal(t, "{start@0:float32, recording@4:int32, waveform@8:int16[4x2]}", out.String())

	other := NewCompound(24,
		Member{Name: "start", Offset: 0, Type: NewFloat(8)},
		Member{Name: "recording", Offset: 4, Type: NewInteger(4, true)},
		Member{Name: "waveform", Offset: 8, Type: wave},
	)
	assert.False(t, in.Equal(other))
}

func TestDatatypeWideCompoundOffsets(t *testing.T) {
	in := NewCompound(1036,
		Member{Name: "start", Offset: 0, Type: NewFloat(4)},
		Member{Name: "valid_samples", Offset: 1032, Type: NewInteger(4, true)},
	)
	out := roundTrip[*Datatype](t, in)
	assert.Equal(t, uint32(1032), out.Members[1].Offset)
}

func TestFillValue(t *testing.T) {
	data, err := Encode(NewChunkedFillValue(), binary.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 0x0b}, data)

	fv := roundTrip[*FillValue](t, &FillValue{AllocTime: AllocLate, WriteTime: FillIfSet, Defined: true, Value: []byte{1, 2}})
	assert.True(t, fv.Defined)
	assert.Equal(t, []byte{1, 2}, fv.Value)
	assert.Equal(t, AllocLate, fv.AllocTime)
}

func TestLayout(t *testing.T) {
	l := roundTrip[*Layout](t, NewChunkedLayout(0x1234, 2, 2048))
	assert.Equal(t, LayoutChunked, l.Class)
	assert.Equal(t, uint64(0x1234), l.Address)
	assert.Equal(t, []uint32{2048, 2}, l.ChunkDims)
	assert.Equal(t, []uint64{2048}, l.Chunk())

	undef := roundTrip[*Layout](t, NewChunkedLayout(binary.Undefined, 8, 8, 1))
	assert.Equal(t, binary.Undefined, undef.Address)
}

func TestFilterPipeline(t *testing.T) {
	in := &FilterPipeline{Filters: []FilterInfo{
		{ID: FilterShuffle, ClientData: []uint32{2}},
		{ID: FilterDeflate, ClientData: []uint32{6}},
		{ID: FilterLZ4, Name: "lz4", Flags: FilterOptional},
	}}
	out := roundTrip[*FilterPipeline](t, in)
	require.Len(t, out.Filters, 3)
	assert.Equal(t, FilterShuffle, out.Filters[0].ID)
	assert.Equal(t, []uint32{6}, out.Filters[1].ClientData)
	assert.Equal(t, "lz4", out.Filters[2].Name)
	assert.Equal(t, FilterOptional, out.Filters[2].Flags)
}

func TestLinks(t *testing.T) {
	l := roundTrip[*Link](t, &Link{Name: "channel0", Address: 96})
	assert.True(t, l.IsHard())
	assert.Equal(t, "channel0", l.Name)
	assert.Equal(t, uint64(96), l.Address)

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	l = roundTrip[*Link](t, &Link{Name: string(long), Address: 7})
	assert.Len(t, l.Name, 300)

	li := roundTrip[*LinkInfo](t, NewCompactLinkInfo())
	assert.True(t, li.IsCompact())
}

func TestAttribute(t *testing.T) {
	in := &Attribute{
		Name:      "units",
		Datatype:  NewString(2),
		Dataspace: NewScalarDataspace(),
		Data:      []byte("V\x00"),
	}
	a := roundTrip[*Attribute](t, in)
	assert.Equal(t, "units", a.Name)
	assert.Equal(t, ClassString, a.Datatype.Class)
	assert.Equal(t, []byte("V\x00"), a.Data)

	ts := &Attribute{
		Name:      "timestamp",
		Datatype:  NewInteger(8, true),
		Dataspace: NewSimpleDataspace(2),
		Data:      make([]byte, 16),
	}
	a = roundTrip[*Attribute](t, ts)
	assert.Equal(t, []uint64{2}, a.Dataspace.Dims)
	assert.Len(t, a.Data, 16)
}

func TestAttributeTruncated(t *testing.T) {
	cfg := binary.DefaultConfig()
	data, err := Encode(&Attribute{
		Name:      "x",
		Datatype:  NewInteger(8, false),
		Dataspace: NewScalarDataspace(),
		Data:      make([]byte, 8),
	}, cfg)
	require.NoError(t, err)
	_, err = Parse(TypeAttribute, data[:len(data)-3], cfg)
	assert.Error(t, err)
}

func TestParseUnknown(t *testing.T) {
	m, err := Parse(TypeObjectModTime, []byte{1, 0, 0, 0, 9, 9, 9, 9}, binary.DefaultConfig())
	require.NoError(t, err)
	u, ok := m.(*Unknown)
	require.True(t, ok)
	assert.Equal(t, TypeObjectModTime, u.Type())
	assert.Len(t, u.Data(), 8)
}
