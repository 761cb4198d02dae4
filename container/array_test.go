package container

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(start, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(start + i)
	}
	return out
}

func TestAppendBlockOneDimensional(t *testing.T) {
	path := tempPath(t, "block.arf")
	c := create(t, path)

	arr, err := c.OpenOrCreateArray("/rec_0/channel0", Int16, []uint64{0}, []uint64{8})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, arr.Extent())

	ext, err := arr.AppendBlock(ramp(0, 20), 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{20}, ext)
	ext, err = arr.AppendBlock(ramp(20, 5), 99)
	require.NoError(t, err)
	assert.Equal(t, []uint64{25}, ext)
	assert.Equal(t, uint64(25), arr.RowPos(0))
	require.NoError(t, c.Close())

	c = reopen(t, path)
	defer c.Close()
	arr, err = c.Array("/rec_0/channel0")
	require.NoError(t, err)
	assert.Equal(t, []uint64{25}, arr.Extent())
	assert.Equal(t, uint64(25), arr.RowPos(0))

	raw, err := arr.ReadRows(0, 25)
	require.NoError(t, err)
	assert.Equal(t, ramp(0, 25), int16s(t, raw))

	_, err = arr.AppendBlock(ramp(25, 7), 1)
	require.NoError(t, err)
	raw, err = arr.ReadRows(20, 12)
	require.NoError(t, err)
	assert.Equal(t, ramp(20, 12), int16s(t, raw))
}

func TestOpenOrCreateArrayExisting(t *testing.T) {
	c := create(t, tempPath(t, "existing.arf"))
	defer c.Close()

	a1, err := c.OpenOrCreateArray("/data", Float32, []uint64{0}, []uint64{16})
	require.NoError(t, err)
	a2, err := c.OpenOrCreateArray("/data", Float32, []uint64{0}, []uint64{4})
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, []uint64{16}, a2.Chunk())

	_, err = c.OpenOrCreateArray("/data", Int16, []uint64{0}, []uint64{16})
	assert.ErrorIs(t, err, ErrTypeMismatch)

	require.NoError(t, c.CreateGroup("/grp"))
	_, err = c.OpenOrCreateArray("/grp", Int16, []uint64{0}, []uint64{16})
	assert.ErrorIs(t, err, ErrNotArray)
	_, err = c.OpenOrCreateArray("/data/below", Int16, []uint64{0}, []uint64{16})
	assert.ErrorIs(t, err, ErrNotGroup)
}

func TestArrayShapeValidation(t *testing.T) {
	c := create(t, tempPath(t, "shape.arf"))
	defer c.Close()

	_, err := c.OpenOrCreateArray("/r0", Int16, nil, nil)
	assert.ErrorIs(t, err, ErrUnsupportedRank)
	_, err = c.OpenOrCreateArray("/r4", Int16, []uint64{1, 1, 1, 1}, []uint64{1, 1, 1, 1})
	assert.ErrorIs(t, err, ErrUnsupportedRank)
	_, err = c.OpenOrCreateArray("/mismatch", Int16, []uint64{0, 2}, []uint64{8})
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = c.OpenOrCreateArray("/zero", Int16, []uint64{0, 0}, []uint64{8, 0})
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestAppendBlockGrowsSecondDimension(t *testing.T) {
	c := create(t, tempPath(t, "grow.arf"))
	defer c.Close()

	arr, err := c.OpenOrCreateArray("/m", Int32, []uint64{0, 2}, []uint64{4, 2})
	require.NoError(t, err)
	_, err = arr.AppendBlock([]int32{1, 2, 3, 4}, 2)
	require.NoError(t, err)
	ext, err := arr.AppendBlock([]int32{5, 6, 7, 8, 9, 10}, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 3}, ext)

	// A narrower block leaves the extra column unwritten and never shrinks.
	ext, err = arr.AppendBlock([]int32{11}, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 3}, ext)

	raw, err := arr.ReadRows(0, 5)
	require.NoError(t, err)
	got := make([]int32, 15)
	_, err = binary.Decode(raw, binary.LittleEndian, got)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 0, 3, 4, 0, 5, 6, 7, 8, 9, 10, 11, 0, 0}, got)

	_, err = arr.AppendBlock([]int32{1, 2, 3}, 2)
	var werr *DatasetWriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "/m", werr.Path)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestFixedDimensions(t *testing.T) {
	c := create(t, tempPath(t, "fixed.arf"))
	defer c.Close()

	arr, err := c.OpenOrCreateArray("/m", Int16, []uint64{0, 2}, []uint64{4, 0})
	require.NoError(t, err)
	_, err = arr.AppendBlock(ramp(0, 6), 3)
	assert.ErrorIs(t, err, ErrInvalidShape)

	ext, err := arr.AppendBlock(ramp(0, 6), 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 2}, ext)

	fixed, err := c.OpenOrCreateArray("/f", Int16, []uint64{4}, []uint64{0})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), fixed.RowPos(0))
	_, err = fixed.AppendBlock(ramp(0, 1), 1)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestAppendColumnTypeChecks(t *testing.T) {
	c := create(t, tempPath(t, "types.arf"))
	defer c.Close()

	arr, err := c.OpenOrCreateArray("/m", Int16, []uint64{0, 2}, []uint64{8, 0})
	require.NoError(t, err)
	assert.ErrorIs(t, arr.AppendColumn(0, []float32{1}), ErrTypeMismatch)
	assert.ErrorIs(t, arr.AppendColumn(2, []int16{1}), ErrInvalidShape)
	assert.ErrorIs(t, arr.AppendColumn(0, []byte{1, 2, 3}), ErrInvalidShape)
	assert.Equal(t, uint64(0), arr.RowPos(0))

	require.NoError(t, arr.AppendColumn(1, []int16{7, 8, 9}))
	assert.Equal(t, []uint64{3, 2}, arr.Extent())
	assert.Equal(t, uint64(0), arr.RowPos(0))
	assert.Equal(t, uint64(3), arr.RowPos(1))
}

func TestCompoundAppend(t *testing.T) {
	path := tempPath(t, "compound.arf")
	schema, err := NewSchema(11,
		Field{Name: "start", Offset: 0, Type: Float32},
		Field{Name: "recording", Offset: 4, Type: Int32},
		Field{Name: "eventID", Offset: 8, Type: Uint8},
		Field{Name: "nodeID", Offset: 9, Type: Uint8},
		Field{Name: "event_channel", Offset: 10, Type: Uint8},
	)
	require.NoError(t, err)

	c := create(t, path)
	arr, err := c.OpenOrCreateArray("/event_types/TTL", schema, []uint64{0}, []uint64{8})
	require.NoError(t, err)
	for i := range 20 {
		rec := make([]byte, 11)
		rec[8] = byte(i)
		require.NoError(t, arr.AppendCompound(rec))
	}
	assert.Error(t, arr.AppendCompound(make([]byte, 10)))
	require.NoError(t, c.Close())

	c = reopen(t, path)
	defer c.Close()
	arr, err = c.Array("/event_types/TTL")
	require.NoError(t, err)
	assert.True(t, arr.Type().Equal(schema))
	raw, err := arr.ReadRows(19, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(19), raw[8])
}

func TestSchemaValidation(t *testing.T) {
	_, err := NewSchema(4, Field{Name: "a", Offset: 0, Type: Int32}, Field{Name: "b", Offset: 2, Type: Int16})
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = NewSchema(4, Field{Name: "a", Offset: 2, Type: Int32})
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = NewSchema(8, Field{Name: "a", Offset: 0, Type: Int32}, Field{Name: "a", Offset: 4, Type: Int32})
	assert.ErrorIs(t, err, ErrInvalidShape)

	wave := ArrayOf(Int16, 256, 2)
	assert.Equal(t, uint32(1024), wave.Size())
	s, err := NewSchema(1036,
		Field{Name: "start", Offset: 0, Type: Float32},
		Field{Name: "recording", Offset: 4, Type: Int32},
		Field{Name: "waveform", Offset: 8, Type: wave},
		Field{Name: "valid_samples", Offset: 1032, Type: Int32},
	)
	require.NoError(t, err)
	f, ok := s.Field("waveform")
	require.True(t, ok)
	assert.Equal(t, []uint32{256, 2}, f.Type.Dims())
}

func TestFilteredArraysRoundTrip(t *testing.T) {
	options := map[string][]ArrayOption{
		"deflate":         {WithCompression(6)},
		"shuffle+deflate": {WithShuffle(), WithCompression(1)},
		"zstd":            {WithZstd(3)},
		"lz4":             {WithShuffle(), WithLZ4()},
		"fletcher32":      {WithFletcher32()},
	}
	for name, opts := range options {
		t.Run(name, func(t *testing.T) {
			path := tempPath(t, "filtered.arf")
			c := create(t, path, WithChunkCacheSize(1))
			arr, err := c.OpenOrCreateArray("/x", Int16, []uint64{0}, []uint64{64}, opts...)
			require.NoError(t, err)
			for i := range 10 {
				_, err := arr.AppendBlock(ramp(i*50, 50), 1)
				require.NoError(t, err)
			}
			require.NoError(t, c.Close())

			c = reopen(t, path, WithChunkCacheSize(1))
			defer c.Close()
			arr, err = c.Array("/x")
			require.NoError(t, err)
			_, err = arr.AppendBlock(ramp(500, 30), 1)
			require.NoError(t, err)
			raw, err := arr.ReadRows(0, 530)
			require.NoError(t, err)
			assert.Equal(t, ramp(0, 530), int16s(t, raw))
		})
	}
}

func TestThreeDimensionalBlocks(t *testing.T) {
	c := create(t, tempPath(t, "cube.arf"))
	defer c.Close()

	arr, err := c.OpenOrCreateArray("/cube", Uint8, []uint64{0, 2, 2}, []uint64{2, 2, 0})
	require.NoError(t, err)
	ext, err := arr.AppendBlock([]uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 2, 2}, ext)
	raw, err := arr.ReadRows(2, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 10, 11, 12}, raw)
	assert.ErrorIs(t, arr.AppendColumn(0, []uint8{1}), ErrUnsupportedRank)
}

// Column appends in any interleaving leave each column holding exactly what
// was appended to it, and the extent equals the furthest cursor.
func TestAppendColumnPreservesColumns(t *testing.T) {
	const columns = 3
	dir := t.TempDir()
	run := 0

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("columns hold their appends", prop.ForAll(
		func(ops []int) bool {
			run++
			path := filepath.Join(dir, fmt.Sprintf("prop%d.arf", run))
			c, err := Open(path, CreateTruncate, WithoutSync(), WithChunkCacheSize(2))
			if err != nil {
				return false
			}
			arr, err := c.OpenOrCreateArray("/m", Int16, []uint64{0, columns}, []uint64{4, 0})
			if err != nil {
				return false
			}
			want := make([][]int16, columns)
			for _, op := range ops {
				col, n := op%columns, op/columns
				vals := ramp(col*1000+len(want[col]), n)
				if arr.AppendColumn(col, vals) != nil {
					return false
				}
				want[col] = append(want[col], vals...)
			}
			if err := c.Close(); err != nil {
				return false
			}

			c, err = Open(path, OpenOrCreate, WithoutSync())
			if err != nil {
				return false
			}
			defer c.Close()
			arr, err = c.Array("/m")
			if err != nil {
				return false
			}
			var longest uint64
			for _, w := range want {
				longest = max(longest, uint64(len(w)))
			}
			if arr.Extent()[0] != longest {
				return false
			}
			raw, err := arr.ReadRows(0, longest)
			if err != nil {
				return false
			}
			got := make([]int16, len(raw)/2)
			if _, err := binary.Decode(raw, binary.LittleEndian, got); err != nil {
				return false
			}
			for col, w := range want {
				for row := range longest {
					v := got[row*columns+uint64(col)]
					if row < uint64(len(w)) && v != w[row] {
						return false
					}
					if row >= uint64(len(w)) && v != 0 {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3*12-1)),
	))

	properties.TestingRun(t)
}

func TestAppendAfterCloseReportsRegion(t *testing.T) {
	c := create(t, tempPath(t, "closed-append.arf"))
	arr, err := c.OpenOrCreateArray("/rec_0/channel0", Int16, []uint64{0}, []uint64{8})
	require.NoError(t, err)
	require.NoError(t, arr.AppendColumn(0, ramp(0, 5)))
	require.NoError(t, c.Close())

	err = arr.AppendColumn(0, ramp(5, 3))
	var werr *DatasetWriteError
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, "/rec_0/channel0", werr.Path)
	assert.Equal(t, []uint64{5}, werr.Offset)
	assert.Equal(t, []uint64{3}, werr.Size)

	_, err = arr.AppendBlock(ramp(5, 2), 1)
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, []uint64{5}, werr.Offset)
	assert.Equal(t, []uint64{2}, werr.Size)
}
