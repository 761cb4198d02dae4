package arf

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-arf/container"
	"github.com/robert-malhotra/go-arf/logger"
)

func testOptions(extra ...Option) []Option {
	return append([]Option{WithContainerOptions(container.WithoutSync())}, extra...)
}

func openFile(t *testing.T, path string) *container.Container {
	t.Helper()
	c, err := container.Open(path, container.OpenOrCreate, container.WithoutSync())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func readRecord(t *testing.T, c *container.Container, path string, row uint64) []byte {
	t.Helper()
	arr, err := c.Array(path)
	require.NoError(t, err)
	raw, err := arr.ReadRows(row, 1)
	require.NoError(t, err)
	return raw
}

func TestFileNames(t *testing.T) {
	base := filepath.Join("data", "experiment1_prt2")
	assert.Equal(t, base+"_0.arf", Continuous.FileName(base, 0))
	assert.Equal(t, base+"_104.arf", Continuous.FileName(base, 104))
	assert.Equal(t, base+"_events.arf", Events.FileName(base, 3))
	assert.Equal(t, base+"_spikes.arf", Spikes.FileName(base, 3))
	assert.Equal(t, "spikes", Spikes.String())
	assert.Equal(t, "/rec_2/channel5", ChannelPath(2, 5))
}

func TestSchemas(t *testing.T) {
	assert.Equal(t, uint32(266), MessagesSchema.Size())
	assert.Equal(t, uint32(11), TTLSchema.Size())

	text, ok := MessagesSchema.Field("Text")
	require.True(t, ok)
	assert.Equal(t, uint32(10), text.Offset)
	assert.Equal(t, uint32(MaxStringSize), text.Type.Size())

	s, err := SpikeSchema(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(SpikeRecordSize), s.Size())
	wave, ok := s.Field(FieldWaveform)
	require.True(t, ok)
	assert.Equal(t, []uint32{170, 3}, wave.Type.Dims())
	valid, ok := s.Field(FieldValidSamples)
	require.True(t, ok)
	assert.Equal(t, uint32(1032), valid.Offset)

	_, err = SpikeSchema(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = SpikeSchema(WaveformCapacity + 1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestContinuousFile(t *testing.T) {
	base := filepath.Join(t.TempDir(), "experiment1")
	f, err := OpenContinuous(base, 100, testOptions()...)
	require.NoError(t, err)
	assert.Equal(t, base+"_100.arf", f.Path())

	start := time.Date(2024, 5, 1, 12, 0, 3, 250_000_000, time.UTC)
	err = f.StartRecording(2, &RecordingInfo{
		Name:        DefaultRecordingName(2),
		StartTime:   start,
		BitDepth:    16,
		SampleRate:  30000,
		BitVolts:    []float32{0.195, 0.5},
		SampleRates: []float32{30000, 30000},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, f.Channels())

	require.NoError(t, f.WriteChannel(0, []int16{1, 2, 3}))
	require.NoError(t, f.WriteChannel(1, []int16{-4}))
	assert.ErrorIs(t, f.WriteChannel(2, []int16{1}), ErrIndexOutOfRange)
	require.NoError(t, f.SetRecordingAttribute("subject", "bird 7"))
	assert.ErrorIs(t, f.SetRecordingAttribute("subject", "bird 8"), container.ErrAttributeImmutable)
	require.NoError(t, f.Close())

	c := openFile(t, base+"_100.arf")
	attr := func(path, name string) any {
		v, err := c.Attribute(path, name)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, Version, attr("/", "arf_version"))
	assert.Equal(t, "Open Ephys Recording #2", attr("/rec_2", "name"))
	assert.Equal(t, uint32(16), attr("/rec_2", "bit_depth"))
	assert.Equal(t, uint8(0), attr("/rec_2", "is_multiSampleRate_data"))
	assert.Equal(t, []int64{start.Unix(), 250_000}, attr("/rec_2", "timestamp"))
	assert.Len(t, attr("/rec_2", "uuid"), 36)
	assert.Equal(t, "bird 7", attr("/rec_2", "subject"))
	assert.Equal(t, float32(0.5), attr("/rec_2/channel1", "bit_volts"))
	assert.Equal(t, float32(30000), attr("/rec_2/channel1", "sampling_rate"))
	assert.Equal(t, "V", attr("/rec_2/channel1", "units"))
	assert.Equal(t, int64(0), attr("/rec_2/channel1", "datatype"))

	arr, err := c.Array("/rec_2/channel0")
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, arr.Extent())
	assert.Equal(t, []uint64{ContinuousChunk}, arr.Chunk())
}

func TestContinuousFileResumesRecording(t *testing.T) {
	base := filepath.Join(t.TempDir(), "experiment1")
	info := &RecordingInfo{Name: "r", BitVolts: []float32{1}, SampleRates: []float32{1000}}

	f, err := OpenContinuous(base, 0, testOptions()...)
	require.NoError(t, err)
	require.NoError(t, f.StartRecording(0, info))
	require.NoError(t, f.WriteChannel(0, make([]int16, 10)))
	require.NoError(t, f.Close())

	f, err = OpenContinuous(base, 0, testOptions()...)
	require.NoError(t, err)
	later := &RecordingInfo{
		Name:            "other",
		StartTime:       time.Unix(5000, 0),
		StartSample:     99,
		BitDepth:        24,
		MultiSampleRate: true,
		BitVolts:        []float32{2},
		SampleRates:     []float32{500},
	}
	require.NoError(t, f.StartRecording(0, later))
	require.NoError(t, f.WriteChannel(0, make([]int16, 5)))
	assert.Equal(t, []uint64{15}, f.Channel(0).Extent())
	require.NoError(t, f.Close())

	c := openFile(t, base+"_0.arf")
	attr := func(path, name string) any {
		v, err := c.Attribute(path, name)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "r", attr("/rec_0", "name"))
	assert.Equal(t, uint32(0), attr("/rec_0", "start_sample"))
	assert.Equal(t, uint32(0), attr("/rec_0", "bit_depth"))
	assert.Equal(t, uint8(0), attr("/rec_0", "is_multiSampleRate_data"))
	assert.Equal(t, []int64{info.StartTime.Unix(), 0}, attr("/rec_0", "timestamp"))
	assert.Equal(t, float32(1), attr("/rec_0/channel0", "bit_volts"))
	assert.Equal(t, float32(1000), attr("/rec_0/channel0", "sampling_rate"))
}

func TestContinuousFileObjectAttributes(t *testing.T) {
	base := filepath.Join(t.TempDir(), "experiment1")
	f, err := OpenContinuous(base, 0, testOptions()...)
	require.NoError(t, err)
	assert.ErrorIs(t, f.SetObjectAttribute("/", "lab", "x"), ErrNotOpen)

	info := &RecordingInfo{Name: "r", BitVolts: []float32{1}, SampleRates: []float32{1000}}
	require.NoError(t, f.StartRecording(1, info))
	assert.Equal(t, "/rec_1", f.ObjectPath("."))
	assert.Equal(t, "/rec_1/channel0", f.ObjectPath("channel0"))
	assert.Equal(t, "/", f.ObjectPath("/"))
	assert.True(t, f.HasObject("channel0"))
	assert.True(t, f.HasObject("/rec_1"))
	assert.False(t, f.HasObject("channel1"))

	require.NoError(t, f.SetObjectAttribute("channel0", "electrode", "tetrode 3"))
	require.NoError(t, f.SetObjectAttribute("/", "lab", "songbird"))
	require.NoError(t, f.SetRecordingAttribute("subject", "finch"))

	c := f.Container()
	v, err := c.Attribute("/rec_1/channel0", "electrode")
	require.NoError(t, err)
	assert.Equal(t, "tetrode 3", v)
	v, err = c.Attribute("/", "lab")
	require.NoError(t, err)
	assert.Equal(t, "songbird", v)
	v, err = c.Attribute("/rec_1", "subject")
	require.NoError(t, err)
	assert.Equal(t, "finch", v)
	require.NoError(t, f.Close())
}

func TestEventLogMessages(t *testing.T) {
	base := filepath.Join(t.TempDir(), "experiment3")
	l := NewEventLog(testOptions()...)
	require.NoError(t, l.RegisterDefaults())
	assert.Equal(t, []string{EventTTL, EventMessages}, l.Types())
	require.NoError(t, l.Open(base, 4))
	assert.ErrorIs(t, l.RegisterType("late", TTLSchema), ErrAlreadyOpen)

	require.NoError(t, l.Append(EventMessages, 9, 102, []byte("hello"), 1.5))
	long := strings.Repeat("x", 300)
	require.NoError(t, l.Append(EventMessages, 0, 0, []byte(long), 2))
	require.NoError(t, l.Append(EventTTL, 1, 102, []byte{6}, 2.25))
	require.NoError(t, l.Close())

	c := openFile(t, base+"_events.arf")
	uuidAttr, err := c.Attribute("/event_types", "uuid")
	require.NoError(t, err)
	assert.Len(t, uuidAttr, 36)
	units, err := c.Attribute("/event_types/Messages", "units")
	require.NoError(t, err)
	assert.Equal(t, "samples", units)

	rec := readRecord(t, c, "/event_types/Messages", 0)
	require.Len(t, rec, 266)
	assert.Equal(t, float32(1.5), math.Float32frombits(binary.LittleEndian.Uint32(rec[0:])))
	assert.Equal(t, int32(4), int32(binary.LittleEndian.Uint32(rec[4:])))
	assert.Equal(t, byte(9), rec[8])
	assert.Equal(t, byte(102), rec[9])
	want := make([]byte, MaxStringSize)
	copy(want, "hello")
	assert.Equal(t, want, rec[10:])

	rec = readRecord(t, c, "/event_types/Messages", 1)
	assert.Equal(t, strings.Repeat("x", MaxStringSize-1), string(rec[10:265]))
	assert.Equal(t, byte(0), rec[265])

	rec = readRecord(t, c, "/event_types/TTL", 0)
	assert.Equal(t, []byte{1, 102, 6}, rec[8:])
}

func TestEventLogErrors(t *testing.T) {
	l := NewEventLog(testOptions()...)
	require.NoError(t, l.RegisterType(EventTTL, TTLSchema))
	assert.ErrorIs(t, l.RegisterType(EventTTL, TTLSchema), container.ErrExists)
	assert.ErrorIs(t, l.RegisterType("plain", container.Int16), container.ErrTypeMismatch)

	assert.ErrorIs(t, l.Append(EventTTL, 0, 0, []byte{1}, 0), ErrNotOpen)
	require.NoError(t, l.Open(filepath.Join(t.TempDir(), "e"), 0))
	defer l.Close()
	assert.ErrorIs(t, l.Append(EventMessages, 0, 0, []byte("x"), 0), ErrUnknownEventType)
	assert.ErrorIs(t, l.Append(EventTTL, 0, 0, nil, 0), ErrInvalidPayload)
	assert.ErrorIs(t, l.Open("elsewhere", 0), ErrAlreadyOpen)
}

func TestEventLogCustomType(t *testing.T) {
	schema, err := EventSchema("value", container.Float64)
	require.NoError(t, err)
	base := filepath.Join(t.TempDir(), "e")

	l := NewEventLog(testOptions()...)
	require.NoError(t, l.RegisterType("Level", schema))
	require.NoError(t, l.Open(base, 1))
	payload := binary.LittleEndian.AppendUint64(nil, math.Float64bits(2.5))
	require.NoError(t, l.Append("Level", 1, 2, payload, 3))
	require.NoError(t, l.Close())

	// Reopening attaches to the existing table.
	require.NoError(t, l.Open(base, 1))
	require.NoError(t, l.Append("Level", 1, 2, payload, 4))
	require.NoError(t, l.Close())

	c := openFile(t, base+"_events.arf")
	rec := readRecord(t, c, "/event_types/Level", 1)
	assert.Equal(t, 2.5, math.Float64frombits(binary.LittleEndian.Uint64(rec[10:])))
}

func TestSpikeLogAppend(t *testing.T) {
	base := filepath.Join(t.TempDir(), "experiment1")
	l := NewSpikeLog(testOptions()...)
	g0, err := l.RegisterChannelGroup(4)
	require.NoError(t, err)
	g1, err := l.RegisterChannelGroup(1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, []int{g0, g1})
	assert.Equal(t, 128, l.Capacity(g0))
	require.NoError(t, l.Open(base, 2))

	const samples = 3
	data := make([]uint16, 4*samples)
	for ch := range 4 {
		for i := range samples {
			data[ch*samples+i] = uint16(32768 + 10*ch + i)
		}
	}
	require.NoError(t, l.Append(g0, samples, data, 0.5))
	assert.ErrorIs(t, l.Append(5, samples, data, 0), ErrIndexOutOfRange)
	assert.ErrorIs(t, l.Append(g0, samples, data[:5], 0), ErrInvalidPayload)
	require.NoError(t, l.Close())

	c := openFile(t, base+"_spikes.arf")
	rec := readRecord(t, c, "/channel_groups/0", 0)
	require.Len(t, rec, SpikeRecordSize)
	assert.Equal(t, int32(2), int32(binary.LittleEndian.Uint32(rec[4:])))
	wave := make([]int16, WaveformCapacity)
	_, err = binary.Decode(rec[8:1032], binary.LittleEndian, wave)
	require.NoError(t, err)
	assert.Equal(t, []int16{0, 10, 20, 30, 1, 11, 21, 31, 2, 12, 22, 32}, wave[:12])
	assert.Equal(t, make([]int16, WaveformCapacity-12), wave[12:])
	assert.Equal(t, int32(samples), int32(binary.LittleEndian.Uint32(rec[1032:])))
}

func TestSpikeLogCapacityExceeded(t *testing.T) {
	var logs bytes.Buffer
	l := NewSpikeLog(testOptions(WithLogger(logger.Text(&logs, slog.LevelDebug)))...)
	_, err := l.RegisterChannelGroup(2)
	require.NoError(t, err)
	base := filepath.Join(t.TempDir(), "experiment1")
	require.NoError(t, l.Open(base, 0))

	const samples = 300
	data := make([]uint16, 2*samples)
	for i := range data {
		data[i] = 32769
	}
	require.NoError(t, l.Append(0, samples, data, 1))
	require.NoError(t, l.Close())
	assert.Contains(t, logs.String(), "spike truncated")
	assert.Contains(t, logs.String(), ErrCapacityExceeded.Error())

	c := openFile(t, base+"_spikes.arf")
	rec := readRecord(t, c, "/channel_groups/0", 0)
	assert.Equal(t, int32(256), int32(binary.LittleEndian.Uint32(rec[1032:])))
	wave := make([]int16, WaveformCapacity)
	_, err = binary.Decode(rec[8:1032], binary.LittleEndian, wave)
	require.NoError(t, err)
	for _, v := range wave {
		require.Equal(t, int16(1), v)
	}
}

func TestSpikeLogRegisterWhileOpen(t *testing.T) {
	l := NewSpikeLog(testOptions()...)
	require.NoError(t, l.Open(filepath.Join(t.TempDir(), "x"), 0))
	defer l.Close()
	_, err := l.RegisterChannelGroup(2)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
	assert.Equal(t, 0, l.Groups())
}

func TestCompoundRecordWriter(t *testing.T) {
	c := openFile(t, filepath.Join(t.TempDir(), "writer.arf"))
	defer c.Close()

	plain, err := c.OpenOrCreateArray("/plain", container.Int16, []uint64{0}, []uint64{EventChunk})
	require.NoError(t, err)
	_, err = NewCompoundRecordWriter(plain)
	assert.ErrorIs(t, err, container.ErrTypeMismatch)

	arr, err := c.OpenOrCreateArray("/event_types/TTL", TTLSchema, []uint64{0}, []uint64{EventChunk})
	require.NoError(t, err)
	w, err := NewCompoundRecordWriter(arr)
	require.NoError(t, err)
	assert.True(t, w.Schema().Equal(TTLSchema))
	assert.Equal(t, uint64(0), w.Len())

	r := w.NewRecord()
	require.NoError(t, r.Set(FieldStart, float32(0.5)))
	require.NoError(t, r.Set(FieldEventID, uint8(1)))
	require.NoError(t, r.Set("event_channel", uint8(3)))
	require.NoError(t, w.Write(r))
	r.Reset()
	require.NoError(t, w.Write(r))
	assert.Equal(t, uint64(2), w.Len())

	assert.ErrorIs(t, w.Write(NewRecord(MessagesSchema)), container.ErrTypeMismatch)
	assert.Equal(t, uint64(2), w.Len())
}

// The stored waveform at [i][ch] equals input[ch][i]-32768 and every slot
// past the stored samples is zero.
func TestTransposeLaw(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("transpose removes the offset and pads with zeros", prop.ForAll(
		func(channels, samples int, seed []uint16) bool {
			data := make([]uint16, channels*samples)
			for i := range data {
				if len(seed) > 0 {
					data[i] = seed[i%len(seed)] + uint16(i)
				}
			}
			stored := min(samples, WaveformCapacity/channels)
			wave := make([]int16, WaveformCapacity)
			for i := range wave {
				wave[i] = -1
			}
			transpose(wave, data, samples, stored, channels)
			for i := range WaveformCapacity / channels {
				for ch := range channels {
					got := wave[i*channels+ch]
					if i >= stored {
						if got != 0 {
							return false
						}
						continue
					}
					if int(got) != int(data[ch*samples+i])-32768 {
						return false
					}
				}
			}
			for _, v := range wave[(WaveformCapacity/channels)*channels:] {
				if v != 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
		gen.IntRange(0, 600),
		gen.SliceOf(gen.UInt16()),
	))

	properties.TestingRun(t)
}

func TestRecordSet(t *testing.T) {
	r := NewRecord(TTLSchema)
	require.NoError(t, r.Set(FieldStart, float32(2)))
	assert.ErrorIs(t, r.Set(FieldStart, 2.0), container.ErrTypeMismatch)
	assert.ErrorIs(t, r.Set(FieldRecording, "x"), container.ErrTypeMismatch)
	assert.ErrorIs(t, r.Set("missing", int32(1)), container.ErrNotFound)
	require.NoError(t, r.Set("event_channel", uint8(7)))
	assert.Equal(t, byte(7), r.Bytes()[10])

	s, err := SpikeSchema(256)
	require.NoError(t, err)
	sr := NewRecord(s)
	assert.ErrorIs(t, sr.Set(FieldWaveform, make([]int16, WaveformCapacity+1)), ErrCapacityExceeded)
	require.NoError(t, sr.Set(FieldWaveform, []int16{5}))
	assert.Equal(t, []byte{5, 0, 0, 0}, sr.Bytes()[8:12])
}
