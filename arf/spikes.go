package arf

import (
	"fmt"
	"strconv"

	"github.com/robert-malhotra/go-arf/container"
)

const spikeGroup = "/channel_groups"

// SpikeGroupPath returns the table of channel group i.
func SpikeGroupPath(i int) string { return spikeGroup + "/" + strconv.Itoa(i) }

type spikeGroupState struct {
	channels int
	schema   container.ElementType
	w        *CompoundRecordWriter
	rec      *Record
	wave     []int16
}

// SpikeLog writes spike waveforms into the spikes file of a section, one
// compound table per channel group.
type SpikeLog struct {
	opts      options
	groups    []*spikeGroupState
	c         *container.Container
	recording int32
}

// NewSpikeLog returns a spike log with no channel groups.
func NewSpikeLog(opts ...Option) *SpikeLog {
	return &SpikeLog{opts: newOptions(opts)}
}

// RegisterChannelGroup adds a group of channels recorded together and
// returns its index. It must be called while the log is closed.
func (l *SpikeLog) RegisterChannelGroup(channels int) (int, error) {
	if l.c != nil {
		return 0, fmt.Errorf("%w: register spike groups before opening the spikes file", ErrAlreadyOpen)
	}
	schema, err := SpikeSchema(channels)
	if err != nil {
		return 0, err
	}
	l.groups = append(l.groups, &spikeGroupState{
		channels: channels,
		schema:   schema,
		wave:     make([]int16, WaveformCapacity),
	})
	return len(l.groups) - 1, nil
}

// Groups returns the number of registered channel groups.
func (l *SpikeLog) Groups() int { return len(l.groups) }

// Capacity returns the number of samples per channel a record of group i
// can hold.
func (l *SpikeLog) Capacity(i int) int {
	if i < 0 || i >= len(l.groups) {
		return 0
	}
	return WaveformCapacity / l.groups[i].channels
}

// Open opens the spikes file of the section base path and attaches one table
// per channel group.
func (l *SpikeLog) Open(base string, recording int) error {
	if l.c != nil {
		return ErrAlreadyOpen
	}
	c, err := l.opts.open(Spikes, Spikes.FileName(base, 0))
	if err != nil {
		return err
	}
	for i, g := range l.groups {
		path := SpikeGroupPath(i)
		arr, err := c.OpenOrCreateArray(path, g.schema, []uint64{0}, []uint64{SpikeChunk}, l.opts.array...)
		if err == nil {
			err = setOnce(c, path, "units", "samples")
		}
		if err == nil {
			g.w, err = NewCompoundRecordWriter(arr)
		}
		if err != nil {
			return closeAfter(c, err)
		}
		g.rec = g.w.NewRecord()
	}
	l.c, l.recording = c, int32(recording)
	return nil
}

// Path returns the path of the open spikes file, or "".
func (l *SpikeLog) Path() string {
	if l.c == nil {
		return ""
	}
	return l.c.Path()
}

// Append writes one spike of group. data holds samples values per channel,
// channel-major (data[ch*samples+i]), as unsigned 16-bit values centred on
// 32768. They are stored sample-major with the offset removed and the rest of
// the waveform zeroed.
//
// When samples exceeds the group's capacity the excess is dropped, the
// record is still written, and ErrCapacityExceeded is logged.
func (l *SpikeLog) Append(group, samples int, data []uint16, seconds float32) error {
	if group < 0 || group >= len(l.groups) {
		return fmt.Errorf("%w: spike group %d of %d", ErrIndexOutOfRange, group, len(l.groups))
	}
	if l.c == nil {
		return fmt.Errorf("%w: spikes file for group %d", ErrNotOpen, group)
	}
	g := l.groups[group]
	if samples < 0 || len(data) < samples*g.channels {
		return fmt.Errorf("%w: %d values for %d samples x %d channels", ErrInvalidPayload, len(data), samples, g.channels)
	}

	stored := samples
	if limit := WaveformCapacity / g.channels; stored > limit {
		l.opts.log.Warn("spike truncated", "group", group, "samples", samples, "capacity", limit,
			"error", fmt.Errorf("%w: %d samples x %d channels", ErrCapacityExceeded, samples, g.channels))
		stored = limit
	}
	transpose(g.wave, data, samples, stored, g.channels)

	r := g.rec
	r.Reset()
	if err := r.Set(FieldStart, seconds); err != nil {
		return err
	}
	if err := r.Set(FieldRecording, l.recording); err != nil {
		return err
	}
	if err := r.Set(FieldWaveform, g.wave[:(WaveformCapacity/g.channels)*g.channels]); err != nil {
		return err
	}
	if err := r.Set(FieldValidSamples, int32(stored)); err != nil {
		return err
	}
	return g.w.Write(r)
}

// transpose fills wave with the first stored samples of the channel-major
// data (stride samples per channel) in sample-major order and zeroes the
// rest.
func transpose(wave []int16, data []uint16, samples, stored, channels int) {
	clear(wave)
	for i := range stored {
		for j := range channels {
			wave[i*channels+j] = int16(int32(data[j*samples+i]) - 32768)
		}
	}
}

// Close closes the spikes file. Channel groups are kept for the next Open.
func (l *SpikeLog) Close() error {
	if l.c == nil {
		return nil
	}
	c := l.c
	l.c = nil
	for _, g := range l.groups {
		g.w, g.rec = nil, nil
	}
	return c.Close()
}

// Reset closes the log and forgets every channel group.
func (l *SpikeLog) Reset() error {
	err := l.Close()
	l.groups = nil
	return err
}
