package arf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/robert-malhotra/go-arf/container"
)

// RecordingInfo describes one recording section. It is written once as
// attributes of /rec_<n> and its channel datasets.
type RecordingInfo struct {
	Name            string
	StartTime       time.Time
	StartSample     uint32
	BitDepth        uint32
	SampleRate      float32
	MultiSampleRate bool
	// BitVolts and SampleRates hold one entry per recorded channel of the
	// file being written.
	BitVolts    []float32
	SampleRates []float32
}

// DefaultRecordingName returns the name given to recording n.
func DefaultRecordingName(n int) string {
	return "Open Ephys Recording #" + strconv.Itoa(n)
}

// RecordingPath returns the group holding recording n.
func RecordingPath(n int) string { return "/rec_" + strconv.Itoa(n) }

// ChannelPath returns the dataset of channel i in recording n.
func ChannelPath(n, i int) string { return RecordingPath(n) + "/channel" + strconv.Itoa(i) }

// ContinuousFile holds the sampled channels of one processor.
type ContinuousFile struct {
	c         *container.Container
	opts      options
	recording int
	channels  []*container.ExtendableArray
}

// OpenContinuous opens or creates the continuous file of processor for the
// section base path.
func OpenContinuous(base string, processor int, opts ...Option) (*ContinuousFile, error) {
	o := newOptions(opts)
	c, err := o.open(Continuous, Continuous.FileName(base, processor))
	if err != nil {
		return nil, err
	}
	return &ContinuousFile{c: c, opts: o, recording: -1}, nil
}

// Path returns the file path.
func (f *ContinuousFile) Path() string { return f.c.Path() }

// Container exposes the underlying container.
func (f *ContinuousFile) Container() *container.Container { return f.c }

// Channels returns the number of channel datasets of the current recording.
func (f *ContinuousFile) Channels() int { return len(f.channels) }

// StartRecording creates /rec_<n> with its attributes and one int16 dataset
// per entry of info.BitVolts. Datasets already present are reattached and
// keep growing.
func (f *ContinuousFile) StartRecording(n int, info *RecordingInfo) error {
	if len(info.SampleRates) != len(info.BitVolts) {
		return fmt.Errorf("%w: %d sample rates for %d channels", ErrIndexOutOfRange, len(info.SampleRates), len(info.BitVolts))
	}
	rec := RecordingPath(n)
	if !f.c.Exists(rec) {
		if err := f.writeRecording(rec, info); err != nil {
			return err
		}
	}

	channels := make([]*container.ExtendableArray, len(info.BitVolts))
	for i := range channels {
		path := ChannelPath(n, i)
		existed := f.c.Exists(path)
		arr, err := f.c.OpenOrCreateArray(path, container.Int16, []uint64{0}, []uint64{ContinuousChunk}, f.opts.array...)
		if err != nil {
			return err
		}
		if !existed {
			if err := f.writeChannelInfo(path, info.SampleRates[i], info.BitVolts[i]); err != nil {
				return err
			}
		}
		channels[i] = arr
	}
	f.recording, f.channels = n, channels
	f.opts.log.Info("recording started", "path", f.c.Path(), "recording", n, "channels", len(channels))
	return nil
}

func (f *ContinuousFile) writeRecording(rec string, info *RecordingInfo) error {
	if err := f.c.CreateGroup(rec); err != nil {
		return err
	}
	if err := setOnce(f.c, rec, "name", info.Name); err != nil {
		return err
	}
	if err := f.c.SetAttribute(rec, "bit_depth", info.BitDepth); err != nil {
		return err
	}
	var multi uint8
	if info.MultiSampleRate {
		multi = 1
	}
	if err := f.c.SetAttribute(rec, "is_multiSampleRate_data", multi); err != nil {
		return err
	}
	ms := info.StartTime.UnixMilli()
	if err := f.c.SetAttribute(rec, "timestamp", []int64{ms / 1000, ms % 1000 * 1000}); err != nil {
		return err
	}
	if err := f.c.SetAttribute(rec, "start_sample", info.StartSample); err != nil {
		return err
	}
	return setOnce(f.c, rec, "uuid", uuid.NewString())
}

func (f *ContinuousFile) writeChannelInfo(path string, sampleRate, bitVolts float32) error {
	if err := f.c.SetAttribute(path, "sampling_rate", sampleRate); err != nil {
		return err
	}
	if err := f.c.SetAttribute(path, "bit_volts", bitVolts); err != nil {
		return err
	}
	if err := setOnce(f.c, path, "units", "V"); err != nil {
		return err
	}
	return f.c.SetAttribute(path, "datatype", int64(0))
}

// WriteChannel appends samples to channel i of the current recording.
func (f *ContinuousFile) WriteChannel(i int, samples []int16) error {
	if i < 0 || i >= len(f.channels) {
		return fmt.Errorf("%w: channel %d of %d in %s", ErrIndexOutOfRange, i, len(f.channels), f.c.Path())
	}
	return f.channels[i].AppendColumn(0, samples)
}

// Channel returns the dataset of channel i, or nil.
func (f *ContinuousFile) Channel(i int) *container.ExtendableArray {
	if i < 0 || i >= len(f.channels) {
		return nil
	}
	return f.channels[i]
}

// SetRecordingAttribute sets a write-once string attribute on the current
// recording group.
func (f *ContinuousFile) SetRecordingAttribute(name, value string) error {
	return f.SetObjectAttribute(".", name, value)
}

// ObjectPath resolves p against the current recording group. Absolute paths
// are returned unchanged and "." names the recording group itself.
func (f *ContinuousFile) ObjectPath(p string) string {
	switch {
	case strings.HasPrefix(p, "/"), f.recording < 0:
		return p
	case p == ".":
		return RecordingPath(f.recording)
	}
	return RecordingPath(f.recording) + "/" + p
}

// HasObject reports whether p, resolved with ObjectPath, exists.
func (f *ContinuousFile) HasObject(p string) bool {
	return f.c.Exists(f.ObjectPath(p))
}

// SetObjectAttribute sets a write-once string attribute on the object at p,
// resolved with ObjectPath.
func (f *ContinuousFile) SetObjectAttribute(p, name, value string) error {
	if f.recording < 0 {
		return fmt.Errorf("%w: no recording started in %s", ErrNotOpen, f.c.Path())
	}
	return f.c.SetStringAttribute(f.ObjectPath(p), name, value)
}

// Close stops the recording and closes the file.
func (f *ContinuousFile) Close() error {
	f.channels = nil
	return f.c.Close()
}
