package main

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-arf/logger"
	"github.com/robert-malhotra/go-arf/record"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arfrec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadRunConfig(t *testing.T) {
	path := writeConfig(t, `
root: /data
experiment: 3
duration: 2s
recorder:
  batch_size: 512
  compression: zstd
  compression_level: 5
processors:
  - id: 101
    sample_rate: 2000
    channels: 8
    bit_volts: 0.5
spike_groups: [1, 2]
`)
	cfg, err := loadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data", cfg.Root)
	assert.Equal(t, 3, cfg.Experiment)
	assert.Equal(t, 2*time.Second, cfg.Duration)
	assert.Equal(t, 512, cfg.Recorder.BatchSize)
	assert.Equal(t, record.DefaultRotateEvery, cfg.Recorder.RotateEvery)
	assert.Equal(t, record.CompressionZstd, cfg.Recorder.Compression)
	assert.Equal(t, []processorConfig{{ID: 101, SampleRate: 2000, Channels: 8, BitVolts: 0.5}}, cfg.Processors)
	assert.Equal(t, []int{1, 2}, cfg.SpikeGroups)
	assert.Equal(t, 1024, cfg.Block)
}

func TestLoadRunConfigDefaults(t *testing.T) {
	cfg, err := loadRunConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultRunConfig(), cfg)
}

func TestLoadRunConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no processors", "processors: []\n", "Processors"},
		{"bad rate", "processors: [{id: 1, sample_rate: 0, channels: 1, bit_volts: 1}]\n", "SampleRate"},
		{"duplicate processor", "processors: [{id: 1, sample_rate: 10, channels: 1, bit_volts: 1}, {id: 1, sample_rate: 10, channels: 1, bit_volts: 1}]\n", "duplicate processor 1"},
		{"spike group too wide", "spike_groups: [600]\n", "SpikeGroups"},
		{"deflate level", "recorder: {compression: deflate, compression_level: 12}\n", "deflate level"},
		{"bad yaml", "duration: [\n", "parsing config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadRunConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := loadRunConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		payload string
		want    record.Message
	}{
		{"hello", record.Message{Sample: 7, Text: "hello"}},
		{"hello\x00", record.Message{Sample: 7, Text: "hello"}},
		{"@1200 stim on", record.Message{Sample: 1200, Text: "stim on"}},
		{"@abc stim", record.Message{Sample: 7, Text: "@abc stim"}},
		{"@-5 x", record.Message{Sample: 7, Text: "@-5 x"}},
		{"ARF SetAttr a b", record.Message{Sample: 7, Text: "ARF SetAttr a b"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseMessage([]byte(tt.payload), 7), tt.payload)
	}
}

func TestSynth(t *testing.T) {
	dst := make([]float32, 4)
	synth(dst, 0, 1000, 250, nil)
	assert.InDelta(t, 0, dst[0], 1e-4)
	assert.InDelta(t, sineAmplitude, dst[1], 1e-3)
	assert.InDelta(t, 0, dst[2], 1e-3)
	assert.InDelta(t, -sineAmplitude, dst[3], 1e-3)

	synth(dst, 1, 1000, 250, nil)
	assert.InDelta(t, sineAmplitude, dst[0], 1e-3)
}

func TestSpikeWaveform(t *testing.T) {
	const samples, channels = 8, 2
	dst := make([]uint16, samples*channels)
	spikeWaveform(dst, samples, channels, 200)
	assert.Equal(t, uint16(32768-200), dst[2])
	assert.Equal(t, uint16(32768-100), dst[samples+2])
	for _, v := range dst {
		assert.LessOrEqual(t, v, uint16(32768))
	}
	assert.Equal(t, uint16(32768-int(math.Round(200*math.Exp(-0.125)))), dst[1])
}

func TestRunAndInspect(t *testing.T) {
	root := t.TempDir()
	cfg := defaultRunConfig()
	cfg.Root = root
	cfg.Duration = time.Second
	cfg.Block = 100
	cfg.Recorder.BatchSize = 250
	cfg.Recorder.RotateEvery = 2
	cfg.Recorder.NoSync = true
	cfg.Recorder.Compression = record.CompressionDeflate
	cfg.Recorder.CompressionLevel = 4
	cfg.Processors = []processorConfig{{ID: 100, SampleRate: 1000, Channels: 2, BitVolts: 0.195}}
	cfg.SpikeGroups = []int{2}
	cfg.TTLRate = 4
	cfg.SpikeRate = 5
	require.NoError(t, cfg.validate())

	var logs bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, runOptions{log: logger.Text(&logs, 0)}))
	assert.Contains(t, logs.String(), "recording stopped")

	for _, part := range []string{"prt0", "prt1", "prt2"} {
		for _, suffix := range []string{"_100.arf", "_events.arf", "_spikes.arf"} {
			assert.FileExists(t, filepath.Join(root, "experiment1_"+part+suffix))
		}
	}

	path := filepath.Join(root, "experiment1_prt0_100.arf")
	objs, err := inspectFile(path)
	require.NoError(t, err)
	byPath := make(map[string]objectInfo, len(objs))
	for _, o := range objs {
		byPath[o.Path] = o
	}
	require.Contains(t, byPath, "/rec_0/channel1")
	ch := byPath["/rec_0/channel0"]
	assert.Equal(t, "array", ch.Kind)
	assert.Equal(t, []uint64{500}, ch.Extent)
	assert.Equal(t, []int64{-1}, ch.MaxExtent)
	assert.Equal(t, []string{"deflate"}, ch.Filters)

	rec := byPath["/rec_0"]
	assert.Equal(t, "group", rec.Kind)
	assert.Contains(t, rec.Attributes, attrInfo{Name: "source", Value: "arfrec"})
	assert.Contains(t, byPath["/"].Attributes, attrInfo{Name: "arf_version", Value: "2.1"})

	objs, err = inspectFile(filepath.Join(root, "experiment1_prt1_100.arf"))
	require.NoError(t, err)
	for _, o := range objs {
		if o.Path == "/rec_0/channel0" {
			assert.Equal(t, []uint64{500}, o.Extent)
		}
	}

	files := []fileInfo{{File: path, Objects: objs}}
	var text bytes.Buffer
	printText(&text, files)
	assert.Contains(t, text.String(), "/rec_0/channel0")
	assert.Contains(t, text.String(), "max=[unlimited]")

	var out bytes.Buffer
	require.NoError(t, printJSON(&out, files))
	var decoded []fileInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, path, decoded[0].File)
}

func TestInspectMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.arf")
	_, err := inspectFile(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, path)
}
