package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/robert-malhotra/go-arf/arf"
	"github.com/robert-malhotra/go-arf/record"
)

const (
	sineAmplitude = 120.0 // microvolts
	noiseSigma    = 15.0
	spikeSamples  = 40
)

// pacer spaces out steps when running in real time and only checks ctx
// otherwise.
type pacer struct {
	t *time.Ticker
}

func newPacer(realtime bool, every time.Duration) *pacer {
	if !realtime {
		return &pacer{}
	}
	return &pacer{t: time.NewTicker(max(every, time.Microsecond))}
}

func (p *pacer) wait(ctx context.Context) error {
	if p.t == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.t.C:
		return nil
	}
}

func (p *pacer) stop() {
	if p.t != nil {
		p.t.Stop()
	}
}

func secondsOf(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}

// synth fills dst with a sine of freq Hz plus gaussian noise, starting at
// sample start.
func synth(dst []float32, start int64, rate float32, freq float64, rng *rand.Rand) {
	for i := range dst {
		t := float64(start+int64(i)) / float64(rate)
		v := sineAmplitude * math.Sin(2*math.Pi*freq*t)
		if rng != nil {
			v += noiseSigma * rng.NormFloat64()
		}
		dst[i] = float32(v)
	}
}

// spikeWaveform writes a channel-major waveform centred on 32768: channel j
// occupies dst[j*samples : (j+1)*samples].
func spikeWaveform(dst []uint16, samples, channels int, amplitude float64) {
	peak := samples / 4
	for j := range channels {
		scale := 1 / float64(j+1)
		for i := range samples {
			d := float64(i - peak)
			v := -amplitude * scale * math.Exp(-d*d/8)
			dst[j*samples+i] = uint16(32768 + int(math.Round(v)))
		}
	}
}

func produceSamples(ctx context.Context, s *record.Session, p processorConfig, channels []int, cfg runConfig, realtime bool) error {
	total := int64(float64(p.SampleRate) * cfg.Duration.Seconds())
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(p.ID)))
	buf := make([]float32, cfg.Block)
	pace := newPacer(realtime, secondsOf(float64(cfg.Block)/float64(p.SampleRate)))
	defer pace.stop()

	for pos := int64(0); pos < total; {
		if err := pace.wait(ctx); err != nil {
			return err
		}
		n := int(min(int64(cfg.Block), total-pos))
		for i, ch := range channels {
			synth(buf[:n], pos, p.SampleRate, 4+3*float64(i), rng)
			if err := s.SubmitSamples(ch, buf[:n]); err != nil {
				return fmt.Errorf("processor %d channel %d: %w", p.ID, i, err)
			}
		}
		pos += int64(n)
	}
	return nil
}

func produceTTL(ctx context.Context, s *record.Session, cfg runConfig, realtime bool) error {
	ref := cfg.Processors[0]
	count := int(cfg.TTLRate * cfg.Duration.Seconds())
	pace := newPacer(realtime, secondsOf(1/cfg.TTLRate))
	defer pace.stop()

	for i := range count {
		if err := pace.wait(ctx); err != nil {
			return err
		}
		ev := record.TTL{
			ID:      uint8((i + 1) % 2),
			Node:    uint8(ref.ID),
			Channel: uint8(i / 2 % 8),
			Sample:  int64(float64(i) * float64(ref.SampleRate) / cfg.TTLRate),
		}
		if err := s.SubmitTTL(ev); err != nil {
			return fmt.Errorf("ttl %d: %w", i, err)
		}
	}
	return nil
}

func produceSpikes(ctx context.Context, s *record.Session, groups []int, cfg runConfig, realtime bool) error {
	ref := cfg.Processors[0]
	count := int(cfg.SpikeRate * cfg.Duration.Seconds())
	rng := rand.New(rand.NewPCG(cfg.Seed, math.MaxUint32))
	pace := newPacer(realtime, secondsOf(1/cfg.SpikeRate))
	defer pace.stop()

	for i := range count {
		if err := pace.wait(ctx); err != nil {
			return err
		}
		k := i % len(groups)
		channels := cfg.SpikeGroups[k]
		samples := min(spikeSamples, arf.WaveformCapacity/channels)
		data := make([]uint16, samples*channels)
		spikeWaveform(data, samples, channels, 150+100*rng.Float64())
		sp := record.Spike{
			Group:      groups[k],
			Samples:    samples,
			Data:       data,
			Sample:     int64(float64(i)/cfg.SpikeRate*float64(ref.SampleRate)) + rng.Int64N(16),
			SampleRate: ref.SampleRate,
		}
		if err := s.SubmitSpike(sp); err != nil {
			return fmt.Errorf("spike %d: %w", i, err)
		}
	}
	return nil
}
