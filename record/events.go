package record

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/go-arf/arf"
)

// TTL is a digital line change.
type TTL struct {
	ID      uint8
	Node    uint8
	Channel uint8
	// Sample is the event time in samples of the main sample rate.
	Sample int64
}

// Message is a text event. Text starting with "ARF" is a control directive
// and is not stored.
type Message struct {
	ID     uint8
	Node   uint8
	Sample int64
	Text   string
}

// Spike is one detected spike of a channel group.
type Spike struct {
	Group int
	// Samples is the number of samples per channel in Data, which is
	// channel-major unsigned 16-bit values centred on 32768.
	Samples int
	Data    []uint16
	// Sample and SampleRate give the spike time; a zero SampleRate uses the
	// main sample rate.
	Sample     int64
	SampleRate float32
}

func (s *Session) requireOpen(what string) error {
	if s.state != StateOpen {
		return fmt.Errorf("%w: submit %s while %s", ErrInvalidState, what, s.state)
	}
	return nil
}

func seconds(sample int64, rate float32) float32 {
	if !(rate > 0) {
		return float32(sample)
	}
	return float32(float64(sample) / float64(rate))
}

// SubmitTTL writes a TTL event.
func (s *Session) SubmitTTL(ev TTL) error {
	s.rotMu.Lock()
	defer s.rotMu.Unlock()
	if err := s.requireOpen("TTL"); err != nil {
		return err
	}
	return s.appendEvent(arf.EventTTL, ev.ID, ev.Node, []byte{ev.Channel}, ev.Sample)
}

// SubmitMessage writes a text event or executes it as a directive.
func (s *Session) SubmitMessage(msg Message) error {
	s.rotMu.Lock()
	defer s.rotMu.Unlock()
	if err := s.requireOpen("message"); err != nil {
		return err
	}
	if strings.HasPrefix(msg.Text, directivePrefix) {
		return s.directive(msg.Text)
	}
	return s.appendEvent(arf.EventMessages, msg.ID, msg.Node, []byte(msg.Text), msg.Sample)
}

func (s *Session) appendEvent(typ string, id, node uint8, payload []byte, sample int64) error {
	if err := s.events.Append(typ, id, node, payload, seconds(sample, s.mainRate())); err != nil {
		s.metrics.WriteErrors.WithLabelValues(arf.Events.String()).Inc()
		s.log.Error("event write failed", "type", typ, "path", s.events.Path(), "error", err)
		return err
	}
	s.metrics.Events.WithLabelValues(typ).Inc()
	return nil
}

// SubmitSpike writes a spike record.
func (s *Session) SubmitSpike(sp Spike) error {
	s.rotMu.Lock()
	defer s.rotMu.Unlock()
	if err := s.requireOpen("spike"); err != nil {
		return err
	}
	rate := sp.SampleRate
	if !(rate > 0) {
		rate = s.mainRate()
	}
	if err := s.spikes.Append(sp.Group, sp.Samples, sp.Data, seconds(sp.Sample, rate)); err != nil {
		s.metrics.WriteErrors.WithLabelValues(arf.Spikes.String()).Inc()
		s.log.Error("spike write failed", "group", sp.Group, "path", s.spikes.Path(), "error", err)
		return err
	}
	s.metrics.Spikes.Inc()
	return nil
}
