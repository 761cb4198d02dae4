package arf

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/container"
)

// Field names shared by the event and spike schemas.
const (
	FieldStart     = "start"
	FieldRecording = "recording"
	FieldEventID   = "eventID"
	FieldNodeID    = "nodeID"
)

// headerSize is the size of the start, recording, eventID and nodeID fields
// every event schema begins with.
const headerSize = 10

var eventHeader = []container.Field{
	{Name: FieldStart, Offset: 0, Type: container.Float32},
	{Name: FieldRecording, Offset: 4, Type: container.Int32},
	{Name: FieldEventID, Offset: 8, Type: container.Uint8},
	{Name: FieldNodeID, Offset: 9, Type: container.Uint8},
}

// EventSchema builds an event schema carrying one payload field after the
// common header.
func EventSchema(payloadName string, payload container.ElementType) (container.ElementType, error) {
	fields := append(append([]container.Field(nil), eventHeader...),
		container.Field{Name: payloadName, Offset: headerSize, Type: payload})
	return container.NewSchema(headerSize+payload.Size(), fields...)
}

// The predefined event schemas.
var (
	MessagesSchema = mustSchema(EventSchema("Text", container.FixedString(MaxStringSize)))
	TTLSchema      = mustSchema(EventSchema("event_channel", container.Uint8))
)

func mustSchema(t container.ElementType, err error) container.ElementType {
	if err != nil {
		panic(err)
	}
	return t
}

// Spike record layout.
const (
	spikeWaveformOffset = 8
	spikeValidOffset    = spikeWaveformOffset + 2*WaveformCapacity
	SpikeRecordSize     = spikeValidOffset + 4

	FieldWaveform     = "waveform"
	FieldValidSamples = "valid_samples"
)

// SpikeSchema returns the record type for a channel group of the given size.
// The waveform is a [WaveformCapacity/channels][channels] int16 array; its
// slot always spans WaveformCapacity elements.
func SpikeSchema(channels int) (container.ElementType, error) {
	if channels < 1 || channels > WaveformCapacity {
		return container.ElementType{}, fmt.Errorf("%w: %d channels in a spike group (1..%d)", ErrIndexOutOfRange, channels, WaveformCapacity)
	}
	wave := container.ArrayOf(container.Int16, uint32(WaveformCapacity/channels), uint32(channels))
	return container.NewSchema(SpikeRecordSize,
		container.Field{Name: FieldStart, Offset: 0, Type: container.Float32},
		container.Field{Name: FieldRecording, Offset: 4, Type: container.Int32},
		container.Field{Name: FieldWaveform, Offset: spikeWaveformOffset, Type: wave},
		container.Field{Name: FieldValidSamples, Offset: spikeValidOffset, Type: container.Int32},
	)
}

// payloadField returns the field following the event header, checking that
// schema starts with the common header.
func payloadField(schema container.ElementType) (container.Field, error) {
	if schema.Kind() != container.KindCompound {
		return container.Field{}, fmt.Errorf("%w: event schema must be compound, got %s", container.ErrTypeMismatch, schema)
	}
	for _, h := range eventHeader {
		f, ok := schema.Field(h.Name)
		if !ok || f.Offset != h.Offset || !f.Type.Equal(h.Type) {
			return container.Field{}, fmt.Errorf("%w: event schema lacks %s %s@%d", container.ErrTypeMismatch, h.Name, h.Type, h.Offset)
		}
	}
	for _, f := range schema.Fields() {
		if f.Offset == headerSize {
			return f, nil
		}
	}
	return container.Field{}, fmt.Errorf("%w: event schema has no payload at offset %d", container.ErrTypeMismatch, headerSize)
}
