package arf

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/container"
)

const eventGroup = "/event_types"

// Names of the predefined event types.
const (
	EventTTL      = "TTL"
	EventMessages = "Messages"
)

type eventType struct {
	name    string
	schema  container.ElementType
	payload container.Field
	w       *CompoundRecordWriter
	rec     *Record
}

// EventLog writes event records into the events file of a section, one
// compound table per registered type.
type EventLog struct {
	opts      options
	types     []*eventType
	byName    map[string]*eventType
	c         *container.Container
	recording int32
}

// NewEventLog returns an event log with no registered types.
func NewEventLog(opts ...Option) *EventLog {
	return &EventLog{opts: newOptions(opts), byName: make(map[string]*eventType)}
}

// RegisterType adds an event type. It must be called while the log is
// closed. schema starts with the start, recording, eventID and nodeID fields
// followed by one payload field.
func (l *EventLog) RegisterType(name string, schema container.ElementType) error {
	if l.c != nil {
		return fmt.Errorf("%w: register %q before opening the events file", ErrAlreadyOpen, name)
	}
	if _, ok := l.byName[name]; ok {
		return fmt.Errorf("%w: event type %q registered twice", container.ErrExists, name)
	}
	payload, err := payloadField(schema)
	if err != nil {
		return fmt.Errorf("event type %q: %w", name, err)
	}
	t := &eventType{name: name, schema: schema, payload: payload}
	l.types = append(l.types, t)
	l.byName[name] = t
	return nil
}

// RegisterDefaults registers the TTL and Messages types.
func (l *EventLog) RegisterDefaults() error {
	if err := l.RegisterType(EventTTL, TTLSchema); err != nil {
		return err
	}
	return l.RegisterType(EventMessages, MessagesSchema)
}

// Types returns the registered type names in registration order.
func (l *EventLog) Types() []string {
	names := make([]string, len(l.types))
	for i, t := range l.types {
		names[i] = t.name
	}
	return names
}

// Open opens the events file of the section base path and attaches one
// table per registered type. Records carry recording as their recording
// number.
func (l *EventLog) Open(base string, recording int) error {
	if l.c != nil {
		return ErrAlreadyOpen
	}
	c, err := l.opts.open(Events, Events.FileName(base, 0))
	if err != nil {
		return err
	}
	for _, t := range l.types {
		path := eventGroup + "/" + t.name
		arr, err := c.OpenOrCreateArray(path, t.schema, []uint64{0}, []uint64{EventChunk}, l.opts.array...)
		if err == nil {
			err = setOnce(c, path, "units", "samples")
		}
		if err == nil {
			t.w, err = NewCompoundRecordWriter(arr)
		}
		if err != nil {
			return closeAfter(c, err)
		}
		t.rec = t.w.NewRecord()
	}
	l.c, l.recording = c, int32(recording)
	return nil
}

// Path returns the path of the open events file, or "".
func (l *EventLog) Path() string {
	if l.c == nil {
		return ""
	}
	return l.c.Path()
}

// Append writes one event of the named type. The payload fills the type's
// payload field: a string field receives at most MaxStringSize-1 bytes and a
// terminating zero, longer text is truncated; any other field takes the
// leading bytes of payload, which must not be empty.
func (l *EventLog) Append(typeName string, id, sourceNode uint8, payload []byte, seconds float32) error {
	t, ok := l.byName[typeName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, typeName)
	}
	if l.c == nil {
		return fmt.Errorf("%w: events file for %q", ErrNotOpen, typeName)
	}
	if t.payload.Type.Kind() != container.KindString && len(payload) == 0 {
		return fmt.Errorf("%w: empty %s payload", ErrInvalidPayload, typeName)
	}

	r := t.rec
	r.Reset()
	if err := r.Set(FieldStart, seconds); err != nil {
		return err
	}
	if err := r.Set(FieldRecording, l.recording); err != nil {
		return err
	}
	if err := r.SetBytes(FieldEventID, []byte{id}); err != nil {
		return err
	}
	if err := r.SetBytes(FieldNodeID, []byte{sourceNode}); err != nil {
		return err
	}
	if err := r.SetBytes(t.payload.Name, payload); err != nil {
		return err
	}
	return t.w.Write(r)
}

// Close closes the events file. Registered types are kept for the next Open.
func (l *EventLog) Close() error {
	if l.c == nil {
		return nil
	}
	c := l.c
	l.c = nil
	for _, t := range l.types {
		t.w, t.rec = nil, nil
	}
	return c.Close()
}

// Reset closes the log and forgets every registered type.
func (l *EventLog) Reset() error {
	err := l.Close()
	l.types = nil
	clear(l.byName)
	return err
}
