package message

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Type represents an HDF5 header message type.
type Type uint16

const (
	TypeNIL                      Type = 0x0000
	TypeDataspace                Type = 0x0001
	TypeLinkInfo                 Type = 0x0002
	TypeDatatype                 Type = 0x0003
	TypeFillValueOld             Type = 0x0004
	TypeFillValue                Type = 0x0005
	TypeLink                     Type = 0x0006
	TypeExternalDataFiles        Type = 0x0007
	TypeDataLayout               Type = 0x0008
	TypeGroupInfo                Type = 0x000A
	TypeFilterPipeline           Type = 0x000B
	TypeAttribute                Type = 0x000C
	TypeObjectModTime            Type = 0x000E
	TypeObjectHeaderContinuation Type = 0x0010
	TypeSymbolTable              Type = 0x0011
	TypeAttributeInfo            Type = 0x0015
)

// Message is implemented by every header message.
type Message interface {
	Type() Type
}

// Serializable is implemented by messages the writer can emit.
type Serializable interface {
	Message
	Serialize(w *binary.Writer)
}

// Encode serializes a message body into a fresh byte slice.
func Encode(m Serializable, cfg binary.Config) ([]byte, error) {
	w, buf := binary.NewBufferWriter(cfg)
	m.Serialize(w)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("encoding message 0x%04x: %w", uint16(m.Type()), err)
	}
	return buf.Bytes(), nil
}

// Parse decodes a header message body.
func Parse(typ Type, data []byte, cfg binary.Config) (Message, error) {
	r := binary.NewReader(bytes.NewReader(data), cfg)
	var (
		m   Message
		err error
	)
	switch typ {
	case TypeDataspace:
		m, err = parseDataspace(r)
	case TypeDatatype:
		m, err = ParseDatatype(r)
	case TypeFillValue:
		m, err = parseFillValue(r)
	case TypeDataLayout:
		m, err = parseLayout(r)
	case TypeFilterPipeline:
		m, err = parseFilterPipeline(r)
	case TypeAttribute:
		m, err = parseAttribute(r, len(data))
	case TypeLink:
		m, err = parseLink(r)
	case TypeLinkInfo:
		m, err = parseLinkInfo(r)
	case TypeGroupInfo:
		m = &GroupInfo{}
	case TypeObjectHeaderContinuation:
		m, err = parseContinuation(r)
	default:
		return &Unknown{typ: typ, data: data}, nil
	}
	if err == nil {
		err = r.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("parsing message 0x%04x: %w", uint16(typ), err)
	}
	return m, nil
}

// Unknown is a message this package does not interpret.
type Unknown struct {
	typ  Type
	data []byte
}

func (m *Unknown) Type() Type   { return m.typ }
func (m *Unknown) Data() []byte { return m.data }

// Continuation points at the next chunk of an object header.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeObjectHeaderContinuation }

func (m *Continuation) Serialize(w *binary.Writer) {
	w.WriteOffset(m.Offset)
	w.WriteLength(m.Length)
}

func parseContinuation(r *binary.Reader) (*Continuation, error) {
	return &Continuation{Offset: r.Offset(), Length: r.Length()}, nil
}
