package message

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Attribute is an attribute message (0x000C).
type Attribute struct {
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte
}

func (m *Attribute) Type() Type { return TypeAttribute }

// Serialize writes a version 3 attribute message.
func (m *Attribute) Serialize(w *binary.Writer) {
	cfg := w.Config()
	dt, err := Encode(m.Datatype, cfg)
	if err != nil {
		return
	}
	ds, err := Encode(m.Dataspace, cfg)
	if err != nil {
		return
	}
	w.WriteUint8(3)
	w.WriteUint8(0)
	w.WriteUint16(uint16(len(m.Name) + 1))
	w.WriteUint16(uint16(len(dt)))
	w.WriteUint16(uint16(len(ds)))
	w.WriteUint8(CharsetASCII)
	w.WriteBytes([]byte(m.Name))
	w.WriteUint8(0)
	w.WriteBytes(dt)
	w.WriteBytes(ds)
	w.WriteBytes(m.Data)
}

func parseAttribute(r *binary.Reader, total int) (*Attribute, error) {
	version := r.Uint8()
	if version < 1 || version > 3 {
		return nil, fmt.Errorf("unsupported attribute version %d", version)
	}
	r.Skip(1) // reserved or flags
	nameSize := int(r.Uint16())
	dtSize := int(r.Uint16())
	dsSize := int(r.Uint16())
	if version == 3 {
		r.Skip(1) // name charset
	}
	pad := func(n int) int {
		if version == 1 {
			return (n + 7) &^ 7
		}
		return n
	}
	name := r.Bytes(pad(nameSize))
	dtBytes := r.Bytes(pad(dtSize))
	dsBytes := r.Bytes(pad(dsSize))
	if err := r.Err(); err != nil {
		return nil, err
	}
	a := &Attribute{Name: string(bytes.TrimRight(name, "\x00"))}

	cfg := r.Config()
	dt, err := ParseDatatype(binary.NewReader(bytes.NewReader(dtBytes), cfg))
	if err != nil {
		return nil, fmt.Errorf("attribute %q datatype: %w", a.Name, err)
	}
	ds, err := parseDataspace(binary.NewReader(bytes.NewReader(dsBytes), cfg))
	if err != nil {
		return nil, fmt.Errorf("attribute %q dataspace: %w", a.Name, err)
	}
	a.Datatype, a.Dataspace = dt, ds

	n := int(ds.NumElements()) * int(dt.Size)
	if rest := total - int(r.Pos()); n > rest {
		return nil, fmt.Errorf("attribute %q: data needs %d bytes, %d remain", a.Name, n, rest)
	}
	a.Data = r.Bytes(n)
	return a, nil
}
