package message

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Link is a link message (0x0006) naming a child object.
type Link struct {
	Name    string
	Address uint64 // hard link target
	Soft    string // soft link path, empty for hard links
}

func (m *Link) Type() Type { return TypeLink }

// IsHard reports whether the link points directly at an object header.
func (m *Link) IsHard() bool { return m.Soft == "" }

// Serialize writes a version 1 hard link.
func (m *Link) Serialize(w *binary.Writer) {
	w.WriteUint8(1)
	if len(m.Name) > 0xff {
		w.WriteUint8(0x01)
		w.WriteUint16(uint16(len(m.Name)))
	} else {
		w.WriteUint8(0x00)
		w.WriteUint8(uint8(len(m.Name)))
	}
	w.WriteBytes([]byte(m.Name))
	w.WriteOffset(m.Address)
}

func parseLink(r *binary.Reader) (*Link, error) {
	if v := r.Uint8(); v != 1 {
		return nil, fmt.Errorf("unsupported link version %d", v)
	}
	flags := r.Uint8()
	var linkType uint8
	if flags&0x08 != 0 {
		linkType = r.Uint8()
	}
	if flags&0x04 != 0 {
		r.Skip(8) // creation order
	}
	if flags&0x10 != 0 {
		r.Skip(1) // charset
	}
	nameLen := int(r.UintN(1 << (flags & 0x03)))
	l := &Link{Name: string(r.Bytes(nameLen))}
	switch linkType {
	case 0:
		l.Address = r.Offset()
	case 1:
		l.Soft = string(r.Bytes(int(r.Uint16())))
	default:
		return nil, fmt.Errorf("unsupported link type %d for %q", linkType, l.Name)
	}
	return l, nil
}

// LinkInfo is the link info message (0x0002). Groups written here always use
// compact storage, so both index addresses are undefined.
type LinkInfo struct {
	FractalHeapAddress uint64
	NameIndexAddress   uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

// IsCompact reports whether the links are stored as messages in the header.
func (m *LinkInfo) IsCompact() bool { return m.FractalHeapAddress == binary.Undefined }

// NewCompactLinkInfo returns a link info message for compact link storage.
func NewCompactLinkInfo() *LinkInfo {
	return &LinkInfo{FractalHeapAddress: binary.Undefined, NameIndexAddress: binary.Undefined}
}

func (m *LinkInfo) Serialize(w *binary.Writer) {
	w.WriteUint8(0)
	w.WriteUint8(0)
	w.WriteOffset(m.FractalHeapAddress)
	w.WriteOffset(m.NameIndexAddress)
}

func parseLinkInfo(r *binary.Reader) (*LinkInfo, error) {
	if v := r.Uint8(); v != 0 {
		return nil, fmt.Errorf("unsupported link info version %d", v)
	}
	flags := r.Uint8()
	if flags&0x01 != 0 {
		r.Skip(8)
	}
	li := &LinkInfo{FractalHeapAddress: r.Offset(), NameIndexAddress: r.Offset()}
	return li, nil
}

// GroupInfo is the group info message (0x000A) with default settings.
type GroupInfo struct{}

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func (m *GroupInfo) Serialize(w *binary.Writer) {
	w.WriteUint8(0)
	w.WriteUint8(0)
}
