package object

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// Object header signatures.
var (
	SignatureV2           = []byte("OHDR")
	SignatureContinuation = []byte("OCHK")
)

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksumMismatch   = errors.New("object header checksum mismatch")
	ErrMessageTooLarge    = errors.New("header message too large")
)

// maxContinuations bounds how many continuation blocks one header may chain.
const maxContinuations = 1024

// Header is a parsed object header.
type Header struct {
	Address  uint64
	Flags    uint8
	Messages []message.Message
	// Spans lists the header chunk and every continuation block, in read order.
	Spans []alloc.Block
}

// Read parses the version 2 object header at address.
func Read(ra io.ReaderAt, cfg binary.Config, address uint64) (*Header, error) {
	r := binary.NewReader(ra, cfg).At(int64(address))
	sig := r.Bytes(4)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", address, err)
	}
	if !bytes.Equal(sig, SignatureV2) {
		if sig[0] == 1 {
			return nil, fmt.Errorf("%w: version 1 header at %d", ErrUnsupportedVersion, address)
		}
		return nil, fmt.Errorf("%w: bad signature at %d", ErrInvalidHeader, address)
	}
	if v := r.Uint8(); v != 2 {
		return nil, fmt.Errorf("%w: %d at %d", ErrUnsupportedVersion, v, address)
	}
	flags := r.Uint8()
	if flags&0x20 != 0 {
		r.Skip(16) // access, modification, change and birth times
	}
	if flags&0x10 != 0 {
		r.Skip(4) // attribute phase change values
	}
	chunkSize := r.UintN(1 << (flags & 0x03))
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", address, err)
	}

	start := r.Pos()
	total := uint64(start-int64(address)) + chunkSize + 4
	if err := verifyChecksum(ra, address, total); err != nil {
		return nil, err
	}

	h := &Header{Address: address, Flags: flags, Spans: []alloc.Block{{Addr: address, Size: total}}}
	pending, err := h.readMessages(r, start+int64(chunkSize))
	if err != nil {
		return nil, err
	}

	for i := 0; len(pending) > 0; i++ {
		if i >= maxContinuations {
			return nil, fmt.Errorf("%w: too many continuation blocks at %d", ErrInvalidHeader, address)
		}
		c := pending[0]
		pending = pending[1:]
		more, err := h.readContinuation(ra, cfg, c)
		if err != nil {
			return nil, err
		}
		pending = append(pending, more...)
	}
	return h, nil
}

func (h *Header) readContinuation(ra io.ReaderAt, cfg binary.Config, c *message.Continuation) ([]*message.Continuation, error) {
	if c.Length < 8 {
		return nil, fmt.Errorf("%w: continuation block of %d bytes", ErrInvalidHeader, c.Length)
	}
	r := binary.NewReader(ra, cfg).At(int64(c.Offset))
	if sig := r.Bytes(4); !bytes.Equal(sig, SignatureContinuation) {
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("reading continuation at %d: %w", c.Offset, err)
		}
		return nil, fmt.Errorf("%w: bad continuation signature at %d", ErrInvalidHeader, c.Offset)
	}
	if err := verifyChecksum(ra, c.Offset, c.Length); err != nil {
		return nil, err
	}
	h.Spans = append(h.Spans, alloc.Block{Addr: c.Offset, Size: c.Length})
	return h.readMessages(r, int64(c.Offset+c.Length-4))
}

// readMessages parses messages up to end, returning continuations found.
func (h *Header) readMessages(r *binary.Reader, end int64) ([]*message.Continuation, error) {
	cfg := r.Config()
	var conts []*message.Continuation
	for end-r.Pos() >= 4 {
		typ := message.Type(r.Uint8())
		size := int(r.Uint16())
		r.Skip(1) // message flags
		if h.Flags&0x04 != 0 {
			r.Skip(2) // creation order
		}
		data := r.Bytes(size)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("reading header at %d: %w", h.Address, err)
		}
		if r.Pos() > end {
			return nil, fmt.Errorf("%w: message overruns chunk at %d", ErrInvalidHeader, h.Address)
		}
		if typ == message.TypeNIL {
			continue
		}
		msg, err := message.Parse(typ, data, cfg)
		if err != nil {
			return nil, fmt.Errorf("header at %d: %w", h.Address, err)
		}
		if c, ok := msg.(*message.Continuation); ok {
			conts = append(conts, c)
			continue
		}
		h.Messages = append(h.Messages, msg)
	}
	return conts, nil
}

func verifyChecksum(ra io.ReaderAt, addr, size uint64) error {
	buf := make([]byte, size)
	if _, err := ra.ReadAt(buf, int64(addr)); err != nil {
		return fmt.Errorf("reading header block at %d: %w", addr, err)
	}
	n := len(buf) - 4
	want := binary.DefaultConfig().ByteOrder.Uint32(buf[n:])
	if got := binary.Lookup3Checksum(buf[:n]); got != want {
		return fmt.Errorf("%w at %d: stored 0x%08x, computed 0x%08x", ErrChecksumMismatch, addr, want, got)
	}
	return nil
}

// Message returns the first message of the given type, or nil.
func (h *Header) Message(typ message.Type) message.Message {
	for _, m := range h.Messages {
		if m.Type() == typ {
			return m
		}
	}
	return nil
}

// IsDataset reports whether the header describes a dataset.
func (h *Header) IsDataset() bool { return h.Message(message.TypeDataLayout) != nil }

func (h *Header) Dataspace() *message.Dataspace {
	m, _ := h.Message(message.TypeDataspace).(*message.Dataspace)
	return m
}

func (h *Header) Datatype() *message.Datatype {
	m, _ := h.Message(message.TypeDatatype).(*message.Datatype)
	return m
}

func (h *Header) Layout() *message.Layout {
	m, _ := h.Message(message.TypeDataLayout).(*message.Layout)
	return m
}

func (h *Header) FilterPipeline() *message.FilterPipeline {
	m, _ := h.Message(message.TypeFilterPipeline).(*message.FilterPipeline)
	return m
}

// Links returns the link messages in header order.
func (h *Header) Links() []*message.Link {
	var out []*message.Link
	for _, m := range h.Messages {
		if l, ok := m.(*message.Link); ok {
			out = append(out, l)
		}
	}
	return out
}

// Attributes returns the attribute messages in header order.
func (h *Header) Attributes() []*message.Attribute {
	var out []*message.Attribute
	for _, m := range h.Messages {
		if a, ok := m.(*message.Attribute); ok {
			out = append(out, a)
		}
	}
	return out
}
