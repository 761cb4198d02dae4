package object

import (
	"fmt"

	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// Encode builds a complete version 2 object header holding msgs in a single
// chunk. The result includes the trailing checksum and is ready to be
// written at any address.
func Encode(msgs []message.Serializable, cfg binary.Config) ([]byte, error) {
	bodies := make([][]byte, len(msgs))
	var chunkSize int
	for i, m := range msgs {
		b, err := message.Encode(m, cfg)
		if err != nil {
			return nil, err
		}
		if len(b) > 0xffff {
			return nil, fmt.Errorf("%w: message 0x%04x is %d bytes", ErrMessageTooLarge, uint16(m.Type()), len(b))
		}
		bodies[i] = b
		chunkSize += 4 + len(b)
	}

	sizeBytes := chunkSizeFieldBytes(chunkSize)
	flags := uint8(0)
	switch sizeBytes {
	case 2:
		flags = 1
	case 4:
		flags = 2
	}

	w, buf := binary.NewBufferWriter(cfg)
	w.WriteBytes(SignatureV2)
	w.WriteUint8(2)
	w.WriteUint8(flags)
	w.WriteUintN(uint64(chunkSize), sizeBytes)
	for i, m := range msgs {
		w.WriteUint8(uint8(m.Type()))
		w.WriteUint16(uint16(len(bodies[i])))
		w.WriteUint8(0)
		w.WriteBytes(bodies[i])
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	w.WriteUint32(binary.Lookup3Checksum(buf.Bytes()))
	return buf.Bytes(), w.Err()
}

// EncodeContinuation builds an "OCHK" continuation block holding msgs.
func EncodeContinuation(msgs []message.Serializable, cfg binary.Config) ([]byte, error) {
	w, buf := binary.NewBufferWriter(cfg)
	w.WriteBytes(SignatureContinuation)
	for _, m := range msgs {
		b, err := message.Encode(m, cfg)
		if err != nil {
			return nil, err
		}
		w.WriteUint8(uint8(m.Type()))
		w.WriteUint16(uint16(len(b)))
		w.WriteUint8(0)
		w.WriteBytes(b)
	}
	if err := w.Err(); err != nil {
		return nil, err
	}
	w.WriteUint32(binary.Lookup3Checksum(buf.Bytes()))
	return buf.Bytes(), w.Err()
}

func chunkSizeFieldBytes(size int) int {
	switch {
	case size <= 0xff:
		return 1
	case size <= 0xffff:
		return 2
	}
	return 4
}
