package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/go-arf/internal/binary"
)

// Signature is the 8-byte HDF5 file signature.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// Possible superblock locations, searched in order.
var superblockOffsets = []int64{0, 512, 1024, 2048}

var (
	ErrNotHDF5            = errors.New("not an HDF5 file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrInvalidSuperblock  = errors.New("invalid superblock structure")
)

// Superblock holds the fields of a version 2/3 superblock.
type Superblock struct {
	Version          uint8
	OffsetSize       uint8
	LengthSize       uint8
	ConsistencyFlags uint8
	BaseAddress      uint64
	ExtensionAddress uint64
	EOFAddress       uint64
	RootAddress      uint64

	// FileOffset is where the superblock was found.
	FileOffset int64
}

// New returns a version 2 superblock with 8-byte offsets and lengths.
func New(rootAddr, eofAddr uint64) *Superblock {
	return &Superblock{
		Version:          2,
		OffsetSize:       8,
		LengthSize:       8,
		ExtensionAddress: binpkg.Undefined,
		EOFAddress:       eofAddr,
		RootAddress:      rootAddr,
	}
}

// Size returns the encoded size of a version 2/3 superblock.
func (sb *Superblock) Size() int {
	o := int(sb.OffsetSize)
	if o == 0 {
		o = 8
	}
	return 12 + 4*o + 4
}

// Config returns the field configuration files with this superblock use.
func (sb *Superblock) Config() binpkg.Config {
	return binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: int(sb.OffsetSize),
		LengthSize: int(sb.LengthSize),
	}
}

// Encode serializes the superblock including its checksum.
func (sb *Superblock) Encode() ([]byte, error) {
	cfg := sb.Config()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w, buf := binpkg.NewBufferWriter(cfg)
	w.WriteBytes(Signature)
	w.WriteUint8(sb.Version)
	w.WriteUint8(sb.OffsetSize)
	w.WriteUint8(sb.LengthSize)
	w.WriteUint8(sb.ConsistencyFlags)
	w.WriteOffset(sb.BaseAddress)
	w.WriteOffset(sb.ExtensionAddress)
	w.WriteOffset(sb.EOFAddress)
	w.WriteOffset(sb.RootAddress)
	w.WriteUint32(binpkg.Lookup3Checksum(buf.Bytes()))
	if err := w.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo writes the superblock at offset 0.
func (sb *Superblock) WriteTo(w io.WriterAt) error {
	data, err := sb.Encode()
	if err != nil {
		return err
	}
	_, err = w.WriteAt(data, 0)
	return err
}

// Read locates and parses the superblock.
func Read(r io.ReaderAt) (*Superblock, error) {
	sig := make([]byte, len(Signature))
	for _, offset := range superblockOffsets {
		if _, err := r.ReadAt(sig, offset); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("reading signature at %d: %w", offset, err)
		}
		if !bytes.Equal(sig, Signature) {
			continue
		}
		sb, err := readAt(r, offset)
		if err != nil {
			return nil, err
		}
		sb.FileOffset = offset
		return sb, nil
	}
	return nil, ErrNotHDF5
}

func readAt(r io.ReaderAt, offset int64) (*Superblock, error) {
	head := make([]byte, 4)
	if _, err := r.ReadAt(head, offset+8); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	if head[0] != 2 && head[0] != 3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, head[0])
	}

	sb := &Superblock{
		Version:          head[0],
		OffsetSize:       head[1],
		LengthSize:       head[2],
		ConsistencyFlags: head[3],
	}
	cfg := sb.Config()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSuperblock, err)
	}

	raw := make([]byte, sb.Size())
	if _, err := r.ReadAt(raw, offset); err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	body := raw[:len(raw)-4]
	stored := binary.LittleEndian.Uint32(raw[len(raw)-4:])
	if binpkg.Lookup3Checksum(body) != stored {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSuperblock)
	}

	br := binpkg.NewReader(bytes.NewReader(body), cfg).At(12)
	sb.BaseAddress = br.Offset()
	sb.ExtensionAddress = br.Offset()
	sb.EOFAddress = br.Offset()
	sb.RootAddress = br.Offset()
	if err := br.Err(); err != nil {
		return nil, err
	}
	return sb, nil
}
