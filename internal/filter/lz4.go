package filter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/robert-malhotra/go-arf/internal/message"
)

const (
	lz4HeaderSize       = 12
	lz4DefaultBlockSize = 1 << 30
	lz4MaxOriginalSize  = 1 << 31
)

var lz4CompressorPool = sync.Pool{
	New: func() any { return &lz4.Compressor{} },
}

// LZ4 is the registered HDF5 LZ4 filter. The stream starts with the original
// size (8 bytes) and the block size (4 bytes), both big-endian, followed by
// blocks each prefixed with their stored size. A block whose stored size
// equals its raw size is kept uncompressed. Client data: [0] = block size.
type LZ4 struct {
	blockSize int
}

func NewLZ4(clientData []uint32) *LZ4 {
	bs := lz4DefaultBlockSize
	if len(clientData) > 0 && clientData[0] > 0 {
		bs = int(clientData[0])
	}
	return &LZ4{blockSize: bs}
}

func (f *LZ4) ID() uint16 { return message.FilterLZ4 }

func (f *LZ4) Encode(input []byte) ([]byte, error) {
	bs := min(f.blockSize, max(len(input), 1))
	out := make([]byte, lz4HeaderSize, lz4HeaderSize+len(input)+len(input)/bs*4+4)
	binary.BigEndian.PutUint64(out[0:], uint64(len(input)))
	binary.BigEndian.PutUint32(out[8:], uint32(bs))

	c, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(c)

	dst := make([]byte, lz4.CompressBlockBound(bs))
	for off := 0; off < len(input); off += bs {
		block := input[off:min(off+bs, len(input))]
		n, err := c.CompressBlock(block, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(block) {
			out = binary.BigEndian.AppendUint32(out, uint32(len(block)))
			out = append(out, block...)
			continue
		}
		out = binary.BigEndian.AppendUint32(out, uint32(n))
		out = append(out, dst[:n]...)
	}
	return out, nil
}

func (f *LZ4) Decode(input []byte) ([]byte, error) {
	if len(input) < lz4HeaderSize {
		return nil, errors.New("lz4: truncated header")
	}
	orig := binary.BigEndian.Uint64(input[0:])
	bs := int(binary.BigEndian.Uint32(input[8:]))
	if orig > lz4MaxOriginalSize {
		return nil, fmt.Errorf("lz4: original size %d too large", orig)
	}
	if bs <= 0 && orig > 0 {
		return nil, errors.New("lz4: zero block size")
	}
	out := make([]byte, orig)
	src := input[lz4HeaderSize:]
	for off := 0; off < int(orig); off += bs {
		want := min(bs, int(orig)-off)
		if len(src) < 4 {
			return nil, errors.New("lz4: truncated block header")
		}
		n := int(binary.BigEndian.Uint32(src))
		src = src[4:]
		if n > len(src) {
			return nil, errors.New("lz4: truncated block")
		}
		if n == want {
			copy(out[off:], src[:n])
		} else {
			got, err := lz4.UncompressBlock(src[:n], out[off:off+want])
			if err != nil {
				return nil, fmt.Errorf("lz4 decompress: %w", err)
			}
			if got != want {
				return nil, fmt.Errorf("lz4: block decoded to %d bytes, want %d", got, want)
			}
		}
		src = src[n:]
	}
	return out, nil
}
