package btree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/binary"
)

// Signature of a version 1 B-tree node.
var Signature = []byte("TREE")

// NodeTypeChunk is the node type of chunk index trees.
const NodeTypeChunk = 1

// K is the chunk B-tree rank; nodes hold up to 2K children.
const K = 32

// maxDepth bounds recursion when reading corrupted trees.
const maxDepth = 32

var ErrInvalidNode = errors.New("invalid B-tree node")

// ChunkEntry locates one stored chunk.
type ChunkEntry struct {
	// Offset is the chunk origin in element coordinates, one per dataset dimension.
	Offset     []uint64
	FilterMask uint32
	Size       uint32
	Address    uint64
}

// compareOffsets orders chunk origins lexicographically.
func compareOffsets(a, b []uint64) int {
	return slices.Compare(a, b)
}

// NodeSize returns the on-disk size of a node for a dataset of the given rank.
// Every node is allocated at full capacity.
func NodeSize(rank int, cfg binary.Config) int {
	return 4 + 1 + 1 + 2 + 2*cfg.OffsetSize + 2*K*cfg.OffsetSize + (2*K+1)*keySize(rank)
}

func keySize(rank int) int { return 4 + 4 + 8*(rank+1) }

type key struct {
	size   uint32
	mask   uint32
	offset []uint64
}

// Build writes a tree indexing entries and returns the root address. Chunk
// dims give the upper bound key of the last chunk. Entries need not be
// sorted. An empty entry list yields binary.Undefined.
func Build(entries []ChunkEntry, chunkDims []uint64, cfg binary.Config, put func([]byte) (uint64, error)) (uint64, error) {
	if len(entries) == 0 {
		return binary.Undefined, nil
	}
	rank := len(chunkDims)
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b ChunkEntry) int { return compareOffsets(a.Offset, b.Offset) })

	keys := make([]key, len(sorted)+1)
	children := make([]uint64, len(sorted))
	for i, e := range sorted {
		if len(e.Offset) != rank {
			return 0, fmt.Errorf("chunk offset %v has rank %d, want %d", e.Offset, len(e.Offset), rank)
		}
		keys[i] = key{size: e.Size, mask: e.FilterMask, offset: e.Offset}
		children[i] = e.Address
	}
	last := slices.Clone(sorted[len(sorted)-1].Offset)
	for d := range last {
		last[d] += chunkDims[d]
	}
	keys[len(sorted)] = key{offset: last}

	for level := 0; ; level++ {
		if level > maxDepth {
			return 0, fmt.Errorf("chunk tree deeper than %d levels", maxDepth)
		}
		var (
			nextKeys     []key
			nextChildren []uint64
		)
		for lo := 0; lo < len(children); lo += 2 * K {
			hi := min(lo+2*K, len(children))
			node, err := encodeNode(level, keys[lo:hi+1], children[lo:hi], rank, cfg)
			if err != nil {
				return 0, err
			}
			addr, err := put(node)
			if err != nil {
				return 0, err
			}
			nextKeys = append(nextKeys, keys[lo])
			nextChildren = append(nextChildren, addr)
		}
		if len(nextChildren) == 1 {
			return nextChildren[0], nil
		}
		keys = append(nextKeys, keys[len(keys)-1])
		children = nextChildren
	}
}

func encodeNode(level int, keys []key, children []uint64, rank int, cfg binary.Config) ([]byte, error) {
	w, buf := binary.NewBufferWriter(cfg)
	w.WriteBytes(Signature)
	w.WriteUint8(NodeTypeChunk)
	w.WriteUint8(uint8(level))
	w.WriteUint16(uint16(len(children)))
	w.WriteUndefinedOffset()
	w.WriteUndefinedOffset()
	writeKey := func(k key) {
		w.WriteUint32(k.size)
		w.WriteUint32(k.mask)
		for _, o := range k.offset {
			w.WriteUint64(o)
		}
		w.WriteUint64(0)
	}
	for i, c := range children {
		writeKey(keys[i])
		w.WriteOffset(c)
	}
	writeKey(keys[len(children)])
	if pad := NodeSize(rank, cfg) - int(w.Pos()); pad > 0 {
		w.WriteZeros(pad)
	}
	return buf.Bytes(), w.Err()
}

// Read returns the chunk entries of the tree rooted at addr, in key order,
// along with the blocks occupied by its nodes.
func Read(ra io.ReaderAt, cfg binary.Config, addr uint64, rank int) ([]ChunkEntry, []alloc.Block, error) {
	if cfg.IsUndefined(addr) {
		return nil, nil, nil
	}
	var (
		entries []ChunkEntry
		nodes   []alloc.Block
	)
	if err := readNode(ra, cfg, addr, rank, -1, 0, &entries, &nodes); err != nil {
		return nil, nil, err
	}
	return entries, nodes, nil
}

func readNode(ra io.ReaderAt, cfg binary.Config, addr uint64, rank, wantLevel, depth int, entries *[]ChunkEntry, nodes *[]alloc.Block) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: tree deeper than %d levels", ErrInvalidNode, maxDepth)
	}
	r := binary.NewReader(ra, cfg).At(int64(addr))
	sig := r.Bytes(4)
	typ := r.Uint8()
	level := int(r.Uint8())
	used := int(r.Uint16())
	r.Skip(2 * cfg.OffsetSize) // siblings
	if err := r.Err(); err != nil {
		return fmt.Errorf("reading B-tree node at %d: %w", addr, err)
	}
	switch {
	case !bytes.Equal(sig, Signature):
		return fmt.Errorf("%w: bad signature at %d", ErrInvalidNode, addr)
	case typ != NodeTypeChunk:
		return fmt.Errorf("%w: node type %d at %d", ErrInvalidNode, typ, addr)
	case wantLevel >= 0 && level != wantLevel:
		return fmt.Errorf("%w: level %d at %d, expected %d", ErrInvalidNode, level, addr, wantLevel)
	case used > 2*K:
		return fmt.Errorf("%w: %d entries at %d", ErrInvalidNode, used, addr)
	}
	*nodes = append(*nodes, alloc.Block{Addr: addr, Size: uint64(NodeSize(rank, cfg))})

	for range used {
		size := r.Uint32()
		mask := r.Uint32()
		offset := make([]uint64, rank)
		for d := range offset {
			offset[d] = r.Uint64()
		}
		r.Skip(8)
		child := r.Offset()
		if err := r.Err(); err != nil {
			return fmt.Errorf("reading B-tree node at %d: %w", addr, err)
		}
		if level > 0 {
			if err := readNode(ra, cfg, child, rank, level-1, depth+1, entries, nodes); err != nil {
				return err
			}
			continue
		}
		if cfg.IsUndefined(child) || size == 0 {
			continue
		}
		*entries = append(*entries, ChunkEntry{Offset: offset, FilterMask: mask, Size: size, Address: child})
	}
	return nil
}
