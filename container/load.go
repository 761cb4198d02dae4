package container

import (
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/btree"
	"github.com/robert-malhotra/go-arf/internal/filter"
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/internal/object"
	"github.com/robert-malhotra/go-arf/internal/superblock"
)

// maxTreeDepth bounds group nesting when loading.
const maxTreeDepth = 64

func (c *Container) load() error {
	flag := os.O_RDWR
	if c.readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(c.path, flag, 0)
	if err != nil {
		return &IOError{Path: c.path, Op: "open", Err: err}
	}
	c.file = f
	st, err := f.Stat()
	if err != nil {
		return &IOError{Path: c.path, Op: "stat", Err: err}
	}

	sb, err := superblock.Read(f)
	if err != nil {
		return &IOError{Path: c.path, Op: "load", Err: err}
	}
	c.cfg = sb.Config()
	if c.cfg.OffsetSize != 8 || c.cfg.LengthSize != 8 {
		return &IOError{Path: c.path, Op: "load", Err: fmt.Errorf("%w: %d-byte offsets", ErrUnsupported, c.cfg.OffsetSize)}
	}
	if sb.FileOffset != 0 || sb.BaseAddress != 0 {
		return &IOError{Path: c.path, Op: "load", Err: fmt.Errorf("%w: user block", ErrUnsupported)}
	}
	c.alloc = alloc.New(uint64(sb.Size()))
	c.alloc.SetEOFAddr(max(sb.EOFAddress, uint64(st.Size())))

	seen := make(map[uint64]bool)
	root, err := c.loadObject(sb.RootAddress, "", "/", seen, 0)
	if err != nil {
		return &IOError{Path: c.path, Op: "load", Err: err}
	}
	if !root.isGroup() {
		return &IOError{Path: c.path, Op: "load", Err: fmt.Errorf("%w: root object", ErrNotGroup)}
	}
	c.root = root
	c.log.Debug("container loaded", "eof", c.alloc.EOFAddr())
	return nil
}

func (c *Container) loadObject(addr uint64, name, path string, seen map[uint64]bool, depth int) (*node, error) {
	if depth > maxTreeDepth {
		return nil, fmt.Errorf("group nesting deeper than %d at %s", maxTreeDepth, path)
	}
	if seen[addr] {
		return nil, fmt.Errorf("%w: object at %d linked more than once (%s)", ErrUnsupported, addr, path)
	}
	seen[addr] = true

	o := &node{name: name, path: path}
	h, err := object.Read(c.file, c.cfg, addr)
	if errors.Is(err, object.ErrUnsupportedVersion) && depth > 0 {
		c.log.Warn("keeping object with old header format as-is", "path", path)
		o.kept, o.keptAddr = true, addr
		return o, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	o.attrs = h.Attributes()

	switch {
	case h.IsDataset():
		a, err := c.loadArray(o, h)
		if err != nil {
			c.log.Warn("keeping dataset as-is", "path", path, "reason", err)
			o.kept, o.keptAddr = true, addr
			return o, nil
		}
		o.array = a
	case h.Message(message.TypeSymbolTable) != nil:
		c.log.Warn("keeping symbol-table group as-is", "path", path)
		o.kept, o.keptAddr = true, addr
		return o, nil
	default:
		for _, l := range h.Links() {
			if !l.IsHard() {
				c.log.Warn("dropping soft link", "path", joinPath(path, l.Name), "target", l.Soft)
				continue
			}
			child, err := c.loadObject(l.Address, l.Name, joinPath(path, l.Name), seen, depth+1)
			if err != nil {
				return nil, err
			}
			o.children = append(o.children, child)
		}
	}

	if err := c.remember(h.Spans); err != nil {
		return nil, err
	}
	return o, nil
}

// remember records loaded metadata blocks so an unchanged block is reused
// by the next commit and a changed one is freed.
func (c *Container) remember(blocks []alloc.Block) error {
	for _, b := range blocks {
		buf := make([]byte, b.Size)
		if _, err := c.file.ReadAt(buf, int64(b.Addr)); err != nil {
			return fmt.Errorf("reading metadata at %d: %w", b.Addr, err)
		}
		h := xxhash.Sum64(buf)
		c.meta[h] = append(c.meta[h], b)
	}
	return nil
}

func (c *Container) loadArray(o *node, h *object.Header) (*ExtendableArray, error) {
	layout, ds, dt := h.Layout(), h.Dataspace(), h.Datatype()
	if ds == nil || dt == nil {
		return nil, errors.New("dataset header lacks dataspace or datatype")
	}
	if layout.Class != message.LayoutChunked {
		return nil, fmt.Errorf("%w: %s layout", ErrUnsupported, layout.Class)
	}
	rank := len(ds.Dims)
	if rank < 1 || rank > 3 {
		return nil, fmt.Errorf("%w (got %d)", ErrUnsupportedRank, rank)
	}
	chunk := layout.Chunk()
	if len(chunk) != rank {
		return nil, fmt.Errorf("%w: chunk rank %d for dataspace rank %d", ErrInvalidShape, len(chunk), rank)
	}
	elem, err := elementTypeOf(dt)
	if err != nil {
		return nil, err
	}
	fp := h.FilterPipeline()
	pipe, err := filter.NewPipeline(fp)
	if err != nil {
		return nil, err
	}

	entries, nodes, err := btree.Read(c.file, c.cfg, layout.Address, rank)
	if err != nil {
		return nil, err
	}
	chunks := make(map[chunkKey]chunkRef, len(entries))
	for _, e := range entries {
		var k chunkKey
		for i := range rank {
			if chunk[i] == 0 || e.Offset[i]%chunk[i] != 0 {
				return nil, fmt.Errorf("%w: chunk offset %v not aligned to %v", ErrInvalidShape, e.Offset, chunk)
			}
			k[i] = e.Offset[i] / chunk[i]
		}
		chunks[k] = chunkRef{addr: e.Address, size: e.Size, mask: e.FilterMask}
	}
	if err := c.remember(nodes); err != nil {
		return nil, err
	}

	maxDims := ds.MaxDims
	if maxDims == nil {
		maxDims = ds.Dims
	}
	a := &ExtendableArray{
		c:       c,
		obj:     o,
		elem:    elem,
		dt:      dt,
		dims:    append([]uint64(nil), ds.Dims...),
		maxDims: append([]uint64(nil), maxDims...),
		chunk:   chunk,
		filters: fp,
		pipe:    pipe,
		chunks:  chunks,
		cache:   newChunkCache(c.opts.cacheSize),
	}
	a.resetCursors()
	return a, nil
}
