package container

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/btree"
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/internal/object"
	"github.com/robert-malhotra/go-arf/internal/superblock"
)

// commit writes every dirty chunk, then the whole metadata tree bottom-up,
// then the superblock. Metadata blocks whose bytes are unchanged since the
// last commit are reused in place; the rest of the old blocks are freed and
// become reusable once the new superblock is on disk. Caller holds c.mu.
func (c *Container) commit() error {
	if err := c.flushArrays(c.root); err != nil {
		return err
	}

	next := make(map[uint64][]alloc.Block)
	var written, reused int
	put := func(b []byte) (uint64, error) {
		h := xxhash.Sum64(b)
		if prev := c.meta[h]; len(prev) > 0 {
			blk := prev[len(prev)-1]
			if blk.Size == uint64(len(b)) {
				c.meta[h] = prev[:len(prev)-1]
				next[h] = append(next[h], blk)
				reused++
				return blk.Addr, nil
			}
		}
		addr := c.alloc.Alloc(uint64(len(b)))
		if _, err := c.file.WriteAt(b, int64(addr)); err != nil {
			return 0, &IOError{Path: c.path, Op: "write metadata", Err: err}
		}
		next[h] = append(next[h], alloc.Block{Addr: addr, Size: uint64(len(b))})
		written++
		return addr, nil
	}

	rootAddr, err := c.writeObject(c.root, put)
	if err != nil {
		// Blocks written for the failed commit are unreferenced; free them
		// with the rest at the next successful commit.
		for h, blocks := range next {
			c.meta[h] = append(c.meta[h], blocks...)
		}
		return err
	}

	for _, blocks := range c.meta {
		for _, b := range blocks {
			c.alloc.Free(b.Addr, b.Size)
		}
	}
	c.meta = next

	sb := superblock.New(rootAddr, c.alloc.EOFAddr())
	if err := sb.WriteTo(c.file); err != nil {
		return &IOError{Path: c.path, Op: "write superblock", Err: err}
	}
	c.alloc.Release()
	c.log.Debug("committed", "root", rootAddr, "eof", c.alloc.EOFAddr(), "written", written, "reused", reused)
	return nil
}

func (c *Container) flushArrays(o *node) error {
	if o.array != nil {
		if err := o.array.flushChunks(); err != nil {
			return fmt.Errorf("flushing %s: %w", o.path, err)
		}
	}
	for _, child := range o.children {
		if err := c.flushArrays(child); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) writeObject(o *node, put func([]byte) (uint64, error)) (uint64, error) {
	if o.kept {
		return o.keptAddr, nil
	}
	var msgs []message.Serializable
	if a := o.array; a != nil {
		m, err := a.headerMessages(put)
		if err != nil {
			return 0, err
		}
		msgs = m
	} else {
		msgs = []message.Serializable{message.NewCompactLinkInfo(), &message.GroupInfo{}}
		for _, child := range o.children {
			addr, err := c.writeObject(child, put)
			if err != nil {
				return 0, err
			}
			msgs = append(msgs, &message.Link{Name: child.name, Address: addr})
		}
	}
	for _, a := range o.attrs {
		msgs = append(msgs, a)
	}
	hdr, err := object.Encode(msgs, c.cfg)
	if err != nil {
		return 0, fmt.Errorf("encoding header of %s: %w", o.path, err)
	}
	return put(hdr)
}

func (a *ExtendableArray) headerMessages(put func([]byte) (uint64, error)) ([]message.Serializable, error) {
	entries := make([]btree.ChunkEntry, 0, len(a.chunks))
	rank := len(a.dims)
	for k, ref := range a.chunks {
		off := make([]uint64, rank)
		for i := range off {
			off[i] = k[i] * a.chunk[i]
		}
		entries = append(entries, btree.ChunkEntry{Offset: off, FilterMask: ref.mask, Size: ref.size, Address: ref.addr})
	}
	root, err := btree.Build(entries, a.chunk, a.c.cfg, put)
	if err != nil {
		return nil, fmt.Errorf("chunk index of %s: %w", a.obj.path, err)
	}

	msgs := []message.Serializable{
		&message.Dataspace{Dims: append([]uint64(nil), a.dims...), MaxDims: append([]uint64(nil), a.maxDims...)},
		a.dt,
		message.NewChunkedFillValue(),
		message.NewChunkedLayout(root, a.elem.size, a.chunk...),
	}
	if a.filters != nil {
		msgs = append(msgs, a.filters)
	}
	return msgs, nil
}
