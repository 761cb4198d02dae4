package container

import (
	"fmt"
	"slices"

	"github.com/robert-malhotra/go-arf/internal/filter"
	"github.com/robert-malhotra/go-arf/internal/message"
)

// ExtendableArray is a chunked dataset that grows as data is appended. Each
// column of a 2-D array keeps its own write cursor so several producers can
// fill columns at different rates.
type ExtendableArray struct {
	c   *Container
	obj *node

	elem    ElementType
	dt      *message.Datatype
	dims    []uint64
	maxDims []uint64
	chunk   []uint64
	filters *message.FilterPipeline
	pipe    *filter.Pipeline

	chunks map[chunkKey]chunkRef
	cache  *chunkCache
	rowPos []uint64
}

// OpenOrCreateArray returns the array at path, creating it (and missing parent
// groups) when absent. For a new array, shape gives the initial extent and
// chunkShape the chunk size per dimension: a positive entry makes that
// dimension unlimited, 0 fixes it at its initial size.
//
// An existing array keeps its extent, chunking and filters; its cursors start
// at the current extent. Requesting a different element type fails with
// ErrTypeMismatch.
func (c *Container) OpenOrCreateArray(path string, elem ElementType, shape, chunkShape []uint64, opts ...ArrayOption) (*ExtendableArray, error) {
	rank := len(shape)
	if rank < 1 || rank > 3 {
		return nil, fmt.Errorf("%s: %w (got %d)", path, ErrUnsupportedRank, rank)
	}
	if len(chunkShape) != rank {
		return nil, fmt.Errorf("%s: %w: chunk rank %d for array rank %d", path, ErrInvalidShape, len(chunkShape), rank)
	}
	if elem.kind == KindInvalid || elem.size == 0 {
		return nil, fmt.Errorf("%s: %w: invalid element type", path, ErrTypeMismatch)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if o, err := c.lookup(path); err == nil {
		if o.array == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotArray, o.path)
		}
		if !o.array.elem.Equal(elem) {
			return nil, fmt.Errorf("%w: %s holds %s, requested %s", ErrTypeMismatch, o.path, o.array.elem, elem)
		}
		return o.array, nil
	}
	if c.readOnly {
		return nil, ErrReadOnly
	}

	parent, name, err := parentPath(path)
	if err != nil {
		return nil, err
	}
	dims := slices.Clone(shape)
	chunk := make([]uint64, rank)
	maxDims := make([]uint64, rank)
	chunkElems := uint64(1)
	for i := range rank {
		if chunkShape[i] == 0 {
			if shape[i] == 0 {
				return nil, fmt.Errorf("%s: %w: fixed dimension %d has size 0", path, ErrInvalidShape, i)
			}
			chunk[i], maxDims[i] = shape[i], shape[i]
		} else {
			chunk[i], maxDims[i] = chunkShape[i], message.Unlimited
		}
		chunkElems *= chunk[i]
	}
	if chunkElems*uint64(elem.size) > 1<<32-1 {
		return nil, fmt.Errorf("%s: %w: chunk of %d elements is too large", path, ErrInvalidShape, chunkElems)
	}

	var ao arrayOptions
	for _, opt := range opts {
		opt(&ao)
	}
	filters := ao.pipeline(elem.size)
	pipe, err := filter.NewPipeline(filters)
	if err != nil {
		return nil, err
	}

	g, err := c.mkdirAll(parent)
	if err != nil {
		return nil, err
	}
	o := &node{name: name, path: joinPath(g.path, name)}
	a := &ExtendableArray{
		c:       c,
		obj:     o,
		elem:    elem,
		dt:      elem.datatype(),
		dims:    dims,
		maxDims: maxDims,
		chunk:   chunk,
		filters: filters,
		pipe:    pipe,
		chunks:  make(map[chunkKey]chunkRef),
		cache:   newChunkCache(c.opts.cacheSize),
	}
	a.resetCursors()
	o.array = a
	g.children = append(g.children, o)
	c.log.Debug("array created", "path", o.path, "type", elem.String(), "chunk", chunk)
	return a, nil
}

// Array returns the existing array at path.
func (c *Container) Array(path string) (*ExtendableArray, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	o, err := c.lookup(path)
	if err != nil {
		return nil, err
	}
	if o.array == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotArray, o.path)
	}
	return o.array, nil
}

func (a *ExtendableArray) resetCursors() {
	n := 1
	if len(a.dims) >= 2 {
		n = int(a.dims[1])
	}
	a.rowPos = make([]uint64, n)
	for i := range a.rowPos {
		a.rowPos[i] = a.dims[0]
	}
}

// Path returns the array's absolute path.
func (a *ExtendableArray) Path() string { return a.obj.path }

// Type returns the element type.
func (a *ExtendableArray) Type() ElementType { return a.elem }

// Rank returns the number of dimensions.
func (a *ExtendableArray) Rank() int { return len(a.dims) }

// Extent returns the current size of every dimension.
func (a *ExtendableArray) Extent() []uint64 {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	return slices.Clone(a.dims)
}

// Chunk returns the chunk shape.
func (a *ExtendableArray) Chunk() []uint64 { return slices.Clone(a.chunk) }

// RowPos returns the write cursor of a column.
func (a *ExtendableArray) RowPos(column int) uint64 {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	if column < 0 || column >= len(a.rowPos) {
		return 0
	}
	return a.rowPos[column]
}

func (a *ExtendableArray) writeErr(offset, size []uint64, reason string, err error) error {
	return &DatasetWriteError{Path: a.obj.path, Offset: slices.Clone(offset), Size: slices.Clone(size), Reason: reason, Err: err}
}

func (a *ExtendableArray) canGrow(dim int, size uint64) bool {
	return a.maxDims[dim] == message.Unlimited || size <= a.maxDims[dim]
}

// AppendBlock appends data along dimension 0 at the current extent. data is
// row-major with rows entries in dimension 1 (ignored for 1-D arrays); a
// 3-D block spans the full extent of dimension 2. Dimension 1 grows to rows
// when it is growable and smaller. All column cursors move to the new extent,
// which is returned.
func (a *ExtendableArray) AppendBlock(data any, rows int) ([]uint64, error) {
	raw, err := encodeElements(a.elem, data)
	if err != nil {
		return nil, a.writeErr(nil, nil, "encoding block", err)
	}

	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	return a.appendBlock(raw, rows)
}

func (a *ExtendableArray) appendBlock(raw []byte, rows int) ([]uint64, error) {
	rank := len(a.dims)
	count := make([]uint64, rank)
	inner := uint64(1)
	if rank >= 2 {
		if rows <= 0 {
			return nil, a.writeErr(nil, nil, "block needs a positive row count", ErrInvalidShape)
		}
		count[1] = uint64(rows)
		inner *= count[1]
	}
	if rank == 3 {
		count[2] = a.dims[2]
		inner *= count[2]
	}
	elems := uint64(len(raw)) / uint64(a.elem.size)
	if inner == 0 || elems%inner != 0 {
		return nil, a.writeErr(nil, count, "block is not a whole number of rows", ErrInvalidShape)
	}
	count[0] = elems / inner
	start := make([]uint64, rank)
	start[0] = a.dims[0]
	if err := a.c.writable(); err != nil {
		return nil, a.writeErr(start, count, "container not writable", err)
	}

	newDims := slices.Clone(a.dims)
	newDims[0] += count[0]
	if !a.canGrow(0, newDims[0]) {
		return nil, a.writeErr(start, count, fmt.Sprintf("dimension 0 is fixed at %d", a.maxDims[0]), ErrInvalidShape)
	}
	if rank >= 2 && count[1] > newDims[1] {
		if !a.canGrow(1, count[1]) {
			return nil, a.writeErr(start, count, fmt.Sprintf("dimension 1 is fixed at %d", a.maxDims[1]), ErrInvalidShape)
		}
		newDims[1] = count[1]
	}
	if count[0] == 0 {
		return slices.Clone(a.dims), nil
	}

	if err := a.transfer(start, count, raw, true); err != nil {
		return nil, a.writeErr(start, count, "writing chunks", err)
	}
	a.dims = newDims
	for len(a.rowPos) < int(a.columns()) {
		a.rowPos = append(a.rowPos, 0)
	}
	for i := range a.rowPos {
		a.rowPos[i] = a.dims[0]
	}
	return slices.Clone(a.dims), nil
}

func (a *ExtendableArray) columns() uint64 {
	if len(a.dims) >= 2 {
		return a.dims[1]
	}
	return 1
}

// AppendColumn writes data into one column of a 2-D array (column 0 of a
// 1-D array) starting at that column's cursor, growing dimension 0 only as
// far as needed. The cursor advances only when the write succeeds.
func (a *ExtendableArray) AppendColumn(column int, data any) error {
	raw, err := encodeElements(a.elem, data)
	if err != nil {
		return a.writeErr(nil, nil, "encoding column", err)
	}

	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	rank := len(a.dims)
	if rank == 3 {
		return a.writeErr(nil, nil, "column append on a 3-D array", ErrUnsupportedRank)
	}
	if column < 0 || uint64(column) >= a.columns() {
		return a.writeErr(nil, nil, fmt.Sprintf("column %d out of range [0,%d)", column, a.columns()), ErrInvalidShape)
	}
	n := uint64(len(raw)) / uint64(a.elem.size)
	start := []uint64{a.rowPos[column]}
	count := []uint64{n}
	if rank == 2 {
		start = append(start, uint64(column))
		count = append(count, 1)
	}
	if err := a.c.writable(); err != nil {
		return a.writeErr(start, count, "container not writable", err)
	}
	if n == 0 {
		return nil
	}
	need := start[0] + n
	if need > a.dims[0] && !a.canGrow(0, need) {
		return a.writeErr(start, count, fmt.Sprintf("dimension 0 is fixed at %d", a.maxDims[0]), ErrInvalidShape)
	}
	if err := a.transfer(start, count, raw, true); err != nil {
		return a.writeErr(start, count, "writing chunks", err)
	}
	a.dims[0] = max(a.dims[0], need)
	a.rowPos[column] = need
	return nil
}

// AppendCompound appends one packed record to a 1-D compound array.
func (a *ExtendableArray) AppendCompound(record []byte) error {
	if a.elem.kind != KindCompound {
		return a.writeErr(nil, nil, "compound append", fmt.Errorf("%w: array holds %s", ErrTypeMismatch, a.elem))
	}
	if len(record) != int(a.elem.size) {
		return a.writeErr(nil, nil, fmt.Sprintf("record is %d bytes, schema is %d", len(record), a.elem.size), ErrInvalidShape)
	}
	_, err := a.AppendBlock(record, 1)
	return err
}

// ReadRows returns packed elements of rows [start, start+n) across the full
// extent of the other dimensions. Regions never written read as zeros.
func (a *ExtendableArray) ReadRows(start, n uint64) ([]byte, error) {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	if a.c.closed {
		return nil, ErrClosed
	}
	if start+n > a.dims[0] {
		return nil, fmt.Errorf("%w: rows [%d,%d) beyond extent %d of %s", ErrInvalidShape, start, start+n, a.dims[0], a.obj.path)
	}
	origin := make([]uint64, len(a.dims))
	count := slices.Clone(a.dims)
	origin[0], count[0] = start, n
	size := uint64(a.elem.size)
	for _, d := range count {
		size *= d
	}
	out := make([]byte, size)
	if err := a.transfer(origin, count, out, false); err != nil {
		return nil, err
	}
	return out, nil
}
