package container

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robert-malhotra/go-arf/internal/alloc"
	"github.com/robert-malhotra/go-arf/internal/binary"
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/internal/superblock"
	"github.com/robert-malhotra/go-arf/logger"
)

// Container is one open HDF5 file. It is safe for concurrent use.
type Container struct {
	mu sync.Mutex

	path  string
	file  *os.File
	cfg   binary.Config
	alloc *alloc.Allocator
	root  *node

	// meta holds the metadata blocks of the last commit keyed by content
	// hash. Blocks not reused by the next commit are freed.
	meta map[uint64][]alloc.Block

	opts     options
	log      logger.Logger
	readOnly bool
	closed   bool
}

// node is one entry of the in-memory tree: a group, an array, or an object
// loaded from disk that is linked as-is and never rewritten.
type node struct {
	name     string
	path     string
	attrs    []*message.Attribute
	children []*node
	array    *ExtendableArray

	kept     bool
	keptAddr uint64
}

func (o *node) isGroup() bool { return o.array == nil && !o.kept }

func (o *node) child(name string) *node {
	for _, c := range o.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (o *node) attr(name string) (*message.Attribute, int) {
	for i, a := range o.attrs {
		if a.Name == name {
			return a, i
		}
	}
	return nil, -1
}

// Open opens or creates the container at path.
func Open(path string, mode Mode, opts ...Option) (*Container, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "open", Err: err}
	}
	if !acquirePath(abs) {
		return nil, &IOError{Path: abs, Op: "open", Err: ErrAlreadyOpen}
	}

	c := &Container{
		path: abs,
		cfg:  binary.DefaultConfig(),
		meta: make(map[uint64][]alloc.Block),
		opts: o,
		log:  o.log.With("container", abs),

		readOnly: mode == ReadOnly,
	}

	create := mode == CreateTruncate
	if !create {
		st, err := os.Stat(abs)
		switch {
		case errors.Is(err, os.ErrNotExist) && mode == ReadOnly:
			releasePath(abs)
			return nil, &IOError{Path: abs, Op: "open", Err: err}
		case errors.Is(err, os.ErrNotExist):
			create = true
		case err != nil:
			releasePath(abs)
			return nil, &IOError{Path: abs, Op: "stat", Err: err}
		default:
			create = st.Size() == 0 && mode != ReadOnly
		}
	}

	if create {
		err = c.create()
	} else {
		err = c.load()
	}
	if err != nil {
		if c.file != nil {
			_ = c.file.Close()
		}
		releasePath(abs)
		return nil, err
	}
	return c, nil
}

func (c *Container) create() error {
	f, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &IOError{Path: c.path, Op: "create", Err: err}
	}
	c.file = f
	c.alloc = alloc.New(uint64(superblock.New(0, 0).Size()))
	c.root = &node{path: "/"}

	if c.opts.init != nil {
		if err := c.opts.init(c); err != nil {
			_ = f.Close()
			c.file = nil
			_ = os.Remove(c.path)
			return fmt.Errorf("initializing %s: %w", c.path, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.commit(); err != nil {
		return err
	}
	c.log.Debug("container created")
	return nil
}

// Path returns the absolute file path.
func (c *Container) Path() string { return c.path }

// Flush writes dirty chunks and commits all metadata so the file on disk is
// complete.
func (c *Container) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.readOnly {
		return nil
	}
	return c.commit()
}

// Close commits, syncs and closes the file. Closing twice is a no-op.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	defer releasePath(c.path)

	if c.readOnly {
		if err := c.file.Close(); err != nil {
			return &IOError{Path: c.path, Op: "close", Err: err}
		}
		return nil
	}

	errCommit := c.commit()
	var errSync error
	if c.opts.syncOnExit {
		if err := c.file.Sync(); err != nil {
			errSync = &IOError{Path: c.path, Op: "sync", Err: err}
		}
	}
	var errClose error
	if err := c.file.Close(); err != nil {
		errClose = &IOError{Path: c.path, Op: "close", Err: err}
	}
	if err := errors.Join(errCommit, errSync, errClose); err != nil {
		c.log.Error("closing container", "error", err)
		return err
	}
	c.log.Debug("container closed", "eof", c.alloc.EOFAddr())
	return nil
}

// CreateGroup creates the group at path along with any missing parents.
// Existing groups are left untouched.
func (c *Container) CreateGroup(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.writable(); err != nil {
		return err
	}
	_, err := c.mkdirAll(path)
	return err
}

func (c *Container) writable() error {
	if c.closed {
		return ErrClosed
	}
	if c.readOnly {
		return ErrReadOnly
	}
	return nil
}

// Exists reports whether an object exists at path.
func (c *Container) Exists(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.lookup(path)
	return err == nil
}

func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	parts := strings.Split(trimmed, "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return parts, nil
}

func (c *Container) lookup(path string) (*node, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	o := c.root
	for _, p := range parts {
		if !o.isGroup() {
			return nil, fmt.Errorf("%w: %s", ErrNotGroup, o.path)
		}
		next := o.child(p)
		if next == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		o = next
	}
	return o, nil
}

func (c *Container) mkdirAll(path string) (*node, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	o := c.root
	for _, p := range parts {
		next := o.child(p)
		if next == nil {
			next = &node{name: p, path: joinPath(o.path, p)}
			o.children = append(o.children, next)
		}
		if !next.isGroup() {
			return nil, fmt.Errorf("%w: %s", ErrNotGroup, next.path)
		}
		o = next
	}
	return o, nil
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func parentPath(path string) (string, string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return "", "", err
	}
	if len(parts) == 0 {
		return "", "", fmt.Errorf("%w: root has no name", ErrInvalidPath)
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1], nil
}

// ObjectInfo describes one object for Walk.
type ObjectInfo struct {
	Path       string
	Group      bool
	Opaque     bool // loaded object this package does not interpret
	Type       ElementType
	Extent     []uint64
	MaxExtent  []uint64
	Chunk      []uint64
	Filters    []uint16
	Attributes []string
}

// Walk calls fn for every object in depth-first order, parents before
// children. Returning an error stops the walk.
func (c *Container) Walk(fn func(ObjectInfo) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return walk(c.root, fn)
}

func walk(o *node, fn func(ObjectInfo) error) error {
	info := ObjectInfo{Path: o.path, Group: o.isGroup(), Opaque: o.kept}
	for _, a := range o.attrs {
		info.Attributes = append(info.Attributes, a.Name)
	}
	if a := o.array; a != nil {
		info.Type = a.elem
		info.Extent = append([]uint64(nil), a.dims...)
		info.MaxExtent = append([]uint64(nil), a.maxDims...)
		info.Chunk = append([]uint64(nil), a.chunk...)
		if a.filters != nil {
			for _, f := range a.filters.Filters {
				info.Filters = append(info.Filters, f.ID)
			}
		}
	}
	if err := fn(info); err != nil {
		return err
	}
	for _, child := range o.children {
		if err := walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}
