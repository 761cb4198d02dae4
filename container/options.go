package container

import (
	"github.com/robert-malhotra/go-arf/internal/message"
	"github.com/robert-malhotra/go-arf/logger"
)

// Mode selects how Open treats an existing file.
type Mode int

const (
	// CreateTruncate creates the file, discarding any existing content.
	CreateTruncate Mode = iota
	// OpenOrCreate loads an existing file or creates a new one.
	OpenOrCreate
	// ReadOnly loads an existing file for inspection. Mutations fail with
	// ErrReadOnly and Close leaves the file untouched.
	ReadOnly
)

func (m Mode) String() string {
	switch m {
	case OpenOrCreate:
		return "open-or-create"
	case ReadOnly:
		return "read-only"
	}
	return "create-truncate"
}

// DefaultChunkCacheSize is the number of chunks each array keeps in memory.
const DefaultChunkCacheSize = 16

// Option configures a Container.
type Option func(*options)

type options struct {
	log        logger.Logger
	init       func(*Container) error
	cacheSize  int
	syncOnExit bool
}

func defaultOptions() options {
	return options{
		log:        logger.Nop(),
		cacheSize:  DefaultChunkCacheSize,
		syncOnExit: true,
	}
}

// WithLogger sets the logger used for container diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithInit registers a hook run once when the file is newly created, before
// Open returns. It is not run when an existing file is loaded.
func WithInit(fn func(*Container) error) Option {
	return func(o *options) { o.init = fn }
}

// WithChunkCacheSize sets how many chunks each array keeps in memory.
func WithChunkCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.cacheSize = n
		}
	}
}

// WithoutSync skips fsync on Close. Useful in tests.
func WithoutSync() Option {
	return func(o *options) { o.syncOnExit = false }
}

// ArrayOption configures filters for a newly created array. Options are
// ignored when the array already exists.
type ArrayOption func(*arrayOptions)

type arrayOptions struct {
	shuffle    bool
	deflate    int // 0 = off
	zstd       int // 0 = off
	lz4        bool
	fletcher32 bool
}

// WithCompression enables deflate at level 1-9.
func WithCompression(level int) ArrayOption {
	return func(o *arrayOptions) {
		if level >= 1 && level <= 9 {
			o.deflate = level
		}
	}
}

// WithZstd enables Zstandard compression at the given level (1-22).
func WithZstd(level int) ArrayOption {
	return func(o *arrayOptions) {
		o.zstd = max(level, 1)
	}
}

// WithLZ4 enables LZ4 compression.
func WithLZ4() ArrayOption {
	return func(o *arrayOptions) { o.lz4 = true }
}

// WithShuffle enables the byte shuffle filter ahead of compression.
func WithShuffle() ArrayOption {
	return func(o *arrayOptions) { o.shuffle = true }
}

// WithFletcher32 appends a checksum to every chunk.
func WithFletcher32() ArrayOption {
	return func(o *arrayOptions) { o.fletcher32 = true }
}

// pipeline returns the filter pipeline message for the options, or nil.
// Order: shuffle, one compressor, fletcher32.
func (o arrayOptions) pipeline(elemSize uint32) *message.FilterPipeline {
	var fs []message.FilterInfo
	if o.shuffle {
		fs = append(fs, message.FilterInfo{ID: message.FilterShuffle, Flags: message.FilterOptional, ClientData: []uint32{elemSize}})
	}
	switch {
	case o.zstd > 0:
		fs = append(fs, message.FilterInfo{ID: message.FilterZstd, Name: "Zstandard compression: http://www.zstd.net", Flags: message.FilterOptional, ClientData: []uint32{uint32(o.zstd)}})
	case o.lz4:
		fs = append(fs, message.FilterInfo{ID: message.FilterLZ4, Name: "HDF5 lz4 filter; see http://www.hdfgroup.org/services/contributions.html", Flags: message.FilterOptional})
	case o.deflate > 0:
		fs = append(fs, message.FilterInfo{ID: message.FilterDeflate, Flags: message.FilterOptional, ClientData: []uint32{uint32(o.deflate)}})
	}
	if o.fletcher32 {
		fs = append(fs, message.FilterInfo{ID: message.FilterFletcher32})
	}
	if len(fs) == 0 {
		return nil
	}
	return &message.FilterPipeline{Filters: fs}
}
