package arf

import (
	"errors"

	"github.com/robert-malhotra/go-arf/container"
	"github.com/robert-malhotra/go-arf/logger"
)

// Layout constants.
const (
	Version   = "2.1"
	Extension = ".arf"

	ContinuousChunk = 2048
	EventChunk      = 8
	SpikeChunk      = 8

	// MaxStringSize is the width of the Messages text field, terminator
	// included.
	MaxStringSize = 256
	// WaveformCapacity is the number of int16 slots in every spike record.
	WaveformCapacity = 512
)

var (
	ErrUnknownEventType = errors.New("arf: unknown event type")
	ErrIndexOutOfRange  = errors.New("arf: index out of range")
	ErrCapacityExceeded = errors.New("arf: capacity exceeded")
	ErrInvalidPayload   = errors.New("arf: invalid payload")
	ErrAlreadyOpen      = errors.New("arf: file already open")
	ErrNotOpen          = errors.New("arf: file not open")
)

// Option configures the files of one kind.
type Option func(*options)

type options struct {
	log       logger.Logger
	container []container.Option
	array     []container.ArrayOption
}

func newOptions(opts []Option) options {
	o := options{log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger for the files and their containers.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithContainerOptions passes options to every container opened.
func WithContainerOptions(opts ...container.Option) Option {
	return func(o *options) { o.container = append(o.container, opts...) }
}

// WithArrayOptions passes options, such as compression, to every dataset
// created.
func WithArrayOptions(opts ...container.ArrayOption) Option {
	return func(o *options) { o.array = append(o.array, opts...) }
}

// open opens or creates the container for kind at path. New files get the
// kind's structure.
func (o options) open(kind Kind, path string) (*container.Container, error) {
	opts := make([]container.Option, 0, len(o.container)+2)
	opts = append(opts, container.WithLogger(o.log))
	opts = append(opts, o.container...)
	opts = append(opts, container.WithInit(kind.initStructure))
	c, err := container.Open(path, container.OpenOrCreate, opts...)
	if err != nil {
		return nil, err
	}
	o.log.Debug("arf file opened", "kind", kind.String(), "path", path)
	return c, nil
}

// setOnce sets a write-once string attribute, keeping a value already
// present from an earlier session.
func setOnce(c *container.Container, path, name, value string) error {
	err := c.SetStringAttribute(path, name, value)
	if errors.Is(err, container.ErrAttributeImmutable) {
		return nil
	}
	return err
}

// closeAfter closes c after a failed setup step and returns the setup error
// joined with any close error.
func closeAfter(c *container.Container, err error) error {
	return errors.Join(err, c.Close())
}
