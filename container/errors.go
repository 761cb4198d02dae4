package container

import (
	"errors"
	"fmt"
)

var (
	ErrIO                 = errors.New("container I/O failure")
	ErrAlreadyOpen        = errors.New("container already open in this process")
	ErrClosed             = errors.New("container is closed")
	ErrReadOnly           = errors.New("container is read-only")
	ErrNotFound           = errors.New("object not found")
	ErrNotGroup           = errors.New("object is not a group")
	ErrNotArray           = errors.New("object is not an array")
	ErrExists             = errors.New("object already exists")
	ErrAttributeImmutable = errors.New("attribute is write-once")
	ErrUnsupportedRank    = errors.New("unsupported rank: arrays have 1 to 3 dimensions")
	ErrTypeMismatch       = errors.New("element type mismatch")
	ErrInvalidShape       = errors.New("invalid shape")
	ErrInvalidPath        = errors.New("invalid path")
	ErrUnsupported        = errors.New("unsupported feature")
)

// IOError reports a failure to create, open, read or write the underlying file.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrIO) match any IOError.
func (e *IOError) Is(target error) bool { return target == ErrIO }

// DatasetWriteError reports a failed write into an array region.
type DatasetWriteError struct {
	Path   string
	Offset []uint64
	Size   []uint64
	Reason string
	Err    error
}

func (e *DatasetWriteError) Error() string {
	msg := fmt.Sprintf("write %s at %v size %v: %s", e.Path, e.Offset, e.Size, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DatasetWriteError) Unwrap() error { return e.Err }
