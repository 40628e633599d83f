// Package file is the storage side of the client: uploads read their body
// from a [File] and downloads stream into one.
//
// # Openers
//
// The client never touches a file system directly. It asks an [Opener]
// for a [File] in the [Mode] it needs:
//
//	open, err := file.OS(logger, file.WithProgress())
//	req := client.Request{
//		Method: request.MethodGet,
//		Path:   "/o/firmware.bin?alt=media",
//		Download: &file.Config{Name: "/tmp/firmware.bin", Open: open},
//	}
//
// [OS] writes downloads to a temporary file next to the destination and
// renames it into place on a successful [File.Close]; [Aborter.Abort]
// discards it instead.
package file

import (
	"errors"
	"fmt"
	"io"
)

// Mode selects how an [Opener] opens a file.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeAppend
	ModeRemove
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeAppend:
		return "append"
	case ModeRemove:
		return "remove"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// File is an open file handle.
type File interface {
	io.Reader
	io.Writer
	io.Closer
	// Size returns the total size of a file opened for reading.
	Size() int64
}

// Aborter is implemented by files that can discard partially written
// content instead of committing it on Close.
type Aborter interface {
	Abort() error
}

// Opener opens name in mode. ModeRemove deletes name and returns a nil File.
type Opener func(name string, mode Mode) (File, error)

// Config names a file and the opener that serves it.
type Config struct {
	Name string `json:"name" validate:"required"`
	Open Opener `json:"-" validate:"required"`
}

var (
	ErrSizeMismatch     = errors.New("size mismatch")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrClosed           = errors.New("file already closed")
)

type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}
