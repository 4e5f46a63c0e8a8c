package interfaces

import (
	"context"
	"errors"
	"io"
)

// Medium defines the interface that all storage media must implement.
// This interface is intentionally similar to io.ReaderAt and io.WriterAt
// so that filesystem implementations can sit directly on top of it.
type Medium interface {
	// ReadAt reads len(p) bytes into p starting at byte offset off.
	// Block-level callers always pass whole, aligned 512-byte sectors.
	//
	// Implementations must not retain p.
	ReadAt(p []byte, off int64) (n int, err error)

	// WriteAt writes len(p) bytes from p at byte offset off.
	// WriteAt must return a non-nil error if it returns n < len(p).
	//
	// Implementations must not retain p.
	WriteAt(p []byte, off int64) (n int, err error)

	// Size returns the size of the medium in bytes.
	// A medium that has not finished initializing reports 0.
	Size() int64

	// Flush forces cached writes to stable storage.
	Flush() error

	// Close releases the medium. No other method may be called afterwards.
	Close() error
}

// InitMedium is an optional interface for media that need a power-on
// sequence before the first access.
type InitMedium interface {
	Medium

	// Init powers the medium, waits for it to stabilize and performs the
	// low-level initialization.
	Init(ctx context.Context) error
}

// CheckMedium is an optional interface for media that can run a self-test.
type CheckMedium interface {
	Medium

	// Check returns an error if the medium is not operational.
	Check() error
}

// StatMedium is an optional interface that provides medium statistics.
type StatMedium interface {
	Medium

	// Stats returns medium-specific statistics.
	Stats() map[string]interface{}
}

// Collaborator-level failures shared across packages.
var (
	// ErrStall is returned when an endpoint wait times out because the host
	// stopped responding.
	ErrStall = errors.New("endpoint wait timeout")

	// ErrNotReady is returned when the medium reports zero capacity.
	ErrNotReady = errors.New("medium not ready")

	// ErrNoFilesystem is returned by a mount when the medium carries no
	// recognizable filesystem.
	ErrNoFilesystem = errors.New("no filesystem on medium")
)

// LogFile is an open file on the medium's filesystem.
type LogFile interface {
	io.Writer
	io.Seeker

	// Sync flushes the file's data and metadata to the medium.
	Sync() error
	Close() error
}
