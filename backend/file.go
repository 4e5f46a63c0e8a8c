package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/interfaces"
)

// File is a medium backed by a disk image file. The image is locked
// exclusively for as long as the medium is open so that no other process
// can write to it behind the arbiter's back.
type File struct {
	path         string
	powerOnDelay time.Duration

	mu   sync.RWMutex
	file *os.File
	size int64
}

// FileOptions configures a File medium
type FileOptions struct {
	// PowerOnDelay is waited in Init before the image is opened
	PowerOnDelay time.Duration
}

// NewFile creates an image-backed medium. The image is not opened until Init.
func NewFile(path string, opts *FileOptions) *File {
	if opts == nil {
		opts = &FileOptions{PowerOnDelay: constants.DefaultPowerOnDelay}
	}
	return &File{path: path, powerOnDelay: opts.PowerOnDelay}
}

// CreateImage creates (or truncates) a zero-filled image of the given size.
// progress, if non-nil, receives the written bytes so that callers can
// render a progress bar.
func CreateImage(path string, size int64, progress func(io.Writer) io.Writer) error {
	if size <= 0 || size%constants.BlockSize != 0 {
		return fmt.Errorf("image size %d is not a positive multiple of %d", size, constants.BlockSize)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if progress != nil {
		w = progress(f)
	}

	chunk := make([]byte, 1<<20)
	for remaining := size; remaining > 0; {
		n := int64(len(chunk))
		if n > remaining {
			n = remaining
		}
		if _, err := w.Write(chunk[:n]); err != nil {
			return fmt.Errorf("fill image: %w", err)
		}
		remaining -= n
	}
	return f.Sync()
}

// Path returns the image path
func (f *File) Path() string {
	return f.path
}

// Init implements the InitMedium interface
func (f *File) Init(ctx context.Context) error {
	if f.powerOnDelay > 0 {
		timer := time.NewTimer(f.powerOnDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file != nil {
		return nil
	}

	file, err := os.OpenFile(f.path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open image %s: %w", f.path, err)
	}
	if err := lockFile(file); err != nil {
		file.Close()
		return fmt.Errorf("lock image %s: %w", f.path, err)
	}
	stat, err := file.Stat()
	if err != nil {
		unlockFile(file)
		file.Close()
		return fmt.Errorf("stat image %s: %w", f.path, err)
	}

	f.file = file
	f.size = stat.Size() - stat.Size()%constants.BlockSize
	return nil
}

// ReadAt implements the Medium interface
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.file == nil {
		return 0, interfaces.ErrNotReady
	}
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, fmt.Errorf("read %d bytes at %d beyond end of medium", len(p), off)
	}
	return f.file.ReadAt(p, off)
}

// WriteAt implements the Medium interface
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.file == nil {
		return 0, interfaces.ErrNotReady
	}
	if off < 0 || off+int64(len(p)) > f.size {
		return 0, fmt.Errorf("write %d bytes at %d beyond end of medium", len(p), off)
	}
	return f.file.WriteAt(p, off)
}

// Size implements the Medium interface
func (f *File) Size() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.file == nil {
		return 0
	}
	return f.size
}

// Flush implements the Medium interface
func (f *File) Flush() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.file == nil {
		return nil
	}
	return f.file.Sync()
}

// Close implements the Medium interface
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	unlockFile(f.file)
	err := f.file.Close()
	f.file = nil
	f.size = 0
	return err
}

// Check implements the CheckMedium interface
func (f *File) Check() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.file == nil {
		return interfaces.ErrNotReady
	}
	var sector [constants.BlockSize]byte
	if _, err := f.file.ReadAt(sector[:], 0); err != nil {
		return fmt.Errorf("read first sector: %w", err)
	}
	return nil
}

// Stats implements the StatMedium interface
func (f *File) Stats() map[string]interface{} {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return map[string]interface{}{
		"type": "file",
		"path": f.path,
		"size": f.size,
		"open": f.file != nil,
	}
}

var (
	_ interfaces.Medium      = (*File)(nil)
	_ interfaces.InitMedium  = (*File)(nil)
	_ interfaces.CheckMedium = (*File)(nil)
	_ interfaces.StatMedium  = (*File)(nil)
)
