// Package fatfs mounts, formats and opens files on a FAT32 volume that
// spans the whole medium.
package fatfs

import (
	"bytes"
	"fmt"
	"path"

	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/fat32"

	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/interfaces"
	"github.com/ehrlich-b/go-msclog/internal/logging"
)

// Boot sector offsets
const (
	sigOffset      = 510
	fat32TypeOff   = 82
	fat16TypeOff   = 54
	fatTypePrefix  = "FAT"
	bootSignature0 = 0x55
	bootSignature1 = 0xAA
)

// FS is a FAT filesystem on a medium.
type FS struct {
	medium interfaces.Medium
	label  string
	logger *logging.Logger

	fs *fat32.FileSystem
}

// New creates an unmounted filesystem. label is used by MakeFilesystem.
func New(medium interfaces.Medium, label string, logger *logging.Logger) *FS {
	if label == "" {
		label = constants.DefaultVolumeLabel
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FS{medium: medium, label: label, logger: logger.WithComponent("fatfs")}
}

// HasFilesystem reports whether the first sector carries a FAT boot record.
func HasFilesystem(sector []byte) bool {
	if len(sector) < constants.BlockSize {
		return false
	}
	if sector[sigOffset] != bootSignature0 || sector[sigOffset+1] != bootSignature1 {
		return false
	}
	return bytes.HasPrefix(sector[fat32TypeOff:], []byte(fatTypePrefix)) ||
		bytes.HasPrefix(sector[fat16TypeOff:], []byte(fatTypePrefix))
}

// Mount reads the volume. It returns interfaces.ErrNoFilesystem if the
// medium has never been formatted.
func (f *FS) Mount() error {
	size := f.medium.Size()
	if size == 0 {
		return interfaces.ErrNotReady
	}

	var sector [constants.BlockSize]byte
	if _, err := f.medium.ReadAt(sector[:], 0); err != nil {
		return fmt.Errorf("read boot sector: %w", err)
	}
	if !HasFilesystem(sector[:]) {
		return interfaces.ErrNoFilesystem
	}

	fs, err := fat32.Read(newDevice(f.medium), size, 0, constants.BlockSize)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	f.fs = fs
	f.logger.Debug("mounted", "label", fs.Label(), "size", size)
	return nil
}

// MakeFilesystem formats the whole medium as FAT32.
func (f *FS) MakeFilesystem() error {
	size := f.medium.Size()
	if size == 0 {
		return interfaces.ErrNotReady
	}
	fs, err := fat32.Create(newDevice(f.medium), size, 0, constants.BlockSize, f.label)
	if err != nil {
		return fmt.Errorf("format: %w", err)
	}
	if err := f.medium.Flush(); err != nil {
		return fmt.Errorf("flush after format: %w", err)
	}
	f.fs = fs
	f.logger.Info("formatted medium", "label", f.label, "size", size)
	return nil
}

// Open opens name in the root directory.
func (f *FS) Open(name string, flag int) (interfaces.LogFile, error) {
	if f.fs == nil {
		return nil, fmt.Errorf("open %s: filesystem not mounted", name)
	}
	fl, err := f.fs.OpenFile(path.Join("/", name), flag)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return &file{File: fl, medium: f.medium}, nil
}

// ReadFile returns the contents of name, for inspection and tests.
func (f *FS) ReadFile(name string) ([]byte, error) {
	if f.fs == nil {
		return nil, fmt.Errorf("read %s: filesystem not mounted", name)
	}
	fl, err := f.fs.OpenFile(path.Join("/", name), 0)
	if err != nil {
		return nil, err
	}
	defer fl.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(fl); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// file writes through the FAT layer; directory entries are updated on each
// write, so a sync only has to flush the medium.
type file struct {
	filesystem.File
	medium interfaces.Medium
}

func (f *file) Sync() error {
	return f.medium.Flush()
}

func (f *file) Close() error {
	err := f.File.Close()
	if ferr := f.medium.Flush(); err == nil {
		err = ferr
	}
	return err
}
