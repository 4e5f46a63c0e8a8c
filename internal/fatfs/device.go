package fatfs

import (
	"errors"
	"io"

	"github.com/ehrlich-b/go-msclog/internal/interfaces"
)

// device presents a medium as the seekable file the FAT driver expects.
// Closing it does not close the medium.
type device struct {
	m   interfaces.Medium
	pos int64
}

func newDevice(m interfaces.Medium) *device {
	return &device{m: m}
}

func (d *device) ReadAt(p []byte, off int64) (int, error) {
	return d.m.ReadAt(p, off)
}

func (d *device) WriteAt(p []byte, off int64) (int, error) {
	return d.m.WriteAt(p, off)
}

func (d *device) Read(p []byte) (int, error) {
	if d.pos >= d.m.Size() {
		return 0, io.EOF
	}
	n, err := d.m.ReadAt(p, d.pos)
	d.pos += int64(n)
	return n, err
}

func (d *device) Write(p []byte) (int, error) {
	n, err := d.m.WriteAt(p, d.pos)
	d.pos += int64(n)
	return n, err
}

func (d *device) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = d.pos + offset
	case io.SeekEnd:
		abs = d.m.Size() + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	d.pos = abs
	return abs, nil
}

func (d *device) Close() error {
	return nil
}
