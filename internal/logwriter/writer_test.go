package logwriter

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-msclog/internal/arbiter"
	"github.com/ehrlich-b/go-msclog/internal/logging"
)

type memFile struct {
	bytes.Buffer
	syncs    int
	writeErr error
}

func (m *memFile) Write(p []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.Buffer.Write(p)
}

func (m *memFile) Seek(int64, int) (int64, error) { return int64(m.Len()), nil }
func (m *memFile) Sync() error                    { m.syncs++; return nil }
func (m *memFile) Close() error                   { return nil }

type fakeAccess struct {
	file  *memFile
	err   error
	gen   uint64
	calls int
}

func (f *fakeAccess) LogAccess(fn func(arbiter.File) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(f.file)
}

func (f *fakeAccess) Generation() uint64 { return f.gen }

type fixedInterval uint8

func (i fixedInterval) Interval() uint8 { return uint8(i) }

var fixedTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newWriter(access *fakeAccess, interval uint8) *Writer {
	return New(access, fixedInterval(interval), Constant(21.5), &Options{
		Now:    func() time.Time { return fixedTime },
		Logger: logging.Nop(),
	})
}

func TestFormatRecord(t *testing.T) {
	assert.Equal(t, "2026-03-14T15:09:26Z,21.50\r\n", string(FormatRecord(fixedTime, 21.5)))
	assert.Equal(t, "2026-03-14T15:09:26Z,-4.25\r\n", string(FormatRecord(fixedTime, -4.25)))
}

func TestTickHonorsInterval(t *testing.T) {
	access := &fakeAccess{file: &memFile{}}
	w := newWriter(access, 3)

	for i := 0; i < 6; i++ {
		require.NoError(t, w.Tick())
	}
	assert.Equal(t, 2, access.calls)
	assert.Equal(t, 2, access.file.syncs, "every record is synced")
	assert.Equal(t, "2026-03-14T15:09:26Z,21.50\r\n2026-03-14T15:09:26Z,21.50\r\n", access.file.String())

	stats := w.Stats()
	assert.Equal(t, uint64(6), stats.Ticks)
	assert.Equal(t, uint64(2), stats.Records)
}

func TestZeroIntervalLogsEveryTick(t *testing.T) {
	access := &fakeAccess{file: &memFile{}}
	w := newWriter(access, 0)
	require.NoError(t, w.Tick())
	require.NoError(t, w.Tick())
	assert.Equal(t, 2, access.calls)
}

func TestBusyTicksAreSkippedNotFailed(t *testing.T) {
	access := &fakeAccess{file: &memFile{}, err: arbiter.ErrBusy}
	w := newWriter(access, 1)

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Tick())
	}
	access.err = arbiter.ErrNotGranted
	require.NoError(t, w.Tick())

	stats := w.Stats()
	assert.Equal(t, uint64(11), stats.Skipped)
	assert.Zero(t, stats.Failures)
	assert.False(t, stats.Suppressed)
}

func TestSuppressAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("medium write error")
	access := &fakeAccess{file: &memFile{writeErr: boom}, gen: 1}
	w := newWriter(access, 1)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, w.Tick(), boom)
	}
	assert.True(t, w.Stats().Suppressed)

	calls := access.calls
	assert.ErrorIs(t, w.Tick(), ErrSuppressed)
	assert.Equal(t, calls, access.calls, "suppressed writer must not touch storage")

	// A mode transition re-enables writes
	access.gen = 3
	access.file.writeErr = nil
	require.NoError(t, w.Tick())
	stats := w.Stats()
	assert.False(t, stats.Suppressed)
	assert.Equal(t, uint64(1), stats.Records)
	assert.Equal(t, uint64(3), stats.Failures)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	boom := errors.New("flaky")
	access := &fakeAccess{file: &memFile{}}
	w := newWriter(access, 1)

	for i := 0; i < 5; i++ {
		access.file.writeErr = boom
		assert.Error(t, w.Tick())
		access.file.writeErr = nil
		assert.NoError(t, w.Tick())
	}
	assert.False(t, w.Stats().Suppressed)
}

func TestHaltedIsReturned(t *testing.T) {
	access := &fakeAccess{err: arbiter.ErrHalted}
	w := newWriter(access, 1)
	assert.ErrorIs(t, w.Tick(), arbiter.ErrHalted)
}

func TestSamplerFailureCounts(t *testing.T) {
	access := &fakeAccess{file: &memFile{}}
	w := New(access, fixedInterval(1), SamplerFunc(func() (float64, error) {
		return 0, io.ErrUnexpectedEOF
	}), &Options{Logger: logging.Nop(), MaxConsecutiveFailures: 1})

	assert.ErrorIs(t, w.Tick(), io.ErrUnexpectedEOF)
	assert.Zero(t, access.calls)
	assert.True(t, w.Stats().Suppressed)
}

func TestThermalZone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	require.NoError(t, os.WriteFile(path, []byte("42125\n"), 0o644))

	c, err := ThermalZone{Path: path}.Sample()
	require.NoError(t, err)
	assert.InDelta(t, 42.125, c, 1e-9)

	require.NoError(t, os.WriteFile(path, []byte("hot"), 0o644))
	_, err = ThermalZone{Path: path}.Sample()
	assert.Error(t, err)
}
