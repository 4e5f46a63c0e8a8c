package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-msclog/internal/logging"
)

func TestLoadDefaultsWhenEmpty(t *testing.T) {
	s := Load(&MemStore{}, 2, logging.Nop())
	assert.Equal(t, uint8(2), s.Interval())
}

func TestLoadTreatsErasedByteAsEmpty(t *testing.T) {
	store := &MemStore{}
	require.NoError(t, store.Store(0xFF))
	s := Load(store, 4, logging.Nop())
	assert.Equal(t, uint8(4), s.Interval())
}

func TestFileStoreUpdateOnlyIfDifferent(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nv", "interval"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, store.Store(5))
	require.NoError(t, store.Store(5))
	assert.Equal(t, 1, store.Writes())

	v, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint8(5), v)

	require.NoError(t, store.Store(6))
	assert.Equal(t, 2, store.Writes())
}

// flakyStore fails writes while failing is set
type flakyStore struct {
	MemStore
	failing bool
}

func (f *flakyStore) Store(v uint8) error {
	if f.failing {
		return errors.New("eeprom busy")
	}
	return f.MemStore.Store(v)
}

func TestFailedPersistIsRetried(t *testing.T) {
	store := &flakyStore{failing: true}
	s := Load(store, 2, logging.Nop())

	err := s.ProcessReport(Report{LoggingInterval: 20})
	require.Error(t, err)
	assert.Equal(t, uint8(2), s.Interval(), "runtime copy must not run ahead of the stored byte")

	store.failing = false
	require.NoError(t, s.ProcessReport(Report{LoggingInterval: 20}))
	assert.Equal(t, uint8(20), s.Interval())

	v, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint8(20), v)
}

func TestReportRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "interval"))
	s := Load(store, 2, logging.Nop())

	assert.Equal(t, Report{LoggingInterval: 2}, s.CreateReport())

	require.NoError(t, s.ProcessReport(Report{LoggingInterval: 10}))
	assert.Equal(t, uint8(10), s.Interval())
	raw, err := os.ReadFile(store.Path)
	require.NoError(t, err)
	assert.Equal(t, []byte{10}, raw)

	// Same value: nothing persisted
	require.NoError(t, s.ProcessReport(Report{LoggingInterval: 10}))
	assert.Equal(t, 1, store.Writes())

	reloaded := Load(store, 2, logging.Nop())
	assert.Equal(t, uint8(10), reloaded.Interval())
}

func TestReportBinary(t *testing.T) {
	b, err := Report{LoggingInterval: 7}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, b)

	var r Report
	require.NoError(t, r.UnmarshalBinary([]byte{9, 0, 0}))
	assert.Equal(t, uint8(9), r.LoggingInterval)
	assert.Error(t, r.UnmarshalBinary(nil))
}
