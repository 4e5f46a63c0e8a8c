// Package settings holds the logging interval, persisted in a single
// non-volatile byte and exchanged with the host as a HID feature report.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/go-msclog/internal/logging"
)

// ErrEmpty is returned by an NVStore that holds no value yet.
var ErrEmpty = errors.New("non-volatile store is empty")

// NVStore persists the logging interval byte.
type NVStore interface {
	Load() (uint8, error)
	Store(v uint8) error
}

// FileStore emulates an EEPROM byte with a one-byte file. Writes are
// skipped when the stored value already matches, like an EEPROM
// update-byte primitive.
type FileStore struct {
	Path   string
	writes int
}

// NewFileStore creates a store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load implements NVStore
func (s *FileStore) Load() (uint8, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(b) == 0) {
		return 0, ErrEmpty
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return b[0], nil
}

// Store implements NVStore
func (s *FileStore) Store(v uint8) error {
	if cur, err := s.Load(); err == nil && cur == v {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(s.Path, []byte{v}, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	s.writes++
	return nil
}

// Writes returns how many times the backing byte was rewritten.
func (s *FileStore) Writes() int {
	return s.writes
}

// MemStore is an in-memory NVStore.
type MemStore struct {
	v   uint8
	set bool
}

// Load implements NVStore
func (m *MemStore) Load() (uint8, error) {
	if !m.set {
		return 0, ErrEmpty
	}
	return m.v, nil
}

// Store implements NVStore
func (m *MemStore) Store(v uint8) error {
	m.v, m.set = v, true
	return nil
}

// Settings is the runtime copy of the logging interval.
type Settings struct {
	mu       sync.Mutex // serializes writers
	store    NVStore
	interval atomic.Uint32
	logger   *logging.Logger
}

// Load reads the interval from store, falling back to def when the store
// is empty or unreadable (an erased EEPROM byte reads 0xFF).
func Load(store NVStore, def uint8, logger *logging.Logger) *Settings {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Settings{store: store, logger: logger.WithComponent("settings")}

	v, err := store.Load()
	switch {
	case err == nil && v != 0xFF:
		s.interval.Store(uint32(v))
	case err != nil && !errors.Is(err, ErrEmpty):
		s.logger.Warn("loading interval failed, using default", "error", err, "default", def)
		s.interval.Store(uint32(def))
	default:
		s.interval.Store(uint32(def))
	}
	return s
}

// Interval returns the logging interval in ticks.
func (s *Settings) Interval() uint8 {
	return uint8(s.interval.Load())
}

// SetInterval persists v if it differs from the runtime copy, then
// updates the runtime copy. A failed write leaves both unchanged so that
// the same report is retried.
func (s *Settings) SetInterval(v uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := uint8(s.interval.Load())
	if old == v {
		return nil
	}
	if err := s.store.Store(v); err != nil {
		return fmt.Errorf("persist interval %d: %w", v, err)
	}
	s.interval.Store(uint32(v))
	s.logger.Info("logging interval changed", "from", old, "to", v)
	return nil
}
