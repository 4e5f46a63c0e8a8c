// Package backend provides standard storage media for the logger
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/ehrlich-b/go-msclog/internal/interfaces"
)

// Memory provides a RAM-based medium. It can simulate a card that has not
// finished initializing, in which case Size reports 0.
type Memory struct {
	data    []byte
	size    int64
	ready   bool
	flushes int
	mu      sync.RWMutex
}

// NewMemory creates a new memory medium of the specified size
func NewMemory(size int64) *Memory {
	return &Memory{
		data:  make([]byte, size),
		size:  size,
		ready: true,
	}
}

// SetReady toggles whether the medium reports its capacity
func (m *Memory) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

// Init implements the InitMedium interface
func (m *Memory) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return fmt.Errorf("memory medium closed")
	}
	m.ready = true
	return nil
}

// ReadAt implements the Medium interface
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 || off >= m.size {
		return 0, fmt.Errorf("read at %d beyond end of medium", off)
	}

	available := m.size - off
	if int64(len(p)) > available {
		n := copy(p, m.data[off:])
		return n, fmt.Errorf("short read at %d: %d of %d bytes", off, n, len(p))
	}

	n := copy(p, m.data[off:off+int64(len(p))])
	return n, nil
}

// WriteAt implements the Medium interface
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off >= m.size {
		return 0, fmt.Errorf("write at %d beyond end of medium", off)
	}

	available := m.size - off
	if int64(len(p)) > available {
		n := copy(m.data[off:], p)
		return n, fmt.Errorf("short write at %d: %d of %d bytes", off, n, len(p))
	}

	n := copy(m.data[off:off+int64(len(p))], p)
	return n, nil
}

// Size implements the Medium interface
func (m *Memory) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return 0
	}
	return m.size
}

// Flush implements the Medium interface
func (m *Memory) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Close implements the Medium interface
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil
	m.size = 0
	return nil
}

// Check implements the CheckMedium interface
func (m *Memory) Check() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.data == nil {
		return fmt.Errorf("memory medium closed")
	}
	return nil
}

// Bytes returns the medium contents for inspection
func (m *Memory) Bytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// Stats implements the StatMedium interface
func (m *Memory) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"type":    "memory",
		"size":    m.size,
		"ready":   m.ready,
		"flushes": m.flushes,
	}
}

// Compile-time interface checks
var (
	_ interfaces.Medium      = (*Memory)(nil)
	_ interfaces.InitMedium  = (*Memory)(nil)
	_ interfaces.CheckMedium = (*Memory)(nil)
	_ interfaces.StatMedium  = (*Memory)(nil)
)
