package msclog

import (
	"context"
	"sync"
)

// MockMedium provides a mock implementation of Medium for testing.
// It implements all optional interfaces, can inject failures, and tracks
// method calls for verification.
type MockMedium struct {
	data    []byte
	size    int64
	ready   bool
	closed  bool
	flushed bool
	stats   map[string]interface{}

	initErr  error
	checkErr error
	writeErr error

	// Method call tracking
	mu         sync.RWMutex
	readCalls  int
	writeCalls int
	flushCalls int
	initCalls  int
}

// NewMockMedium creates a new mock medium with the specified size.
func NewMockMedium(size int64) *MockMedium {
	return &MockMedium{
		data:  make([]byte, size),
		size:  size,
		ready: true,
		stats: make(map[string]interface{}),
	}
}

// ReadAt implements the Medium interface
func (m *MockMedium) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++

	if m.closed {
		return 0, ErrNotReady
	}
	if off < 0 || off+int64(len(p)) > m.size {
		return 0, NewError("READ", ErrCodeOutOfRange, "read beyond end of medium")
	}

	n := copy(p, m.data[off:off+int64(len(p))])
	return n, nil
}

// WriteAt implements the Medium interface
func (m *MockMedium) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++

	if m.closed {
		return 0, ErrNotReady
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	if off < 0 || off+int64(len(p)) > m.size {
		return 0, NewError("WRITE", ErrCodeOutOfRange, "write beyond end of medium")
	}

	n := copy(m.data[off:off+int64(len(p))], p)
	return n, nil
}

// Size implements the Medium interface
func (m *MockMedium) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready || m.closed {
		return 0
	}
	return m.size
}

// Close implements the Medium interface
func (m *MockMedium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Flush implements the Medium interface
func (m *MockMedium) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.flushCalls++
	m.flushed = true
	return nil
}

// Init implements the InitMedium interface
func (m *MockMedium) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initCalls++
	if m.initErr != nil {
		return m.initErr
	}
	m.ready = true
	return nil
}

// Check implements the CheckMedium interface
func (m *MockMedium) Check() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkErr
}

// Stats implements the StatMedium interface
func (m *MockMedium) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]interface{})
	for k, v := range m.stats {
		stats[k] = v
	}

	stats["read_calls"] = m.readCalls
	stats["write_calls"] = m.writeCalls
	stats["flush_calls"] = m.flushCalls
	stats["init_calls"] = m.initCalls

	return stats
}

// Testing utility methods

// SetReady controls whether Size reports the capacity
func (m *MockMedium) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

// FailInit makes the next Init calls return err
func (m *MockMedium) FailInit(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initErr = err
}

// FailCheck makes Check return err
func (m *MockMedium) FailCheck(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkErr = err
}

// FailWrites makes every WriteAt return err; nil restores normal writes
func (m *MockMedium) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Bytes returns a copy of the region [off, off+n)
func (m *MockMedium) Bytes(off, n int64) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]byte, n)
	copy(out, m.data[off:off+n])
	return out
}

// IsClosed returns true if the medium has been closed
func (m *MockMedium) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// IsFlushed returns true if Flush has been called
func (m *MockMedium) IsFlushed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flushed
}

// CallCounts returns the number of times each method has been called
func (m *MockMedium) CallCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"read":  m.readCalls,
		"write": m.writeCalls,
		"flush": m.flushCalls,
		"init":  m.initCalls,
	}
}

// Reset resets all call counters and state flags
func (m *MockMedium) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls = 0
	m.writeCalls = 0
	m.flushCalls = 0
	m.initCalls = 0
	m.flushed = false
}

// SetCustomStats allows setting custom statistics for testing
func (m *MockMedium) SetCustomStats(stats map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats = make(map[string]interface{})
	for k, v := range stats {
		m.stats[k] = v
	}
}

// Compile-time interface checks
var (
	_ Medium      = (*MockMedium)(nil)
	_ InitMedium  = (*MockMedium)(nil)
	_ CheckMedium = (*MockMedium)(nil)
	_ StatMedium  = (*MockMedium)(nil)
)
