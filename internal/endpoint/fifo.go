// Package endpoint provides an in-process bulk endpoint pair with USB-like
// packet banking. The device side implements transfer.Endpoint; the host
// side exchanges whole packets through channels.
package endpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/interfaces"
	"github.com/ehrlich-b/go-msclog/internal/transfer"
)

// Direction selects which half of the pair the device is driving.
type Direction int

const (
	DirOut Direction = iota // host to device
	DirIn                   // device to host
)

func (d Direction) String() string {
	if d == DirIn {
		return "IN"
	}
	return "OUT"
}

// Config controls the endpoint geometry.
type Config struct {
	BankSize int           // bytes per packet (default 64)
	Banks    int           // packets buffered per direction (default 1)
	Timeout  time.Duration // ready wait bound (default 100ms)
}

// FIFO is a bulk IN/OUT endpoint pair.
type FIFO struct {
	bank    int
	timeout time.Duration

	out chan []byte // host -> device packets
	in  chan []byte // device -> host packets

	mu      sync.Mutex
	dir     Direction
	outCur  []byte // unread remainder of the current OUT bank
	inCur   []byte // bytes written into the current IN bank
	stalled bool   // last IN hand-off timed out
}

// New creates an endpoint pair.
func New(config Config) *FIFO {
	if config.BankSize <= 0 {
		config.BankSize = constants.DefaultBankSize
	}
	if config.Banks <= 0 {
		config.Banks = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = constants.DefaultStreamTimeout
	}
	return &FIFO{
		bank:    config.BankSize,
		timeout: config.Timeout,
		out:     make(chan []byte, config.Banks),
		in:      make(chan []byte, config.Banks),
		inCur:   make([]byte, 0, config.BankSize),
	}
}

// BankSize returns the packet size.
func (f *FIFO) BankSize() int {
	return f.bank
}

// Select chooses the direction subsequent device-side calls apply to.
func (f *FIFO) Select(dir Direction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dir = dir
	f.stalled = false
}

// ReadWriteAllowed implements transfer.Endpoint
func (f *FIFO) ReadWriteAllowed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dir == DirIn {
		return len(f.inCur) < f.bank
	}
	return len(f.outCur) > 0
}

// ClearOUT implements transfer.Endpoint
func (f *FIFO) ClearOUT() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outCur = nil
}

// ClearIN implements transfer.Endpoint. The filled bank is handed to the
// host; if the host does not take it within the timeout the endpoint is
// marked stalled and the next WaitUntilReady reports it.
func (f *FIFO) ClearIN() {
	f.mu.Lock()
	if len(f.inCur) == 0 {
		f.mu.Unlock()
		return
	}
	pkt := make([]byte, len(f.inCur))
	copy(pkt, f.inCur)
	f.inCur = f.inCur[:0]
	f.mu.Unlock()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	select {
	case f.in <- pkt:
	case <-timer.C:
		f.mu.Lock()
		f.stalled = true
		f.mu.Unlock()
	}
}

// WaitUntilReady implements transfer.Endpoint
func (f *FIFO) WaitUntilReady() error {
	f.mu.Lock()
	dir := f.dir
	if dir == DirIn {
		stalled := f.stalled
		f.stalled = false
		f.mu.Unlock()
		if stalled {
			return interfaces.ErrStall
		}
		return nil
	}
	if len(f.outCur) > 0 {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()
	select {
	case pkt := <-f.out:
		f.mu.Lock()
		f.outCur = pkt
		f.mu.Unlock()
		return nil
	case <-timer.C:
		return interfaces.ErrStall
	}
}

// Read implements transfer.Endpoint
func (f *FIFO) Read(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.outCur)
	f.outCur = f.outCur[n:]
	// Short packet: the remainder of p reads as zero
	clear(p[n:])
}

// Write implements transfer.Endpoint
func (f *FIFO) Write(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.bank - len(f.inCur)
	if len(p) > room {
		p = p[:room]
	}
	f.inCur = append(f.inCur, p...)
}

// HostSend splits data into packets and queues them for the device.
func (f *FIFO) HostSend(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		n := f.bank
		if n > len(data) {
			n = len(data)
		}
		pkt := make([]byte, n)
		copy(pkt, data[:n])
		select {
		case f.out <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
		data = data[n:]
	}
	return nil
}

// HostReceive collects n bytes of IN packets sent by the device.
func (f *FIFO) HostReceive(ctx context.Context, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		select {
		case pkt := <-f.in:
			buf = append(buf, pkt...)
		case <-ctx.Done():
			return buf, fmt.Errorf("received %d of %d bytes: %w", len(buf), n, ctx.Err())
		}
	}
	return buf[:n], nil
}

// Reset drops any buffered packets in both directions.
func (f *FIFO) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outCur = nil
	f.inCur = f.inCur[:0]
	f.stalled = false
	for {
		select {
		case <-f.out:
		case <-f.in:
		default:
			return
		}
	}
}

var _ transfer.Endpoint = (*FIFO)(nil)
