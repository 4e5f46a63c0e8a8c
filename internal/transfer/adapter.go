// Package transfer moves fixed-size blocks between a block buffer and a
// packet-oriented USB bulk endpoint in small chunks.
package transfer

import (
	"fmt"

	"github.com/ehrlich-b/go-msclog/internal/constants"
)

// Endpoint is the currently selected bulk data endpoint of the USB stack.
type Endpoint interface {
	// ReadWriteAllowed reports whether the current bank still has data to
	// read (OUT) or room to write (IN).
	ReadWriteAllowed() bool

	// ClearOUT releases the current OUT bank back to the host.
	ClearOUT()

	// ClearIN hands the current IN bank to the host.
	ClearIN()

	// WaitUntilReady blocks until the endpoint is ready or the stream
	// timeout elapses, in which case it returns interfaces.ErrStall.
	WaitUntilReady() error

	// Read pops len(p) bytes from the current OUT bank.
	Read(p []byte)

	// Write pushes len(p) bytes into the current IN bank.
	Write(p []byte)
}

// Adapter moves one chunk per call between a buffer and an Endpoint.
type Adapter struct {
	ep    Endpoint
	chunk int
}

// NewAdapter creates an adapter. chunk must evenly divide the block size
// and the endpoint bank size; zero selects the default.
func NewAdapter(ep Endpoint, chunk int) (*Adapter, error) {
	if chunk == 0 {
		chunk = constants.DefaultChunkSize
	}
	if chunk < 0 || constants.BlockSize%chunk != 0 {
		return nil, fmt.Errorf("chunk size %d does not divide block size %d", chunk, constants.BlockSize)
	}
	return &Adapter{ep: ep, chunk: chunk}, nil
}

// ChunkSize returns the number of bytes moved per call.
func (a *Adapter) ChunkSize() int {
	return a.chunk
}

// Endpoint returns the underlying endpoint.
func (a *Adapter) Endpoint() Endpoint {
	return a.ep
}

// ReceiveChunk pulls exactly one chunk from the host into buf[off:].
// If the current OUT bank is exhausted it is released and the call waits
// for the next packet. It returns the chunk size, or 0 and the
// endpoint's stall error if the host stopped sending.
func (a *Adapter) ReceiveChunk(buf []byte, off int) (int, error) {
	if !a.ep.ReadWriteAllowed() {
		a.ep.ClearOUT()
		if err := a.ep.WaitUntilReady(); err != nil {
			return 0, err
		}
	}
	a.ep.Read(buf[off : off+a.chunk])
	return a.chunk, nil
}

// SendChunk pushes exactly one chunk from buf[off:] to the host.
// If the current IN bank is full it is handed to the host first.
func (a *Adapter) SendChunk(buf []byte, off int) (int, error) {
	if !a.ep.ReadWriteAllowed() {
		a.ep.ClearIN()
		if err := a.ep.WaitUntilReady(); err != nil {
			return 0, err
		}
	}
	a.ep.Write(buf[off : off+a.chunk])
	return a.chunk, nil
}

// ReceiveBlock fills block from the stream. The chunk offset always starts
// at zero so that every block is filled identically.
func (a *Adapter) ReceiveBlock(block []byte) error {
	for off := 0; off < len(block); {
		n, err := a.ReceiveChunk(block, off)
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

// SendBlock drains block to the stream, chunk offset starting at zero.
func (a *Adapter) SendBlock(block []byte) error {
	for off := 0; off < len(block); {
		n, err := a.SendChunk(block, off)
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}
