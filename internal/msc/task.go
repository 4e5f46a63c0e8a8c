// Package msc serves decoded mass-storage READ(10)/WRITE(10) commands from
// the host against the block store.
package msc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ehrlich-b/go-msclog/internal/arbiter"
	"github.com/ehrlich-b/go-msclog/internal/blockstore"
	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/endpoint"
	"github.com/ehrlich-b/go-msclog/internal/logging"
)

// Op is a block command opcode.
type Op int

const (
	OpRead Op = iota
	OpWrite
)

func (o Op) String() string {
	if o == OpWrite {
		return "write"
	}
	return "read"
}

// Command is one decoded block command.
type Command struct {
	Op     Op
	LBA    uint32
	Blocks uint16
}

// Result reports how a command finished.
type Result struct {
	Command
	Done int
	Err  error
}

// Capacity is the READ CAPACITY answer.
type Capacity struct {
	Blocks    uint32
	BlockSize uint32
}

// Gate grants the host exclusive storage access.
type Gate interface {
	HostAccess(fn func() error) error
}

// Port is the device side of the bulk endpoint pair.
type Port interface {
	Select(dir endpoint.Direction)
	Reset()
}

type request struct {
	cmd  Command
	done chan Result
}

// Task is the mass-storage interface state: a command queue, the
// host reset flag, and the block store behind the arbiter.
type Task struct {
	gate   Gate
	store  *blockstore.Store
	port   Port
	logger *logging.Logger

	queue chan request
	reset atomic.Bool
}

// New creates a task with room for depth queued commands.
func New(gate Gate, store *blockstore.Store, port Port, depth int, logger *logging.Logger) *Task {
	if depth <= 0 {
		depth = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Task{
		gate:   gate,
		store:  store,
		port:   port,
		logger: logger.WithComponent("msc"),
		queue:  make(chan request, depth),
	}
}

// Submit queues a command. The returned channel receives exactly one
// Result once the command has been served or dropped.
func (t *Task) Submit(ctx context.Context, cmd Command) (<-chan Result, error) {
	req := request{cmd: cmd, done: make(chan Result, 1)}
	select {
	case t.queue <- req:
		return req.done, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset raises the host mass-storage reset signal. The transfer in flight
// stops after its current block.
func (t *Task) Reset() {
	t.reset.Store(true)
}

// ResetRequested implements blockstore.Session
func (t *Task) ResetRequested() bool {
	return t.reset.Load()
}

// Poll serves at most one queued command. It reports whether a command
// was taken from the queue. The only error returned is arbiter.ErrHalted;
// per-command failures are delivered through the command's Result.
func (t *Task) Poll() (bool, error) {
	if t.reset.Load() {
		t.handleReset()
	}

	var req request
	select {
	case req = <-t.queue:
	default:
		return false, nil
	}

	res := Result{Command: req.cmd}
	err := t.gate.HostAccess(func() error {
		var err error
		switch req.cmd.Op {
		case OpRead:
			t.port.Select(endpoint.DirIn)
			res.Done, err = t.store.ReadBlocks(t, req.cmd.LBA, req.cmd.Blocks)
		case OpWrite:
			t.port.Select(endpoint.DirOut)
			res.Done, err = t.store.WriteBlocks(t, req.cmd.LBA, req.cmd.Blocks)
		default:
			err = fmt.Errorf("unsupported op %d", req.cmd.Op)
		}
		return err
	})
	res.Err = err
	req.done <- res

	if errors.Is(err, blockstore.ErrHostReset) {
		t.handleReset()
	}
	if errors.Is(err, arbiter.ErrHalted) {
		return true, err
	}
	return true, nil
}

// handleReset drops queued commands and clears the endpoint banks.
func (t *Task) handleReset() {
	for {
		select {
		case req := <-t.queue:
			req.done <- Result{Command: req.cmd, Err: blockstore.ErrHostReset}
			continue
		default:
		}
		break
	}
	t.port.Reset()
	t.reset.Store(false)
	t.logger.Info("mass storage reset handled")
}

// Capacity returns the medium geometry as seen by the host. Zero blocks
// means the medium is not ready yet.
func (t *Task) Capacity() (Capacity, error) {
	var c Capacity
	err := t.gate.HostAccess(func() error {
		c = Capacity{Blocks: t.store.BlockCount(), BlockSize: constants.BlockSize}
		return nil
	})
	return c, err
}

var _ blockstore.Session = (*Task)(nil)
