// Package blockstore reads and writes 512-byte logical blocks between the
// storage medium and the mass-storage bulk endpoint.
package blockstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/interfaces"
	"github.com/ehrlich-b/go-msclog/internal/logging"
	"github.com/ehrlich-b/go-msclog/internal/transfer"
)

var (
	// ErrHostReset is returned when the host requested a mass-storage
	// reset while a transfer was in progress.
	ErrHostReset = errors.New("host reset during transfer")

	// ErrOutOfRange is returned for requests beyond the end of the medium.
	ErrOutOfRange = errors.New("block address out of range")
)

// Session is the mass-storage interface state of the command being served.
type Session interface {
	// ResetRequested reports whether the host issued a mass-storage reset.
	ResetRequested() bool
}

// TransferSession is the progress of one multi-block command.
type TransferSession struct {
	StartAddress uint32
	Remaining    uint16
}

// Store owns the block buffer and the cached medium size. It is not safe
// for concurrent use; callers serialize access through the arbiter.
type Store struct {
	medium   interfaces.Medium
	adapter  *transfer.Adapter
	observer interfaces.Observer
	logger   *logging.Logger

	buf        [constants.BlockSize]byte
	blockCount uint32
	current    TransferSession
}

// Options configures a Store
type Options struct {
	Observer interfaces.Observer
	Logger   *logging.Logger
}

// New creates a block store over medium, streaming through adapter.
func New(medium interfaces.Medium, adapter *transfer.Adapter, opts *Options) *Store {
	s := &Store{
		medium:   medium,
		adapter:  adapter,
		observer: interfaces.NoOpObserver{},
		logger:   logging.Default(),
	}
	if opts != nil {
		if opts.Observer != nil {
			s.observer = opts.Observer
		}
		if opts.Logger != nil {
			s.logger = opts.Logger
		}
	}
	s.logger = s.logger.WithComponent("blockstore")
	return s
}

// BlockCount returns the number of blocks on the medium. A non-zero answer
// is cached for the lifetime of the store; zero means the medium is not
// ready and is queried again on the next call.
func (s *Store) BlockCount() uint32 {
	if s.blockCount != 0 {
		return s.blockCount
	}
	size := s.medium.Size()
	if size <= 0 {
		return 0
	}
	s.blockCount = uint32(size / constants.BlockSize)
	return s.blockCount
}

// Current returns the progress of the transfer in flight, if any.
func (s *Store) Current() TransferSession {
	return s.current
}

func (s *Store) checkRange(lba uint32, count uint16) error {
	total := s.BlockCount()
	if total == 0 {
		return interfaces.ErrNotReady
	}
	if uint64(lba)+uint64(count) > uint64(total) {
		return fmt.Errorf("%w: lba %d count %d exceeds %d blocks", ErrOutOfRange, lba, count, total)
	}
	return nil
}

// ReadBlocks streams count blocks starting at lba from the medium to the
// host. It returns the number of blocks fully sent. The reset signal is
// checked after every block; on reset the loop stops immediately and the
// endpoint is left for the caller to clean up.
func (s *Store) ReadBlocks(sess Session, lba uint32, count uint16) (int, error) {
	if err := s.checkRange(lba, count); err != nil {
		return 0, err
	}

	start := time.Now()
	logger := s.logger.WithTransfer("read", lba, count)
	logger.TransferStart("read", lba, count)

	done, err := s.run(sess, lba, count, func(off int64) error {
		if _, err := s.medium.ReadAt(s.buf[:], off); err != nil {
			return fmt.Errorf("read sector at %d: %w", off/constants.BlockSize, err)
		}
		return s.adapter.SendBlock(s.buf[:])
	})

	if err == nil {
		// The last block is not delivered until its final bank is taken
		// by the host.
		ep := s.adapter.Endpoint()
		if !ep.ReadWriteAllowed() {
			ep.ClearIN()
			if err = ep.WaitUntilReady(); err != nil {
				done--
			}
		}
	}

	s.observer.ObserveRead(uint64(done), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		s.abort("read", lba, done, err)
		return done, err
	}
	logger.TransferComplete("read", lba, done, time.Since(start).Microseconds())
	return done, nil
}

// WriteBlocks receives count blocks from the host and writes them to the
// medium starting at lba. Each block is fully received before it is
// written, so an aborted transfer never leaves a partial sector behind.
func (s *Store) WriteBlocks(sess Session, lba uint32, count uint16) (int, error) {
	if err := s.checkRange(lba, count); err != nil {
		return 0, err
	}

	start := time.Now()
	logger := s.logger.WithTransfer("write", lba, count)
	logger.TransferStart("write", lba, count)

	done, err := s.run(sess, lba, count, func(off int64) error {
		if err := s.adapter.ReceiveBlock(s.buf[:]); err != nil {
			return err
		}
		if _, err := s.medium.WriteAt(s.buf[:], off); err != nil {
			return fmt.Errorf("write sector at %d: %w", off/constants.BlockSize, err)
		}
		return nil
	})

	s.observer.ObserveWrite(uint64(done), uint64(time.Since(start).Nanoseconds()), err == nil)
	if err != nil {
		s.abort("write", lba, done, err)
		return done, err
	}

	ep := s.adapter.Endpoint()
	if !ep.ReadWriteAllowed() {
		ep.ClearOUT()
	}
	logger.TransferComplete("write", lba, done, time.Since(start).Microseconds())
	return done, nil
}

func (s *Store) run(sess Session, lba uint32, count uint16, block func(off int64) error) (int, error) {
	s.current = TransferSession{StartAddress: lba, Remaining: count}
	defer func() { s.current = TransferSession{} }()

	done := 0
	for s.current.Remaining > 0 {
		addr := s.current.StartAddress + uint32(done)
		if err := block(int64(addr) * constants.BlockSize); err != nil {
			return done, err
		}
		done++
		s.current.Remaining--

		if sess != nil && sess.ResetRequested() {
			return done, ErrHostReset
		}
	}
	return done, nil
}

func (s *Store) abort(op string, lba uint32, done int, err error) {
	cause := interfaces.AbortIO
	switch {
	case errors.Is(err, interfaces.ErrStall):
		cause = interfaces.AbortStall
	case errors.Is(err, ErrHostReset):
		cause = interfaces.AbortReset
	}
	s.observer.ObserveAbort(cause)
	s.logger.TransferAborted(op, lba, done, err)
}
