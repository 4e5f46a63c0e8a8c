// Package arbiter decides who owns the storage medium: the USB host through
// mass-storage passthrough, or the local log writer.
//
// Every storage access goes through the arbiter's lock. The host path is
// granted only in HostAttached mode with the log file closed; the log path
// only in Standalone mode with the file open. Pass evaluates the transition
// between the two.
package arbiter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/interfaces"
	"github.com/ehrlich-b/go-msclog/internal/logging"
)

var (
	// ErrHalted is returned once a fail-stop fault has been latched.
	ErrHalted = errors.New("storage halted after filesystem failure")

	// ErrNotGranted is returned when the current mode does not allow the
	// requested kind of access.
	ErrNotGranted = errors.New("storage access not granted in current mode")

	// ErrBusy is returned by LogAccess when the host path holds the medium.
	ErrBusy = errors.New("storage busy")
)

// Mode is the storage owner.
type Mode int32

const (
	Standalone Mode = iota
	HostAttached
)

func (m Mode) String() string {
	switch m {
	case HostAttached:
		return "host-attached"
	case Standalone:
		return "standalone"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Policy selects how filesystem failures are handled.
type Policy int

const (
	// FailStop latches the fault, signals the indicator and refuses all
	// further access until restart.
	FailStop Policy = iota

	// WaitForHost parks in a faulted state and retries after the host has
	// attached and detached again, giving it a chance to repair the medium.
	WaitForHost
)

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail-stop", "failstop":
		return FailStop, nil
	case "wait-for-host", "waitforhost":
		return WaitForHost, nil
	}
	return FailStop, fmt.Errorf("unknown halt policy %q", s)
}

func (p Policy) String() string {
	if p == WaitForHost {
		return "wait-for-host"
	}
	return "fail-stop"
}

// FaultCode identifies the step of the open sequence that failed. The
// indicator blinks code+1 times.
type FaultCode int

const (
	FaultNone FaultCode = iota
	FaultMount
	FaultFormat
	FaultOpen
	FaultSeek
)

func (c FaultCode) String() string {
	switch c {
	case FaultNone:
		return "none"
	case FaultMount:
		return "mount"
	case FaultFormat:
		return "format"
	case FaultOpen:
		return "open"
	case FaultSeek:
		return "seek"
	}
	return fmt.Sprintf("fault(%d)", int(c))
}

// Link reports the USB device state.
type Link interface {
	// Configured reports whether a host has configured the device.
	Configured() bool
}

// File is an open log file.
type File = interfaces.LogFile

// Filesystem is the FAT layer on top of the medium.
type Filesystem interface {
	// Mount returns interfaces.ErrNoFilesystem if the medium is unformatted.
	Mount() error
	MakeFilesystem() error
	Open(name string, flag int) (File, error)
}

// Indicator is the diagnostic status light. Blink(0) clears it.
type Indicator interface {
	Blink(times int)
}

// Snapshot is a consistent view of the arbiter state.
type Snapshot struct {
	Mode       Mode
	FileOpen   bool
	FileName   string
	Halted     bool
	Faulted    bool
	Fault      FaultCode
	Generation uint64
}

// Options configures an Arbiter
type Options struct {
	Policy    Policy
	Indicator Indicator
	Observer  interfaces.Observer
	Logger    *logging.Logger

	// FileNumber is the number of the last file opened; the next open
	// uses FileNumber+1.
	FileNumber int
}

// Arbiter owns the log file and serializes storage access.
type Arbiter struct {
	link      Link
	fs        Filesystem
	policy    Policy
	indicator Indicator
	observer  interfaces.Observer
	logger    *logging.Logger

	// mu is held for the whole duration of any storage access
	mu         sync.Mutex
	file       File
	fileNumber int
	fileName   string

	// stateMu guards the fields published through Snapshot. It is only
	// written while mu is held.
	stateMu  sync.RWMutex
	mode     Mode
	fileOpen bool
	halted   bool
	faulted  bool
	fault    FaultCode
	sawHost  bool

	generation atomic.Uint64
}

// New creates an arbiter. The initial mode is Standalone with no file open.
func New(link Link, fs Filesystem, opts *Options) *Arbiter {
	a := &Arbiter{
		link:      link,
		fs:        fs,
		indicator: logIndicator{},
		observer:  interfaces.NoOpObserver{},
		logger:    logging.Default(),
	}
	if opts != nil {
		a.policy = opts.Policy
		a.fileNumber = opts.FileNumber
		if opts.Indicator != nil {
			a.indicator = opts.Indicator
		}
		if opts.Observer != nil {
			a.observer = opts.Observer
		}
		if opts.Logger != nil {
			a.logger = opts.Logger
		}
	}
	a.logger = a.logger.WithComponent("arbiter")
	return a
}

// Pass evaluates one arbitration transition.
func (a *Arbiter) Pass() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reconcileLocked()
}

func (a *Arbiter) reconcileLocked() error {
	a.stateMu.RLock()
	halted, fileOpen, faulted := a.halted, a.fileOpen, a.faulted
	a.stateMu.RUnlock()

	if halted {
		return ErrHalted
	}

	if a.link.Configured() {
		if fileOpen {
			a.closeLocked()
		}
		a.enterMode(HostAttached)
		return nil
	}

	a.enterMode(Standalone)
	if fileOpen {
		return nil
	}
	if !faulted {
		return a.openLocked()
	}

	a.stateMu.RLock()
	retry := a.sawHost
	a.stateMu.RUnlock()
	if !retry {
		return nil
	}
	a.logger.Info("retrying storage after host detach")
	a.setState(func() {
		a.faulted = false
		a.fault = FaultNone
	})
	if err := a.openLocked(); err != nil {
		return err
	}
	a.indicator.Blink(0)
	return nil
}

func (a *Arbiter) enterMode(m Mode) {
	a.stateMu.Lock()
	prev := a.mode
	a.mode = m
	if m == HostAttached {
		a.sawHost = true
	}
	a.stateMu.Unlock()

	if prev != m {
		a.logger.WithMode(m.String()).Info("storage owner changed", "from", prev.String())
	}
}

// openLocked mounts the medium, formatting it if it carries no filesystem,
// and opens the next log file positioned at its end.
func (a *Arbiter) openLocked() error {
	a.fileNumber++
	name := fmt.Sprintf(constants.LogFileNameFormat, a.fileNumber)

	formatted := false
	err := a.fs.Mount()
	if errors.Is(err, interfaces.ErrNoFilesystem) {
		a.logger.Warn("no filesystem on medium, formatting")
		formatted = true
		if err = a.fs.MakeFilesystem(); err != nil {
			a.observer.ObserveMount(formatted, false)
			return a.faultLocked(FaultFormat, err)
		}
		err = a.fs.Mount()
	}
	a.observer.ObserveMount(formatted, err == nil)
	if err != nil {
		return a.faultLocked(FaultMount, err)
	}

	f, err := a.fs.Open(name, os.O_RDWR|os.O_CREATE)
	if err != nil {
		return a.faultLocked(FaultOpen, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return a.faultLocked(FaultSeek, err)
	}

	a.file = f
	a.setState(func() {
		a.fileOpen = true
		a.fileName = name
	})
	a.generation.Add(1)
	a.observer.ObserveTransition(true)
	a.logger.WithFile(name).Info("log file opened")
	return nil
}

func (a *Arbiter) closeLocked() {
	logger := a.logger.WithFile(a.fileName)
	if err := a.file.Sync(); err != nil {
		logger.WithError(err).Warn("sync before close failed")
	}
	if err := a.file.Close(); err != nil {
		logger.WithError(err).Warn("close failed")
	}
	a.file = nil
	a.setState(func() { a.fileOpen = false })
	a.generation.Add(1)
	a.observer.ObserveTransition(false)
	logger.Info("log file closed for host")
}

func (a *Arbiter) faultLocked(code FaultCode, err error) error {
	a.logger.Error("storage open sequence failed", "step", code.String(), "error", err)
	a.indicator.Blink(int(code) + 1)

	if a.policy == WaitForHost {
		a.setState(func() {
			a.faulted = true
			a.fault = code
			a.sawHost = false
		})
		return fmt.Errorf("%s: %w", code, err)
	}

	a.setState(func() {
		a.halted = true
		a.fault = code
	})
	return fmt.Errorf("%w: %s: %v", ErrHalted, code, err)
}

func (a *Arbiter) setState(fn func()) {
	a.stateMu.Lock()
	fn()
	a.stateMu.Unlock()
}

// HostAccess runs fn with exclusive ownership of the medium on behalf of
// the USB host. Arbitration is reconciled first, so a log file left open
// by standalone mode is always closed before fn runs.
func (a *Arbiter) HostAccess(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.reconcileLocked(); errors.Is(err, ErrHalted) {
		return err
	}

	a.stateMu.RLock()
	granted := a.mode == HostAttached && !a.fileOpen
	a.stateMu.RUnlock()
	if !granted {
		return ErrNotGranted
	}
	return fn()
}

// LogAccess runs fn with the open log file. It never waits: if the host
// path holds the medium it returns ErrBusy immediately.
func (a *Arbiter) LogAccess(fn func(f File) error) error {
	if !a.mu.TryLock() {
		return ErrBusy
	}
	defer a.mu.Unlock()

	a.stateMu.RLock()
	halted := a.halted
	granted := a.mode == Standalone && a.fileOpen
	a.stateMu.RUnlock()

	if halted {
		return ErrHalted
	}
	// The host may already be configured while the file waits for the
	// next pass to close it.
	if !granted || a.link.Configured() {
		return ErrNotGranted
	}
	return fn(a.file)
}

// Generation increments on every log file open and close.
func (a *Arbiter) Generation() uint64 {
	return a.generation.Load()
}

// Snapshot returns the current state.
func (a *Arbiter) Snapshot() Snapshot {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	s := Snapshot{
		Mode:       a.mode,
		FileOpen:   a.fileOpen,
		Halted:     a.halted,
		Faulted:    a.faulted,
		Fault:      a.fault,
		Generation: a.generation.Load(),
	}
	if a.fileOpen {
		s.FileName = a.fileName
	}
	return s
}

// Close flushes and closes the log file if one is open.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Sync()
	if cerr := a.file.Close(); err == nil {
		err = cerr
	}
	a.file = nil
	a.setState(func() { a.fileOpen = false })
	a.generation.Add(1)
	return err
}
