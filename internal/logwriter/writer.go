// Package logwriter appends periodic temperature records to the log file.
package logwriter

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-msclog/internal/arbiter"
	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/interfaces"
	"github.com/ehrlich-b/go-msclog/internal/logging"
)

// ErrSuppressed is returned while writes are disabled after too many
// consecutive failures.
var ErrSuppressed = errors.New("log writer suppressed after repeated failures")

// Access is the arbiter surface the writer needs.
type Access interface {
	LogAccess(fn func(f arbiter.File) error) error
	Generation() uint64
}

// IntervalSource provides the logging interval in ticks.
type IntervalSource interface {
	Interval() uint8
}

// Stats summarizes writer activity.
type Stats struct {
	Ticks      uint64
	Records    uint64
	Failures   uint64
	Skipped    uint64
	Suppressed bool
}

// Options configures a Writer
type Options struct {
	// MaxConsecutiveFailures before suppression; zero selects the default
	MaxConsecutiveFailures int
	Now                    func() time.Time
	Observer               interfaces.Observer
	Logger                 *logging.Logger
}

// Writer formats and appends one record every interval ticks. Each record
// is synced to the medium as soon as it is written, trading write
// amplification for durability against power loss.
type Writer struct {
	access   Access
	interval IntervalSource
	sampler  Sampler
	now      func() time.Time
	observer interfaces.Observer
	logger   *logging.Logger
	maxFail  int

	mu          sync.Mutex
	ticks       uint16
	consecutive int
	suppressed  bool
	suppressGen uint64

	totalTicks atomic.Uint64
	records    atomic.Uint64
	failures   atomic.Uint64
	skipped    atomic.Uint64
}

// New creates a writer.
func New(access Access, interval IntervalSource, sampler Sampler, opts *Options) *Writer {
	w := &Writer{
		access:   access,
		interval: interval,
		sampler:  sampler,
		now:      time.Now,
		observer: interfaces.NoOpObserver{},
		logger:   logging.Default(),
		maxFail:  constants.DefaultMaxConsecutiveFailures,
	}
	if opts != nil {
		if opts.MaxConsecutiveFailures > 0 {
			w.maxFail = opts.MaxConsecutiveFailures
		}
		if opts.Now != nil {
			w.now = opts.Now
		}
		if opts.Observer != nil {
			w.observer = opts.Observer
		}
		if opts.Logger != nil {
			w.logger = opts.Logger
		}
	}
	w.logger = w.logger.WithComponent("logwriter")
	return w
}

// FormatRecord renders one CSV line.
func FormatRecord(ts time.Time, celsius float64) []byte {
	return []byte(fmt.Sprintf("%s,%.2f\r\n", ts.Format(time.RFC3339), celsius))
}

// Tick advances the tick counter and writes a record when the logging
// interval has elapsed. Ticks that find the medium owned by the host are
// skipped silently. Only storage failures and ErrHalted are returned.
func (w *Writer) Tick() error {
	w.totalTicks.Add(1)

	w.mu.Lock()
	defer w.mu.Unlock()

	interval := uint16(w.interval.Interval())
	if interval == 0 {
		interval = 1
	}
	w.ticks++
	if w.ticks < interval {
		return nil
	}
	w.ticks = 0

	if w.suppressed {
		if w.access.Generation() == w.suppressGen {
			w.skip()
			return ErrSuppressed
		}
		w.logger.Info("mode changed, resuming log writes")
		w.suppressed = false
		w.consecutive = 0
	}

	celsius, err := w.sampler.Sample()
	if err != nil {
		return w.fail(fmt.Errorf("sample: %w", err), 0, 0)
	}
	record := FormatRecord(w.now(), celsius)

	start := time.Now()
	err = w.access.LogAccess(func(f arbiter.File) error {
		if _, err := f.Write(record); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync record: %w", err)
		}
		return nil
	})
	latency := time.Since(start)

	switch {
	case err == nil:
		w.consecutive = 0
		w.records.Add(1)
		w.observer.ObserveRecord(uint64(len(record)), uint64(latency.Nanoseconds()), true)
		return nil
	case errors.Is(err, arbiter.ErrBusy), errors.Is(err, arbiter.ErrNotGranted):
		w.skip()
		return nil
	case errors.Is(err, arbiter.ErrHalted):
		w.skip()
		return err
	}
	return w.fail(err, len(record), latency)
}

func (w *Writer) skip() {
	w.skipped.Add(1)
	w.observer.ObserveSkippedTick()
}

func (w *Writer) fail(err error, n int, latency time.Duration) error {
	w.consecutive++
	w.failures.Add(1)
	w.observer.ObserveRecord(uint64(n), uint64(latency.Nanoseconds()), false)
	w.logger.Warn("log record failed", "error", err, "consecutive", w.consecutive)

	if w.consecutive >= w.maxFail {
		w.suppressed = true
		w.suppressGen = w.access.Generation()
		w.logger.Error("suppressing log writes until next mode change", "failures", w.consecutive)
	}
	return err
}

// Stats returns the writer counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	suppressed := w.suppressed
	w.mu.Unlock()
	return Stats{
		Ticks:      w.totalTicks.Load(),
		Records:    w.records.Load(),
		Failures:   w.failures.Load(),
		Skipped:    w.skipped.Load(),
		Suppressed: suppressed,
	}
}
