package arbiter

import (
	"context"
	"sync"
	"time"

	"github.com/ehrlich-b/go-msclog/internal/constants"
	"github.com/ehrlich-b/go-msclog/internal/logging"
)

// logIndicator reports blink codes through the logger only.
type logIndicator struct{}

func (logIndicator) Blink(times int) {
	if times <= 0 {
		return
	}
	logging.Default().WithComponent("indicator").Warn("diagnostic blink", "count", times)
}

// LED drives an on/off output with a blink code, one pulse per
// constants.BlinkPeriod on and off. Blink returns immediately and replaces
// any pattern already showing; Blink(0) turns the LED off. With repeat set
// the code repeats until replaced or until ctx is done.
type LED struct {
	ctx    context.Context
	set    func(on bool)
	period time.Duration
	repeat bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLED creates an LED indicator. set is called for every level change.
func NewLED(ctx context.Context, set func(on bool), repeat bool) *LED {
	return &LED{ctx: ctx, set: set, period: constants.BlinkPeriod, repeat: repeat}
}

// Blink implements Indicator
func (l *LED) Blink(times int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	if times <= 0 {
		l.set(false)
		return
	}

	ctx, cancel := context.WithCancel(l.ctx)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done
	go func() {
		defer close(done)
		l.run(ctx, times)
	}()
}

// stopLocked ends the running pattern and waits for its goroutine, so
// that only one pattern ever drives the output.
func (l *LED) stopLocked() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel, l.done = nil, nil
}

func (l *LED) run(ctx context.Context, times int) {
	for {
		for i := 0; i < times; i++ {
			if !l.level(ctx, true) || !l.level(ctx, false) {
				return
			}
		}
		if !l.repeat {
			return
		}
		// gap between repetitions
		if !l.level(ctx, false) || !l.level(ctx, false) {
			return
		}
	}
}

func (l *LED) level(ctx context.Context, on bool) bool {
	l.set(on)
	t := time.NewTimer(l.period)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
