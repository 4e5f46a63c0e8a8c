package arbiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type levelRecorder struct {
	mu     sync.Mutex
	levels []bool
}

func (r *levelRecorder) set(on bool) {
	r.mu.Lock()
	r.levels = append(r.levels, on)
	r.mu.Unlock()
}

func (r *levelRecorder) get() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.levels...)
}

func TestLEDBlinksCode(t *testing.T) {
	var rec levelRecorder
	led := NewLED(context.Background(), rec.set, false)
	led.period = time.Millisecond

	led.Blink(2)
	require.Eventually(t, func() bool { return len(rec.get()) == 4 }, time.Second, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []bool{true, false, true, false}, rec.get())
}

func TestLEDRepeatStopsWithContext(t *testing.T) {
	var rec levelRecorder
	ctx, cancel := context.WithCancel(context.Background())
	led := NewLED(ctx, rec.set, true)
	led.period = time.Millisecond

	led.Blink(1)
	// one pulse plus the gap is four levels; wait for a repetition
	require.Eventually(t, func() bool { return len(rec.get()) > 4 }, time.Second, time.Millisecond)

	cancel()
	time.Sleep(10 * time.Millisecond)
	n := len(rec.get())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, len(rec.get()))
}

func TestLEDNewCodeReplacesOld(t *testing.T) {
	var rec levelRecorder
	led := NewLED(context.Background(), rec.set, true)
	led.period = time.Millisecond

	for i := 0; i < 5; i++ {
		led.Blink(2)
	}
	require.Eventually(t, func() bool { return len(rec.get()) > 10 }, time.Second, time.Millisecond)

	led.Blink(0)
	levels := rec.get()
	assert.False(t, levels[len(levels)-1], "cleared LED is off")

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, levels, rec.get(), "no pattern keeps driving the output")
}
