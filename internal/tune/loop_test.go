package tune

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func never() bool { return false }

func everyTick() time.Duration { return time.Millisecond }

func TestLoopStopBeforeStart(t *testing.T) {
	l := NewLoop("cpu")
	l.Stop()
	l.Stop()
	assert.Equal(t, LoopIdle, l.State())
}

func TestLoopRunsAndStops(t *testing.T) {
	var passes atomic.Int64

	l := NewLoop("cpu")
	l.Start(everyTick, never, func() { passes.Add(1) })
	assert.Equal(t, LoopRunning, l.State())

	require.Eventually(t, func() bool { return passes.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)

	l.Stop()
	assert.Equal(t, LoopStopped, l.State())

	// No further passes after Stop returns.
	quiesced := passes.Load()
	time.Sleep(3 * Tick)
	assert.Equal(t, quiesced, passes.Load())
}

func TestLoopStartWhileRunningIsNoop(t *testing.T) {
	var mu sync.Mutex
	var transitions []LoopState

	l := NewLoop("net")
	l.OnStateChange(func(s LoopState) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})

	l.Start(everyTick, never, func() {})
	l.Start(everyTick, never, func() {})
	l.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []LoopState{LoopRunning, LoopStopRequested, LoopStopped}, transitions)
}

func TestLoopHonorsShouldStop(t *testing.T) {
	var passes atomic.Int64
	c := NewCell(struct{}{})

	l := NewLoop("storage")
	l.Start(everyTick, c.ShouldStop, func() { passes.Add(1) })

	c.RequestStop()
	time.Sleep(3 * Tick)

	// The goroutine exited on its own; Stop must still return promptly.
	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after shouldStop was set")
	}

	quiesced := passes.Load()
	time.Sleep(3 * Tick)
	assert.Equal(t, quiesced, passes.Load())
}

func TestLoopIntervalThrottlesPasses(t *testing.T) {
	var passes atomic.Int64

	l := NewLoop("cpu")
	l.Start(func() time.Duration { return time.Hour }, never, func() { passes.Add(1) })

	time.Sleep(4 * Tick)
	l.Stop()

	assert.Zero(t, passes.Load())
}
