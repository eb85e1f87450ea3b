package tune

import (
	"log"
	"sync"
	"time"
)

// LoopState tracks the background controller lifecycle.
type LoopState string

const (
	LoopIdle          LoopState = "idle"
	LoopRunning       LoopState = "running"
	LoopStopRequested LoopState = "stop_requested"
	LoopStopped       LoopState = "stopped"
)

// Tick is the housekeeping interval: the loop wakes this often to poll
// for a stop request and runs a control pass once per adaptive
// interval. Shutdown latency is bounded by one tick plus any in-flight
// OS call.
const Tick = 100 * time.Millisecond

// Loop drives a manager's adaptive controller: one goroutine, woken
// every housekeeping tick, invoking the control pass at the configured
// interval. Stopping is cooperative; a pass in flight is never
// preempted.
type Loop struct {
	name string

	mu        sync.Mutex
	state     LoopState
	stop      chan struct{}
	done      chan struct{}
	listeners []func(LoopState)
}

func NewLoop(name string) *Loop {
	return &Loop{name: name, state: LoopIdle}
}

func (l *Loop) State() LoopState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OnStateChange registers a listener invoked after every transition.
func (l *Loop) OnStateChange(fn func(LoopState)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *Loop) announce(old, s LoopState, listeners []func(LoopState)) {
	if old == s {
		return
	}
	log.Printf("%s: adaptive %s -> %s", l.name, old, s)
	for _, fn := range listeners {
		fn(s)
	}
}

// Start launches the background goroutine; no-op if already running.
// interval is read once per tick so settings updates take effect within
// one tick. pass runs with no locks held.
func (l *Loop) Start(interval func() time.Duration, shouldStop func() bool, pass func()) {
	l.mu.Lock()
	if l.state == LoopRunning || l.state == LoopStopRequested {
		l.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	l.stop, l.done = stop, done
	old := l.state
	l.state = LoopRunning
	listeners := l.listeners
	l.mu.Unlock()

	l.announce(old, LoopRunning, listeners)
	go l.run(stop, done, interval, shouldStop, pass)
}

func (l *Loop) run(stop, done chan struct{}, interval func() time.Duration, shouldStop func() bool, pass func()) {
	defer close(done)

	ticker := time.NewTicker(Tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		if shouldStop() {
			return
		}
		iv := interval()
		if iv <= 0 {
			iv = Tick
		}
		if time.Since(last) >= iv {
			pass()
			last = time.Now()
		}
	}
}

// Stop requests shutdown and waits for the goroutine to exit. Safe to
// call before Start or more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.state != LoopRunning {
		l.mu.Unlock()
		return
	}
	stop, done := l.stop, l.done
	old := l.state
	l.state = LoopStopRequested
	listeners := l.listeners
	l.mu.Unlock()

	l.announce(old, LoopStopRequested, listeners)
	close(stop)
	<-done

	l.mu.Lock()
	old = l.state
	l.state = LoopStopped
	listeners = l.listeners
	l.mu.Unlock()
	l.announce(old, LoopStopped, listeners)
}
