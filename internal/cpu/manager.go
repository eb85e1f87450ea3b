package cpu

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// Option configures a Manager.
type Option func(*Manager)

// WithActionHook registers a callback invoked for every adjustment the
// adaptive controller makes.
func WithActionHook(fn func(tune.Action)) Option {
	return func(m *Manager) { m.onAction = fn }
}

// Manager is the CPU optimization façade: detection, mode resolution,
// best-effort apply, live snapshots and the adaptive background loop.
type Manager struct {
	sink     sysfs.Interface
	onAction func(tune.Action)

	mu   sync.RWMutex
	topo Topology
	init bool

	cell *tune.Cell[Settings]
	loop *tune.Loop
}

func New(sink sysfs.Interface, opts ...Option) *Manager {
	m := &Manager{
		sink: sink,
		cell: tune.NewCell(Settings{}),
		loop: tune.NewLoop("cpu"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) topology() (Topology, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.topo, m.init
}

// Initialize detects the CPU topology and takes a first snapshot.
// Detection failure is fatal: the manager stays unusable.
func (m *Manager) Initialize() error {
	topo, err := Detect(m.sink)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.topo = topo
	m.init = true
	m.mu.Unlock()

	m.cell.SetSettings(sanitize(DefaultSettings(topo), topo))

	if _, err := Snapshot(m.sink, topo); err != nil {
		log.Printf("cpu: initial snapshot: %v", err)
	}
	log.Printf("cpu: detected %d cores (%d reserved), %d-%d kHz",
		len(topo.Cores), len(topo.Reserved), topo.MinFreqKHz, topo.MaxFreqKHz)
	return nil
}

// ApplyOptimizations resolves the global mode into CPU settings and
// applies them. With adaptive enabled it also starts the background
// controller; with the global input disabled it restores OS defaults.
// Individual tunable failures are logged, never returned.
func (m *Manager) ApplyOptimizations(ctx context.Context, g tune.Global) error {
	topo, ok := m.topology()
	if !ok {
		return tune.ErrNotInitialized
	}

	if !g.Enabled {
		m.StopBackgroundLoop()
		return m.ResetOptimizations(ctx)
	}

	s := Resolve(g.Mode, g.Aggressive, m.cell.Settings(), topo)
	s.Enabled = true
	s.Adaptive = g.Adaptive
	if g.Interval > 0 {
		s.AdaptiveInterval = g.Interval
	}
	s = sanitize(s, topo)
	m.cell.SetSettings(s)

	if err := applySettings(ctx, m.sink, topo, s); err != nil {
		log.Printf("cpu: apply: %v", err)
	}

	if s.Adaptive {
		m.startLoop()
	} else {
		m.loop.Stop()
	}
	return nil
}

// UpdateSettings replaces the settings wholesale, pushes them into the
// shared cell and re-applies. The background loop observes the new
// values within one tick.
func (m *Manager) UpdateSettings(ctx context.Context, s Settings) error {
	topo, ok := m.topology()
	if !ok {
		return tune.ErrNotInitialized
	}

	s = sanitize(s, topo)
	m.cell.SetSettings(s)

	if err := applySettings(ctx, m.sink, topo, s); err != nil {
		log.Printf("cpu: apply: %v", err)
	}

	if s.Adaptive && s.Enabled {
		m.startLoop()
	} else {
		m.loop.Stop()
	}
	return nil
}

// ResetOptimizations restores the neutral OS defaults: balanced
// governor, full frequency band, boost on and IRQs spread over all
// cores.
func (m *Manager) ResetOptimizations(ctx context.Context) error {
	topo, ok := m.topology()
	if !ok {
		return tune.ErrNotInitialized
	}
	s := sanitize(DefaultSettings(topo), topo)
	s.Enabled = false
	m.cell.SetSettings(s)
	if err := applyReset(ctx, m.sink, topo); err != nil {
		log.Printf("cpu: reset: %v", err)
	}
	return nil
}

// Settings returns a copy of the current settings.
func (m *Manager) Settings() Settings {
	return m.cell.Settings()
}

// Topology returns a copy of the detected topology.
func (m *Manager) Topology() Topology {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.topo.clone()
}

// State takes a fresh telemetry snapshot; it blocks for the sampling
// window.
func (m *Manager) State() (State, error) {
	topo, ok := m.topology()
	if !ok {
		return State{}, tune.ErrNotInitialized
	}
	return Snapshot(m.sink, topo)
}

// LoopState reports the background controller lifecycle state.
func (m *Manager) LoopState() tune.LoopState {
	return m.loop.State()
}

func (m *Manager) startLoop() {
	m.cell.ClearStop()
	m.loop.Start(
		func() time.Duration { return m.cell.Settings().AdaptiveInterval },
		m.cell.ShouldStop,
		m.adaptivePass,
	)
}

// StopBackgroundLoop requests a stop through the shared cell and waits
// for the controller goroutine to exit. Safe to call at any point in
// the lifecycle, including before Initialize.
func (m *Manager) StopBackgroundLoop() {
	m.cell.RequestStop()
	m.loop.Stop()
}
