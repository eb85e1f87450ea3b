package storage

import (
	"context"
	"fmt"
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

// Manager is the storage optimization façade: detection, mode
// resolution, best-effort apply, live snapshots, the adaptive
// background loop and periodic TRIM.
type Manager struct {
	sink     sysfs.Interface
	onAction func(tune.Action)

	mu   sync.RWMutex
	topo Topology
	init bool

	// prevWindow and lastTrim are touched only by the loop goroutine.
	prevWindow map[string]ioWindow
	lastTrim   time.Time

	cell *tune.Cell[Settings]
	loop *tune.Loop
}

func New(sink sysfs.Interface, opts ...Option) *Manager {
	m := &Manager{
		sink:       sink,
		prevWindow: make(map[string]ioWindow),
		cell:       tune.NewCell(Settings{}),
		loop:       tune.NewLoop("storage"),
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

// Initialize detects the device topology and takes a first snapshot.
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

	m.cell.SetSettings(sanitize(DefaultSettings(), topo))

	if _, err := Snapshot(m.sink, topo); err != nil {
		log.Printf("storage: initial snapshot: %v", err)
	}
	names := make([]string, len(topo.Devices))
	for i, dev := range topo.Devices {
		names[i] = dev.Name
		if dev.SupportsTrim {
			names[i] += " (trim)"
		}
	}
	log.Printf("storage: detected %d devices: %v", len(topo.Devices), names)
	return nil
}

// ApplyOptimizations resolves the global mode into storage settings
// and applies them. With adaptive enabled it also starts the
// background controller; with the global input disabled it restores
// defaults. Individual tunable failures are logged, never returned.
func (m *Manager) ApplyOptimizations(ctx context.Context, g tune.Global) error {
	topo, ok := m.topology()
	if !ok {
		return tune.ErrNotInitialized
	}

	if !g.Enabled {
		m.StopBackgroundLoop()
		return m.ResetOptimizations(ctx)
	}

	s := Resolve(g.Mode, g.Aggressive, m.cell.Settings())
	s.Enabled = true
	s.Adaptive = g.Adaptive
	if g.Interval > 0 {
		s.AdaptiveInterval = g.Interval
	}
	s = sanitize(s, topo)
	m.cell.SetSettings(s)

	if err := applySettings(ctx, m.sink, topo, s); err != nil {
		log.Printf("storage: apply: %v", err)
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
		log.Printf("storage: apply: %v", err)
	}

	if s.Adaptive && s.Enabled {
		m.startLoop()
	} else {
		m.loop.Stop()
	}
	return nil
}

// ResetOptimizations restores the neutral defaults for the vm sysctls
// and every device queue.
func (m *Manager) ResetOptimizations(ctx context.Context) error {
	topo, ok := m.topology()
	if !ok {
		return tune.ErrNotInitialized
	}
	s := sanitize(DefaultSettings(), topo)
	s.Enabled = false
	m.cell.SetSettings(s)
	if err := applyReset(ctx, m.sink, topo); err != nil {
		log.Printf("storage: reset: %v", err)
	}
	return nil
}

// Trim runs fstrim on every discard-capable mounted device through the
// command surface. Unsupported or unmounted devices are skipped.
func (m *Manager) Trim(ctx context.Context) error {
	topo, ok := m.topology()
	if !ok {
		return tune.ErrNotInitialized
	}
	var firstErr error
	for _, dev := range topo.Devices {
		if !dev.SupportsTrim || dev.MountPoint == "" {
			continue
		}
		if err := m.sink.Run(ctx, "fstrim", dev.MountPoint); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fstrim %s: %w", dev.MountPoint, err)
			}
			log.Printf("storage: fstrim %s: %v", dev.MountPoint, err)
		}
	}
	return firstErr
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

// State takes a fresh telemetry snapshot.
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
