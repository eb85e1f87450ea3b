// Package engine owns the three resource optimization managers and
// everything that spans them: the shared global input, the adjustment
// history, telemetry collection and lifecycle notifications.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vrtuned-go/vrtuned/internal/cpu"
	"github.com/vrtuned-go/vrtuned/internal/led"
	"github.com/vrtuned-go/vrtuned/internal/metrics"
	"github.com/vrtuned-go/vrtuned/internal/network"
	"github.com/vrtuned-go/vrtuned/internal/notify"
	"github.com/vrtuned-go/vrtuned/internal/storage"
	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

const (
	telemetryInterval = 2 * time.Second

	// Hysteresis margin below the temperature limit before a throttle
	// notification is cleared.
	thermalClearMargin = 5.0
)

// Option configures an Engine.
type Option func(*Engine)

// WithHistorySize bounds the adjustment history ring.
func WithHistorySize(n int) Option {
	return func(e *Engine) { e.historySize = n }
}

// Engine wires the per-domain managers to a single tuning surface and
// drives them with one global input. Managers stay mutually
// independent; the engine only fans calls out and aggregates results.
type Engine struct {
	CPU     *cpu.Manager
	Network *network.Manager
	Storage *storage.Manager

	sink        sysfs.Interface
	metrics     *metrics.Metrics
	history     *History
	historySize int
	led         *led.LED

	mu     sync.RWMutex
	global tune.Global

	// thermalAlert is touched only by the Run goroutine.
	thermalAlert bool
}

func New(sink sysfs.Interface, opts ...Option) *Engine {
	e := &Engine{
		metrics:     metrics.New(),
		historySize: 256,
	}
	for _, o := range opts {
		o(e)
	}
	e.history = NewHistory(e.historySize)

	e.sink = e.metrics.WrapSink(sink)
	e.CPU = cpu.New(e.sink, cpu.WithActionHook(e.onAction))
	e.Network = network.New(e.sink, network.WithActionHook(e.onAction))
	e.Storage = storage.New(e.sink, storage.WithActionHook(e.onAction))
	return e
}

// Metrics exposes the collector set, primarily for the /metrics
// endpoint.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// History returns the retained adaptive adjustments, oldest first.
func (e *Engine) History() []tune.Action {
	return e.history.All()
}

// Global returns the last applied global input.
func (e *Engine) Global() tune.Global {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.global
}

func (e *Engine) onAction(a tune.Action) {
	e.history.Add(a)
	e.metrics.RecordAction(a)
	log.Printf("%s: adjusted %s %s: %s -> %s", a.Domain, a.Resource, a.Tunable, a.From, a.To)
}

// Initialize detects all three topologies in parallel. Any detection
// failure is fatal, matching the per-manager contract. On success the
// daemon's own threads are pinned off the reserved cores.
func (e *Engine) Initialize(ctx context.Context) error {
	var eg errgroup.Group
	eg.Go(e.CPU.Initialize)
	eg.Go(e.Network.Initialize)
	eg.Go(e.Storage.Initialize)
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	topo := e.CPU.Topology()
	var general []int
	for _, core := range topo.Cores {
		if !core.Reserved {
			general = append(general, core.ID)
		}
	}
	if err := pinToCores(general); err != nil {
		log.Printf("engine: cpu affinity: %v", err)
	} else if len(general) > 0 {
		log.Printf("engine: pinned to general cores %v", general)
	}

	e.led = led.Detect(e.sink)
	e.led.Set(ctx, led.ModeHeartbeat)

	notify.Send(ctx, notify.Event{
		Event:   notify.EventStartup,
		Message: "vrtuned initialized",
		Data: map[string]any{
			"cores":      len(topo.Cores),
			"interfaces": len(e.Network.Topology().Interfaces),
			"devices":    len(e.Storage.Topology().Devices),
		},
	})
	return nil
}

// ApplyAll fans the global input out to every manager. Per-tunable
// failures stay inside the managers; only a manager-level error
// (usually ErrNotInitialized) comes back.
func (e *Engine) ApplyAll(ctx context.Context, g tune.Global) error {
	e.mu.Lock()
	prev := e.global
	e.global = g
	e.mu.Unlock()

	e.metrics.SetGlobal(g)

	var eg errgroup.Group
	eg.Go(func() error { return e.CPU.ApplyOptimizations(ctx, g) })
	eg.Go(func() error { return e.Network.ApplyOptimizations(ctx, g) })
	eg.Go(func() error { return e.Storage.ApplyOptimizations(ctx, g) })
	err := eg.Wait()

	e.publishLoopStates()

	if prev.Enabled != g.Enabled || prev.Mode != g.Mode {
		msg := "optimization disabled"
		if g.Enabled {
			msg = "mode " + g.Mode.String()
		}
		notify.Send(ctx, notify.Event{
			Event:   notify.EventModeChange,
			Message: msg,
			Data:    map[string]any{"mode": g.Mode.String(), "enabled": g.Enabled},
		})
	}
	return err
}

// ResetAll restores neutral OS defaults everywhere and stops the
// background loops; used on shutdown and by the reset API.
func (e *Engine) ResetAll(ctx context.Context) error {
	return e.ApplyAll(ctx, tune.Global{})
}

// StopAll stops the background loops without touching any tunables and
// turns the status LED off; the daemon is standing down.
func (e *Engine) StopAll() {
	e.CPU.StopBackgroundLoop()
	e.Network.StopBackgroundLoop()
	e.Storage.StopBackgroundLoop()
	e.publishLoopStates()
	e.led.Set(context.Background(), led.ModeOff)
}

func (e *Engine) publishLoopStates() {
	e.metrics.SetLoopRunning("cpu", e.CPU.LoopState() == tune.LoopRunning)
	e.metrics.SetLoopRunning("network", e.Network.LoopState() == tune.LoopRunning)
	e.metrics.SetLoopRunning("storage", e.Storage.LoopState() == tune.LoopRunning)
}

// Run collects telemetry until the context is cancelled: snapshots
// feed the metrics gauges and the thermal notification check.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			st := e.Status()
			e.observe(st)
			e.checkThermal(ctx, st)
		}
	}
}

func (e *Engine) observe(st Status) {
	if st.CPU.State != nil {
		e.metrics.ObserveCPU(*st.CPU.State)
	}
	if st.Network.State != nil {
		e.metrics.ObserveNetwork(*st.Network.State)
	}
	if st.Storage.State != nil {
		e.metrics.ObserveStorage(*st.Storage.State)
	}
	e.publishLoopStates()
}

// checkThermal raises one throttle notification when any core crosses
// the configured limit and clears it once the package cools past the
// hysteresis margin.
func (e *Engine) checkThermal(ctx context.Context, st Status) {
	if st.CPU.State == nil {
		return
	}
	limit := e.CPU.Settings().MaxTemperature
	if limit <= 0 {
		return
	}
	hottest := 0.0
	for _, core := range st.CPU.State.Cores {
		if core.Temperature > hottest {
			hottest = core.Temperature
		}
	}

	switch {
	case hottest > limit && !e.thermalAlert:
		e.thermalAlert = true
		log.Printf("engine: thermal throttle at %.1fC (limit %.1fC)", hottest, limit)
		e.led.Set(ctx, led.ModeFastBlink)
		notify.Send(ctx, notify.Event{
			Event:   notify.EventThermalThrottle,
			Message: fmt.Sprintf("temperature %.1fC over limit %.1fC", hottest, limit),
			Data:    map[string]any{"temperature": hottest, "limit": limit},
		})
	case hottest < limit-thermalClearMargin && e.thermalAlert:
		e.thermalAlert = false
		log.Printf("engine: thermal clear at %.1fC", hottest)
		e.led.Set(ctx, led.ModeHeartbeat)
		notify.Send(ctx, notify.Event{
			Event:   notify.EventThermalClear,
			Message: fmt.Sprintf("temperature back to %.1fC", hottest),
			Data:    map[string]any{"temperature": hottest},
		})
	}
}
