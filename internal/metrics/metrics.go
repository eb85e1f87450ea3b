// Package metrics owns the Prometheus registry and the collectors the
// status server exposes. Telemetry gauges are fed from the manager
// snapshots; traffic counters come from a wrapped tuning sink.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vrtuned-go/vrtuned/internal/cpu"
	"github.com/vrtuned-go/vrtuned/internal/network"
	"github.com/vrtuned-go/vrtuned/internal/storage"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

const namespace = "vrtuned"

// Metrics is the collector set for one daemon instance.
type Metrics struct {
	registry *prometheus.Registry

	cpuUtilization *prometheus.GaugeVec
	cpuFrequency   *prometheus.GaugeVec
	cpuTemperature *prometheus.GaugeVec

	netPacketLoss *prometheus.GaugeVec
	netSignalDBM  *prometheus.GaugeVec

	storageInFlight  *prometheus.GaugeVec
	storageReadRatio *prometheus.GaugeVec

	adjustments *prometheus.CounterVec
	writes      *prometheus.CounterVec
	commands    *prometheus.CounterVec

	mode        *prometheus.GaugeVec
	enabled     prometheus.Gauge
	loopRunning *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{registry: registry}

	m.cpuUtilization = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cpu",
		Name:      "utilization",
		Help:      "Per-core utilization over the sampling window (0-1)",
	}, []string{"core"})

	m.cpuFrequency = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cpu",
		Name:      "frequency_khz",
		Help:      "Per-core current frequency in kHz",
	}, []string{"core"})

	m.cpuTemperature = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cpu",
		Name:      "temperature_celsius",
		Help:      "Per-core temperature in degrees Celsius",
	}, []string{"core"})

	m.netPacketLoss = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "network",
		Name:      "packet_loss_rate",
		Help:      "Per-interface receive loss fraction (0-1)",
	}, []string{"interface"})

	m.netSignalDBM = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "network",
		Name:      "signal_dbm",
		Help:      "Wireless signal level in dBm",
	}, []string{"interface"})

	m.storageInFlight = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "inflight_requests",
		Help:      "Per-device I/O requests currently in flight",
	}, []string{"device"})

	m.storageReadRatio = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "read_ratio",
		Help:      "Per-device reads over total completed I/Os (0-1)",
	}, []string{"device"})

	m.adjustments = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tuning",
		Name:      "adjustments_total",
		Help:      "Adaptive controller adjustments by domain and tunable",
	}, []string{"domain", "tunable"})

	m.writes = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tuning",
		Name:      "writes_total",
		Help:      "Control-file writes by result",
	}, []string{"result"})

	m.commands = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tuning",
		Name:      "commands_total",
		Help:      "External command invocations by result",
	}, []string{"result"})

	m.mode = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mode",
		Help:      "Active optimization mode (one-hot)",
	}, []string{"mode"})

	m.enabled = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "enabled",
		Help:      "Whether optimization is enabled",
	})

	m.loopRunning = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "loop_running",
		Help:      "Whether the adaptive loop for a domain is running",
	}, []string{"domain"})

	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveCPU feeds the per-core gauges from a snapshot.
func (m *Metrics) ObserveCPU(st cpu.State) {
	for _, core := range st.Cores {
		id := strconv.Itoa(core.ID)
		m.cpuUtilization.WithLabelValues(id).Set(core.Utilization)
		m.cpuFrequency.WithLabelValues(id).Set(float64(core.FreqKHz))
		m.cpuTemperature.WithLabelValues(id).Set(core.Temperature)
	}
}

// ObserveNetwork feeds the per-interface gauges from a snapshot.
func (m *Metrics) ObserveNetwork(st network.State) {
	for _, iface := range st.Interfaces {
		m.netPacketLoss.WithLabelValues(iface.Name).Set(iface.Loss)
		if iface.SignalDBM != 0 {
			m.netSignalDBM.WithLabelValues(iface.Name).Set(float64(iface.SignalDBM))
		}
	}
}

// ObserveStorage feeds the per-device gauges from a snapshot.
func (m *Metrics) ObserveStorage(st storage.State) {
	for _, dev := range st.Devices {
		m.storageInFlight.WithLabelValues(dev.Name).Set(float64(dev.InFlight))
		m.storageReadRatio.WithLabelValues(dev.Name).Set(dev.ReadRatio)
	}
}

// RecordAction counts one adaptive adjustment.
func (m *Metrics) RecordAction(a tune.Action) {
	m.adjustments.WithLabelValues(a.Domain, a.Tunable).Inc()
}

// SetGlobal publishes the active global input: the one-hot mode vector
// and the enabled flag.
func (m *Metrics) SetGlobal(g tune.Global) {
	for _, mode := range tune.Modes {
		v := 0.0
		if g.Enabled && mode == g.Mode {
			v = 1
		}
		m.mode.WithLabelValues(string(mode)).Set(v)
	}
	if g.Enabled {
		m.enabled.Set(1)
	} else {
		m.enabled.Set(0)
	}
}

// SetLoopRunning publishes a domain loop's lifecycle as a 0/1 gauge.
func (m *Metrics) SetLoopRunning(domain string, running bool) {
	v := 0.0
	if running {
		v = 1
	}
	m.loopRunning.WithLabelValues(domain).Set(v)
}
