package cpu

import (
	"time"

	"github.com/vrtuned-go/vrtuned/internal/tune"
)

const (
	// DefaultMaxTemperature is the thermal backoff threshold outside
	// thermal mode, in degrees Celsius.
	DefaultMaxTemperature = 85
	// ThermalMaxTemperature is the tightened threshold resolved by
	// thermal mode.
	ThermalMaxTemperature = 75

	defaultAdaptiveInterval = time.Second
)

// Settings is the desired CPU tuning state derived from the global
// optimization mode.
type Settings struct {
	Enabled          bool          `json:"enabled"`
	Governor         Governor      `json:"governor"`
	ReservedGovernor Governor      `json:"reserved_governor"`
	MinFreqKHz       int           `json:"min_freq_khz"`
	MaxFreqKHz       int           `json:"max_freq_khz"`
	Boost            bool          `json:"boost"`
	MaxTemperature   float64       `json:"max_temperature"`
	IsolateIRQs      bool          `json:"isolate_irqs"`
	Adaptive         bool          `json:"adaptive"`
	AdaptiveInterval time.Duration `json:"adaptive_interval"`
}

// DefaultSettings is the neutral configuration applied before any mode
// resolution: balanced governor, full hardware frequency band.
func DefaultSettings(topo Topology) Settings {
	return Settings{
		Governor:         GovernorSchedutil,
		ReservedGovernor: GovernorSchedutil,
		MinFreqKHz:       topo.MinFreqKHz,
		MaxFreqKHz:       topo.MaxFreqKHz,
		Boost:            true,
		MaxTemperature:   DefaultMaxTemperature,
		AdaptiveInterval: defaultAdaptiveInterval,
	}
}

// Resolve maps the global optimization mode to concrete CPU settings.
// Balanced and Custom are pass-through: the previous settings are
// returned untouched so user or adaptive state is not overridden.
// The aggressive overlay is applied after mode resolution and pushes
// the dominant parameter of each mode to its extreme.
func Resolve(mode tune.Mode, aggressive bool, prev Settings, topo Topology) Settings {
	if !mode.Fixed() {
		return prev
	}

	s := prev
	band := topo.MaxFreqKHz - topo.MinFreqKHz

	switch mode {
	case tune.ModePerformance:
		s.Governor = GovernorPerformance
		s.ReservedGovernor = GovernorPerformance
		s.MinFreqKHz = topo.MinFreqKHz
		s.MaxFreqKHz = topo.MaxFreqKHz
		s.Boost = true
		s.MaxTemperature = DefaultMaxTemperature
		s.IsolateIRQs = false
		if aggressive {
			s.MinFreqKHz = topo.MaxFreqKHz
		}
	case tune.ModeEfficiency:
		s.Governor = GovernorPowersave
		s.ReservedGovernor = GovernorSchedutil
		s.MinFreqKHz = topo.MinFreqKHz
		s.MaxFreqKHz = topo.MinFreqKHz + band*3/4
		s.Boost = false
		s.MaxTemperature = DefaultMaxTemperature
		s.IsolateIRQs = false
		if aggressive {
			s.MaxFreqKHz = topo.MinFreqKHz + band*3/5
		}
	case tune.ModeLatency:
		s.Governor = GovernorPerformance
		s.ReservedGovernor = GovernorPerformance
		s.MinFreqKHz = topo.MaxFreqKHz
		s.MaxFreqKHz = topo.MaxFreqKHz
		s.Boost = true
		s.MaxTemperature = DefaultMaxTemperature
		s.IsolateIRQs = true
	case tune.ModeThermal:
		s.Governor = GovernorSchedutil
		s.ReservedGovernor = GovernorSchedutil
		s.MinFreqKHz = topo.MinFreqKHz
		s.MaxFreqKHz = topo.MinFreqKHz + band*4/5
		s.Boost = false
		s.MaxTemperature = ThermalMaxTemperature
		s.IsolateIRQs = false
		if aggressive {
			s.MaxFreqKHz = topo.MinFreqKHz + band*7/10
			s.MaxTemperature = 70
		}
	}
	return s
}

// governorFallbacks orders the substitutes tried when a selected
// governor is absent from the topology capability set.
var governorFallbacks = []Governor{
	GovernorSchedutil,
	GovernorOndemand,
	GovernorConservative,
	GovernorPerformance,
	GovernorPowersave,
}

func supportedGovernor(g Governor, topo Topology, allowPowersave bool) Governor {
	if topo.HasGovernor(g) && (allowPowersave || g != GovernorPowersave) {
		return g
	}
	for _, fb := range governorFallbacks {
		if !allowPowersave && fb == GovernorPowersave {
			continue
		}
		if topo.HasGovernor(fb) {
			return fb
		}
	}
	return g
}

// sanitize pins the settings inside the topology capability set:
// unsupported governors fall back, frequencies clamp to the hardware
// band, and reserved cores never get the power-saving governor.
func sanitize(s Settings, topo Topology) Settings {
	s.Governor = supportedGovernor(s.Governor, topo, true)
	s.ReservedGovernor = supportedGovernor(s.ReservedGovernor, topo, false)

	if s.MinFreqKHz < topo.MinFreqKHz {
		s.MinFreqKHz = topo.MinFreqKHz
	}
	if s.MaxFreqKHz > topo.MaxFreqKHz || s.MaxFreqKHz <= 0 {
		s.MaxFreqKHz = topo.MaxFreqKHz
	}
	if s.MaxFreqKHz < topo.MinFreqKHz {
		s.MaxFreqKHz = topo.MinFreqKHz
	}
	if s.MinFreqKHz > s.MaxFreqKHz {
		s.MinFreqKHz = s.MaxFreqKHz
	}
	if s.MaxTemperature <= 0 {
		s.MaxTemperature = DefaultMaxTemperature
	}
	if s.AdaptiveInterval <= 0 {
		s.AdaptiveInterval = defaultAdaptiveInterval
	}
	return s
}
