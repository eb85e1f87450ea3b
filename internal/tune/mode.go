package tune

import (
	"fmt"
	"time"
)

// Mode is the global optimization mode. Each resource manager resolves
// it into a concrete set of tunables for its own domain.
type Mode string

const (
	ModePerformance Mode = "performance"
	ModeEfficiency  Mode = "efficiency"
	ModeLatency     Mode = "latency"
	ModeThermal     Mode = "thermal"
	ModeBalanced    Mode = "balanced"
	ModeCustom      Mode = "custom"
)

// Modes lists every valid mode in display order.
var Modes = []Mode{ModePerformance, ModeEfficiency, ModeLatency, ModeThermal, ModeBalanced, ModeCustom}

func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown optimization mode %q", s)
}

func (m Mode) String() string { return string(m) }

// Fixed reports whether the mode maps to a fixed parameter table.
// Balanced and Custom are pass-through: resolving them leaves the
// previous settings untouched.
func (m Mode) Fixed() bool {
	switch m {
	case ModePerformance, ModeEfficiency, ModeLatency, ModeThermal:
		return true
	}
	return false
}

// Global is the optimization input shared by all managers, supplied by
// the configuration layer and consumed read-only.
type Global struct {
	Enabled    bool          `json:"enabled"`
	Mode       Mode          `json:"mode"`
	Adaptive   bool          `json:"adaptive"`
	Aggressive bool          `json:"aggressive"`
	Interval   time.Duration `json:"interval"`
}
