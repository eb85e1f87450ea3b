package network

import (
	"time"

	"github.com/vrtuned-go/vrtuned/internal/tune"
)

const (
	// MinMTU is the IPv6 minimum; the adaptive loop never shrinks
	// below it.
	MinMTU     = 1280
	maxMTU     = 9000
	defaultMTU = 1500

	defaultTxQueueLen = 1000
	minTxQueueLen     = 16
	maxTxQueueLen     = 10000

	// Kernel default for rmem_max/wmem_max.
	defaultSockBufBytes = 212992

	defaultAdaptiveInterval = time.Second
)

// Settings is the desired network tuning state derived from the global
// optimization mode.
type Settings struct {
	Enabled          bool          `json:"enabled"`
	MTU              int           `json:"mtu"`
	TxQueueLen       int           `json:"tx_queue_len"`
	Congestion       Congestion    `json:"congestion"`
	WifiPowerSave    bool          `json:"wifi_power_save"`
	RmemMaxBytes     int           `json:"rmem_max_bytes"`
	WmemMaxBytes     int           `json:"wmem_max_bytes"`
	BusyPollUsecs    int           `json:"busy_poll_usecs"`
	FQPacing         bool          `json:"fq_pacing"`
	Adaptive         bool          `json:"adaptive"`
	AdaptiveInterval time.Duration `json:"adaptive_interval"`
}

// DefaultSettings is the neutral configuration: standard MTU and queue
// length, kernel-default buffers, power saving on.
func DefaultSettings() Settings {
	return Settings{
		MTU:              defaultMTU,
		TxQueueLen:       defaultTxQueueLen,
		Congestion:       CongestionCubic,
		WifiPowerSave:    true,
		RmemMaxBytes:     defaultSockBufBytes,
		WmemMaxBytes:     defaultSockBufBytes,
		AdaptiveInterval: defaultAdaptiveInterval,
	}
}

// Resolve maps the global optimization mode to concrete network
// settings. Balanced and Custom are pass-through. The aggressive
// overlay pushes each mode's dominant lever further the same way.
func Resolve(mode tune.Mode, aggressive bool, prev Settings) Settings {
	if !mode.Fixed() {
		return prev
	}

	s := prev
	s.MTU = defaultMTU

	switch mode {
	case tune.ModePerformance:
		s.TxQueueLen = 2000
		s.Congestion = CongestionBBR
		s.WifiPowerSave = false
		s.RmemMaxBytes = 8 << 20
		s.WmemMaxBytes = 8 << 20
		s.BusyPollUsecs = 0
		s.FQPacing = true
		if aggressive {
			s.TxQueueLen = 3000
			s.RmemMaxBytes = 16 << 20
			s.WmemMaxBytes = 16 << 20
		}
	case tune.ModeEfficiency:
		s.TxQueueLen = 500
		s.Congestion = CongestionCubic
		s.WifiPowerSave = true
		s.RmemMaxBytes = 4 << 20
		s.WmemMaxBytes = 4 << 20
		s.BusyPollUsecs = 0
		s.FQPacing = false
		if aggressive {
			s.TxQueueLen = 250
		}
	case tune.ModeLatency:
		s.TxQueueLen = defaultTxQueueLen
		s.Congestion = CongestionBBR
		s.WifiPowerSave = false
		s.RmemMaxBytes = 8 << 20
		s.WmemMaxBytes = 8 << 20
		s.BusyPollUsecs = 50
		s.FQPacing = true
		if aggressive {
			s.BusyPollUsecs = 100
		}
	case tune.ModeThermal:
		s.TxQueueLen = defaultTxQueueLen
		s.Congestion = CongestionCubic
		s.WifiPowerSave = true
		s.RmemMaxBytes = 4 << 20
		s.WmemMaxBytes = 4 << 20
		s.BusyPollUsecs = 0
		s.FQPacing = false
		if aggressive {
			s.TxQueueLen = 500
		}
	}
	return s
}

// congestionFallbacks orders the substitutes tried when a selected
// algorithm is absent from the capability set.
var congestionFallbacks = []Congestion{CongestionCubic, CongestionReno, CongestionBBR}

func supportedCongestion(cc Congestion, topo Topology) Congestion {
	if topo.HasCongestion(cc) {
		return cc
	}
	for _, fb := range congestionFallbacks {
		if topo.HasCongestion(fb) {
			return fb
		}
	}
	return cc
}

// sanitize pins the settings inside the capability set and sane bounds.
func sanitize(s Settings, topo Topology) Settings {
	s.Congestion = supportedCongestion(s.Congestion, topo)

	if s.MTU < MinMTU {
		s.MTU = MinMTU
	}
	if s.MTU > maxMTU {
		s.MTU = maxMTU
	}
	if s.TxQueueLen < minTxQueueLen {
		s.TxQueueLen = minTxQueueLen
	}
	if s.TxQueueLen > maxTxQueueLen {
		s.TxQueueLen = maxTxQueueLen
	}
	if s.RmemMaxBytes < 4096 {
		s.RmemMaxBytes = defaultSockBufBytes
	}
	if s.WmemMaxBytes < 4096 {
		s.WmemMaxBytes = defaultSockBufBytes
	}
	if s.BusyPollUsecs < 0 {
		s.BusyPollUsecs = 0
	}
	if s.AdaptiveInterval <= 0 {
		s.AdaptiveInterval = defaultAdaptiveInterval
	}
	return s
}
