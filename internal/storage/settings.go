package storage

import (
	"time"

	"github.com/vrtuned-go/vrtuned/internal/tune"
)

const (
	defaultReadAheadKB = 128
	minReadAheadKB     = 4
	maxReadAheadKB     = 4096

	defaultNrRequests = 64
	minNrRequests     = 4
	maxNrRequests     = 1024

	// Kernel defaults for the vm writeback sysctls.
	defaultSwappiness           = 60
	defaultDirtyRatio           = 20
	defaultDirtyBackgroundRatio = 10

	defaultTrimInterval     = 24 * time.Hour
	defaultAdaptiveInterval = time.Second
)

// Settings is the desired storage tuning state derived from the global
// optimization mode. Scheduler, read-ahead and queue depth are written
// to every detected device; the vm fields are host-wide sysctls.
type Settings struct {
	Enabled              bool          `json:"enabled"`
	Scheduler            Scheduler     `json:"scheduler"`
	ReadAheadKB          int           `json:"read_ahead_kb"`
	NrRequests           int           `json:"nr_requests"`
	Swappiness           int           `json:"swappiness"`
	DirtyRatio           int           `json:"dirty_ratio"`
	DirtyBackgroundRatio int           `json:"dirty_background_ratio"`
	TrimInterval         time.Duration `json:"trim_interval"`
	Adaptive             bool          `json:"adaptive"`
	AdaptiveInterval     time.Duration `json:"adaptive_interval"`
}

// DefaultSettings is the neutral configuration the reset path restores:
// balanced scheduler, modest read-ahead, kernel-default vm knobs.
func DefaultSettings() Settings {
	return Settings{
		Scheduler:            SchedulerMQDeadline,
		ReadAheadKB:          defaultReadAheadKB,
		NrRequests:           defaultNrRequests,
		Swappiness:           defaultSwappiness,
		DirtyRatio:           defaultDirtyRatio,
		DirtyBackgroundRatio: defaultDirtyBackgroundRatio,
		TrimInterval:         defaultTrimInterval,
		AdaptiveInterval:     defaultAdaptiveInterval,
	}
}

// Resolve maps the global optimization mode to concrete storage
// settings. Balanced and Custom are pass-through.
func Resolve(mode tune.Mode, aggressive bool, prev Settings) Settings {
	if !mode.Fixed() {
		return prev
	}

	s := prev
	s.TrimInterval = defaultTrimInterval

	switch mode {
	case tune.ModePerformance:
		s.Scheduler = SchedulerNone
		s.ReadAheadKB = 512
		s.NrRequests = 256
		s.Swappiness = 10
		s.DirtyRatio = 40
		s.DirtyBackgroundRatio = 10
		if aggressive {
			s.ReadAheadKB = 1024
		}
	case tune.ModeEfficiency:
		s.Scheduler = SchedulerMQDeadline
		s.ReadAheadKB = 128
		s.NrRequests = 64
		s.Swappiness = 60
		s.DirtyRatio = 20
		s.DirtyBackgroundRatio = 5
		if aggressive {
			s.NrRequests = 32
		}
	case tune.ModeLatency:
		s.Scheduler = SchedulerKyber
		s.ReadAheadKB = 128
		s.NrRequests = 32
		s.Swappiness = 10
		s.DirtyRatio = 15
		s.DirtyBackgroundRatio = 5
		if aggressive {
			s.NrRequests = 16
		}
	case tune.ModeThermal:
		s.Scheduler = SchedulerMQDeadline
		s.ReadAheadKB = 128
		s.NrRequests = 64
		s.Swappiness = 40
		s.DirtyRatio = 20
		s.DirtyBackgroundRatio = 5
	}
	return s
}

// schedulerFallbacks orders the substitutes tried when a selected
// scheduler is absent from the capability set.
var schedulerFallbacks = []Scheduler{SchedulerMQDeadline, SchedulerBFQ, SchedulerKyber, SchedulerNone}

func supportedScheduler(s Scheduler, topo Topology) Scheduler {
	if len(topo.Schedulers) == 0 || topo.HasScheduler(s) {
		return s
	}
	for _, fb := range schedulerFallbacks {
		if topo.HasScheduler(fb) {
			return fb
		}
	}
	return s
}

func clampInt(v, min, max, fallback int) int {
	if v <= 0 {
		return fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// sanitize pins the settings inside the capability set and sane bounds.
func sanitize(s Settings, topo Topology) Settings {
	s.Scheduler = supportedScheduler(s.Scheduler, topo)
	s.ReadAheadKB = clampInt(s.ReadAheadKB, minReadAheadKB, maxReadAheadKB, defaultReadAheadKB)
	s.NrRequests = clampInt(s.NrRequests, minNrRequests, maxNrRequests, defaultNrRequests)

	if s.Swappiness < 0 || s.Swappiness > 200 {
		s.Swappiness = defaultSwappiness
	}
	if s.DirtyRatio <= 0 || s.DirtyRatio > 100 {
		s.DirtyRatio = defaultDirtyRatio
	}
	if s.DirtyBackgroundRatio <= 0 || s.DirtyBackgroundRatio >= s.DirtyRatio {
		s.DirtyBackgroundRatio = s.DirtyRatio / 2
	}
	if s.TrimInterval < 0 {
		s.TrimInterval = 0
	}
	if s.AdaptiveInterval <= 0 {
		s.AdaptiveInterval = defaultAdaptiveInterval
	}
	return s
}
