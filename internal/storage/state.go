package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// DeviceState is the live telemetry for one device, read from
// /sys/block/<dev>/stat plus the queue files the adaptive loop diffs
// against. Counters are cumulative since boot; InFlight is a gauge.
type DeviceState struct {
	Name            string    `json:"name"`
	ReadsCompleted  uint64    `json:"reads_completed"`
	ReadSectors     uint64    `json:"read_sectors"`
	WritesCompleted uint64    `json:"writes_completed"`
	WriteSectors    uint64    `json:"write_sectors"`
	InFlight        int       `json:"in_flight"`
	IOTicksMs       uint64    `json:"io_ticks_ms"`
	Scheduler       Scheduler `json:"scheduler"`
	ReadAheadKB     int       `json:"read_ahead_kb"`
	ReadRatio       float64   `json:"read_ratio"`
}

// State is a point-in-time sample of the storage domain.
type State struct {
	SampledAt time.Time     `json:"sampled_at"`
	Devices   []DeviceState `json:"devices"`
}

// readRatio is reads over total completed I/Os; 0 with no traffic.
func readRatio(reads, writes uint64) float64 {
	total := reads + writes
	if total == 0 {
		return 0
	}
	return float64(reads) / float64(total)
}

// devStat are the /sys/block/<dev>/stat fields this package cares
// about. The file is a single line of space-separated counters; layout
// per the kernel's block stat documentation.
type devStat struct {
	reads        uint64
	readSectors  uint64
	writes       uint64
	writeSectors uint64
	inFlight     int
	ioTicks      uint64
}

func parseDevStat(raw string) (devStat, bool) {
	fields := strings.Fields(raw)
	if len(fields) < 11 {
		return devStat{}, false
	}
	u := func(i int) uint64 {
		v, _ := strconv.ParseUint(fields[i], 10, 64)
		return v
	}
	inFlight, _ := strconv.Atoi(fields[8])
	return devStat{
		reads:        u(0),
		readSectors:  u(2),
		writes:       u(4),
		writeSectors: u(6),
		inFlight:     inFlight,
		ioTicks:      u(9),
	}, true
}

// Snapshot samples live device telemetry with direct reads. A single
// unreadable metric is recorded as its zero sentinel; the error
// reports the degenerate case of no readable stat file at all.
func Snapshot(sink sysfs.Interface, topo Topology) (State, error) {
	st := State{SampledAt: time.Now()}

	readable := false
	for _, dev := range topo.Devices {
		ds := DeviceState{Name: dev.Name}

		if raw, ok := sink.Read(devPath(dev.Name, "stat")); ok {
			if stat, ok := parseDevStat(raw); ok {
				readable = true
				ds.ReadsCompleted = stat.reads
				ds.ReadSectors = stat.readSectors
				ds.WritesCompleted = stat.writes
				ds.WriteSectors = stat.writeSectors
				ds.InFlight = stat.inFlight
				ds.IOTicksMs = stat.ioTicks
				ds.ReadRatio = readRatio(stat.reads, stat.writes)
			}
		}
		if raw, ok := sink.Read(devPath(dev.Name, "queue/scheduler")); ok {
			if _, current := parseSchedulers(raw); current != "" {
				ds.Scheduler = current
			}
		}
		if raw, ok := sink.Read(devPath(dev.Name, "queue/read_ahead_kb")); ok {
			if v, err := strconv.Atoi(raw); err == nil {
				ds.ReadAheadKB = v
			}
		}

		st.Devices = append(st.Devices, ds)
	}

	if !readable {
		return st, &tune.SnapshotError{Domain: "storage", Metric: "iostats", Err: tune.ErrUnavailable}
	}
	return st, nil
}
