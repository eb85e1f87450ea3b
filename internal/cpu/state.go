package cpu

import (
	"strconv"
	"strings"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

const (
	procStat = "/proc/stat"
	// sampleWindow separates the two /proc/stat reads a utilization
	// sample is computed from.
	sampleWindow = 100 * time.Millisecond
)

// CoreState is the live telemetry for one core.
type CoreState struct {
	ID          int      `json:"id"`
	FreqKHz     int      `json:"freq_khz"`
	MaxFreqKHz  int      `json:"max_freq_khz"`
	Governor    Governor `json:"governor"`
	Utilization float64  `json:"utilization"`
	Temperature float64  `json:"temperature"`
}

// State is a point-in-time sample of the CPU domain.
type State struct {
	SampledAt time.Time   `json:"sampled_at"`
	Cores     []CoreState `json:"cores"`
}

type cpuTimes struct {
	total uint64
	idle  uint64
}

// parseProcStat extracts per-core counter sums from /proc/stat
// content. Idle time includes iowait.
func parseProcStat(data string) map[int]cpuTimes {
	out := make(map[int]cpuTimes)
	for _, line := range strings.Split(data, "\n") {
		if !strings.HasPrefix(line, "cpu") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(fields[0], "cpu"))
		if err != nil {
			continue // aggregate "cpu" line
		}
		var t cpuTimes
		for i, f := range fields[1:] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				break
			}
			t.total += v
			if i == 3 || i == 4 { // idle, iowait
				t.idle += v
			}
		}
		out[id] = t
	}
	return out
}

// utilization computes 1 - idleDelta/totalDelta between two samples,
// clamped to 0 when a counter reset or wraparound makes the deltas
// unusable.
func utilization(prev, cur cpuTimes) float64 {
	if cur.total < prev.total || cur.idle < prev.idle {
		return 0
	}
	totalDelta := cur.total - prev.total
	if totalDelta == 0 {
		return 0
	}
	idleDelta := cur.idle - prev.idle
	u := 1 - float64(idleDelta)/float64(totalDelta)
	if u < 0 {
		return 0
	}
	if u > 1 {
		return 1
	}
	return u
}

func readMillideg(sink sysfs.Interface, path string) float64 {
	raw, ok := sink.Read(path)
	if !ok {
		return 0
	}
	millideg, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return float64(millideg) / 1000.0
}

func readKHz(sink sysfs.Interface, id int, file string) int {
	raw, ok := sink.Read(freqPath(id, file))
	if !ok {
		return 0
	}
	khz, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return khz
}

// Snapshot samples live CPU telemetry: a two-read utilization delta
// plus direct frequency, governor and temperature reads. Any single
// unreadable metric is recorded as its zero sentinel; the returned
// error reports a wholly unreadable /proc/stat but the State is still
// usable.
func Snapshot(sink sysfs.Interface, topo Topology) (State, error) {
	st := State{SampledAt: time.Now()}

	first, firstOK := sink.Read(procStat)
	time.Sleep(sampleWindow)
	second, secondOK := sink.Read(procStat)

	var prev, cur map[int]cpuTimes
	var err error
	if firstOK && secondOK {
		prev = parseProcStat(first)
		cur = parseProcStat(second)
	} else {
		err = &tune.SnapshotError{Domain: "cpu", Metric: "utilization", Err: tune.ErrUnavailable}
	}

	for _, core := range topo.Cores {
		cs := CoreState{
			ID:         core.ID,
			FreqKHz:    readKHz(sink, core.ID, "scaling_cur_freq"),
			MaxFreqKHz: readKHz(sink, core.ID, "scaling_max_freq"),
		}
		if raw, ok := sink.Read(freqPath(core.ID, "scaling_governor")); ok {
			cs.Governor = Governor(raw)
		}
		if p, ok := prev[core.ID]; ok {
			if c, ok := cur[core.ID]; ok {
				cs.Utilization = utilization(p, c)
			}
		}
		if len(topo.ThermalZones) > 0 {
			zone := topo.ThermalZones[0]
			if core.ID < len(topo.ThermalZones) {
				zone = topo.ThermalZones[core.ID]
			}
			cs.Temperature = readMillideg(sink, zone)
		}
		st.Cores = append(st.Cores, cs)
	}

	return st, err
}
