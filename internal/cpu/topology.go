// Package cpu tunes the CPU frequency scaling and interrupt surface:
// per-core governors and frequency bounds, the boost toggle, and IRQ
// affinity. A fixed prefix of cores is reserved for latency-critical
// work and exempted from power-saving adjustments.
package cpu

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// Governor is a CPU frequency scaling policy.
type Governor string

const (
	GovernorPerformance  Governor = "performance"
	GovernorPowersave    Governor = "powersave"
	GovernorSchedutil    Governor = "schedutil"
	GovernorOndemand     Governor = "ondemand"
	GovernorConservative Governor = "conservative"
)

var knownGovernors = []Governor{
	GovernorPerformance,
	GovernorPowersave,
	GovernorSchedutil,
	GovernorOndemand,
	GovernorConservative,
}

const (
	cpuRoot     = "/sys/devices/system/cpu"
	thermalRoot = "/sys/class/thermal"
	irqRoot     = "/proc/irq"
	boostPath   = cpuRoot + "/cpufreq/boost"
)

// Core is one tunable CPU core.
type Core struct {
	ID         int  `json:"id"`
	MinFreqKHz int  `json:"min_freq_khz"`
	MaxFreqKHz int  `json:"max_freq_khz"`
	Reserved   bool `json:"reserved"`
}

// Topology is the CPU tuning surface, detected once at initialization
// and immutable afterwards.
type Topology struct {
	Cores        []Core     `json:"cores"`
	Reserved     []int      `json:"reserved"`
	Governors    []Governor `json:"governors"`
	MinFreqKHz   int        `json:"min_freq_khz"`
	MaxFreqKHz   int        `json:"max_freq_khz"`
	HasBoost     bool       `json:"has_boost"`
	IRQs         []int      `json:"irqs"`
	ThermalZones []string   `json:"thermal_zones"`
}

func (t Topology) clone() Topology {
	c := t
	c.Cores = append([]Core(nil), t.Cores...)
	c.Reserved = append([]int(nil), t.Reserved...)
	c.Governors = append([]Governor(nil), t.Governors...)
	c.IRQs = append([]int(nil), t.IRQs...)
	c.ThermalZones = append([]string(nil), t.ThermalZones...)
	return c
}

// HasGovernor reports whether the governor is in the detected
// capability set.
func (t Topology) HasGovernor(g Governor) bool {
	for _, have := range t.Governors {
		if have == g {
			return true
		}
	}
	return false
}

// ReservedCount is the fixed core partition: the first
// max(1, min(2, n/2)) cores are held for latency-critical work.
func ReservedCount(n int) int {
	r := n / 2
	if r > 2 {
		r = 2
	}
	if r < 1 {
		r = 1
	}
	return r
}

func freqPath(id int, file string) string {
	return fmt.Sprintf("%s/cpu%d/cpufreq/%s", cpuRoot, id, file)
}

// Detect enumerates the CPU tuning surface. It fails with a
// DetectionError when no core exposes a cpufreq directory; everything
// downstream assumes a non-empty topology.
func Detect(sink sysfs.Interface) (Topology, error) {
	var topo Topology

	ids := indexedEntries(sink.Glob(cpuRoot+"/cpu[0-9]*"), "cpu")
	for _, id := range ids {
		minRaw, ok := sink.Read(freqPath(id, "cpuinfo_min_freq"))
		if !ok {
			continue
		}
		maxRaw, ok := sink.Read(freqPath(id, "cpuinfo_max_freq"))
		if !ok {
			continue
		}
		minKHz, err1 := strconv.Atoi(minRaw)
		maxKHz, err2 := strconv.Atoi(maxRaw)
		if err1 != nil || err2 != nil || maxKHz <= 0 {
			continue
		}
		topo.Cores = append(topo.Cores, Core{ID: id, MinFreqKHz: minKHz, MaxFreqKHz: maxKHz})
	}
	if len(topo.Cores) == 0 {
		return Topology{}, &tune.DetectionError{Domain: "cpu", Err: tune.ErrNoResources}
	}

	reserved := ReservedCount(len(topo.Cores))
	for i := range topo.Cores {
		if i < reserved {
			topo.Cores[i].Reserved = true
			topo.Reserved = append(topo.Reserved, topo.Cores[i].ID)
		}
	}

	topo.MinFreqKHz = topo.Cores[0].MinFreqKHz
	topo.MaxFreqKHz = topo.Cores[0].MaxFreqKHz
	for _, c := range topo.Cores[1:] {
		if c.MinFreqKHz < topo.MinFreqKHz {
			topo.MinFreqKHz = c.MinFreqKHz
		}
		if c.MaxFreqKHz > topo.MaxFreqKHz {
			topo.MaxFreqKHz = c.MaxFreqKHz
		}
	}

	topo.Governors = detectGovernors(sink, topo.Cores[0].ID)
	_, topo.HasBoost = sink.Read(boostPath)
	topo.IRQs = indexedEntries(sink.Glob(irqRoot+"/*"), "")
	topo.ThermalZones = detectThermalZones(sink)

	return topo, nil
}

func detectGovernors(sink sysfs.Interface, id int) []Governor {
	raw, ok := sink.Read(freqPath(id, "scaling_available_governors"))
	if !ok {
		// Kernel does not expose the list; assume the common set.
		return []Governor{GovernorPerformance, GovernorPowersave, GovernorSchedutil}
	}
	var govs []Governor
	for _, field := range strings.Fields(raw) {
		for _, known := range knownGovernors {
			if field == string(known) {
				govs = append(govs, known)
				break
			}
		}
	}
	if len(govs) == 0 {
		return []Governor{GovernorPerformance, GovernorPowersave, GovernorSchedutil}
	}
	return govs
}

// detectThermalZones returns the zone temp files covering the CPU,
// ordered by zone index. Core i samples zone i when one exists per
// core, otherwise every core shares the first zone.
func detectThermalZones(sink sysfs.Interface) []string {
	zones := sink.Glob(thermalRoot + "/thermal_zone[0-9]*")
	sortByIndex(zones, "thermal_zone")

	var matched, all []string
	for _, zone := range zones {
		all = append(all, zone+"/temp")
		typ, ok := sink.Read(zone + "/type")
		if !ok {
			continue
		}
		typ = strings.ToLower(typ)
		for _, key := range []string{"cpu", "soc", "pkg", "tsens", "cluster"} {
			if strings.Contains(typ, key) {
				matched = append(matched, zone+"/temp")
				break
			}
		}
	}
	if len(matched) > 0 {
		return matched
	}
	if len(all) > 0 {
		return all[:1]
	}
	return nil
}

// indexedEntries extracts the numeric suffixes of glob results whose
// base name is prefix+digits, sorted numerically. cpu10 sorts after
// cpu2, which plain string order gets wrong.
func indexedEntries(paths []string, prefix string) []int {
	var ids []int
	for _, p := range paths {
		base := strings.TrimPrefix(path.Base(p), prefix)
		id, err := strconv.Atoi(base)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func sortByIndex(paths []string, prefix string) {
	sort.Slice(paths, func(i, j int) bool {
		a, _ := strconv.Atoi(strings.TrimPrefix(path.Base(paths[i]), prefix))
		b, _ := strconv.Atoi(strings.TrimPrefix(path.Base(paths[j]), prefix))
		return a < b
	})
}
