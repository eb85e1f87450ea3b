package cpu

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

func clampFreq(khz int, core Core) int {
	if khz < core.MinFreqKHz {
		return core.MinFreqKHz
	}
	if khz > core.MaxFreqKHz {
		return core.MaxFreqKHz
	}
	return khz
}

// cpuMask renders a hex affinity mask for the given core IDs, the
// format /proc/irq/*/smp_affinity expects.
func cpuMask(ids []int) string {
	var mask uint64
	for _, id := range ids {
		if id >= 0 && id < 64 {
			mask |= 1 << uint(id)
		}
	}
	return fmt.Sprintf("%x", mask)
}

func boolFile(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// applySettings writes the settings to every core, best-effort: each
// failed tunable is collected and skipped, never aborting the rest.
func applySettings(ctx context.Context, sink sysfs.Interface, topo Topology, s Settings) error {
	var errs []error

	for _, core := range topo.Cores {
		gov := s.Governor
		if core.Reserved {
			gov = s.ReservedGovernor
		}
		if err := sink.Write(ctx, freqPath(core.ID, "scaling_governor"), string(gov)); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "cpu", Tunable: fmt.Sprintf("core%d governor", core.ID), Err: err})
		}
		minKHz := clampFreq(s.MinFreqKHz, core)
		if err := sink.Write(ctx, freqPath(core.ID, "scaling_min_freq"), strconv.Itoa(minKHz)); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "cpu", Tunable: fmt.Sprintf("core%d min_freq", core.ID), Err: err})
		}
		maxKHz := clampFreq(s.MaxFreqKHz, core)
		if err := sink.Write(ctx, freqPath(core.ID, "scaling_max_freq"), strconv.Itoa(maxKHz)); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "cpu", Tunable: fmt.Sprintf("core%d max_freq", core.ID), Err: err})
		}
	}

	if topo.HasBoost {
		if err := sink.Write(ctx, boostPath, boolFile(s.Boost)); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "cpu", Tunable: "boost", Err: err})
		}
	}

	if s.IsolateIRQs {
		if err := steerIRQs(ctx, sink, topo, nonReservedIDs(topo)); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// applyReset restores the neutral OS defaults: balanced governor, full
// hardware frequency band, boost on, IRQs spread over every core.
func applyReset(ctx context.Context, sink sysfs.Interface, topo Topology) error {
	neutral := sanitize(DefaultSettings(topo), topo)
	errs := []error{applySettings(ctx, sink, topo, neutral)}
	errs = append(errs, steerIRQs(ctx, sink, topo, allIDs(topo)))
	return errors.Join(errs...)
}

// steerIRQs points every detected IRQ's affinity mask at the given
// cores. Many IRQs reject affinity changes (per-CPU interrupts, timer);
// those writes fail and are skipped like any other tunable.
func steerIRQs(ctx context.Context, sink sysfs.Interface, topo Topology, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	mask := cpuMask(ids)
	var errs []error
	for _, irq := range topo.IRQs {
		path := fmt.Sprintf("%s/%d/smp_affinity", irqRoot, irq)
		if err := sink.Write(ctx, path, mask); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "cpu", Tunable: fmt.Sprintf("irq%d affinity", irq), Err: err})
		}
	}
	return errors.Join(errs...)
}

func nonReservedIDs(topo Topology) []int {
	var ids []int
	for _, c := range topo.Cores {
		if !c.Reserved {
			ids = append(ids, c.ID)
		}
	}
	// Single-core or fully reserved topologies have nowhere else to
	// steer interrupts.
	if len(ids) == 0 {
		return allIDs(topo)
	}
	return ids
}

func allIDs(topo Topology) []int {
	ids := make([]int, len(topo.Cores))
	for i, c := range topo.Cores {
		ids[i] = c.ID
	}
	return ids
}
