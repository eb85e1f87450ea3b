package cpu

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/tune"
)

const (
	// Utilization watermarks for the governor rule on non-reserved
	// cores.
	utilHighWater = 0.80
	utilLowWater  = 0.20
	// thermalBackoff is applied to a core's frequency cap when it runs
	// over the temperature limit.
	thermalBackoffNum = 9
	thermalBackoffDen = 10
)

// recommendGovernor picks a governor from a core's utilization.
// Reserved cores keep the reserved governor unconditionally; the
// power-saving policy never reaches them.
func recommendGovernor(util float64, reserved bool, s Settings) Governor {
	if reserved {
		return s.ReservedGovernor
	}
	switch {
	case util > utilHighWater:
		return GovernorPerformance
	case util < utilLowWater:
		return GovernorPowersave
	default:
		return GovernorSchedutil
	}
}

// recommendMaxFreq backs a core's frequency cap off by 10% while it
// runs hotter than the limit, floored at the hardware minimum. Cool
// cores keep their current cap; raising it again is mode resolution's
// job, not the control loop's.
func recommendMaxFreq(temp, maxTemp float64, currentMaxKHz, minKHz int) int {
	if currentMaxKHz <= 0 || temp <= maxTemp {
		return currentMaxKHz
	}
	next := currentMaxKHz * thermalBackoffNum / thermalBackoffDen
	if next < minKHz {
		next = minKHz
	}
	return next
}

// adaptivePass runs one control cycle: snapshot, compute the corrective
// deltas, and write only the tunables whose computed value differs from
// the observed state.
func (m *Manager) adaptivePass() {
	s := m.cell.Settings()
	if !s.Enabled || !s.Adaptive {
		return
	}
	topo, ok := m.topology()
	if !ok {
		return
	}

	st, err := Snapshot(m.sink, topo)
	if err != nil {
		log.Printf("cpu: adaptive snapshot: %v", err)
	}

	ctx := context.Background()
	for i, core := range topo.Cores {
		if i >= len(st.Cores) {
			break
		}
		cs := st.Cores[i]

		if gov := recommendGovernor(cs.Utilization, core.Reserved, s); gov != cs.Governor && gov != "" {
			if topo.HasGovernor(gov) {
				if err := m.sink.Write(ctx, freqPath(core.ID, "scaling_governor"), string(gov)); err != nil {
					log.Printf("cpu: adaptive core%d governor: %v", core.ID, err)
				} else {
					m.emit(fmt.Sprintf("core%d", core.ID), "governor", string(cs.Governor), string(gov))
				}
			}
		}

		if next := recommendMaxFreq(cs.Temperature, s.MaxTemperature, cs.MaxFreqKHz, core.MinFreqKHz); next != cs.MaxFreqKHz {
			if err := m.sink.Write(ctx, freqPath(core.ID, "scaling_max_freq"), strconv.Itoa(next)); err != nil {
				log.Printf("cpu: adaptive core%d max_freq: %v", core.ID, err)
			} else {
				m.emit(fmt.Sprintf("core%d", core.ID), "max_freq", strconv.Itoa(cs.MaxFreqKHz), strconv.Itoa(next))
			}
		}
	}
}

func (m *Manager) emit(resource, tunable, from, to string) {
	if m.onAction == nil {
		return
	}
	m.onAction(tune.Action{
		Domain:   "cpu",
		Resource: resource,
		Tunable:  tunable,
		From:     from,
		To:       to,
		Time:     time.Now(),
	})
}
