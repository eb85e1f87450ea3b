package storage

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/tune"
)

const (
	// In-flight I/O watermarks for the scheduler tiers.
	inFlightHighWater = 10
	inFlightLowWater  = 4

	// Read-ratio watermarks for the read-ahead tiers.
	readHeavyRatio  = 0.7
	writeHeavyRatio = 0.3

	readAheadLargeKB  = 512
	readAheadMediumKB = 256
	readAheadSmallKB  = 128
)

// recommendScheduler classifies queue pressure into a scheduler tier:
// deep queues want raw throughput, shallow ones can afford fairness.
func recommendScheduler(inFlight int, topo Topology) Scheduler {
	switch {
	case inFlight > inFlightHighWater:
		return supportedScheduler(SchedulerNone, topo)
	case inFlight <= inFlightLowWater:
		return supportedScheduler(SchedulerBFQ, topo)
	default:
		return supportedScheduler(SchedulerMQDeadline, topo)
	}
}

// recommendReadAhead picks the read-ahead tier for the observed
// read/write mix.
func recommendReadAhead(ratio float64) int {
	switch {
	case ratio >= readHeavyRatio:
		return readAheadLargeKB
	case ratio <= writeHeavyRatio:
		return readAheadSmallKB
	default:
		return readAheadMediumKB
	}
}

// ioWindow is the per-pass counter baseline for one device. The stat
// counters are cumulative since boot; the read-ratio rule reacts to
// the mix since the previous pass.
type ioWindow struct {
	reads  uint64
	writes uint64
}

func delta(cur, prev uint64) uint64 {
	if cur < prev { // counter reset
		return cur
	}
	return cur - prev
}

// adaptivePass runs one control cycle: sample the devices, classify
// queue pressure and the windowed read/write mix, and write only the
// tunables whose computed value differs from the observed state. The
// first pass only establishes the baseline for the ratio rule; the
// in-flight rule works on the gauge and applies immediately.
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
		log.Printf("storage: adaptive snapshot: %v", err)
	}

	ctx := context.Background()
	for _, ds := range st.Devices {
		if want := recommendScheduler(ds.InFlight, topo); want != ds.Scheduler && ds.Scheduler != "" {
			if err := m.sink.Write(ctx, devPath(ds.Name, "queue/scheduler"), string(want)); err != nil {
				log.Printf("storage: adaptive %s scheduler: %v", ds.Name, err)
			} else {
				m.emit(ds.Name, "scheduler", string(ds.Scheduler), string(want))
			}
		}

		prev, seen := m.prevWindow[ds.Name]
		m.prevWindow[ds.Name] = ioWindow{reads: ds.ReadsCompleted, writes: ds.WritesCompleted}
		if !seen {
			continue
		}

		reads := delta(ds.ReadsCompleted, prev.reads)
		writes := delta(ds.WritesCompleted, prev.writes)
		if reads+writes == 0 {
			continue
		}
		if want := recommendReadAhead(readRatio(reads, writes)); want != ds.ReadAheadKB {
			if err := m.sink.Write(ctx, devPath(ds.Name, "queue/read_ahead_kb"), strconv.Itoa(want)); err != nil {
				log.Printf("storage: adaptive %s read_ahead_kb: %v", ds.Name, err)
			} else {
				m.emit(ds.Name, "read_ahead_kb", strconv.Itoa(ds.ReadAheadKB), strconv.Itoa(want))
			}
		}
	}

	m.maybeTrim(ctx, topo, s)
}

// maybeTrim runs fstrim over the discard-capable mounted devices once
// per trim interval. Failures are logged and retried next interval.
func (m *Manager) maybeTrim(ctx context.Context, topo Topology, s Settings) {
	if s.TrimInterval <= 0 {
		return
	}
	now := time.Now()
	if m.lastTrim.IsZero() {
		// Startup does not count as a completed interval.
		m.lastTrim = now
		return
	}
	if now.Sub(m.lastTrim) < s.TrimInterval {
		return
	}
	m.lastTrim = now
	if err := m.Trim(ctx); err != nil {
		log.Printf("storage: trim: %v", err)
	}
}

func (m *Manager) emit(resource, tunable, from, to string) {
	if m.onAction == nil {
		return
	}
	m.onAction(tune.Action{
		Domain:   "storage",
		Resource: resource,
		Tunable:  tunable,
		From:     from,
		To:       to,
		Time:     time.Now(),
	})
}
