package network

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// lossThreshold is the receive-loss fraction above which the MTU is
// backed off.
const lossThreshold = 0.01

// recommendMTU shrinks the MTU by 10% while loss stays over the
// threshold, floored at the IPv6 minimum.
func recommendMTU(loss float64, mtu int) int {
	if loss <= lossThreshold || mtu <= 0 {
		return mtu
	}
	next := mtu * 9 / 10
	if next < MinMTU {
		next = MinMTU
	}
	return next
}

// recommendTxQueueLen grows the queue by 50% when transmit errors were
// seen, capped so a persistent fault cannot grow it without bound.
func recommendTxQueueLen(txErrors uint64, txq int) int {
	if txErrors == 0 || txq <= 0 {
		return txq
	}
	next := txq * 3 / 2
	if next > maxTxQueueLen {
		next = maxTxQueueLen
	}
	return next
}

// window is the per-pass counter baseline for one interface. Counters
// in /sys are cumulative since boot; the rules react to what happened
// since the previous pass, not to history.
type window struct {
	rxPackets uint64
	rxErrors  uint64
	rxDropped uint64
	txErrors  uint64
}

func delta(cur, prev uint64) uint64 {
	if cur < prev { // counter reset
		return cur
	}
	return cur - prev
}

// adaptivePass runs one control cycle: sample the counters, compute
// per-interface loss and transmit-error deltas against the previous
// pass, and write only the tunables whose computed value differs from
// the observed state. The first pass only establishes the baseline.
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
		log.Printf("network: adaptive snapshot: %v", err)
	}

	ctx := context.Background()
	for _, is := range st.Interfaces {
		prev, seen := m.prevWindow[is.Name]
		m.prevWindow[is.Name] = window{
			rxPackets: is.RxPackets,
			rxErrors:  is.RxErrors,
			rxDropped: is.RxDropped,
			txErrors:  is.TxErrors,
		}
		if !seen {
			continue
		}

		loss := lossFraction(
			delta(is.RxPackets, prev.rxPackets),
			delta(is.RxDropped, prev.rxDropped),
			delta(is.RxErrors, prev.rxErrors),
		)
		if next := recommendMTU(loss, is.MTU); next != is.MTU {
			if err := m.sink.Write(ctx, ifPath(is.Name, "mtu"), strconv.Itoa(next)); err != nil {
				log.Printf("network: adaptive %s mtu: %v", is.Name, err)
			} else {
				m.emit(is.Name, "mtu", strconv.Itoa(is.MTU), strconv.Itoa(next))
			}
		}

		txErrDelta := delta(is.TxErrors, prev.txErrors)
		if next := recommendTxQueueLen(txErrDelta, is.TxQueueLen); next != is.TxQueueLen {
			if err := m.sink.Write(ctx, ifPath(is.Name, "tx_queue_len"), strconv.Itoa(next)); err != nil {
				log.Printf("network: adaptive %s tx_queue_len: %v", is.Name, err)
			} else {
				m.emit(is.Name, "tx_queue_len", strconv.Itoa(is.TxQueueLen), strconv.Itoa(next))
			}
		}
	}
}

func (m *Manager) emit(resource, tunable, from, to string) {
	if m.onAction == nil {
		return
	}
	m.onAction(tune.Action{
		Domain:   "network",
		Resource: resource,
		Tunable:  tunable,
		From:     from,
		To:       to,
		Time:     time.Now(),
	})
}
