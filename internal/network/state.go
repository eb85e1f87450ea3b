package network

import (
	"strconv"
	"strings"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// InterfaceState is the live telemetry for one interface. Counters are
// cumulative since boot; Loss is the receive-side loss fraction
// computed from them.
type InterfaceState struct {
	Name       string  `json:"name"`
	RxBytes    uint64  `json:"rx_bytes"`
	TxBytes    uint64  `json:"tx_bytes"`
	RxPackets  uint64  `json:"rx_packets"`
	TxPackets  uint64  `json:"tx_packets"`
	RxErrors   uint64  `json:"rx_errors"`
	TxErrors   uint64  `json:"tx_errors"`
	RxDropped  uint64  `json:"rx_dropped"`
	TxDropped  uint64  `json:"tx_dropped"`
	MTU        int     `json:"mtu"`
	TxQueueLen int     `json:"tx_queue_len"`
	Carrier    bool    `json:"carrier"`
	SignalDBM  int     `json:"signal_dbm"`
	Loss       float64 `json:"loss"`
}

// State is a point-in-time sample of the network domain.
type State struct {
	SampledAt  time.Time        `json:"sampled_at"`
	Interfaces []InterfaceState `json:"interfaces"`
}

// lossFraction is receive loss over total receive attempts:
// (dropped+errors)/(packets+dropped+errors).
func lossFraction(packets, dropped, errs uint64) float64 {
	total := packets + dropped + errs
	if total == 0 {
		return 0
	}
	return float64(dropped+errs) / float64(total)
}

func readCounter(sink sysfs.Interface, name, counter string) uint64 {
	raw, ok := sink.Read(statPath(name, counter))
	if !ok {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func readInt(sink sysfs.Interface, path string) int {
	raw, ok := sink.Read(path)
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}

// parseWirelessSignal extracts the signal level in dBm for an
// interface from /proc/net/wireless content. The level column carries
// a trailing dot.
func parseWirelessSignal(data, name string) (int, bool) {
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 || !strings.HasPrefix(fields[0], name+":") {
			continue
		}
		level := strings.TrimSuffix(fields[3], ".")
		dbm, err := strconv.Atoi(level)
		if err != nil {
			return 0, false
		}
		return dbm, true
	}
	return 0, false
}

// Snapshot samples live interface telemetry with direct counter reads.
// A single unreadable metric is recorded as its zero sentinel; the
// error reports the degenerate case of no readable counters at all.
func Snapshot(sink sysfs.Interface, topo Topology) (State, error) {
	st := State{SampledAt: time.Now()}

	wireless, haveWireless := sink.Read(procWireless)

	readable := false
	for _, iface := range topo.Interfaces {
		is := InterfaceState{Name: iface.Name}

		if _, ok := sink.Read(statPath(iface.Name, "rx_packets")); ok {
			readable = true
		}
		is.RxBytes = readCounter(sink, iface.Name, "rx_bytes")
		is.TxBytes = readCounter(sink, iface.Name, "tx_bytes")
		is.RxPackets = readCounter(sink, iface.Name, "rx_packets")
		is.TxPackets = readCounter(sink, iface.Name, "tx_packets")
		is.RxErrors = readCounter(sink, iface.Name, "rx_errors")
		is.TxErrors = readCounter(sink, iface.Name, "tx_errors")
		is.RxDropped = readCounter(sink, iface.Name, "rx_dropped")
		is.TxDropped = readCounter(sink, iface.Name, "tx_dropped")
		is.MTU = readInt(sink, ifPath(iface.Name, "mtu"))
		is.TxQueueLen = readInt(sink, ifPath(iface.Name, "tx_queue_len"))
		is.Carrier = readInt(sink, ifPath(iface.Name, "carrier")) == 1
		is.Loss = lossFraction(is.RxPackets, is.RxDropped, is.RxErrors)

		if iface.Wireless && haveWireless {
			if dbm, ok := parseWirelessSignal(wireless, iface.Name); ok {
				is.SignalDBM = dbm
			}
		}

		st.Interfaces = append(st.Interfaces, is)
	}

	if !readable {
		return st, &tune.SnapshotError{Domain: "network", Metric: "counters", Err: tune.ErrUnavailable}
	}
	return st, nil
}
