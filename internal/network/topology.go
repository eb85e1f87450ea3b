// Package network tunes the interface and TCP stack surface: MTU and
// queue lengths per interface, congestion control, socket buffer
// ceilings, busy polling, queueing discipline and wireless power
// management.
package network

import (
	"path"
	"strconv"
	"strings"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// Congestion is a TCP congestion control algorithm.
type Congestion string

const (
	CongestionCubic Congestion = "cubic"
	CongestionBBR   Congestion = "bbr"
	CongestionReno  Congestion = "reno"
)

var knownCongestion = []Congestion{CongestionCubic, CongestionBBR, CongestionReno}

const (
	netClass      = "/sys/class/net"
	procWireless  = "/proc/net/wireless"
	availableCC   = "/proc/sys/net/ipv4/tcp_available_congestion_control"
	currentCCPath = "/proc/sys/net/ipv4/tcp_congestion_control"
	rmemMaxPath   = "/proc/sys/net/core/rmem_max"
	wmemMaxPath   = "/proc/sys/net/core/wmem_max"
	busyPollPath  = "/proc/sys/net/core/busy_poll"
	busyReadPath  = "/proc/sys/net/core/busy_read"
)

// Interface is one tunable network interface.
type Interface struct {
	Name      string `json:"name"`
	Wireless  bool   `json:"wireless"`
	SpeedMbps int    `json:"speed_mbps"`
}

// Topology is the network tuning surface, detected once.
type Topology struct {
	Interfaces []Interface  `json:"interfaces"`
	Congestion []Congestion `json:"congestion"`
}

func (t Topology) clone() Topology {
	c := t
	c.Interfaces = append([]Interface(nil), t.Interfaces...)
	c.Congestion = append([]Congestion(nil), t.Congestion...)
	return c
}

// HasCongestion reports whether the algorithm is in the detected
// capability set.
func (t Topology) HasCongestion(cc Congestion) bool {
	for _, have := range t.Congestion {
		if have == cc {
			return true
		}
	}
	return false
}

func ifPath(name, file string) string {
	return netClass + "/" + name + "/" + file
}

func statPath(name, counter string) string {
	return netClass + "/" + name + "/statistics/" + counter
}

// Detect enumerates the non-loopback interfaces and the congestion
// control capability set. No usable interface is fatal.
func Detect(sink sysfs.Interface) (Topology, error) {
	var topo Topology

	for _, p := range sink.Glob(netClass + "/*") {
		name := path.Base(p)
		if name == "lo" {
			continue
		}
		if _, ok := sink.Read(ifPath(name, "mtu")); !ok {
			continue
		}
		iface := Interface{Name: name}
		if len(sink.Glob(ifPath(name, "wireless"))) > 0 {
			iface.Wireless = true
		}
		if raw, ok := sink.Read(ifPath(name, "speed")); ok {
			// Down links report -1.
			if speed, err := strconv.Atoi(raw); err == nil && speed > 0 {
				iface.SpeedMbps = speed
			}
		}
		topo.Interfaces = append(topo.Interfaces, iface)
	}
	if len(topo.Interfaces) == 0 {
		return Topology{}, &tune.DetectionError{Domain: "network", Err: tune.ErrNoResources}
	}

	topo.Congestion = detectCongestion(sink)
	return topo, nil
}

func detectCongestion(sink sysfs.Interface) []Congestion {
	raw, ok := sink.Read(availableCC)
	if !ok {
		return []Congestion{CongestionCubic, CongestionReno}
	}
	var ccs []Congestion
	for _, field := range strings.Fields(raw) {
		for _, known := range knownCongestion {
			if field == string(known) {
				ccs = append(ccs, known)
				break
			}
		}
	}
	if len(ccs) == 0 {
		return []Congestion{CongestionCubic, CongestionReno}
	}
	return ccs
}
