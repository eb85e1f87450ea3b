// Package storage tunes the I/O side of the platform: per-device
// scheduler, read-ahead and queue depth, the vm writeback sysctls, and
// periodic TRIM. Detection, mode resolution and the adaptive loop
// follow the same manager shape as the cpu and network packages.
package storage

import (
	"path"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// Scheduler is a multi-queue I/O scheduler name.
type Scheduler string

const (
	SchedulerNone       Scheduler = "none"
	SchedulerMQDeadline Scheduler = "mq-deadline"
	SchedulerBFQ        Scheduler = "bfq"
	SchedulerKyber      Scheduler = "kyber"
)

var knownSchedulers = []Scheduler{SchedulerNone, SchedulerMQDeadline, SchedulerBFQ, SchedulerKyber}

const (
	blockRoot  = "/sys/block"
	procMounts = "/proc/mounts"

	vmSwappiness           = "/proc/sys/vm/swappiness"
	vmDirtyRatio           = "/proc/sys/vm/dirty_ratio"
	vmDirtyBackgroundRatio = "/proc/sys/vm/dirty_background_ratio"
)

// statfs is swapped out by tests; capacity probing is the only part of
// detection that does not go through the control-file surface.
var statfs = unix.Statfs

// Device is one detected block device.
type Device struct {
	Name          string      `json:"name"`
	Rotational    bool        `json:"rotational"`
	Schedulers    []Scheduler `json:"schedulers"`
	SupportsTrim  bool        `json:"supports_trim"`
	MountPoint    string      `json:"mount_point,omitempty"`
	CapacityBytes uint64      `json:"capacity_bytes"`
	FreeBytes     uint64      `json:"free_bytes"`
}

// Topology is the storage tuning surface, detected once. Schedulers is
// the capability set shared by every device; settings are sanitized
// against it.
type Topology struct {
	Devices    []Device    `json:"devices"`
	Schedulers []Scheduler `json:"schedulers"`
}

func (t Topology) clone() Topology {
	c := t
	c.Devices = make([]Device, len(t.Devices))
	for i, d := range t.Devices {
		c.Devices[i] = d
		c.Devices[i].Schedulers = append([]Scheduler(nil), d.Schedulers...)
	}
	c.Schedulers = append([]Scheduler(nil), t.Schedulers...)
	return c
}

// HasScheduler reports whether the scheduler is in the shared
// capability set.
func (t Topology) HasScheduler(s Scheduler) bool {
	for _, have := range t.Schedulers {
		if have == s {
			return true
		}
	}
	return false
}

func devPath(name, file string) string {
	return blockRoot + "/" + name + "/" + file
}

// skippedDevice filters the virtual block devices that are not real
// tuning targets.
func skippedDevice(name string) bool {
	for _, prefix := range []string{"loop", "ram", "zram", "dm-", "md"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// parseSchedulers splits a queue/scheduler line. The active scheduler
// is bracketed: "[mq-deadline] kyber bfq none".
func parseSchedulers(raw string) (available []Scheduler, current Scheduler) {
	for _, field := range strings.Fields(raw) {
		name := field
		active := false
		if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
			name = strings.Trim(name, "[]")
			active = true
		}
		s := Scheduler(name)
		known := false
		for _, k := range knownSchedulers {
			if s == k {
				known = true
				break
			}
		}
		if !known {
			continue
		}
		available = append(available, s)
		if active {
			current = s
		}
	}
	// A line carrying a single bare name is that scheduler.
	if current == "" && len(available) == 1 {
		current = available[0]
	}
	return available, current
}

// mountPoint resolves where a device (or one of its partitions) is
// mounted, from /proc/mounts.
func mountPoint(sink sysfs.Interface, name string) string {
	raw, ok := sink.Read(procMounts)
	if !ok {
		return ""
	}
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if strings.HasPrefix(fields[0], "/dev/"+name) {
			return fields[1]
		}
	}
	return ""
}

func capacity(mount string) (total, free uint64) {
	if mount == "" {
		return 0, 0
	}
	var st unix.Statfs_t
	if err := statfs(mount, &st); err != nil {
		return 0, 0
	}
	bsize := uint64(st.Bsize)
	return st.Blocks * bsize, st.Bavail * bsize
}

// Detect enumerates the tunable block devices. The shared scheduler
// capability set is the intersection across devices; no usable device
// is fatal.
func Detect(sink sysfs.Interface) (Topology, error) {
	var topo Topology

	for _, p := range sink.Glob(blockRoot + "/*") {
		name := path.Base(p)
		if skippedDevice(name) {
			continue
		}
		rot, ok := sink.Read(devPath(name, "queue/rotational"))
		if !ok {
			continue
		}

		dev := Device{Name: name, Rotational: rot == "1"}
		if raw, ok := sink.Read(devPath(name, "queue/scheduler")); ok {
			dev.Schedulers, _ = parseSchedulers(raw)
		}
		if raw, ok := sink.Read(devPath(name, "queue/discard_granularity")); ok {
			if g, err := strconv.Atoi(raw); err == nil && g > 0 {
				dev.SupportsTrim = true
			}
		}
		dev.MountPoint = mountPoint(sink, name)
		dev.CapacityBytes, dev.FreeBytes = capacity(dev.MountPoint)

		topo.Devices = append(topo.Devices, dev)
	}

	if len(topo.Devices) == 0 {
		return Topology{}, &tune.DetectionError{Domain: "storage", Err: tune.ErrNoResources}
	}

	topo.Schedulers = intersectSchedulers(topo.Devices)
	return topo, nil
}

// intersectSchedulers keeps the schedulers every device offers, in the
// first device's order. Devices that report no scheduler file at all
// do not constrain the set.
func intersectSchedulers(devices []Device) []Scheduler {
	var out []Scheduler
	var base []Scheduler
	for _, d := range devices {
		if len(d.Schedulers) > 0 {
			base = d.Schedulers
			break
		}
	}
	for _, s := range base {
		shared := true
		for _, d := range devices {
			if len(d.Schedulers) == 0 {
				continue
			}
			found := false
			for _, have := range d.Schedulers {
				if have == s {
					found = true
					break
				}
			}
			if !found {
				shared = false
				break
			}
		}
		if shared {
			out = append(out, s)
		}
	}
	return out
}
