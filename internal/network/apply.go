package network

import (
	"context"
	"errors"
	"strconv"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// applySettings writes the settings to the stack sysctls and every
// interface, best-effort. Wireless power management and the queueing
// discipline have no file interface and go through the command
// surface.
func applySettings(ctx context.Context, sink sysfs.Interface, topo Topology, s Settings) error {
	var errs []error

	sysctls := []struct {
		path, value, name string
	}{
		{currentCCPath, string(s.Congestion), "tcp_congestion_control"},
		{rmemMaxPath, strconv.Itoa(s.RmemMaxBytes), "rmem_max"},
		{wmemMaxPath, strconv.Itoa(s.WmemMaxBytes), "wmem_max"},
		{busyPollPath, strconv.Itoa(s.BusyPollUsecs), "busy_poll"},
		{busyReadPath, strconv.Itoa(s.BusyPollUsecs), "busy_read"},
	}
	for _, sc := range sysctls {
		if err := sink.Write(ctx, sc.path, sc.value); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "network", Tunable: sc.name, Err: err})
		}
	}

	for _, iface := range topo.Interfaces {
		if err := sink.Write(ctx, ifPath(iface.Name, "mtu"), strconv.Itoa(s.MTU)); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "network", Tunable: iface.Name + " mtu", Err: err})
		}
		if err := sink.Write(ctx, ifPath(iface.Name, "tx_queue_len"), strconv.Itoa(s.TxQueueLen)); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "network", Tunable: iface.Name + " tx_queue_len", Err: err})
		}

		qdisc := "fq_codel"
		if s.FQPacing {
			qdisc = "fq"
		}
		if err := sink.Run(ctx, "tc", "qdisc", "replace", "dev", iface.Name, "root", qdisc); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "network", Tunable: iface.Name + " qdisc", Err: err})
		}

		if iface.Wireless {
			if err := sink.Run(ctx, "iw", "dev", iface.Name, "set", "power_save", onOff(s.WifiPowerSave)); err != nil {
				errs = append(errs, &tune.ApplyError{Domain: "network", Tunable: iface.Name + " power_save", Err: err})
			}
		}
	}

	return errors.Join(errs...)
}

// applyReset restores the neutral defaults: standard MTU and queue
// length, cubic, kernel-default buffers, no busy polling, fq_codel,
// wireless power saving back on.
func applyReset(ctx context.Context, sink sysfs.Interface, topo Topology) error {
	neutral := sanitize(DefaultSettings(), topo)
	return applySettings(ctx, sink, topo, neutral)
}
