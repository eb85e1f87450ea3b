package storage

import (
	"context"
	"errors"
	"strconv"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// applySettings writes the settings to the vm sysctls and every
// device queue, best-effort.
func applySettings(ctx context.Context, sink sysfs.Interface, topo Topology, s Settings) error {
	var errs []error

	sysctls := []struct {
		path, value, name string
	}{
		{vmSwappiness, strconv.Itoa(s.Swappiness), "swappiness"},
		{vmDirtyRatio, strconv.Itoa(s.DirtyRatio), "dirty_ratio"},
		{vmDirtyBackgroundRatio, strconv.Itoa(s.DirtyBackgroundRatio), "dirty_background_ratio"},
	}
	for _, sc := range sysctls {
		if err := sink.Write(ctx, sc.path, sc.value); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "storage", Tunable: sc.name, Err: err})
		}
	}

	for _, dev := range topo.Devices {
		if err := sink.Write(ctx, devPath(dev.Name, "queue/scheduler"), string(s.Scheduler)); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "storage", Tunable: dev.Name + " scheduler", Err: err})
		}
		if err := sink.Write(ctx, devPath(dev.Name, "queue/read_ahead_kb"), strconv.Itoa(s.ReadAheadKB)); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "storage", Tunable: dev.Name + " read_ahead_kb", Err: err})
		}
		if err := sink.Write(ctx, devPath(dev.Name, "queue/nr_requests"), strconv.Itoa(s.NrRequests)); err != nil {
			errs = append(errs, &tune.ApplyError{Domain: "storage", Tunable: dev.Name + " nr_requests", Err: err})
		}
	}

	return errors.Join(errs...)
}

// applyReset restores the neutral defaults: balanced scheduler, modest
// read-ahead, kernel-default vm writeback behavior.
func applyReset(ctx context.Context, sink sysfs.Interface, topo Topology) error {
	neutral := sanitize(DefaultSettings(), topo)
	return applySettings(ctx, sink, topo, neutral)
}
