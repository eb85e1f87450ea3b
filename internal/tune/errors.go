package tune

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the resource managers.
var (
	ErrNoResources    = errors.New("tune: no tunable resources detected")
	ErrNotInitialized = errors.New("tune: manager not initialized")
	ErrUnavailable    = errors.New("tune: metric source unavailable")
)

// DetectionError is fatal: topology detection found no usable resources
// or could not enumerate the tuning surface at all. It aborts manager
// initialization.
type DetectionError struct {
	Domain string
	Err    error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("%s: topology detection failed: %v", e.Domain, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// ApplyError records a single tunable write that failed. Apply routines
// collect these and keep going; the aggregate is logged, never fatal.
type ApplyError struct {
	Domain  string
	Tunable string
	Err     error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("%s: apply %s: %v", e.Domain, e.Tunable, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// SnapshotError marks a single telemetry metric that could not be read.
// Snapshots substitute a sentinel value for the metric and carry on.
type SnapshotError struct {
	Domain string
	Metric string
	Err    error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%s: snapshot %s: %v", e.Domain, e.Metric, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }
