package engine

import "golang.org/x/sys/unix"

// schedSetaffinity is swapped out by tests so they never reshape the
// test runner's affinity mask.
var schedSetaffinity = unix.SchedSetaffinity

// pinToCores restricts the calling thread to the given cores. Threads
// the runtime creates afterwards inherit the mask, which keeps the
// daemon's own work off the reserved cores.
func pinToCores(ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	var set unix.CPUSet
	for _, id := range ids {
		set.Set(id)
	}
	return schedSetaffinity(0, &set)
}
