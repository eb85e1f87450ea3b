// Package sysfs abstracts the kernel tuning surface: text control files
// under /sys and /proc plus the handful of OS utilities that have no
// file interface. Managers depend on the narrow Interface so the same
// control logic runs against the real OS and against an in-memory fake
// in tests.
package sysfs

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"
)

// Interface is the capability surface the resource managers tune
// through. Read returns the trimmed file content, with ok=false when
// the path does not exist; callers treat that as "feature unsupported"
// and skip the tunable. Glob enumerates the surface (cores, interfaces,
// block devices). Write and Run report failures for the caller to log;
// neither is ever fatal to a tuning pass.
type Interface interface {
	Read(path string) (value string, ok bool)
	Glob(pattern string) []string
	Write(ctx context.Context, path, value string) error
	Run(ctx context.Context, name string, args ...string) error
}

// OS tunes the real kernel control files. Writes are paced so an
// adaptive burst cannot flood the control surface.
type OS struct {
	limiter *rate.Limiter
}

func NewOS() *OS {
	// Burst sized for one full apply pass across all three domains.
	return &OS{limiter: rate.NewLimiter(rate.Limit(200), 64)}
}

func (o *OS) Read(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func (o *OS) Glob(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	return matches
}

func (o *OS) Write(ctx context.Context, path, value string) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (o *OS) Run(ctx context.Context, name string, args ...string) error {
	if err := o.limiter.Wait(ctx); err != nil {
		return err
	}
	if out, err := exec.CommandContext(ctx, name, args...).CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}
