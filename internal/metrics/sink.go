package metrics

import (
	"context"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// sink decorates a tuning surface with traffic counters. Reads are not
// counted; they are cheap and constant-rate.
type sink struct {
	inner sysfs.Interface
	m     *Metrics
}

// WrapSink returns a tuning surface that counts writes and command
// invocations into the registry while delegating to inner.
func (m *Metrics) WrapSink(inner sysfs.Interface) sysfs.Interface {
	return &sink{inner: inner, m: m}
}

func (s *sink) Read(path string) (string, bool) {
	return s.inner.Read(path)
}

func (s *sink) Glob(pattern string) []string {
	return s.inner.Glob(pattern)
}

func (s *sink) Write(ctx context.Context, path, value string) error {
	err := s.inner.Write(ctx, path, value)
	if err != nil {
		s.m.writes.WithLabelValues(resultError).Inc()
	} else {
		s.m.writes.WithLabelValues(resultOK).Inc()
	}
	return err
}

func (s *sink) Run(ctx context.Context, name string, args ...string) error {
	err := s.inner.Run(ctx, name, args...)
	if err != nil {
		s.m.commands.WithLabelValues(resultError).Inc()
	} else {
		s.m.commands.WithLabelValues(resultOK).Inc()
	}
	return err
}
