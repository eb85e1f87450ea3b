package sysfs

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
)

// WriteOp records one write against the fake surface.
type WriteOp struct {
	Path  string
	Value string
}

// Fake is an in-memory tuning surface for tests: a path->value store,
// an append-only write log, and recorded command invocations. Writes
// update the store, so a Read after a Write observes the new value the
// way a kernel control file would.
type Fake struct {
	mu        sync.Mutex
	files     map[string]string
	writes    []WriteOp
	commands  [][]string
	writeErrs map[string]error
	runErrs   map[string]error
}

func NewFake() *Fake {
	return &Fake{
		files:     make(map[string]string),
		writeErrs: make(map[string]error),
		runErrs:   make(map[string]error),
	}
}

// Set seeds a control file without recording a write.
func (f *Fake) Set(path, value string) {
	f.mu.Lock()
	f.files[path] = value
	f.mu.Unlock()
}

// FailWrite makes every write to path return err.
func (f *Fake) FailWrite(path string, err error) {
	f.mu.Lock()
	f.writeErrs[path] = err
	f.mu.Unlock()
}

// FailRun makes every invocation of the named command return err.
func (f *Fake) FailRun(name string, err error) {
	f.mu.Lock()
	f.runErrs[name] = err
	f.mu.Unlock()
}

func (f *Fake) Read(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.files[path]
	return v, ok
}

// Glob matches the pattern against seeded files and every ancestor
// directory implied by them, mirroring how filepath.Glob walks a real
// tree.
func (f *Fake) Glob(pattern string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	for p := range f.files {
		for q := p; q != "/" && q != "."; q = path.Dir(q) {
			seen[q] = struct{}{}
		}
	}
	var out []string
	for q := range seen {
		if ok, _ := path.Match(pattern, q); ok {
			out = append(out, q)
		}
	}
	sort.Strings(out)
	return out
}

func (f *Fake) Write(_ context.Context, path, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErrs[path]; err != nil {
		return err
	}
	f.files[path] = value
	f.writes = append(f.writes, WriteOp{Path: path, Value: value})
	return nil
}

func (f *Fake) Run(_ context.Context, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.runErrs[name]; err != nil {
		return err
	}
	f.commands = append(f.commands, append([]string{name}, args...))
	return nil
}

// Writes returns a copy of the write log.
func (f *Fake) Writes() []WriteOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WriteOp, len(f.writes))
	copy(out, f.writes)
	return out
}

// WriteCount reports how many writes have landed; tests use it for
// quiescence checks after stopping a background loop.
func (f *Fake) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

// Commands returns a copy of the recorded command invocations.
func (f *Fake) Commands() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.commands))
	for i, c := range f.commands {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// CommandCount reports how many commands have run.
func (f *Fake) CommandCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

// LastWrite returns the most recent write to path, if any.
func (f *Fake) LastWrite(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.writes) - 1; i >= 0; i-- {
		if f.writes[i].Path == path {
			return f.writes[i].Value, true
		}
	}
	return "", false
}

// RanCommand reports whether a recorded command line starts with the
// given tokens.
func (f *Fake) RanCommand(tokens ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if len(c) < len(tokens) {
			continue
		}
		if strings.Join(c[:len(tokens)], " ") == strings.Join(tokens, " ") {
			return true
		}
	}
	return false
}
