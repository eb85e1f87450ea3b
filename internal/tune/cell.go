package tune

import "sync"

// Cell is the single piece of state shared between a manager and its
// background controller: the stop request and the current settings.
// One cell exists per manager instance. The lock guards only the
// in-memory fields; OS I/O never happens while holding it.
type Cell[S any] struct {
	mu         sync.Mutex
	shouldStop bool
	settings   S
}

func NewCell[S any](settings S) *Cell[S] {
	return &Cell[S]{settings: settings}
}

func (c *Cell[S]) Settings() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetSettings replaces the settings wholesale. The background loop
// observes the new value on its next tick.
func (c *Cell[S]) SetSettings(s S) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
}

// RequestStop marks the cell stopped. The background loop polls this
// once per tick.
func (c *Cell[S]) RequestStop() {
	c.mu.Lock()
	c.shouldStop = true
	c.mu.Unlock()
}

func (c *Cell[S]) ShouldStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldStop
}

// ClearStop rearms the cell so the loop can be started again.
func (c *Cell[S]) ClearStop() {
	c.mu.Lock()
	c.shouldStop = false
	c.mu.Unlock()
}
