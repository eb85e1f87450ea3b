package network

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

func TestRecommendMTU(t *testing.T) {
	assert.Equal(t, 1350, recommendMTU(0.02, 1500))
	assert.Equal(t, 8100, recommendMTU(0.05, 9000))

	// Floored at the IPv6 minimum.
	assert.Equal(t, MinMTU, recommendMTU(0.5, 1350))
	assert.Equal(t, MinMTU, recommendMTU(0.5, 1400))
	assert.Equal(t, MinMTU, recommendMTU(0.5, MinMTU))

	// At or under the threshold nothing changes.
	assert.Equal(t, 1500, recommendMTU(lossThreshold, 1500))
	assert.Equal(t, 1500, recommendMTU(0.0, 1500))
	assert.Equal(t, 0, recommendMTU(0.5, 0))
}

func TestRecommendTxQueueLen(t *testing.T) {
	assert.Equal(t, 1000, recommendTxQueueLen(0, 1000))
	assert.Equal(t, 1500, recommendTxQueueLen(1, 1000))
	assert.Equal(t, 1500, recommendTxQueueLen(500, 1000))

	// Capped.
	assert.Equal(t, maxTxQueueLen, recommendTxQueueLen(1, 9000))
	assert.Equal(t, maxTxQueueLen, recommendTxQueueLen(1, maxTxQueueLen))
	assert.Equal(t, 0, recommendTxQueueLen(1, 0))
}

func TestDelta(t *testing.T) {
	assert.Equal(t, uint64(100), delta(1100, 1000))
	assert.Equal(t, uint64(0), delta(1000, 1000))

	// Counter reset starts a new window.
	assert.Equal(t, uint64(42), delta(42, 1000))
}

type actionLog struct {
	mu      sync.Mutex
	actions []tune.Action
}

func (l *actionLog) record(a tune.Action) {
	l.mu.Lock()
	l.actions = append(l.actions, a)
	l.mu.Unlock()
}

func (l *actionLog) all() []tune.Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]tune.Action(nil), l.actions...)
}

func newTestManager(t *testing.T) (*Manager, *sysfs.Fake, *actionLog) {
	t.Helper()
	f := sysfs.NewFake()
	seedInterfaces(f)
	logged := &actionLog{}
	m := New(f, WithActionHook(logged.record))
	require.NoError(t, m.Initialize())
	return m, f, logged
}

func TestAdaptivePassBaselineThenAction(t *testing.T) {
	m, f, logged := newTestManager(t)

	s := m.Settings()
	s.Enabled = true
	s.Adaptive = true
	m.cell.SetSettings(s)

	// First pass only records the counter baseline.
	m.adaptivePass()
	assert.Zero(t, f.WriteCount())

	// Heavy receive loss and a few transmit errors since the baseline.
	f.Set(statPath("wlan0", "rx_packets"), "10100")
	f.Set(statPath("wlan0", "rx_dropped"), "50")
	f.Set(statPath("wlan0", "tx_errors"), "3")

	m.adaptivePass()

	mtu, ok := f.LastWrite(ifPath("wlan0", "mtu"))
	require.True(t, ok)
	assert.Equal(t, "1350", mtu)
	txq, ok := f.LastWrite(ifPath("wlan0", "tx_queue_len"))
	require.True(t, ok)
	assert.Equal(t, "1500", txq)
	assert.Equal(t, 2, f.WriteCount())

	actions := logged.all()
	require.Len(t, actions, 2)
	assert.Equal(t, "network", actions[0].Domain)
	assert.Equal(t, "wlan0", actions[0].Resource)
	assert.Equal(t, "mtu", actions[0].Tunable)
	assert.Equal(t, "1500", actions[0].From)
	assert.Equal(t, "1350", actions[0].To)
	assert.Equal(t, "tx_queue_len", actions[1].Tunable)

	// With no further counter movement the controller goes quiet.
	m.adaptivePass()
	assert.Equal(t, 2, f.WriteCount())
}

func TestAdaptivePassUntouchedInterfaceStaysUntouched(t *testing.T) {
	m, f, _ := newTestManager(t)

	s := m.Settings()
	s.Enabled = true
	s.Adaptive = true
	m.cell.SetSettings(s)

	m.adaptivePass()
	f.Set(statPath("wlan0", "rx_packets"), "10100")
	f.Set(statPath("wlan0", "rx_dropped"), "50")
	m.adaptivePass()

	_, wrote := f.LastWrite(ifPath("eth0", "mtu"))
	assert.False(t, wrote)
	_, wrote = f.LastWrite(ifPath("eth0", "tx_queue_len"))
	assert.False(t, wrote)
}

func TestAdaptivePassDisabledDoesNothing(t *testing.T) {
	m, f, _ := newTestManager(t)

	f.Set(statPath("wlan0", "rx_dropped"), "5000")
	m.adaptivePass()
	m.adaptivePass()
	assert.Zero(t, f.WriteCount())
}
