package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

func TestInitializeFailsWithoutInterfaces(t *testing.T) {
	m := New(sysfs.NewFake())
	err := m.Initialize()
	require.Error(t, err)

	var derr *tune.DetectionError
	assert.True(t, errors.As(err, &derr))

	ctx := context.Background()
	assert.ErrorIs(t, m.ApplyOptimizations(ctx, tune.Global{Enabled: true}), tune.ErrNotInitialized)
	assert.ErrorIs(t, m.ResetOptimizations(ctx), tune.ErrNotInitialized)
	_, err = m.State()
	assert.ErrorIs(t, err, tune.ErrNotInitialized)
}

func TestApplyOptimizationsPerformance(t *testing.T) {
	m, f, _ := newTestManager(t)

	g := tune.Global{Enabled: true, Mode: tune.ModePerformance}
	require.NoError(t, m.ApplyOptimizations(context.Background(), g))

	cc, ok := f.LastWrite(currentCCPath)
	require.True(t, ok)
	assert.Equal(t, "bbr", cc)

	rmem, _ := f.LastWrite(rmemMaxPath)
	assert.Equal(t, "8388608", rmem)
	wmem, _ := f.LastWrite(wmemMaxPath)
	assert.Equal(t, "8388608", wmem)

	for _, name := range []string{"wlan0", "eth0"} {
		mtu, _ := f.LastWrite(ifPath(name, "mtu"))
		assert.Equal(t, "1500", mtu)
		txq, _ := f.LastWrite(ifPath(name, "tx_queue_len"))
		assert.Equal(t, "2000", txq)
		assert.True(t, f.RanCommand("tc", "qdisc", "replace", "dev", name, "root", "fq"))
	}

	// Power management is a wireless concern only.
	assert.True(t, f.RanCommand("iw", "dev", "wlan0", "set", "power_save", "off"))
	assert.False(t, f.RanCommand("iw", "dev", "eth0"))

	assert.Equal(t, tune.LoopIdle, m.LoopState())
}

func TestApplyEfficiencyEnablesPowerSave(t *testing.T) {
	m, f, _ := newTestManager(t)

	g := tune.Global{Enabled: true, Mode: tune.ModeEfficiency}
	require.NoError(t, m.ApplyOptimizations(context.Background(), g))

	cc, _ := f.LastWrite(currentCCPath)
	assert.Equal(t, "cubic", cc)
	assert.True(t, f.RanCommand("iw", "dev", "wlan0", "set", "power_save", "on"))
	assert.True(t, f.RanCommand("tc", "qdisc", "replace", "dev", "wlan0", "root", "fq_codel"))
}

func lastValues(f *sysfs.Fake) map[string]string {
	out := make(map[string]string)
	for _, w := range f.Writes() {
		out[w.Path] = w.Value
	}
	return out
}

func TestApplyIsIdempotent(t *testing.T) {
	m, f, _ := newTestManager(t)
	ctx := context.Background()
	g := tune.Global{Enabled: true, Mode: tune.ModeLatency}

	require.NoError(t, m.ApplyOptimizations(ctx, g))
	first := lastValues(f)

	require.NoError(t, m.ApplyOptimizations(ctx, g))
	assert.Equal(t, first, lastValues(f))
}

func TestApplyContinuesPastFailures(t *testing.T) {
	m, f, _ := newTestManager(t)
	f.FailWrite(currentCCPath, errors.New("read-only"))
	f.FailRun("iw", errors.New("no such tool"))

	g := tune.Global{Enabled: true, Mode: tune.ModePerformance}
	require.NoError(t, m.ApplyOptimizations(context.Background(), g))

	// Everything past the failed tunables still lands.
	rmem, ok := f.LastWrite(rmemMaxPath)
	require.True(t, ok)
	assert.Equal(t, "8388608", rmem)
	txq, ok := f.LastWrite(ifPath("eth0", "tx_queue_len"))
	require.True(t, ok)
	assert.Equal(t, "2000", txq)
	assert.True(t, f.RanCommand("tc", "qdisc", "replace", "dev", "eth0"))
}

func TestApplyDisabledResets(t *testing.T) {
	m, f, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.ApplyOptimizations(ctx, tune.Global{Enabled: true, Mode: tune.ModePerformance}))
	require.NoError(t, m.ApplyOptimizations(ctx, tune.Global{Enabled: false}))

	cc, _ := f.LastWrite(currentCCPath)
	assert.Equal(t, "cubic", cc)
	rmem, _ := f.LastWrite(rmemMaxPath)
	assert.Equal(t, "212992", rmem)
	mtu, _ := f.LastWrite(ifPath("wlan0", "mtu"))
	assert.Equal(t, "1500", mtu)
	txq, _ := f.LastWrite(ifPath("wlan0", "tx_queue_len"))
	assert.Equal(t, "1000", txq)
	assert.True(t, f.RanCommand("iw", "dev", "wlan0", "set", "power_save", "on"))

	assert.False(t, m.Settings().Enabled)
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.StopBackgroundLoop()
	m.StopBackgroundLoop()
	assert.Equal(t, tune.LoopIdle, m.LoopState())
}

func TestAdaptiveLoopRunsAndQuiesces(t *testing.T) {
	m, f, _ := newTestManager(t)
	ctx := context.Background()

	g := tune.Global{
		Enabled:  true,
		Mode:     tune.ModePerformance,
		Adaptive: true,
		Interval: time.Millisecond,
	}
	require.NoError(t, m.ApplyOptimizations(ctx, g))
	require.Equal(t, tune.LoopRunning, m.LoopState())

	// Give the loop a baseline pass, then make the counters report
	// loss so the next pass has something to do.
	time.Sleep(3 * tune.Tick)
	before := f.WriteCount()
	f.Set(statPath("wlan0", "rx_packets"), "10100")
	f.Set(statPath("wlan0", "rx_dropped"), "500")

	require.Eventually(t, func() bool {
		return f.WriteCount() > before
	}, 5*time.Second, 10*time.Millisecond)

	m.StopBackgroundLoop()
	require.Equal(t, tune.LoopStopped, m.LoopState())

	// No further writes once stopped, even with fresh loss.
	quiesced := f.WriteCount()
	f.Set(statPath("wlan0", "rx_dropped"), "5000")
	time.Sleep(5 * tune.Tick)
	assert.Equal(t, quiesced, f.WriteCount())
}

func TestUpdateSettingsControlsLoop(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	s := m.Settings()
	s.Enabled = true
	s.Adaptive = true
	s.AdaptiveInterval = 10 * time.Millisecond
	require.NoError(t, m.UpdateSettings(ctx, s))
	require.Equal(t, tune.LoopRunning, m.LoopState())

	s.Adaptive = false
	require.NoError(t, m.UpdateSettings(ctx, s))
	assert.Equal(t, tune.LoopStopped, m.LoopState())
}

func TestTopologyAccessorClones(t *testing.T) {
	m, _, _ := newTestManager(t)

	topo := m.Topology()
	require.NotEmpty(t, topo.Interfaces)
	topo.Interfaces[0].Name = "mangled"
	topo.Congestion[0] = Congestion("mangled")

	fresh := m.Topology()
	assert.NotEqual(t, "mangled", fresh.Interfaces[0].Name)
	assert.NotEqual(t, Congestion("mangled"), fresh.Congestion[0])
}
