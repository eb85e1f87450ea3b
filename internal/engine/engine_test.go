package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/vrtuned-go/vrtuned/internal/config"
	"github.com/vrtuned-go/vrtuned/internal/cpu"
	"github.com/vrtuned-go/vrtuned/internal/notify"
	"github.com/vrtuned-go/vrtuned/internal/sysfs"
	"github.com/vrtuned-go/vrtuned/internal/tune"
)

// stubAffinity records the requested core pin instead of reshaping the
// test runner's own mask.
func stubAffinity(t *testing.T) *[]int {
	t.Helper()
	var pinned []int
	orig := schedSetaffinity
	schedSetaffinity = func(pid int, set *unix.CPUSet) error {
		pinned = pinned[:0]
		for i := 0; i < 64; i++ {
			if set.IsSet(i) {
				pinned = append(pinned, i)
			}
		}
		return nil
	}
	t.Cleanup(func() { schedSetaffinity = orig })
	return &pinned
}

func seedCPUs(f *sysfs.Fake, n int) {
	for i := 0; i < n; i++ {
		base := fmt.Sprintf("/sys/devices/system/cpu/cpu%d/cpufreq/", i)
		f.Set(base+"cpuinfo_min_freq", "1200000")
		f.Set(base+"cpuinfo_max_freq", "2400000")
		f.Set(base+"scaling_min_freq", "1200000")
		f.Set(base+"scaling_max_freq", "2400000")
		f.Set(base+"scaling_cur_freq", "1800000")
		f.Set(base+"scaling_governor", "schedutil")
	}
	f.Set("/sys/devices/system/cpu/cpu0/cpufreq/scaling_available_governors", "performance powersave schedutil")
	f.Set("/sys/devices/system/cpu/cpufreq/boost", "1")
	f.Set("/sys/class/thermal/thermal_zone0/type", "cpu-thermal")
	f.Set("/sys/class/thermal/thermal_zone0/temp", "55000")
	f.Set("/proc/irq/30/smp_affinity", "f")

	stat := "cpu  800 0 0 3200 0 0 0 0 0 0\n"
	for i := 0; i < n; i++ {
		stat += fmt.Sprintf("cpu%d 200 0 0 800 0 0 0 0 0 0\n", i)
	}
	f.Set("/proc/stat", stat)
}

func seedNetworkIfaces(f *sysfs.Fake) {
	counters := []string{
		"rx_bytes", "tx_bytes", "rx_packets", "tx_packets",
		"rx_errors", "tx_errors", "rx_dropped", "tx_dropped",
	}
	for _, name := range []string{"wlan0", "eth0"} {
		base := "/sys/class/net/" + name + "/"
		f.Set(base+"mtu", "1500")
		f.Set(base+"tx_queue_len", "1000")
		f.Set(base+"carrier", "1")
		for _, c := range counters {
			f.Set(base+"statistics/"+c, "0")
		}
	}
	f.Set("/sys/class/net/wlan0/statistics/rx_packets", "10000")
	f.Set("/sys/class/net/wlan0/wireless/status", "0")
	f.Set("/sys/class/net/eth0/speed", "1000")
	f.Set("/proc/sys/net/ipv4/tcp_available_congestion_control", "reno cubic bbr")
}

func seedBlockDevs(f *sysfs.Fake) {
	f.Set("/sys/block/mmcblk0/queue/rotational", "0")
	f.Set("/sys/block/mmcblk0/queue/scheduler", "[mq-deadline] kyber bfq none")
	f.Set("/sys/block/mmcblk0/queue/read_ahead_kb", "128")
	f.Set("/sys/block/mmcblk0/queue/nr_requests", "64")
	f.Set("/sys/block/mmcblk0/queue/discard_granularity", "4096")
	// In-flight depth 7 keeps the adaptive scheduler rule in its
	// middle band.
	f.Set("/sys/block/mmcblk0/stat", "9000 100 72000 500 1000 50 8000 300 7 700 800")
	f.Set("/proc/mounts", "/dev/mmcblk0p2 / ext4 rw 0 0\n")
}

func seedAll(f *sysfs.Fake) {
	seedCPUs(f, 4)
	seedNetworkIfaces(f)
	seedBlockDevs(f)
	f.Set("/sys/class/leds/led0/trigger", "none")
}

func newTestEngine(t *testing.T) (*Engine, *sysfs.Fake) {
	t.Helper()
	stubAffinity(t)
	f := sysfs.NewFake()
	seedAll(f)
	e := New(f)
	require.NoError(t, e.Initialize(context.Background()))
	return e, f
}

// recordNotifications points the notification config at a local
// recorder for the duration of a test.
func recordNotifications(t *testing.T) func() []notify.Event {
	t.Helper()
	var mu sync.Mutex
	var events []notify.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev notify.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			return
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Notifications.WebhookURL = srv.URL
	config.Set(cfg)
	t.Cleanup(func() { config.Set(nil) })

	return func() []notify.Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]notify.Event(nil), events...)
	}
}

func TestInitializeDetectsAllDomains(t *testing.T) {
	pinned := stubAffinity(t)
	f := sysfs.NewFake()
	seedAll(f)
	e := New(f)

	require.NoError(t, e.Initialize(context.Background()))

	assert.Len(t, e.CPU.Topology().Cores, 4)
	assert.Len(t, e.Network.Topology().Interfaces, 2)
	assert.Len(t, e.Storage.Topology().Devices, 1)
	assert.Equal(t, []int{2, 3}, *pinned, "daemon pinned off the reserved cores")

	trigger, _ := f.LastWrite("/sys/class/leds/led0/trigger")
	assert.Equal(t, "heartbeat", trigger)
}

func TestInitializeFailsWhenDomainEmpty(t *testing.T) {
	stubAffinity(t)
	f := sysfs.NewFake()
	seedCPUs(f, 4)
	seedBlockDevs(f)
	e := New(f)

	err := e.Initialize(context.Background())
	require.Error(t, err)
	var derr *tune.DetectionError
	assert.True(t, errors.As(err, &derr))
	assert.Equal(t, "network", derr.Domain)

	// The failed manager keeps rejecting work; ApplyAll surfaces that.
	assert.ErrorIs(t, e.ApplyAll(context.Background(), tune.Global{Enabled: true}), tune.ErrNotInitialized)
}

func TestApplyAllFansOut(t *testing.T) {
	e, f := newTestEngine(t)

	g := tune.Global{Enabled: true, Mode: tune.ModePerformance}
	require.NoError(t, e.ApplyAll(context.Background(), g))

	gov, ok := f.LastWrite("/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor")
	require.True(t, ok)
	assert.Equal(t, "performance", gov)

	cc, _ := f.LastWrite("/proc/sys/net/ipv4/tcp_congestion_control")
	assert.Equal(t, "bbr", cc)
	rmem, _ := f.LastWrite("/proc/sys/net/core/rmem_max")
	assert.Equal(t, "8388608", rmem)

	sched, _ := f.LastWrite("/sys/block/mmcblk0/queue/scheduler")
	assert.Equal(t, "none", sched)
	ra, _ := f.LastWrite("/sys/block/mmcblk0/queue/read_ahead_kb")
	assert.Equal(t, "512", ra)
	swap, _ := f.LastWrite("/proc/sys/vm/swappiness")
	assert.Equal(t, "10", swap)

	assert.Equal(t, g, e.Global())
}

func TestResetAllRestoresDefaults(t *testing.T) {
	e, f := newTestEngine(t)

	require.NoError(t, e.ApplyAll(context.Background(), tune.Global{Enabled: true, Mode: tune.ModeLatency}))
	require.NoError(t, e.ResetAll(context.Background()))

	gov, _ := f.LastWrite("/sys/devices/system/cpu/cpu0/cpufreq/scaling_governor")
	assert.Equal(t, "schedutil", gov)
	cc, _ := f.LastWrite("/proc/sys/net/ipv4/tcp_congestion_control")
	assert.Equal(t, "cubic", cc)
	rmem, _ := f.LastWrite("/proc/sys/net/core/rmem_max")
	assert.Equal(t, "212992", rmem)
	sched, _ := f.LastWrite("/sys/block/mmcblk0/queue/scheduler")
	assert.Equal(t, "mq-deadline", sched)
	swap, _ := f.LastWrite("/proc/sys/vm/swappiness")
	assert.Equal(t, "60", swap)

	assert.False(t, e.Global().Enabled)
}

func TestStopAllStopsEveryLoop(t *testing.T) {
	e, _ := newTestEngine(t)

	g := tune.Global{Enabled: true, Mode: tune.ModeEfficiency, Adaptive: true, Interval: time.Millisecond}
	require.NoError(t, e.ApplyAll(context.Background(), g))
	assert.Equal(t, tune.LoopRunning, e.CPU.LoopState())
	assert.Equal(t, tune.LoopRunning, e.Network.LoopState())
	assert.Equal(t, tune.LoopRunning, e.Storage.LoopState())

	e.StopAll()
	assert.Equal(t, tune.LoopStopped, e.CPU.LoopState())
	assert.Equal(t, tune.LoopStopped, e.Network.LoopState())
	assert.Equal(t, tune.LoopStopped, e.Storage.LoopState())
}

func TestStatusSamplesEveryDomain(t *testing.T) {
	fresh := New(sysfs.NewFake())
	st := fresh.Status()
	assert.Nil(t, st.CPU.State)
	assert.Nil(t, st.Network.State)
	assert.Nil(t, st.Storage.State)

	e, _ := newTestEngine(t)
	g := tune.Global{Enabled: true, Mode: tune.ModePerformance}
	require.NoError(t, e.ApplyAll(context.Background(), g))

	st = e.Status()
	assert.Equal(t, g, st.Global)
	assert.False(t, st.Time.IsZero())
	require.NotNil(t, st.CPU.State)
	assert.Len(t, st.CPU.State.Cores, 4)
	require.NotNil(t, st.Network.State)
	assert.Len(t, st.Network.State.Interfaces, 2)
	require.NotNil(t, st.Storage.State)
	assert.Len(t, st.Storage.State.Devices, 1)
	assert.Equal(t, tune.LoopIdle, st.CPU.Loop)
}

func TestAdaptiveActionsFlowIntoHistory(t *testing.T) {
	e, f := newTestEngine(t)

	g := tune.Global{Enabled: true, Mode: tune.ModeEfficiency, Adaptive: true, Interval: time.Millisecond}
	require.NoError(t, e.ApplyAll(context.Background(), g))
	t.Cleanup(e.StopAll)

	// Give every controller a baseline pass, then inject packet loss on
	// the wireless link.
	time.Sleep(3 * tune.Tick)
	f.Set("/sys/class/net/wlan0/statistics/rx_packets", "10100")
	f.Set("/sys/class/net/wlan0/statistics/rx_dropped", "50")

	require.Eventually(t, func() bool { return len(e.History()) > 0 },
		5*time.Second, 10*time.Millisecond)

	var found bool
	for _, a := range e.History() {
		if a.Domain == "network" && a.Tunable == "mtu" {
			assert.Equal(t, "wlan0", a.Resource)
			assert.Equal(t, "1500", a.From)
			assert.Equal(t, "1350", a.To)
			assert.False(t, a.Time.IsZero())
			found = true
		}
	}
	assert.True(t, found, "loss response recorded in history")
}

func TestLifecycleNotifications(t *testing.T) {
	events := recordNotifications(t)
	stubAffinity(t)
	f := sysfs.NewFake()
	seedAll(f)
	e := New(f)

	require.NoError(t, e.Initialize(context.Background()))
	evs := events()
	require.Len(t, evs, 1)
	assert.Equal(t, notify.EventStartup, evs[0].Event)
	assert.EqualValues(t, 4, evs[0].Data["cores"])
	assert.EqualValues(t, 2, evs[0].Data["interfaces"])
	assert.EqualValues(t, 1, evs[0].Data["devices"])

	g := tune.Global{Enabled: true, Mode: tune.ModePerformance}
	require.NoError(t, e.ApplyAll(context.Background(), g))
	evs = events()
	require.Len(t, evs, 2)
	assert.Equal(t, notify.EventModeChange, evs[1].Event)
	assert.Equal(t, "mode performance", evs[1].Message)

	// Re-applying the same input is not a change.
	require.NoError(t, e.ApplyAll(context.Background(), g))
	assert.Len(t, events(), 2)

	require.NoError(t, e.ResetAll(context.Background()))
	evs = events()
	require.Len(t, evs, 3)
	assert.Equal(t, "optimization disabled", evs[2].Message)
}

func thermalStatus(temp float64) Status {
	return Status{CPU: CPUStatus{State: &cpu.State{
		Cores: []cpu.CoreState{{ID: 0, Temperature: temp}},
	}}}
}

func TestThermalNotificationHysteresis(t *testing.T) {
	events := recordNotifications(t)
	e, f := newTestEngine(t)
	ctx := context.Background()

	// Default limit is 85C with a 5C clear margin.
	e.checkThermal(ctx, thermalStatus(92))
	evs := events()
	require.Len(t, evs, 1)
	assert.Equal(t, notify.EventThermalThrottle, evs[0].Event)
	trigger, _ := f.LastWrite("/sys/class/leds/led0/trigger")
	assert.Equal(t, "timer", trigger, "throttle switches the LED to a fast blink")
	delay, _ := f.LastWrite("/sys/class/leds/led0/delay_on")
	assert.Equal(t, "50", delay)

	// Still hot: the alert is latched, not repeated.
	e.checkThermal(ctx, thermalStatus(93))
	assert.Len(t, events(), 1)

	// Inside the hysteresis band: no clear yet.
	e.checkThermal(ctx, thermalStatus(83))
	assert.Len(t, events(), 1)

	e.checkThermal(ctx, thermalStatus(76))
	evs = events()
	require.Len(t, evs, 2)
	assert.Equal(t, notify.EventThermalClear, evs[1].Event)
	trigger, _ = f.LastWrite("/sys/class/leds/led0/trigger")
	assert.Equal(t, "heartbeat", trigger)

	// A manager without settings has no limit; nothing fires.
	bare := New(sysfs.NewFake())
	bare.checkThermal(ctx, thermalStatus(99))
	assert.Len(t, events(), 2)
}
