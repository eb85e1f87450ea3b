package led

import (
	"context"
	"errors"
	"testing"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
)

func TestDetectPrefersActivityNames(t *testing.T) {
	f := sysfs.NewFake()
	f.Set("/sys/class/leds/mmc0::/trigger", "none")
	f.Set("/sys/class/leds/ACT/trigger", "none")

	l := Detect(f)
	if l.path != "/sys/class/leds/ACT" {
		t.Errorf("expected ACT led, got %q", l.path)
	}
}

func TestDetectFallsBackToFirst(t *testing.T) {
	f := sysfs.NewFake()
	f.Set("/sys/class/leds/mmc0::/trigger", "none")

	l := Detect(f)
	if l.path == "" {
		t.Errorf("expected a fallback led")
	}
}

func TestDetectNoLEDs(t *testing.T) {
	l := Detect(sysfs.NewFake())
	// Inert LED: setting modes must not panic or write.
	l.Set(context.Background(), ModeHeartbeat)
	l.Set(context.Background(), ModeOff)
}

func TestSetModes(t *testing.T) {
	f := sysfs.NewFake()
	f.Set("/sys/class/leds/led0/trigger", "none")
	l := Detect(f)
	ctx := context.Background()

	l.Set(ctx, ModeHeartbeat)
	if v, _ := f.LastWrite("/sys/class/leds/led0/trigger"); v != "heartbeat" {
		t.Errorf("expected heartbeat trigger, got %q", v)
	}

	l.Set(ctx, ModeFastBlink)
	if v, _ := f.LastWrite("/sys/class/leds/led0/trigger"); v != "timer" {
		t.Errorf("expected timer trigger, got %q", v)
	}
	if v, _ := f.LastWrite("/sys/class/leds/led0/delay_off"); v != "150" {
		t.Errorf("expected fast delay_off 150, got %q", v)
	}
	if v, _ := f.LastWrite("/sys/class/leds/led0/delay_on"); v != "50" {
		t.Errorf("expected fast delay_on 50, got %q", v)
	}

	l.Set(ctx, ModeSlowBlink)
	if v, _ := f.LastWrite("/sys/class/leds/led0/delay_off"); v != "900" {
		t.Errorf("expected slow delay_off 900, got %q", v)
	}

	l.Set(ctx, ModeOff)
	if v, _ := f.LastWrite("/sys/class/leds/led0/trigger"); v != "none" {
		t.Errorf("expected trigger none, got %q", v)
	}
	if v, _ := f.LastWrite("/sys/class/leds/led0/brightness"); v != "0" {
		t.Errorf("expected brightness 0, got %q", v)
	}
}

func TestSetSurvivesWriteFailure(t *testing.T) {
	f := sysfs.NewFake()
	f.Set("/sys/class/leds/led0/trigger", "none")
	f.FailWrite("/sys/class/leds/led0/trigger", errors.New("EACCES"))

	l := Detect(f)
	l.Set(context.Background(), ModeHeartbeat)
}
