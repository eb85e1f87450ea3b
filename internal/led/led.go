// Package led drives the platform status LED through the sysfs
// trigger interface so the headset shows tuning state at a glance.
package led

import (
	"context"
	"log"
	"path"
	"strings"

	"github.com/vrtuned-go/vrtuned/internal/sysfs"
)

const ledRoot = "/sys/class/leds"

// Mode is a blink pattern.
type Mode string

const (
	ModeOff       Mode = "off"
	ModeHeartbeat Mode = "heartbeat"
	ModeSlowBlink Mode = "slowblink"
	ModeFastBlink Mode = "fastblink"
)

// LED is the detected status LED. The zero value is inert, so callers
// wire it unconditionally and platforms without an LED just no-op.
type LED struct {
	sink sysfs.Interface
	path string
}

// Detect picks the platform status LED, preferring the conventional
// activity names over whatever else the kernel exposes.
func Detect(sink sysfs.Interface) *LED {
	entries := sink.Glob(ledRoot + "/*")
	var pick string
	for _, want := range []string{"led0", "ACT", "status"} {
		for _, e := range entries {
			if strings.Contains(path.Base(e), want) {
				pick = e
				break
			}
		}
		if pick != "" {
			break
		}
	}
	if pick == "" && len(entries) > 0 {
		pick = entries[0]
	}
	if pick == "" {
		return &LED{}
	}
	log.Printf("led: using %s", pick)
	return &LED{sink: sink, path: pick}
}

// Set applies a blink pattern. Best-effort: an LED the kernel refuses
// to drive never blocks tuning work.
func (l *LED) Set(ctx context.Context, mode Mode) {
	if l == nil || l.path == "" {
		return
	}
	trigger := l.path + "/trigger"
	var err error
	switch mode {
	case ModeHeartbeat:
		err = l.sink.Write(ctx, trigger, "heartbeat")
	case ModeSlowBlink:
		err = l.timer(ctx, "900", "100")
	case ModeFastBlink:
		err = l.timer(ctx, "150", "50")
	case ModeOff:
		if err = l.sink.Write(ctx, trigger, "none"); err == nil {
			err = l.sink.Write(ctx, l.path+"/brightness", "0")
		}
	}
	if err != nil {
		log.Printf("led: set %s: %v", mode, err)
	}
}

func (l *LED) timer(ctx context.Context, offMs, onMs string) error {
	if err := l.sink.Write(ctx, l.path+"/trigger", "timer"); err != nil {
		return err
	}
	if err := l.sink.Write(ctx, l.path+"/delay_off", offMs); err != nil {
		return err
	}
	return l.sink.Write(ctx, l.path+"/delay_on", onMs)
}
