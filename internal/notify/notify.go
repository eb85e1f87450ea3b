// Package notify posts daemon lifecycle events to a configured
// webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/vrtuned-go/vrtuned/internal/config"
)

// Event names emitted by the daemon.
const (
	EventStartup         = "startup"
	EventShutdown        = "shutdown"
	EventModeChange      = "mode_change"
	EventThermalThrottle = "thermal_throttle"
	EventThermalClear    = "thermal_clear"
)

type Event struct {
	Event     string         `json:"event"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Send posts the event to the configured webhook URL. Without a
// configured URL it is a no-op; failures are logged, never returned.
func Send(ctx context.Context, event Event) {
	cfg := config.Get()
	if cfg == nil || cfg.Notifications.WebhookURL == "" {
		return
	}
	if err := SendTo(ctx, cfg.Notifications.WebhookURL, event); err != nil {
		log.Printf("notification failed: %v", err)
	}
}

// SendTo posts the event to an explicit webhook URL.
func SendTo(ctx context.Context, url string, event Event) error {
	if url == "" {
		return nil
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
