package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vrtuned-go/vrtuned/internal/tune"
)

type Config struct {
	Tuning        Tuning        `yaml:"tuning" json:"tuning"`
	Web           Web           `yaml:"web" json:"web"`
	Notifications Notifications `yaml:"notifications" json:"notifications"`
	History       History       `yaml:"history" json:"history"`
}

type Tuning struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Mode            string `yaml:"mode" json:"mode"`
	Adaptive        bool   `yaml:"adaptive" json:"adaptive"`
	Aggressive      bool   `yaml:"aggressive" json:"aggressive"`
	IntervalSeconds int    `yaml:"interval_seconds" json:"interval_seconds"`
}

type Web struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

type Notifications struct {
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
}

type History struct {
	Size int `yaml:"size" json:"size"`
}

// Global converts the tuning section into the engine's global input.
// An unknown mode is an error so a typo cannot silently fall back.
func (t Tuning) Global() (tune.Global, error) {
	mode, err := tune.ParseMode(t.Mode)
	if err != nil {
		return tune.Global{}, fmt.Errorf("tuning.mode: %w", err)
	}
	return tune.Global{
		Enabled:    t.Enabled,
		Mode:       mode,
		Adaptive:   t.Adaptive,
		Aggressive: t.Aggressive,
		Interval:   time.Duration(t.IntervalSeconds) * time.Second,
	}, nil
}

// Default is the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.Tuning.Enabled = true
	cfg.Tuning.Mode = string(tune.ModeBalanced)
	cfg.Tuning.Adaptive = true
	cfg.Tuning.IntervalSeconds = 1
	cfg.Web.ListenAddr = ":8080"
	cfg.History.Size = 256
	return &cfg
}

var (
	current *Config
	mu      sync.RWMutex
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Set replaces the active configuration; used when no file exists and
// by the settings API after an update.
func Set(cfg *Config) {
	mu.Lock()
	current = cfg
	mu.Unlock()
}

func Save(path string, cfg *Config) error {
	mu.Lock()
	current = cfg
	mu.Unlock()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
