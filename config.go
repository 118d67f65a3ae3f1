package renderthread

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ResetNotification selects how device-reset and render-error handlers are
// called.
type ResetNotification string

const (
	// NotifySync calls the handler on the render worker before reset
	// handling continues.
	NotifySync ResetNotification = "sync"

	// NotifyDeferred queues the handler call on the notifier goroutine.
	NotifyDeferred ResetNotification = "deferred"
)

// Config holds render thread settings.
type Config struct {
	// MaxPendingFrames is the per-window pending-frame ceiling.
	MaxPendingFrames int `yaml:"max_pending_frames"`

	// QueueSize is the buffer of the ordered event queue. Producers block
	// while it is full.
	QueueSize int `yaml:"queue_size"`

	// ThreadPoolWorkers sizes the default scene-build pool; 0 means
	// GOMAXPROCS.
	ThreadPoolWorkers int `yaml:"thread_pool_workers"`

	// LowPriorityWorkers sizes the low-priority pool; 0 means half of
	// GOMAXPROCS, at least one.
	LowPriorityWorkers int `yaml:"low_priority_workers"`

	// Compositor forces a named backend. Empty selects by priority.
	Compositor string `yaml:"compositor"`

	// ResetNotification is "sync" or "deferred".
	ResetNotification ResetNotification `yaml:"reset_notification"`

	// RecordFrames attaches a composition recorder to every new renderer.
	RecordFrames bool `yaml:"record_frames"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		MaxPendingFrames:  3,
		QueueSize:         256,
		ResetNotification: NotifyDeferred,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	var errs []error
	if c.MaxPendingFrames < 1 {
		errs = append(errs, fmt.Errorf("max_pending_frames must be positive, got %d", c.MaxPendingFrames))
	}
	if c.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	if c.ThreadPoolWorkers < 0 {
		errs = append(errs, fmt.Errorf("thread_pool_workers must not be negative, got %d", c.ThreadPoolWorkers))
	}
	if c.LowPriorityWorkers < 0 {
		errs = append(errs, fmt.Errorf("low_priority_workers must not be negative, got %d", c.LowPriorityWorkers))
	}
	switch c.ResetNotification {
	case NotifySync, NotifyDeferred:
	default:
		errs = append(errs, fmt.Errorf("unknown reset_notification %q", c.ResetNotification))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// LoadConfig decodes YAML settings on top of DefaultConfig. Unknown keys
// are rejected. An empty document yields the defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("renderthread: failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads settings from a YAML file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("renderthread: failed to read config: %w", err)
	}
	cfg, err := LoadConfig(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
