// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/soothill/battery-data-logger/pkg/logger"
)

// Watcher reloads the configuration file on SIGHUP and publishes it when
// something changed. A file that fails to load or validate is logged and
// ignored; the running configuration stays.
type Watcher struct {
	path    string
	updates chan<- *Config
	signals chan os.Signal

	mu      sync.Mutex
	current *Config

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for path. current is the configuration the
// process is running with; reloads that match it are not published.
func NewWatcher(path string, current *Config, updates chan<- *Config) *Watcher {
	return &Watcher{
		path:    path,
		updates: updates,
		signals: make(chan os.Signal, 1),
		current: current,
		done:    make(chan struct{}),
	}
}

// Start begins watching for SIGHUP until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	signal.Notify(w.signals, syscall.SIGHUP)

	go w.watch(ctx)
}

// Stop stops the watcher and waits for it to exit.
func (w *Watcher) Stop() {
	signal.Stop(w.signals)
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
}

// Reload requests a reload as if SIGHUP had been received.
func (w *Watcher) Reload() {
	select {
	case w.signals <- syscall.SIGHUP:
	default:
		// a reload is already pending
	}
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.signals:
			cfg, changed, err := w.reload()
			if err != nil {
				logger.Error().Err(err).Str("path", w.path).Msg("Failed to reload configuration, keeping current settings")
				continue
			}
			if len(changed) == 0 {
				logger.Info().Str("path", w.path).Msg("Configuration unchanged")
				continue
			}
			select {
			case w.updates <- cfg:
				logger.Info().Strs("sections", changed).Msg("Configuration reloaded")
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Watcher) reload() (*Config, []string, error) {
	cfg, err := Load(w.path)
	if err != nil {
		return nil, nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	changed := Changed(w.current, cfg)
	if len(changed) > 0 {
		w.current = cfg
	}
	return cfg, changed, nil
}

// Changed returns the names of the top-level sections that differ between
// two configurations, in file order. A nil old config differs everywhere.
func Changed(old, updated *Config) []string {
	if old == nil {
		old = &Config{}
	}
	sections := []struct {
		name   string
		differ bool
	}{
		{"sampler", old.Sampler != updated.Sampler},
		{"log", old.Log != updated.Log},
		{"logging", old.Logging != updated.Logging},
		{"server", old.Server != updated.Server},
		{"alerts", old.Alerts != updated.Alerts},
		{"influxdb", old.InfluxDB != updated.InfluxDB},
		{"mqtt", old.MQTT != updated.MQTT},
		{"advertise", old.Advertise != updated.Advertise},
	}

	var out []string
	for _, s := range sections {
		if s.differ {
			out = append(out, s.name)
		}
	}
	return out
}
