// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, path string) (*Watcher, chan *Config) {
	t.Helper()
	current, err := Load(path)
	if err != nil {
		current = Default()
	}
	updates := make(chan *Config, 1)
	w := NewWatcher(path, current, updates)
	w.Start(t.Context())
	t.Cleanup(w.Stop)
	return w, updates
}

func TestWatcher_ReloadDeliversNewConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.yaml", "sampler:\n  interval_seconds: 60\n")
	w, updates := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("sampler:\n  interval_seconds: 90\n"), 0600))
	w.Reload()

	select {
	case cfg := <-updates:
		assert.Equal(t, 90, cfg.Sampler.IntervalSeconds)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_UnchangedIsNotPublished(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.yaml", "sampler:\n  interval_seconds: 60\n")
	w, updates := startWatcher(t, path)

	w.Reload()

	select {
	case cfg := <-updates:
		t.Fatalf("unchanged config should not be delivered, got %+v", cfg.Sampler)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_InvalidFileKeepsCurrent(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.yaml", "sampler:\n  interval_seconds: 60\n")
	w, updates := startWatcher(t, path)

	require.NoError(t, os.WriteFile(path, []byte("sampler:\n  interval_seconds: -1\n"), 0600))
	w.Reload()

	select {
	case cfg := <-updates:
		t.Fatalf("invalid config should not be delivered, got %+v", cfg.Sampler)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w := NewWatcher("", Default(), make(chan *Config))
	w.Stop()
}

func TestChanged(t *testing.T) {
	base := Default()
	assert.Empty(t, Changed(base, Default()))

	updated := Default()
	updated.Sampler.IntervalSeconds = 60
	updated.MQTT.Enabled = true
	updated.MQTT.Broker = "tcp://localhost:1883"
	assert.Equal(t, []string{"sampler", "mqtt"}, Changed(base, updated))

	// Defaults leave influxdb at its zero value
	assert.Equal(t,
		[]string{"sampler", "log", "logging", "server", "alerts", "mqtt", "advertise"},
		Changed(nil, base))

	full := Default()
	full.InfluxDB.Enabled = true
	assert.Len(t, Changed(nil, full), 8)
}
