// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package app wires the sampler, the log store, the mirrors, alerts and the
// HTTP API into the long-running logger process.
package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/soothill/battery-data-logger/api"
	"github.com/soothill/battery-data-logger/config"
	"github.com/soothill/battery-data-logger/discovery"
	"github.com/soothill/battery-data-logger/logstore"
	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/logger"
	"github.com/soothill/battery-data-logger/pkg/notifications"
	"github.com/soothill/battery-data-logger/pkg/slacknotifier"
	"github.com/soothill/battery-data-logger/sensor"
	"github.com/soothill/battery-data-logger/storage"
)

const (
	signalChannelSize   = 1
	connectTimeout      = 15 * time.Second
	alertContextTimeout = 5 * time.Second
	mirrorWriteTimeout  = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// App represents the main application
type App struct {
	cfgMu      sync.RWMutex
	cfg        *config.Config
	configPath string
	version    string

	sensor   sensor.Sensor
	store    *logstore.Store
	sampler  *monitoring.Sampler
	sinks    []*storage.BreakerSink
	notifier *slacknotifier.Notifier
	alerter  *notifications.Alerter

	api        *api.Server
	server     *http.Server
	listener   net.Listener
	advertiser *discovery.Advertiser

	configWatcher *config.Watcher
	configChan    chan *config.Config

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new application instance. The log file is created (with its
// header) if it does not exist yet; mirrors that cannot be reached are
// skipped with an alert.
func New(ctx context.Context, cfg *config.Config, configPath, version string) (*App, error) {
	a := &App{
		cfg:        cfg,
		configPath: configPath,
		version:    version,
		configChan: make(chan *config.Config, 1),
	}

	var err error
	a.sensor, err = sensor.New(sensor.Options{Kind: cfg.Sampler.Sensor, SysfsRoot: cfg.Sampler.SysfsRoot})
	if err != nil {
		return nil, errors.NewConfigError("sampler.sensor", cfg.Sampler.Sensor, err)
	}

	a.store = logstore.New(cfg.LogPath())
	if err := a.store.EnsureInitialized(); err != nil {
		return nil, fmt.Errorf("failed to initialize battery log: %w", err)
	}
	logger.Info().Str("path", a.store.Path()).Msg("Battery log ready")

	a.notifier = slacknotifier.New(cfg.Alerts.SlackWebhookURL)
	if a.notifier.IsEnabled() {
		logger.Info().Msg("Slack notifications enabled")
	} else {
		logger.Info().Msg("Slack notifications disabled (no webhook URL configured)")
	}
	a.alerter = notifications.NewAlerter(a.notifier, cfg.Alerts.LowBatteryPercent)

	a.sampler = monitoring.NewSampler(a.sensor, a.store, 0)
	a.sampler.SetAppendErrorHandler(a.onAppendError)

	a.initializeSinks(ctx)

	a.api = api.NewServer(api.Options{
		Sampler:         a.sampler,
		Store:           a.store,
		BaseContext:     ctx,
		DefaultInterval: func() time.Duration { return a.Config().Interval() },
		RateLimit:       cfg.Server.RateLimit,
		Burst:           cfg.Server.Burst,
	})
	a.api.AddReadinessCheck("log", func(context.Context) error {
		return a.store.EnsureInitialized()
	})
	a.api.AddReadinessCheck("sensor", func(ctx context.Context) error {
		_, err := a.sensor.Devices(ctx)
		return err
	})
	for _, sink := range a.sinks {
		a.api.AddReadinessCheck(sink.Name(), sink.Health)
	}

	a.configWatcher = config.NewWatcher(configPath, cfg, a.configChan)

	return a, nil
}

// initializeSinks connects the enabled mirrors and wraps each in a breaker
func (a *App) initializeSinks(ctx context.Context) {
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	sinks, failed := BuildSinks(connectCtx, a.cfg)
	for _, sink := range sinks {
		a.sinks = append(a.sinks, storage.NewBreakerSink(sink, storage.DefaultBreakerSettings()))
	}

	for name, err := range failed {
		alertCtx, alertCancel := context.WithTimeout(ctx, alertContextTimeout)
		if notifyErr := a.alerter.MirrorFailure(alertCtx, name, err); notifyErr != nil {
			logger.Error().Err(notifyErr).Msg("Failed to send mirror failure alert")
		}
		alertCancel()
	}
}

// Config returns the active configuration
func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// Sampler returns the application's sampler
func (a *App) Sampler() *monitoring.Sampler {
	return a.sampler
}

// Store returns the application's log store
func (a *App) Store() *logstore.Store {
	return a.store
}

// Handler returns the HTTP API handler
func (a *App) Handler() http.Handler {
	return a.api.Handler()
}

// Run starts the application and blocks until ctx is cancelled or a
// shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer a.cancel()

	if err := a.startServer(); err != nil {
		a.shutdown()
		return err
	}
	a.setupSignalHandler()
	setupDebugSignalHandlers(a.ctx, a)
	a.startConfigWatcher()
	a.startForwarder()

	if a.Config().Sampler.AutoStart {
		if _, _, err := a.sampler.Start(a.ctx, a.Config().Interval()); err != nil {
			a.shutdown()
			return fmt.Errorf("failed to start sampler: %w", err)
		}
	} else {
		logger.Info().Msg("Sampler auto start disabled; start it over the API")
	}

	<-a.ctx.Done()
	logger.Info().Msg("Shutting down")
	a.shutdown()
	return nil
}

// Stop requests a graceful shutdown
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// startServer binds the API listener synchronously so address errors are
// reported to the caller
func (a *App) startServer() error {
	cfg := a.Config()
	if !cfg.Server.Enabled {
		return nil
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return errors.NewNetworkError("listen", cfg.Server.Listen, err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           a.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", ln.Addr().String()).Msg("Starting API, metrics and health check server")
		if err := a.server.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("API server failed")
		}
	}()

	if cfg.Advertise.Enabled {
		a.advertiser, err = discovery.Advertise(discovery.Advertisement{
			Instance: cfg.Advertise.Instance,
			Service:  cfg.Advertise.Service,
			Domain:   cfg.Advertise.Domain,
			Listen:   ln.Addr().String(),
			TXT: map[string]string{
				"version": a.version,
				"sensor":  a.sensor.Name(),
				"api":     "/api",
			},
		})
		if err != nil {
			logger.Warn().Err(err).Msg("mDNS advertisement disabled")
		}
	}
	return nil
}

// Addr returns the bound API address, or "" when the API is disabled
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// startForwarder mirrors appended samples and evaluates alerts. It drains
// the Samples channel until the sampler is closed.
func (a *App) startForwarder() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for sample := range a.sampler.Samples() {
			a.forward(sample)
		}
		logger.Debug().Msg("Samples channel closed, forwarder exiting")
	}()
}

func (a *App) forward(sample *monitoring.BatterySample) {
	alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
	if _, err := a.alerter.ObserveSample(alertCtx, sample); err != nil {
		logger.Error().Err(err).Str("device_id", sample.DeviceID).Msg("Failed to send low battery alert")
	}
	alertCancel()

	for _, sink := range a.sinks {
		writeCtx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
		err := sink.WriteSample(writeCtx, sample)
		cancel()

		alertCtx, alertCancel := context.WithTimeout(context.Background(), alertContextTimeout)
		switch {
		case err == nil:
			if notifyErr := a.alerter.MirrorRecovered(alertCtx, sink.Name()); notifyErr != nil {
				logger.Error().Err(notifyErr).Msg("Failed to send mirror recovery alert")
			}
		case stderrors.Is(err, errors.ErrCircuitBreakerOpen):
			logger.Debug().Str("mirror", sink.Name()).Msg("Mirror circuit open, sample not mirrored")
		default:
			logger.Warn().Err(err).Str("mirror", sink.Name()).Str("device_id", sample.DeviceID).Msg("Failed to mirror sample")
			if notifyErr := a.alerter.MirrorFailure(alertCtx, sink.Name(), err); notifyErr != nil {
				logger.Error().Err(notifyErr).Msg("Failed to send mirror failure alert")
			}
		}
		alertCancel()
	}
}

// onAppendError is called by the sampler after a failed append
func (a *App) onAppendError(appendErr error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		alertCtx, cancel := context.WithTimeout(context.Background(), alertContextTimeout)
		defer cancel()
		if _, err := a.alerter.StoreFailure(alertCtx, appendErr); err != nil {
			logger.Error().Err(err).Msg("Failed to send log write failure alert")
		}
	}()
}

// setupSignalHandler cancels the application on interrupt signals
func (a *App) setupSignalHandler() {
	sigChan := make(chan os.Signal, signalChannelSize)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			a.cancel()
		case <-a.ctx.Done():
		}
	}()
}

// startConfigWatcher applies configurations delivered by the watcher
func (a *App) startConfigWatcher() {
	a.configWatcher.Start(a.ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-a.ctx.Done():
				return
			case cfg := <-a.configChan:
				a.ApplyConfig(cfg)
			}
		}
	}()
}

// ApplyConfig applies the settings that can change at runtime. Settings that
// need a restart are logged and ignored.
func (a *App) ApplyConfig(newCfg *config.Config) {
	a.cfgMu.Lock()
	old := a.cfg
	a.cfg = newCfg
	a.cfgMu.Unlock()

	if err := logger.SetLevel(newCfg.Logging.Level); err != nil {
		logger.Warn().Err(err).Msg("Invalid log level, using info")
	}

	if err := a.sampler.UpdateInterval(newCfg.Interval()); err != nil {
		logger.Error().Err(err).Msg("Failed to update sampler interval")
	}
	a.alerter.SetThreshold(newCfg.Alerts.LowBatteryPercent)
	a.notifier.UpdateWebhookURL(newCfg.Alerts.SlackWebhookURL)

	if old.LogPath() != newCfg.LogPath() ||
		old.Sampler.Sensor != newCfg.Sampler.Sensor ||
		old.Logging.Format != newCfg.Logging.Format ||
		old.Server != newCfg.Server ||
		old.InfluxDB != newCfg.InfluxDB ||
		old.MQTT != newCfg.MQTT {
		logger.Warn().Msg("Some changes (log path, sensor, log format, server, mirrors) take effect after a restart")
	}

	logger.Info().
		Int("interval_seconds", newCfg.Sampler.IntervalSeconds).
		Int("low_battery_percent", newCfg.Alerts.LowBatteryPercent).
		Str("log_level", newCfg.Logging.Level).
		Msg("Application configuration updated")
}

// shutdown stops every component. The sampler is closed before waiting so
// the forwarder can drain and exit.
func (a *App) shutdown() {
	logger.Info().Msg("Initiating graceful shutdown...")

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown error")
		} else {
			logger.Info().Msg("HTTP server stopped")
		}
		cancel()
	}
	a.advertiser.Shutdown()

	a.sampler.Close()
	a.configWatcher.Stop()

	logger.Info().Msg("Waiting for goroutines to finish...")
	a.wg.Wait()

	for _, sink := range a.sinks {
		if err := sink.Close(); err != nil {
			logger.Warn().Err(err).Str("mirror", sink.Name()).Msg("Failed to close mirror")
		}
	}
	if closer, ok := a.sensor.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	logger.Info().Msg("All goroutines finished, exiting")
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	cfg := a.Config().Redacted()
	logger.Info().Interface("config", cfg).Msg("Active configuration")

	status := a.sampler.Status()
	event := logger.Info().
		Bool("running", status.Running).
		Int("interval_seconds", status.IntervalSeconds).
		Uint64("ticks", status.Ticks).
		Time("last_tick", status.LastTick)
	if status.Handle != nil {
		event = event.Str("task_id", status.Handle.ID)
	}
	event.Msg("Sampler state")

	if rows, err := a.store.CountRows(); err == nil {
		logger.Info().Str("path", a.store.Path()).Int("rows", rows).Msg("Log state")
	} else {
		logger.Warn().Err(err).Msg("Failed to count log rows")
	}

	for _, sink := range a.sinks {
		logger.Info().Str("mirror", sink.Name()).Str("breaker", sink.State()).Msg("Mirror state")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024)
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}
