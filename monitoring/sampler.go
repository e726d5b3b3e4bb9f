// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package monitoring runs the background battery sampler.
//
// The Sampler owns a single periodic task. On every tick it enumerates the
// battery devices exposed by a sensor.Sensor, reads a snapshot per device and
// appends one BatterySample per device to an Appender (normally the CSV log
// store). Ticks are strictly serial. A failed read skips that device and a
// failed enumeration skips the tick; neither ends the task. Only Stop, Close
// or cancellation of the context passed to Start does.
package monitoring

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/logger"
	"github.com/soothill/battery-data-logger/pkg/metrics"
	"github.com/soothill/battery-data-logger/sensor"
)

const (
	// DefaultInterval is the sampling interval used when none is configured
	DefaultInterval = 300 * time.Second

	// MinInterval and MaxInterval bound the sampling interval
	MinInterval = time.Second
	MaxInterval = 24 * time.Hour

	defaultSamplesBufferSize = 100
)

// ValidateInterval accepts a whole number of seconds between MinInterval
// and MaxInterval.
func ValidateInterval(interval time.Duration) error {
	if interval < MinInterval || interval > MaxInterval {
		return errors.NewConfigError("interval", interval.String(),
			fmt.Errorf("must be between %s and %s", MinInterval, MaxInterval))
	}
	if interval%time.Second != 0 {
		return errors.NewConfigError("interval", interval.String(),
			fmt.Errorf("must be a whole number of seconds"))
	}
	return nil
}

// Appender persists samples. *logstore.Store implements it.
type Appender interface {
	Append(sample *BatterySample) error
}

// TaskHandle identifies one run of the sampler task. It is returned by Start
// and stays the same until the task stops.
type TaskHandle struct {
	ID        string        `json:"id"`
	Interval  time.Duration `json:"interval"`
	StartedAt time.Time     `json:"started_at"`
}

// Status is a point-in-time view of the sampler state.
type Status struct {
	Running         bool        `json:"running"`
	IntervalSeconds int         `json:"interval_seconds"`
	Handle          *TaskHandle `json:"task_handle,omitempty"`
	Ticks           uint64      `json:"ticks"`
	LastTick        time.Time   `json:"last_tick"`
}

// Sampler periodically samples every battery device into an Appender.
type Sampler struct {
	sensor  sensor.Sensor
	store   Appender
	samples chan *BatterySample
	now     func() time.Time

	// tickPeriod maps the interval to the ticker period
	tickPeriod func(time.Duration) time.Duration

	onAppendError func(error)

	mu         sync.Mutex
	interval   time.Duration
	handle     *TaskHandle
	cancel     context.CancelFunc
	done       chan struct{}
	intervalCh chan time.Duration
	ticks      uint64
	lastTick   time.Time
	closed     bool

	// tickMu serialises ticks and guards lastTimestamp
	tickMu        sync.Mutex
	lastTimestamp map[string]time.Time
}

// NewSampler creates a stopped sampler. bufferSize sets the capacity of the
// Samples channel; zero or less selects the default.
func NewSampler(s sensor.Sensor, store Appender, bufferSize int) *Sampler {
	if bufferSize <= 0 {
		bufferSize = defaultSamplesBufferSize
	}
	return &Sampler{
		sensor:        s,
		store:         store,
		samples:       make(chan *BatterySample, bufferSize),
		now:           time.Now,
		tickPeriod:    func(d time.Duration) time.Duration { return d },
		interval:      DefaultInterval,
		lastTimestamp: make(map[string]time.Time),
	}
}

// SetAppendErrorHandler registers fn to be called after every failed append.
// It must be called before Start.
func (s *Sampler) SetAppendErrorHandler(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAppendError = fn
}

// Start launches the sampling task. The first tick runs immediately, then
// one tick per interval. If the task is already running the existing handle
// is returned with started false and nothing new is scheduled.
func (s *Sampler) Start(ctx context.Context, interval time.Duration) (handle *TaskHandle, started bool, err error) {
	if err := ValidateInterval(interval); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, fmt.Errorf("sampler is closed")
	}
	if s.handle != nil {
		logger.Debug().Str("task_id", s.handle.ID).Msg("Sampler already running, returning existing handle")
		h := *s.handle
		return &h, false, nil
	}

	taskCtx, cancel := context.WithCancel(ctx)
	s.interval = interval
	s.handle = &TaskHandle{
		ID:        uuid.NewString(),
		Interval:  interval,
		StartedAt: s.now(),
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	s.intervalCh = make(chan time.Duration, 1)

	metrics.SamplerRunning.Set(1)
	metrics.SamplerIntervalSeconds.Set(interval.Seconds())
	logger.Info().Str("task_id", s.handle.ID).Dur("interval", interval).Msg("Starting battery sampler")

	go s.run(taskCtx, interval, s.done, s.intervalCh)

	h := *s.handle
	return &h, true, nil
}

// Stop cancels the running task and waits until it has exited. An in-flight
// tick completes its writes first. It returns false if the sampler was not
// running.
func (s *Sampler) Stop() bool {
	s.mu.Lock()
	if s.handle == nil {
		s.mu.Unlock()
		return false
	}
	id := s.handle.ID
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	logger.Info().Str("task_id", id).Msg("Battery sampler stopped")
	return true
}

// Close stops the sampler and closes the Samples channel. The sampler cannot
// be restarted afterwards.
func (s *Sampler) Close() {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.samples)
}

// IsRunning reports whether the sampling task is active
func (s *Sampler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Interval returns the current sampling interval
func (s *Sampler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Status returns the current sampler state
func (s *Sampler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:         s.handle != nil,
		IntervalSeconds: int(s.interval / time.Second),
		Ticks:           s.ticks,
		LastTick:        s.lastTick,
	}
	if s.handle != nil {
		h := *s.handle
		st.Handle = &h
	}
	return st
}

// UpdateInterval changes the sampling interval. A running task picks the new
// value up at its next tick boundary. Values ValidateInterval rejects are
// returned as errors and the previous interval is kept.
func (s *Sampler) UpdateInterval(interval time.Duration) error {
	if err := ValidateInterval(interval); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval == interval {
		return nil
	}
	s.interval = interval
	metrics.SamplerIntervalSeconds.Set(interval.Seconds())

	if s.handle != nil {
		s.handle.Interval = interval
		// Replace any update the task has not consumed yet
		select {
		case <-s.intervalCh:
		default:
		}
		s.intervalCh <- interval
	}
	logger.Info().Dur("interval", interval).Msg("Sampler interval updated")
	return nil
}

// Samples returns the channel of appended samples. Delivery is best effort:
// when the channel is full the sample is dropped here but is still in the log.
func (s *Sampler) Samples() <-chan *BatterySample {
	return s.samples
}

// run is the task body. It exits only when ctx is cancelled.
func (s *Sampler) run(ctx context.Context, interval time.Duration, done chan struct{}, intervalCh <-chan time.Duration) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.handle = nil
			s.cancel = nil
		}
		s.mu.Unlock()
		metrics.SamplerRunning.Set(0)
		close(done)
	}()

	// Writes must never be aborted by Stop, so ticks run detached from ctx
	tickCtx := context.WithoutCancel(ctx)

	s.safeTick(tickCtx)

	ticker := time.NewTicker(s.tickPeriod(interval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-intervalCh:
			ticker.Reset(s.tickPeriod(d))
		case <-ticker.C:
			// A tick may have become due while Stop was waiting
			if ctx.Err() != nil {
				return
			}
			s.safeTick(tickCtx)
		}
	}
}

// safeTick runs one tick and recovers from panics so a bug in a sensor
// backend cannot kill the task.
func (s *Sampler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in sampler tick")
			metrics.SensorErrors.WithLabelValues("panic").Inc()
		}
	}()
	s.Tick(ctx)
}

// Tick performs one sampling pass and returns the number of rows appended.
// It may be called while the task is running; ticks never overlap.
func (s *Sampler) Tick(ctx context.Context) int {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
		metrics.TicksTotal.Inc()
		s.mu.Lock()
		s.ticks++
		s.lastTick = start
		s.mu.Unlock()
	}()

	ids, err := s.sensor.Devices(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("sensor", s.sensor.Name()).Msg("Battery enumeration failed, skipping tick")
		metrics.SensorErrors.WithLabelValues("enumerate").Inc()
		return 0
	}
	metrics.DevicesSeen.Set(float64(len(ids)))

	now := s.now()
	appended := 0
	for _, id := range ids {
		snap, err := s.sensor.Read(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Str("device_id", id).Msg("Battery read failed, skipping device")
			metrics.SensorErrors.WithLabelValues("read").Inc()
			continue
		}

		sample := NewSample(s.timestampFor(id, now), id, snap)
		if err := s.store.Append(sample); err != nil {
			logger.Error().Err(err).Str("device_id", id).Msg("Failed to append battery sample")
			metrics.StoreErrors.WithLabelValues("append").Inc()
			s.mu.Lock()
			fn := s.onAppendError
			s.mu.Unlock()
			if fn != nil {
				fn(err)
			}
			continue
		}

		appended++
		metrics.SamplesAppended.Inc()
		recordGauges(sample)
		s.publish(sample)

		logger.Debug().
			Str("device_id", id).
			Str("state", string(sample.State)).
			Msg("Battery sample appended")
	}
	return appended
}

// timestampFor keeps per-device timestamps strictly increasing. A second
// tick within the same second, or a wall clock that stepped backwards, places
// the sample one second after the previous one. Instants are compared, not
// local wall times, so a DST transition alone never triggers the clamp.
func (s *Sampler) timestampFor(deviceID string, now time.Time) time.Time {
	ts := now.Truncate(time.Second)
	if last, ok := s.lastTimestamp[deviceID]; ok && !ts.After(last) {
		if ts.Before(last) {
			logger.Warn().
				Str("device_id", deviceID).
				Time("clock", ts).
				Time("previous", last).
				Msg("Wall clock moved backwards, clamping sample timestamp")
		}
		ts = last.Add(time.Second)
	}
	s.lastTimestamp[deviceID] = ts
	return ts
}

func (s *Sampler) publish(sample *BatterySample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.samples <- sample:
	default:
		metrics.SamplesDropped.Inc()
		logger.Warn().Str("device_id", sample.DeviceID).Msg("Samples channel full, dropping sample")
	}
}

func recordGauges(sample *BatterySample) {
	if sample.Percentage != nil {
		metrics.BatteryPercentage.WithLabelValues(sample.DeviceID).Set(float64(*sample.Percentage))
	}
	if sample.EnergyNow != nil {
		metrics.BatteryEnergy.WithLabelValues(sample.DeviceID).Set(*sample.EnergyNow)
	}
	if sample.PowerRate != nil {
		metrics.BatteryPower.WithLabelValues(sample.DeviceID).Set(*sample.PowerRate)
	}
	if sample.HealthPct != nil {
		metrics.BatteryHealth.WithLabelValues(sample.DeviceID).Set(*sample.HealthPct)
	}
}
