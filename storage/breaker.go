// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/interfaces"
	"github.com/soothill/battery-data-logger/pkg/logger"
	"github.com/soothill/battery-data-logger/pkg/metrics"
)

// BreakerSettings tunes a BreakerSink
type BreakerSettings struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold uint32
	// ResetTimeout is how long the breaker stays open before probing again
	ResetTimeout time.Duration
	// HalfOpenRequests is how many probes must succeed to close it again
	HalfOpenRequests uint32
}

// DefaultBreakerSettings returns the settings used for mirrors
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// BreakerSink guards another sink with a circuit breaker. While the breaker
// is open writes fail immediately with errors.ErrCircuitBreakerOpen.
type BreakerSink struct {
	sink interfaces.SampleSink
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerSink wraps sink
func NewBreakerSink(sink interfaces.SampleSink, settings BreakerSettings) *BreakerSink {
	threshold := settings.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        sink.Name(),
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("sink", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
		// Bad samples are the caller's fault, not the backend's
		IsSuccessful: func(err error) bool {
			return err == nil || errors.IsValidationError(err)
		},
	})

	return &BreakerSink{sink: sink, cb: cb}
}

// Name returns the wrapped sink's name
func (b *BreakerSink) Name() string {
	return b.sink.Name()
}

// State returns the breaker state ("closed", "open" or "half-open")
func (b *BreakerSink) State() string {
	return b.cb.State().String()
}

// WriteSample writes through the breaker and records mirror metrics
func (b *BreakerSink) WriteSample(ctx context.Context, sample *monitoring.BatterySample) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.sink.WriteSample(ctx, sample)
	})

	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.MirrorWriteErrors.WithLabelValues(b.Name()).Inc()
		return errors.ErrCircuitBreakerOpen
	}
	if err != nil {
		metrics.MirrorWriteErrors.WithLabelValues(b.Name()).Inc()
		return err
	}
	metrics.MirrorWritesTotal.WithLabelValues(b.Name()).Inc()
	return nil
}

// Health checks the wrapped sink directly, bypassing the breaker
func (b *BreakerSink) Health(ctx context.Context) error {
	return b.sink.Health(ctx)
}

// Close closes the wrapped sink
func (b *BreakerSink) Close() error {
	return b.sink.Close()
}
