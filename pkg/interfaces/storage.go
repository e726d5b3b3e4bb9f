// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system components.
// This package promotes loose coupling and testability by allowing
// dependency injection and easy mocking in tests.
package interfaces

import (
	"context"
	"iter"

	"github.com/soothill/battery-data-logger/logstore"
	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/sensor"
)

// SampleSink receives copies of appended samples (InfluxDB, MQTT).
// Sinks are best effort: a failure never affects the CSV log.
type SampleSink interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// WriteSample mirrors one sample
	WriteSample(ctx context.Context, sample *monitoring.BatterySample) error

	// Health checks if the sink backend is reachable
	Health(ctx context.Context) error

	// Close flushes pending writes and releases the connection
	Close() error
}

// LogStore is the durable battery log. *logstore.Store implements it.
type LogStore interface {
	Path() string
	EnsureInitialized() error
	Append(sample *monitoring.BatterySample) error
	CountRows() (int, error)
	Tail(n int) iter.Seq2[*monitoring.BatterySample, error]
	AveragePercentage() (float64, bool, error)
	MinPercentage() (int, bool, error)
	AverageDischargePower(state sensor.State) (float64, bool, error)
	Stats() (*logstore.Stats, error)
	Clear() error
	ExportCopy(dest string) error
}
