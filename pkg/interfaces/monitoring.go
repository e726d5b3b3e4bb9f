// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"
	"time"

	"github.com/soothill/battery-data-logger/monitoring"
)

// Sampler defines the background sampling task as seen by the API and CLI.
// *monitoring.Sampler implements it.
type Sampler interface {
	// Start launches the task, or returns the existing handle with started
	// false if it is already running
	Start(ctx context.Context, interval time.Duration) (handle *monitoring.TaskHandle, started bool, err error)

	// Stop halts the task; false means it was not running
	Stop() bool

	// IsRunning reports whether the task is active
	IsRunning() bool

	// Status returns the current sampler state
	Status() monitoring.Status

	// UpdateInterval changes the interval from the next tick on
	UpdateInterval(interval time.Duration) error

	// Tick samples every device once and returns the number appended
	Tick(ctx context.Context) int
}
