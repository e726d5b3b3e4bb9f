// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package monitoring

import (
	"math"
	"time"

	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/sensor"
)

// BatterySample is one log row: a single device read during a single tick.
// Pointer fields are nil when the value was unavailable.
type BatterySample struct {
	Timestamp  time.Time    `json:"timestamp"`
	DeviceID   string       `json:"device_id"`
	Percentage *int         `json:"percentage"`
	State      sensor.State `json:"state"`
	EnergyNow  *float64     `json:"energy_now"` // Wh
	PowerRate  *float64     `json:"power_rate"` // W
	HealthPct  *float64     `json:"health_pct"` // 0-100
}

// NewSample builds a sample from a sensor snapshot. The timestamp is
// truncated to whole seconds.
func NewSample(ts time.Time, deviceID string, snap *sensor.Snapshot) *BatterySample {
	sample := &BatterySample{
		Timestamp: ts.Truncate(time.Second),
		DeviceID:  deviceID,
		State:     sensor.StateUnknown,
	}
	if snap == nil {
		return sample
	}

	if snap.State != "" {
		sample.State = snap.State
	}
	if snap.Percentage != nil {
		pct := int(math.Round(sensor.ClampPercent(*snap.Percentage)))
		sample.Percentage = &pct
	}
	sample.EnergyNow = snap.EnergyNow
	sample.PowerRate = snap.PowerRate
	sample.HealthPct = snap.Health()

	return sample
}

// Validate checks the invariants every stored sample must satisfy.
func (s *BatterySample) Validate() error {
	if s == nil {
		return errors.NewValidationError("sample", nil, "cannot be nil")
	}
	if s.DeviceID == "" {
		return errors.NewValidationError("device_id", s.DeviceID, "cannot be empty")
	}
	if s.Timestamp.IsZero() {
		return errors.NewValidationError("timestamp", s.Timestamp, "cannot be zero")
	}
	if s.Percentage != nil && (*s.Percentage < 0 || *s.Percentage > 100) {
		return errors.NewValidationError("percentage", *s.Percentage, "must be within [0, 100]")
	}
	if s.HealthPct != nil && (*s.HealthPct < 0 || *s.HealthPct > 100 || math.IsNaN(*s.HealthPct)) {
		return errors.NewValidationError("health_pct", *s.HealthPct, "must be within [0, 100]")
	}
	switch s.State {
	case sensor.StateCharging, sensor.StateDischarging, sensor.StateFull, sensor.StateUnknown:
	default:
		return errors.NewValidationError("state", s.State, "unknown state")
	}
	return nil
}
