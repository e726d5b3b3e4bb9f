// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package sensor reads battery state from the operating system.
//
// A Sensor enumerates the battery devices the OS exposes and reads a
// point-in-time Snapshot for one device. Every Snapshot field is optional:
// firmware frequently omits design capacity or the instantaneous rate, and a
// missing value is represented as nil rather than zero.
//
// # Backends
//
//   - "battery": cross-platform reader built on github.com/distatus/battery
//   - "sysfs":   Linux /sys/class/power_supply reader
//   - "upower":  UPower over the system D-Bus
//
// The sysfs and upower backends identify devices by kernel or D-Bus name,
// which stays with the physical battery. The battery backend only has the
// enumeration index, so its IDs can move between packs when a battery is
// added or removed. DefaultKind therefore prefers sysfs on Linux.
//
// # Example Usage
//
//	s, err := sensor.New(sensor.Options{Kind: "sysfs"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := s.Devices(ctx)
//	for _, id := range ids {
//	    snap, err := s.Read(ctx, id)
//	    ...
//	}
package sensor

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"
)

// Backend names accepted by New.
const (
	KindBattery = "battery"
	KindSysfs   = "sysfs"
	KindUPower  = "upower"
)

// DefaultSysfsRoot is where Linux exposes power supplies.
const DefaultSysfsRoot = "/sys/class/power_supply"

// State is the charge state of a battery.
type State string

// Charge states recorded in the log.
const (
	StateCharging    State = "charging"
	StateDischarging State = "discharging"
	StateFull        State = "full"
	StateUnknown     State = "unknown"
)

// ParseState normalises OS and tool specific state strings. Anything that is
// not clearly charging, discharging or full maps to StateUnknown.
func ParseState(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "charging":
		return StateCharging
	case "discharging", "empty", "pending-discharge":
		return StateDischarging
	case "full", "fully-charged":
		return StateFull
	default:
		return StateUnknown
	}
}

// Snapshot is one point-in-time reading of a battery device.
// Energies are in watt hours, PowerRate in watts.
type Snapshot struct {
	Percentage   *float64
	State        State
	EnergyNow    *float64
	EnergyFull   *float64
	EnergyDesign *float64
	PowerRate    *float64
}

// Health returns the snapshot's health percentage, or nil when undefined.
func (s *Snapshot) Health() *float64 {
	return HealthPercent(s.EnergyFull, s.EnergyDesign)
}

// Sensor enumerates battery devices and reads snapshots.
type Sensor interface {
	// Name identifies the backend (e.g. "sysfs")
	Name() string

	// Devices returns the identifiers of all battery devices currently present
	Devices(ctx context.Context) ([]string, error)

	// Read returns a snapshot of the given device
	Read(ctx context.Context, deviceID string) (*Snapshot, error)
}

// Options configures backend selection.
type Options struct {
	Kind      string
	SysfsRoot string
}

// DefaultKind returns the backend used when none is configured: sysfs on
// Linux, where device names are stable, and the battery backend elsewhere.
func DefaultKind() string {
	return defaultKindFor(runtime.GOOS)
}

func defaultKindFor(goos string) string {
	if goos == "linux" {
		return KindSysfs
	}
	return KindBattery
}

// New creates the sensor backend named by opts.Kind. An empty kind selects
// DefaultKind.
func New(opts Options) (Sensor, error) {
	kind := opts.Kind
	if kind == "" {
		kind = DefaultKind()
	}
	switch strings.ToLower(kind) {
	case KindBattery:
		return NewBatterySensor(), nil
	case KindSysfs:
		root := opts.SysfsRoot
		if root == "" {
			root = DefaultSysfsRoot
		}
		return NewSysfsSensor(root), nil
	case KindUPower:
		return NewUPowerSensor(), nil
	default:
		return nil, fmt.Errorf("unknown sensor backend %q (want %s, %s or %s)", opts.Kind, KindBattery, KindSysfs, KindUPower)
	}
}

// HealthPercent computes 100 * full / design rounded to two decimals.
// It returns nil unless both operands are present and positive, and clamps
// the result to 100 for cells that report more than their design capacity.
func HealthPercent(full, design *float64) *float64 {
	if full == nil || design == nil || *full <= 0 || *design <= 0 {
		return nil
	}
	h := Round2(100 * *full / *design)
	if h > 100 {
		h = 100
	}
	return &h
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ClampPercent limits v to [0, 100].
func ClampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func floatPtr(v float64) *float64 {
	return &v
}

// positive returns a pointer to v when v > 0, nil otherwise.
func positive(v float64) *float64 {
	if v > 0 {
		return &v
	}
	return nil
}
