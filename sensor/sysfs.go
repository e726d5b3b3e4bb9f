// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package sensor

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/util"
)

// SysfsSensor reads batteries from the Linux power_supply class.
// Devices are identified by their directory name (e.g. "BAT0").
//
// The kernel reports energy in µWh, power in µW, charge in µAh and voltage in
// µV. Batteries that only expose charge_* values are converted to energy
// using voltage_min_design (falling back to voltage_now).
type SysfsSensor struct {
	root string
}

// NewSysfsSensor creates a sensor rooted at the given power_supply directory
func NewSysfsSensor(root string) *SysfsSensor {
	return &SysfsSensor{root: root}
}

// Name returns the backend name
func (s *SysfsSensor) Name() string {
	return KindSysfs
}

// Devices lists power supplies whose type is "Battery"
func (s *SysfsSensor) Devices(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.NewSensorError("enumerate", "", err)
	}

	var ids []string
	for _, entry := range entries {
		// power_supply entries are symlinks into /sys/devices
		typ, err := util.ReadTrimmed(filepath.Join(s.root, entry.Name(), "type"))
		if err != nil || !strings.EqualFold(typ, "battery") {
			continue
		}
		ids = append(ids, entry.Name())
	}

	if len(ids) == 0 {
		return nil, errors.NewSensorError("enumerate", "", errors.ErrNoBattery)
	}
	sort.Strings(ids)
	return ids, nil
}

// Read returns a snapshot of one power supply directory
func (s *SysfsSensor) Read(_ context.Context, deviceID string) (*Snapshot, error) {
	if deviceID == "" || strings.ContainsAny(deviceID, `/\`) || deviceID == "." || deviceID == ".." {
		return nil, errors.NewSensorError("read", deviceID, errors.ErrDeviceNotFound)
	}
	dir := filepath.Join(s.root, deviceID)
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.NewSensorError("read", deviceID, err)
	}

	snap := &Snapshot{State: StateUnknown}

	if status, err := util.ReadTrimmed(filepath.Join(dir, "status")); err == nil {
		snap.State = ParseState(status)
	}

	microWh := func(name string) *float64 {
		v, err := util.ReadInt64(filepath.Join(dir, name))
		if err != nil || v <= 0 {
			return nil
		}
		return floatPtr(float64(v) / 1e6)
	}

	snap.EnergyNow = microWh("energy_now")
	snap.EnergyFull = microWh("energy_full")
	snap.EnergyDesign = microWh("energy_full_design")

	if snap.EnergyNow == nil || snap.EnergyFull == nil || snap.EnergyDesign == nil {
		s.fillFromCharge(dir, snap)
	}

	if v, err := util.ReadInt64(filepath.Join(dir, "power_now")); err == nil {
		snap.PowerRate = floatPtr(abs(float64(v)) / 1e6)
	} else if cur, curErr := util.ReadInt64(filepath.Join(dir, "current_now")); curErr == nil {
		if volt, voltErr := util.ReadInt64(filepath.Join(dir, "voltage_now")); voltErr == nil {
			snap.PowerRate = floatPtr(abs(float64(cur)) * float64(volt) / 1e12)
		}
	}

	if capacity, err := util.ReadInt64(filepath.Join(dir, "capacity")); err == nil {
		snap.Percentage = floatPtr(ClampPercent(float64(capacity)))
	} else if snap.EnergyNow != nil && snap.EnergyFull != nil {
		snap.Percentage = floatPtr(ClampPercent(100 * *snap.EnergyNow / *snap.EnergyFull))
	}

	return snap, nil
}

// fillFromCharge derives missing energy values from charge_* and a voltage.
func (s *SysfsSensor) fillFromCharge(dir string, snap *Snapshot) {
	volt, err := util.ReadInt64(filepath.Join(dir, "voltage_min_design"))
	if err != nil || volt <= 0 {
		volt, err = util.ReadInt64(filepath.Join(dir, "voltage_now"))
		if err != nil || volt <= 0 {
			return
		}
	}

	microAh := func(name string) *float64 {
		v, err := util.ReadInt64(filepath.Join(dir, name))
		if err != nil || v <= 0 {
			return nil
		}
		return floatPtr(float64(v) * float64(volt) / 1e12)
	}

	if snap.EnergyNow == nil {
		snap.EnergyNow = microAh("charge_now")
	}
	if snap.EnergyFull == nil {
		snap.EnergyFull = microAh("charge_full")
	}
	if snap.EnergyDesign == nil {
		snap.EnergyDesign = microAh("charge_full_design")
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
