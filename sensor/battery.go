// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package sensor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/distatus/battery"
	"github.com/soothill/battery-data-logger/pkg/errors"
)

const batteryIDPrefix = "BAT"

// BatterySensor reads batteries through github.com/distatus/battery, which
// covers Linux, macOS, Windows and the BSDs. Devices are identified by their
// index as reported by the library ("BAT0", "BAT1", ...).
//
// The index is the battery's position in the platform enumeration, not a
// property of the pack. Hot-swapping or removing a battery renumbers the
// ones after it, so log rows for one ID can span two physical batteries.
// Use the sysfs or upower backend when per-pack history matters.
type BatterySensor struct {
	getAll func() ([]*battery.Battery, error)
	get    func(idx int) (*battery.Battery, error)
}

// NewBatterySensor creates a sensor backed by the platform battery API
func NewBatterySensor() *BatterySensor {
	return &BatterySensor{
		getAll: battery.GetAll,
		get:    battery.Get,
	}
}

// Name returns the backend name
func (s *BatterySensor) Name() string {
	return KindBattery
}

// Devices lists the batteries that could be read at least partially
func (s *BatterySensor) Devices(_ context.Context) ([]string, error) {
	batteries, err := s.getAll()

	perBattery, isPerBattery := err.(battery.Errors)
	if err != nil && !isPerBattery {
		return nil, errors.NewSensorError("enumerate", "", err)
	}

	ids := make([]string, 0, len(batteries))
	for i, bat := range batteries {
		if bat == nil {
			continue
		}
		if isPerBattery && i < len(perBattery) && isFatal(perBattery[i]) {
			continue
		}
		ids = append(ids, batteryIDPrefix+strconv.Itoa(i))
	}

	if len(ids) == 0 {
		return nil, errors.NewSensorError("enumerate", "", errors.ErrNoBattery)
	}
	return ids, nil
}

// Read returns a snapshot of one battery. Fields the platform could not
// provide are left nil.
func (s *BatterySensor) Read(_ context.Context, deviceID string) (*Snapshot, error) {
	idx, err := parseBatteryIndex(deviceID)
	if err != nil {
		return nil, errors.NewSensorError("read", deviceID, err)
	}

	bat, err := s.get(idx)
	if bat == nil {
		if err == nil {
			err = errors.ErrDeviceNotFound
		}
		return nil, errors.NewSensorError("read", deviceID, err)
	}
	if isFatal(err) {
		return nil, errors.NewSensorError("read", deviceID, err)
	}

	return snapshotFromBattery(bat, partialErrors(err)), nil
}

// snapshotFromBattery converts library units (mWh, mW) to Wh and W and drops
// every field the library flagged as unavailable.
func snapshotFromBattery(bat *battery.Battery, partial battery.ErrPartial) *Snapshot {
	snap := &Snapshot{State: StateUnknown}

	if partial.State == nil {
		snap.State = stateFromAgnostic(bat.State.Raw)
	}
	if partial.Current == nil {
		snap.EnergyNow = floatPtr(bat.Current / 1000)
	}
	if partial.Full == nil && bat.Full > 0 {
		snap.EnergyFull = floatPtr(bat.Full / 1000)
	}
	if partial.Design == nil && bat.Design > 0 {
		snap.EnergyDesign = floatPtr(bat.Design / 1000)
	}
	if partial.ChargeRate == nil {
		snap.PowerRate = floatPtr(bat.ChargeRate / 1000)
	}
	if snap.EnergyNow != nil && snap.EnergyFull != nil {
		snap.Percentage = floatPtr(ClampPercent(100 * *snap.EnergyNow / *snap.EnergyFull))
	}

	return snap
}

func stateFromAgnostic(s battery.AgnosticState) State {
	switch s {
	case battery.Charging:
		return StateCharging
	case battery.Discharging, battery.Empty:
		return StateDischarging
	case battery.Full:
		return StateFull
	default:
		return StateUnknown
	}
}

func parseBatteryIndex(deviceID string) (int, error) {
	if !strings.HasPrefix(deviceID, batteryIDPrefix) {
		return 0, fmt.Errorf("%w: %q", errors.ErrDeviceNotFound, deviceID)
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(deviceID, batteryIDPrefix))
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("%w: %q", errors.ErrDeviceNotFound, deviceID)
	}
	return idx, nil
}

func isFatal(err error) bool {
	switch err.(type) {
	case battery.ErrFatal, *battery.ErrFatal:
		return true
	}
	return false
}

func partialErrors(err error) battery.ErrPartial {
	switch e := err.(type) {
	case battery.ErrPartial:
		return e
	case *battery.ErrPartial:
		if e != nil {
			return *e
		}
	}
	return battery.ErrPartial{}
}
