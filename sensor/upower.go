// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package sensor

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/soothill/battery-data-logger/pkg/errors"
)

const (
	upowerService        = "org.freedesktop.UPower"
	upowerPath           = dbus.ObjectPath("/org/freedesktop/UPower")
	upowerDeviceIface    = "org.freedesktop.UPower.Device"
	upowerEnumerate      = "org.freedesktop.UPower.EnumerateDevices"
	dbusPropertiesGetAll = "org.freedesktop.DBus.Properties.GetAll"

	// UPower device type 2 is a laptop battery
	upowerTypeBattery = uint32(2)
)

// upowerStates maps the UPower State enum to log states.
var upowerStates = map[uint32]State{
	1: StateCharging,    // charging
	2: StateDischarging, // discharging
	3: StateDischarging, // empty
	4: StateFull,        // fully charged
	5: StateUnknown,     // pending charge
	6: StateDischarging, // pending discharge
}

// UPowerSensor reads batteries from the UPower daemon over the system bus.
// Devices are identified by the last element of their object path
// (e.g. "battery_BAT0"), matching `upower -e`.
type UPowerSensor struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewUPowerSensor creates a UPower sensor. The bus connection is opened
// lazily on first use so construction never fails.
func NewUPowerSensor() *UPowerSensor {
	return &UPowerSensor{}
}

// Name returns the backend name
func (s *UPowerSensor) Name() string {
	return KindUPower
}

func (s *UPowerSensor) connection() (*dbus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil && s.conn.Connected() {
		return s.conn, nil
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	s.conn = conn
	return conn, nil
}

// Devices lists UPower devices of battery type
func (s *UPowerSensor) Devices(ctx context.Context) ([]string, error) {
	conn, err := s.connection()
	if err != nil {
		return nil, errors.NewSensorError("enumerate", "", err)
	}

	var paths []dbus.ObjectPath
	if err := conn.Object(upowerService, upowerPath).CallWithContext(ctx, upowerEnumerate, 0).Store(&paths); err != nil {
		return nil, errors.NewSensorError("enumerate", "", err)
	}

	var ids []string
	for _, p := range paths {
		props, err := s.properties(ctx, conn, p)
		if err != nil {
			continue
		}
		if typ, ok := props["Type"].Value().(uint32); !ok || typ != upowerTypeBattery {
			continue
		}
		if present, ok := props["IsPresent"].Value().(bool); ok && !present {
			continue
		}
		ids = append(ids, path.Base(string(p)))
	}

	if len(ids) == 0 {
		return nil, errors.NewSensorError("enumerate", "", errors.ErrNoBattery)
	}
	sort.Strings(ids)
	return ids, nil
}

// Read returns a snapshot of one UPower device
func (s *UPowerSensor) Read(ctx context.Context, deviceID string) (*Snapshot, error) {
	if deviceID == "" || strings.Contains(deviceID, "/") {
		return nil, errors.NewSensorError("read", deviceID, errors.ErrDeviceNotFound)
	}

	conn, err := s.connection()
	if err != nil {
		return nil, errors.NewSensorError("read", deviceID, err)
	}

	objectPath := dbus.ObjectPath(string(upowerPath) + "/devices/" + deviceID)
	props, err := s.properties(ctx, conn, objectPath)
	if err != nil {
		return nil, errors.NewSensorError("read", deviceID, err)
	}

	return snapshotFromUPower(props), nil
}

func (s *UPowerSensor) properties(ctx context.Context, conn *dbus.Conn, p dbus.ObjectPath) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	err := conn.Object(upowerService, p).CallWithContext(ctx, dbusPropertiesGetAll, 0, upowerDeviceIface).Store(&props)
	if err != nil {
		return nil, err
	}
	return props, nil
}

// snapshotFromUPower converts a UPower property map. UPower reports zero for
// values the firmware does not provide, so zeros become nil.
func snapshotFromUPower(props map[string]dbus.Variant) *Snapshot {
	float := func(name string) (float64, bool) {
		v, ok := props[name]
		if !ok {
			return 0, false
		}
		f, ok := v.Value().(float64)
		return f, ok
	}

	snap := &Snapshot{State: StateUnknown}

	if v, ok := props["State"]; ok {
		if st, ok := v.Value().(uint32); ok {
			if mapped, known := upowerStates[st]; known {
				snap.State = mapped
			}
		}
	}
	if pct, ok := float("Percentage"); ok {
		snap.Percentage = floatPtr(ClampPercent(pct))
	}
	if e, ok := float("Energy"); ok {
		snap.EnergyNow = floatPtr(e)
	}
	if e, ok := float("EnergyFull"); ok {
		snap.EnergyFull = positive(e)
	}
	if e, ok := float("EnergyFullDesign"); ok {
		snap.EnergyDesign = positive(e)
	}
	if rate, ok := float("EnergyRate"); ok {
		snap.PowerRate = floatPtr(abs(rate))
	}

	return snap
}

// Close releases the system bus connection
func (s *UPowerSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
