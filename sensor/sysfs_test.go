// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package sensor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soothill/battery-data-logger/pkg/errors"
)

func writeSupply(t *testing.T, root, name string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for file, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content+"\n"), 0o644))
	}
}

func TestSysfsSensor_Devices(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT1", map[string]string{"type": "Battery"})
	writeSupply(t, root, "AC", map[string]string{"type": "Mains"})
	writeSupply(t, root, "BAT0", map[string]string{"type": "Battery"})
	writeSupply(t, root, "hidpp_battery_0", map[string]string{})

	ids, err := NewSysfsSensor(root).Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BAT0", "BAT1"}, ids)
}

func TestSysfsSensor_DevicesNone(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "AC", map[string]string{"type": "Mains"})

	_, err := NewSysfsSensor(root).Devices(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsSensorError(err))
	assert.ErrorIs(t, err, errors.ErrNoBattery)
}

func TestSysfsSensor_DevicesMissingRoot(t *testing.T) {
	_, err := NewSysfsSensor(filepath.Join(t.TempDir(), "missing")).Devices(context.Background())
	assert.True(t, errors.IsSensorError(err))
}

func TestSysfsSensor_ReadEnergy(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT0", map[string]string{
		"type":               "Battery",
		"status":             "Discharging",
		"capacity":           "76",
		"energy_now":         "34200000",
		"energy_full":        "45000000",
		"energy_full_design": "50000000",
		"power_now":          "12500000",
	})

	snap, err := NewSysfsSensor(root).Read(context.Background(), "BAT0")
	require.NoError(t, err)

	assert.Equal(t, StateDischarging, snap.State)
	require.NotNil(t, snap.Percentage)
	assert.Equal(t, 76.0, *snap.Percentage)
	require.NotNil(t, snap.EnergyNow)
	assert.InDelta(t, 34.2, *snap.EnergyNow, 1e-9)
	require.NotNil(t, snap.PowerRate)
	assert.InDelta(t, 12.5, *snap.PowerRate, 1e-9)

	health := snap.Health()
	require.NotNil(t, health)
	assert.Equal(t, 90.0, *health)
}

func TestSysfsSensor_ReadCharge(t *testing.T) {
	root := t.TempDir()
	// 4000 mAh at 11.1 V design voltage = 44.4 Wh
	writeSupply(t, root, "BAT0", map[string]string{
		"type":               "Battery",
		"status":             "Charging",
		"charge_now":         "2000000",
		"charge_full":        "4000000",
		"charge_full_design": "5000000",
		"voltage_min_design": "11100000",
		"voltage_now":        "12000000",
		"current_now":        "-1500000",
	})

	snap, err := NewSysfsSensor(root).Read(context.Background(), "BAT0")
	require.NoError(t, err)

	assert.Equal(t, StateCharging, snap.State)
	require.NotNil(t, snap.EnergyFull)
	assert.InDelta(t, 44.4, *snap.EnergyFull, 1e-9)
	require.NotNil(t, snap.PowerRate)
	assert.InDelta(t, 18.0, *snap.PowerRate, 1e-9)
	require.NotNil(t, snap.Percentage)
	assert.InDelta(t, 50.0, *snap.Percentage, 1e-9)
	require.NotNil(t, snap.Health())
	assert.Equal(t, 80.0, *snap.Health())
}

func TestSysfsSensor_ReadMissingFields(t *testing.T) {
	root := t.TempDir()
	writeSupply(t, root, "BAT0", map[string]string{
		"type":       "Battery",
		"status":     "Not charging",
		"energy_now": "10000000",
	})

	snap, err := NewSysfsSensor(root).Read(context.Background(), "BAT0")
	require.NoError(t, err)

	assert.Equal(t, StateUnknown, snap.State)
	assert.Nil(t, snap.Percentage)
	assert.Nil(t, snap.PowerRate)
	assert.Nil(t, snap.Health())
}

func TestSysfsSensor_ReadRejectsBadID(t *testing.T) {
	s := NewSysfsSensor(t.TempDir())
	for _, id := range []string{"", "..", "../etc", "BAT9"} {
		_, err := s.Read(context.Background(), id)
		assert.Truef(t, errors.IsSensorError(err), "Read(%q) error = %v", id, err)
	}
}
