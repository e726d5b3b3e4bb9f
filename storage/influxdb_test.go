// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/soothill/battery-data-logger/pkg/errors"
)

func TestNewInfluxDBSink_EmptyURL(t *testing.T) {
	sink, err := NewInfluxDBSink(context.Background(), "", "token", "org", "bucket")
	if !errors.IsConfigError(err) {
		t.Errorf("NewInfluxDBSink() error = %v, want ConfigError", err)
	}
	if sink != nil {
		t.Error("NewInfluxDBSink() should return nil sink on error")
	}
}

func TestNewInfluxDBSink_Unreachable(t *testing.T) {
	sink, err := NewInfluxDBSink(context.Background(), "http://127.0.0.1:1", "token", "org", "bucket")
	if !errors.IsNetworkError(err) {
		t.Errorf("NewInfluxDBSink() error = %v, want NetworkError", err)
	}
	if sink != nil {
		_ = sink.Close()
		t.Error("NewInfluxDBSink() should return nil sink on connection error")
	}
}

func TestSamplePoint(t *testing.T) {
	sample := testSample()
	energy, power := 34.2, 12.5
	sample.EnergyNow = &energy
	sample.PowerRate = &power

	line := write.PointToLineProtocol(samplePoint(sample), time.Nanosecond)

	for _, want := range []string{
		"battery,device_id=BAT0 ",
		`state="charging"`,
		"percentage=50i",
		"energy_wh=34.2",
		"power_w=12.5",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line protocol %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "health_pct") {
		t.Errorf("line protocol %q should omit absent health", line)
	}
}

func TestSamplePoint_OnlyState(t *testing.T) {
	sample := testSample()
	sample.Percentage = nil

	line := write.PointToLineProtocol(samplePoint(sample), time.Nanosecond)
	if !strings.Contains(line, `state="charging"`) {
		t.Errorf("line protocol %q should carry state", line)
	}
}

func TestDeviceIDPattern(t *testing.T) {
	for _, id := range []string{"BAT0", "battery_BAT1", "hidpp-battery.0"} {
		if !deviceIDPattern.MatchString(id) {
			t.Errorf("%q should be accepted", id)
		}
	}
	for _, id := range []string{"", `BAT0") |> drop()`, "a b"} {
		if deviceIDPattern.MatchString(id) {
			t.Errorf("%q should be rejected", id)
		}
	}
}
