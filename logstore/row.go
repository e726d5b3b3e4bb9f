// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package logstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/sensor"
)

// TimestampLayout is the format of the Timestamp column, in local time. It
// carries no zone offset, so wall times can repeat across a DST fall-back.
const TimestampLayout = "2006-01-02 15:04:05"

// Header is the fixed first line of every log file.
var Header = []string{"Timestamp", "Battery", "Percentage", "State", "Energy", "Power_Usage", "Health"}

// columns is the number of fields in every well-formed row
var columns = len(Header)

// encodeRow renders a sample in column order. Nil values become empty fields.
func encodeRow(s *monitoring.BatterySample) []string {
	return []string{
		s.Timestamp.Local().Format(TimestampLayout),
		s.DeviceID,
		formatInt(s.Percentage),
		string(s.State),
		formatFloat(s.EnergyNow),
		formatFloat(s.PowerRate),
		formatFloat(s.HealthPct),
	}
}

// decodeRow parses one record. Rows with the wrong number of fields, a bad
// timestamp, an empty device or an unparseable number are rejected.
func decodeRow(rec []string) (*monitoring.BatterySample, error) {
	if len(rec) != columns {
		return nil, fmt.Errorf("expected %d fields, got %d", columns, len(rec))
	}

	ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(rec[0]), time.Local)
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	deviceID := strings.TrimSpace(rec[1])
	if deviceID == "" {
		return nil, fmt.Errorf("empty battery column")
	}

	sample := &monitoring.BatterySample{
		Timestamp: ts,
		DeviceID:  deviceID,
		State:     sensor.ParseState(rec[3]),
	}

	if sample.Percentage, err = parseInt(rec[2]); err != nil {
		return nil, fmt.Errorf("percentage: %w", err)
	}
	if sample.EnergyNow, err = parseFloat(rec[4]); err != nil {
		return nil, fmt.Errorf("energy: %w", err)
	}
	if sample.PowerRate, err = parseFloat(rec[5]); err != nil {
		return nil, fmt.Errorf("power: %w", err)
	}
	if sample.HealthPct, err = parseFloat(rec[6]); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}

	return sample, nil
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatFloat(v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// parseInt accepts "76", "76%" and "76.4" (rounded).
func parseInt(field string) (*int, error) {
	field = strings.TrimSuffix(strings.TrimSpace(field), "%")
	if field == "" {
		return nil, nil
	}
	if v, err := strconv.Atoi(field); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return nil, err
	}
	v := int(math.Round(f))
	return &v, nil
}

func parseFloat(field string) (*float64, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("not a finite number: %q", field)
	}
	return &v, nil
}
