// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package storage mirrors battery samples to remote time-series backends.
//
// The CSV log is the record of truth; sinks here are optional copies. Every
// sink is normally wrapped in a BreakerSink so an unreachable backend costs
// one fast failure per sample instead of a network timeout.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/pkg/logger"
	"github.com/soothill/battery-data-logger/sensor"
)

const (
	// MeasurementBattery is the InfluxDB measurement samples are written to
	MeasurementBattery = "battery"

	influxConnectTimeout = 5 * time.Second
)

// deviceIDPattern restricts ids interpolated into Flux queries
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// InfluxDBSink writes samples to InfluxDB 2.x using the blocking write API,
// so a failed write is reported to the caller (and the circuit breaker).
type InfluxDBSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	url      string
	bucket   string
	org      string
}

// NewInfluxDBSink connects to InfluxDB and verifies the server is healthy
func NewInfluxDBSink(ctx context.Context, url, token, org, bucket string) (*InfluxDBSink, error) {
	if url == "" {
		return nil, errors.NewConfigError("influxdb.url", "", fmt.Errorf("cannot be empty"))
	}

	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(influxConnectTimeout.Seconds())))

	healthCtx, cancel := context.WithTimeout(ctx, influxConnectTimeout)
	defer cancel()

	health, err := client.Health(healthCtx)
	if err != nil {
		client.Close()
		return nil, errors.NewNetworkError("connect", url, err)
	}
	if health.Status != "pass" {
		client.Close()
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return nil, errors.NewNetworkError("health", url, fmt.Errorf("InfluxDB health check failed: %s", message))
	}

	logger.Info().Str("url", url).Str("status", string(health.Status)).Msg("Connected to InfluxDB")

	return &InfluxDBSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		url:      url,
		bucket:   bucket,
		org:      org,
	}, nil
}

// Name returns the sink name used in metrics
func (s *InfluxDBSink) Name() string {
	return "influxdb"
}

// samplePoint converts a sample to a point. State is always written as a
// field so the point is never empty; absent values are omitted.
func samplePoint(sample *monitoring.BatterySample) *write.Point {
	fields := map[string]interface{}{
		"state": string(sample.State),
	}
	if sample.Percentage != nil {
		fields["percentage"] = int64(*sample.Percentage)
	}
	if sample.EnergyNow != nil {
		fields["energy_wh"] = *sample.EnergyNow
	}
	if sample.PowerRate != nil {
		fields["power_w"] = *sample.PowerRate
	}
	if sample.HealthPct != nil {
		fields["health_pct"] = *sample.HealthPct
	}

	return influxdb2.NewPoint(
		MeasurementBattery,
		map[string]string{"device_id": sample.DeviceID},
		fields,
		sample.Timestamp,
	)
}

// WriteSample writes a single sample
func (s *InfluxDBSink) WriteSample(ctx context.Context, sample *monitoring.BatterySample) error {
	if err := sample.Validate(); err != nil {
		return err
	}
	if err := s.writeAPI.WritePoint(ctx, samplePoint(sample)); err != nil {
		return errors.NewNetworkError("write", s.url, err)
	}
	return nil
}

// WriteBatch writes multiple samples in one request
func (s *InfluxDBSink) WriteBatch(ctx context.Context, samples []*monitoring.BatterySample) error {
	points := make([]*write.Point, 0, len(samples))
	for i, sample := range samples {
		if err := sample.Validate(); err != nil {
			return fmt.Errorf("sample at index %d: %w", i, err)
		}
		points = append(points, samplePoint(sample))
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.writeAPI.WritePoint(ctx, points...); err != nil {
		return errors.NewNetworkError("write", s.url, err)
	}
	return nil
}

// Health pings the InfluxDB server
func (s *InfluxDBSink) Health(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return errors.NewNetworkError("ping", s.url, err)
	}
	if !ok {
		return errors.NewNetworkError("ping", s.url, errors.ErrNotConnected)
	}
	return nil
}

// Close releases the client
func (s *InfluxDBSink) Close() error {
	logger.Info().Msg("Closing InfluxDB connection")
	s.client.Close()
	return nil
}

// QueryLatest retrieves the most recent sample for a device within the last
// day, or nil if there is none.
func (s *InfluxDBSink) QueryLatest(ctx context.Context, deviceID string) (*monitoring.BatterySample, error) {
	if !deviceIDPattern.MatchString(deviceID) {
		return nil, errors.NewValidationError("device_id", deviceID, "invalid characters")
	}

	query := fmt.Sprintf(`
		from(bucket: %q)
			|> range(start: -24h)
			|> filter(fn: (r) => r._measurement == %q)
			|> filter(fn: (r) => r.device_id == %q)
			|> last()
	`, s.bucket, MeasurementBattery, deviceID)

	result, err := s.client.QueryAPI(s.org).Query(ctx, query)
	if err != nil {
		return nil, errors.NewNetworkError("query", s.url, err)
	}
	defer func() {
		_ = result.Close()
	}()

	var sample *monitoring.BatterySample
	for result.Next() {
		record := result.Record()
		if sample == nil {
			sample = &monitoring.BatterySample{DeviceID: deviceID, State: sensor.StateUnknown}
		}
		if record.Time().After(sample.Timestamp) {
			sample.Timestamp = record.Time()
		}

		switch record.Field() {
		case "state":
			if v, ok := record.Value().(string); ok {
				sample.State = sensor.ParseState(v)
			}
		case "percentage":
			if v, ok := record.Value().(int64); ok {
				pct := int(v)
				sample.Percentage = &pct
			}
		case "energy_wh":
			sample.EnergyNow = floatValue(record.Value())
		case "power_w":
			sample.PowerRate = floatValue(record.Value())
		case "health_pct":
			sample.HealthPct = floatValue(record.Value())
		}
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("query parsing failed: %w", result.Err())
	}

	return sample, nil
}

func floatValue(v interface{}) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}
