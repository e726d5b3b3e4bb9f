// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package app

import (
	"context"
	"fmt"

	"github.com/soothill/battery-data-logger/config"
	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/interfaces"
	"github.com/soothill/battery-data-logger/pkg/logger"
	"github.com/soothill/battery-data-logger/storage"
)

// BuildSinks connects every mirror enabled in cfg. A mirror that cannot be
// reached is reported in the returned error map and left out; the log file
// is the durable record, so a missing mirror is never fatal.
func BuildSinks(ctx context.Context, cfg *config.Config) ([]interfaces.SampleSink, map[string]error) {
	var sinks []interfaces.SampleSink
	failed := make(map[string]error)

	if cfg.InfluxDB.Enabled {
		sink, err := storage.NewInfluxDBSink(ctx,
			cfg.InfluxDB.URL,
			cfg.InfluxDB.Token,
			cfg.InfluxDB.Organization,
			cfg.InfluxDB.Bucket,
		)
		if err != nil {
			failed["influxdb"] = err
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.MQTT.Enabled {
		sink, err := storage.NewMQTTSink(storage.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
			Retain:      cfg.MQTT.Retain,
		})
		if err != nil {
			failed["mqtt"] = err
		} else {
			sinks = append(sinks, sink)
		}
	}

	for name, err := range failed {
		logger.Error().Err(err).Str("mirror", name).Msg("Mirror unavailable, continuing with the local log only")
	}
	return sinks, failed
}

// CloseSinks closes every sink, logging failures
func CloseSinks(sinks []interfaces.SampleSink) {
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			logger.Warn().Err(err).Str("mirror", sink.Name()).Msg("Failed to close mirror")
		}
	}
}

// batchWriter is implemented by sinks that accept many samples per request
type batchWriter interface {
	WriteBatch(ctx context.Context, samples []*monitoring.BatterySample) error
}

// ReplayResult reports what Replay sent to one sink
type ReplayResult struct {
	Sink    string
	Written int
	Err     error
}

// Replay re-sends the last n log rows to every sink, oldest first. It is used
// to backfill a mirror after an outage; the log itself is not modified.
func Replay(ctx context.Context, store interfaces.LogStore, sinks []interfaces.SampleSink, n int) ([]ReplayResult, error) {
	if n <= 0 {
		return nil, fmt.Errorf("replay count must be positive, got %d", n)
	}

	samples := make([]*monitoring.BatterySample, 0, n)
	for sample, err := range store.Tail(n) {
		if err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}

	results := make([]ReplayResult, 0, len(sinks))
	for _, sink := range sinks {
		res := ReplayResult{Sink: sink.Name()}

		if bw, ok := sink.(batchWriter); ok {
			if err := bw.WriteBatch(ctx, samples); err != nil {
				res.Err = err
			} else {
				res.Written = len(samples)
			}
		} else {
			for _, sample := range samples {
				if err := sink.WriteSample(ctx, sample); err != nil {
					res.Err = err
					break
				}
				res.Written++
			}
		}

		if res.Err != nil {
			logger.Error().Err(res.Err).Str("mirror", res.Sink).Int("written", res.Written).Msg("Replay failed")
		} else {
			logger.Info().Str("mirror", res.Sink).Int("written", res.Written).Msg("Replay complete")
		}
		results = append(results, res)
	}
	return results, nil
}
