// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the battery data logger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SamplerRunning is 1 while the background sampler task is active
	SamplerRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "battery_sampler_running",
		Help: "Whether the background sampler is running (1) or stopped (0)",
	})

	// SamplerIntervalSeconds tracks the configured sampling interval
	SamplerIntervalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "battery_sampler_interval_seconds",
		Help: "Configured sampling interval in seconds",
	})

	// TicksTotal tracks the number of sampler ticks executed
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battery_sampler_ticks_total",
		Help: "Total number of sampler ticks executed",
	})

	// TickDuration tracks how long one tick takes
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "battery_sampler_tick_duration_seconds",
		Help:    "Duration of one sampler tick in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// DevicesSeen tracks how many battery devices the last tick enumerated
	DevicesSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "battery_devices_seen",
		Help: "Number of battery devices enumerated on the last tick",
	})

	// SensorErrors tracks failed enumerations and reads
	SensorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battery_sensor_errors_total",
		Help: "Total number of failed sensor operations",
	}, []string{"op"})

	// SamplesAppended tracks rows successfully appended to the log store
	SamplesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battery_log_rows_appended_total",
		Help: "Total number of rows appended to the battery log",
	})

	// StoreErrors tracks failed log store operations
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battery_log_errors_total",
		Help: "Total number of failed log store operations",
	}, []string{"op"})

	// RowsSkipped counts malformed or torn rows ignored while reading the log
	RowsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battery_log_rows_skipped_total",
		Help: "Total number of malformed battery log rows skipped by readers",
	})

	// SamplesDropped tracks samples not delivered to mirrors because the channel was full
	SamplesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battery_samples_dropped_total",
		Help: "Total number of samples dropped from the mirror pipeline",
	})

	// MirrorWritesTotal tracks successful writes per mirror
	MirrorWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battery_mirror_writes_total",
		Help: "Total number of samples written to a mirror",
	}, []string{"mirror"})

	// MirrorWriteErrors tracks failed writes per mirror
	MirrorWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battery_mirror_write_errors_total",
		Help: "Total number of failed mirror writes",
	}, []string{"mirror"})

	// AlertsSent tracks alerts delivered per kind
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "battery_alerts_sent_total",
		Help: "Total number of alerts sent",
	}, []string{"kind"})

	// BatteryPercentage tracks the last sampled charge per device
	BatteryPercentage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "battery_percentage",
		Help: "Last sampled battery charge in percent",
	}, []string{"device_id"})

	// BatteryEnergy tracks the last sampled energy per device
	BatteryEnergy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "battery_energy_watt_hours",
		Help: "Last sampled battery energy in watt hours",
	}, []string{"device_id"})

	// BatteryPower tracks the last sampled power rate per device
	BatteryPower = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "battery_power_watts",
		Help: "Last sampled battery charge or discharge rate in watts",
	}, []string{"device_id"})

	// BatteryHealth tracks the last computed health per device
	BatteryHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "battery_health_percent",
		Help: "Full capacity relative to design capacity in percent",
	}, []string{"device_id"})
)
