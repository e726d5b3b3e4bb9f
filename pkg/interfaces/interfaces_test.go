// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces_test

import (
	"github.com/soothill/battery-data-logger/logstore"
	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/interfaces"
	"github.com/soothill/battery-data-logger/pkg/slacknotifier"
	"github.com/soothill/battery-data-logger/storage"
)

// Compile-time checks that the concrete types satisfy the interfaces
var (
	_ interfaces.LogStore   = (*logstore.Store)(nil)
	_ interfaces.Sampler    = (*monitoring.Sampler)(nil)
	_ interfaces.SampleSink = (*storage.InfluxDBSink)(nil)
	_ interfaces.SampleSink = (*storage.MQTTSink)(nil)
	_ interfaces.SampleSink = (*storage.BreakerSink)(nil)
	_ interfaces.Notifier   = (*slacknotifier.Notifier)(nil)
)
