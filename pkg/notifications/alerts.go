// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package notifications turns logger events into operator alerts.
//
// The Alerter decides when something is worth telling a human about and
// hands the message to an interfaces.Notifier (normally Slack). It keeps
// just enough state to avoid repeating itself:
//
//   - low battery: sent once when a discharging device reaches the
//     threshold, then suppressed until the device is back above it
//   - log store failures: at most one alert per StoreFailureInterval
//   - mirror failures: sent on the first failure, with a recovery message
//     when the mirror next succeeds
//
// Notification failures are returned to the caller, which logs them; they
// never affect sampling.
package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/interfaces"
	"github.com/soothill/battery-data-logger/pkg/metrics"
	"github.com/soothill/battery-data-logger/sensor"
)

// StoreFailureInterval is the minimum gap between store failure alerts
const StoreFailureInterval = 10 * time.Minute

// criticalPercent upgrades a low battery alert to danger
const criticalPercent = 5

// Alerter tracks alert state per device and mirror
type Alerter struct {
	notifier interfaces.Notifier

	mu         sync.Mutex
	threshold  int
	low        map[string]bool
	mirrorDown map[string]bool

	storeFailures rate.Sometimes
}

// NewAlerter creates an alerter. A threshold of zero disables low battery
// alerts.
func NewAlerter(notifier interfaces.Notifier, lowBatteryPercent int) *Alerter {
	return &Alerter{
		notifier:      notifier,
		threshold:     lowBatteryPercent,
		low:           make(map[string]bool),
		mirrorDown:    make(map[string]bool),
		storeFailures: rate.Sometimes{Interval: StoreFailureInterval},
	}
}

// SetThreshold changes the low battery threshold (config reload)
func (a *Alerter) SetThreshold(percent int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.threshold = percent
}

// ObserveSample sends a low battery alert when a discharging device first
// drops to or below the threshold. It returns true if an alert was sent.
func (a *Alerter) ObserveSample(ctx context.Context, sample *monitoring.BatterySample) (bool, error) {
	if sample == nil || sample.Percentage == nil {
		return false, nil
	}
	pct := *sample.Percentage

	a.mu.Lock()
	threshold := a.threshold
	if threshold <= 0 || pct > threshold {
		delete(a.low, sample.DeviceID)
		a.mu.Unlock()
		return false, nil
	}
	if sample.State != sensor.StateDischarging || a.low[sample.DeviceID] {
		a.mu.Unlock()
		return false, nil
	}
	a.low[sample.DeviceID] = true
	a.mu.Unlock()

	severity := interfaces.SeverityWarning
	if pct <= criticalPercent {
		severity = interfaces.SeverityDanger
	}
	msg := fmt.Sprintf("Battery %s is at %d%% and discharging (threshold %d%%).", sample.DeviceID, pct, threshold)
	if sample.PowerRate != nil && sample.EnergyNow != nil {
		if d, ok := sensor.EstimatedRuntime(*sample.EnergyNow, *sample.PowerRate); ok {
			msg += fmt.Sprintf("\nEstimated runtime at the current draw: %s (estimate).", d)
		}
	}

	alert := interfaces.Alert{
		Severity: severity,
		Title:    "🔋 Battery Low",
		Text:     msg,
		Fields: []interfaces.AlertField{
			{Name: "Device", Value: sample.DeviceID},
			{Name: "Charge", Value: fmt.Sprintf("%d%%", pct)},
		},
	}
	if err := a.notifier.Notify(ctx, alert); err != nil {
		// Retry on the next sample
		a.mu.Lock()
		delete(a.low, sample.DeviceID)
		a.mu.Unlock()
		return false, err
	}
	metrics.AlertsSent.WithLabelValues("low_battery").Inc()
	return true, nil
}

// StoreFailure reports a failed log append, rate limited to one alert per
// StoreFailureInterval. It returns true if an alert was sent.
func (a *Alerter) StoreFailure(ctx context.Context, storeErr error) (sent bool, err error) {
	a.storeFailures.Do(func() {
		sent = true
		err = a.notifier.Notify(ctx, interfaces.Alert{
			Severity: interfaces.SeverityDanger,
			Title:    "⚠️ Battery Log Write Failure",
			Text:     fmt.Sprintf("Failed to append to the battery log: %v\nThe sampler keeps running and retries on the next tick.", storeErr),
		})
	})
	if sent && err == nil {
		metrics.AlertsSent.WithLabelValues("store_failure").Inc()
	}
	return sent && err == nil, err
}

// MirrorFailure alerts on the first failure of a mirror
func (a *Alerter) MirrorFailure(ctx context.Context, mirror string, mirrorErr error) error {
	a.mu.Lock()
	if a.mirrorDown[mirror] {
		a.mu.Unlock()
		return nil
	}
	a.mirrorDown[mirror] = true
	a.mu.Unlock()

	err := a.notifier.Notify(ctx, interfaces.Alert{
		Severity: interfaces.SeverityWarning,
		Title:    fmt.Sprintf("⚠️ %s Mirror Failure", mirror),
		Text:     fmt.Sprintf("Failed to mirror samples to %s: %v\nSamples are still written to the local log.", mirror, mirrorErr),
		Fields:   []interfaces.AlertField{{Name: "Mirror", Value: mirror}},
	})
	if err == nil {
		metrics.AlertsSent.WithLabelValues("mirror_failure").Inc()
	}
	return err
}

// MirrorRecovered sends a recovery message if the mirror was marked down
func (a *Alerter) MirrorRecovered(ctx context.Context, mirror string) error {
	a.mu.Lock()
	if !a.mirrorDown[mirror] {
		a.mu.Unlock()
		return nil
	}
	delete(a.mirrorDown, mirror)
	a.mu.Unlock()

	err := a.notifier.Notify(ctx, interfaces.Alert{
		Severity: interfaces.SeverityGood,
		Title:    fmt.Sprintf("✅ %s Mirror Restored", mirror),
		Text:     fmt.Sprintf("Samples are being mirrored to %s again.", mirror),
		Fields:   []interfaces.AlertField{{Name: "Mirror", Value: mirror}},
	})
	if err == nil {
		metrics.AlertsSent.WithLabelValues("mirror_recovered").Inc()
	}
	return err
}
