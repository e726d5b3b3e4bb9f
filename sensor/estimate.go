// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package sensor

import (
	"math"
	"time"
)

// CapacityLossPerCycle is the assumed percentage of capacity lost per full
// charge cycle. It is a rule of thumb for lithium-ion cells, not a measured
// property of any particular battery.
const CapacityLossPerCycle = 0.04

// WearPercent returns 100 - health, or nil when health is unknown.
func WearPercent(health *float64) *float64 {
	if health == nil {
		return nil
	}
	w := Round2(100 - *health)
	if w < 0 {
		w = 0
	}
	return &w
}

// EstimatedCycles guesses the number of full charge cycles from wear.
// The figure is a heuristic estimate and should be presented as such.
func EstimatedCycles(health *float64) *int {
	wear := WearPercent(health)
	if wear == nil {
		return nil
	}
	c := int(math.Round(*wear / CapacityLossPerCycle))
	return &c
}

// EstimatedRuntime guesses how long energyNow (Wh) lasts at an average
// discharge power (W). It returns false when either value is unusable.
func EstimatedRuntime(energyNow, avgDischargeW float64) (time.Duration, bool) {
	if energyNow <= 0 || avgDischargeW <= 0 {
		return 0, false
	}
	hours := energyNow / avgDischargeW
	return time.Duration(hours * float64(time.Hour)).Round(time.Minute), true
}
