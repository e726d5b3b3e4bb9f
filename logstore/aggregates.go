// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package logstore

import (
	"time"

	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/sensor"
)

// Stats summarises the whole log in a single pass. Pointer fields are nil
// when there were no rows to aggregate.
type Stats struct {
	Rows                  int      `json:"rows"`
	AveragePercentage     *float64 `json:"average_percentage"`
	MinPercentage         *int     `json:"min_percentage"`
	AverageDischargePower *float64 `json:"average_discharge_power_w"`

	// LatestEnergy is energy_now from the newest row that has one, and
	// LatestDevice the device that row belongs to
	LatestEnergy *float64 `json:"latest_energy_wh"`
	LatestDevice string   `json:"latest_device,omitempty"`

	// EstimatedRuntime is a heuristic: LatestEnergy divided by LatestDevice's
	// own average discharge power, so packs of different sizes never mix.
	// It is not a prediction of actual battery life.
	EstimatedRuntime *time.Duration `json:"estimated_runtime,omitempty"`
}

// dischargeTotal accumulates discharging power readings
type dischargeTotal struct {
	sum float64
	n   int
}

func (d dischargeTotal) average() (float64, bool) {
	if d.n == 0 {
		return 0, false
	}
	return d.sum / float64(d.n), true
}

// AveragePercentage returns the mean percentage over all rows that have one.
// ok is false when there is nothing to average.
func (s *Store) AveragePercentage() (avg float64, ok bool, err error) {
	var sum, n int
	err = s.scan(func(sample *monitoring.BatterySample) bool {
		if sample.Percentage != nil {
			sum += *sample.Percentage
			n++
		}
		return true
	})
	if err != nil || n == 0 {
		return 0, false, err
	}
	return float64(sum) / float64(n), true, nil
}

// MinPercentage returns the lowest percentage in the log
func (s *Store) MinPercentage() (lowest int, ok bool, err error) {
	err = s.scan(func(sample *monitoring.BatterySample) bool {
		if sample.Percentage != nil && (!ok || *sample.Percentage < lowest) {
			lowest = *sample.Percentage
			ok = true
		}
		return true
	})
	if err != nil {
		return 0, false, err
	}
	return lowest, ok, nil
}

// AverageDischargePower returns the mean power rate over rows in the given
// state. An empty state means discharging.
func (s *Store) AverageDischargePower(state sensor.State) (avg float64, ok bool, err error) {
	if state == "" {
		state = sensor.StateDischarging
	}

	var sum float64
	var n int
	err = s.scan(func(sample *monitoring.BatterySample) bool {
		if sample.State == state && sample.PowerRate != nil {
			sum += *sample.PowerRate
			n++
		}
		return true
	})
	if err != nil || n == 0 {
		return 0, false, err
	}
	return sum / float64(n), true, nil
}

// Stats computes every aggregate in one scan of the log
func (s *Store) Stats() (*Stats, error) {
	var (
		st           Stats
		pctSum, pctN int
		discharge    dischargeTotal
		perDevice    = make(map[string]dischargeTotal)
	)

	err := s.scan(func(sample *monitoring.BatterySample) bool {
		st.Rows++
		if p := sample.Percentage; p != nil {
			pctSum += *p
			pctN++
			if st.MinPercentage == nil || *p < *st.MinPercentage {
				v := *p
				st.MinPercentage = &v
			}
		}
		if sample.State == sensor.StateDischarging && sample.PowerRate != nil {
			discharge.sum += *sample.PowerRate
			discharge.n++
			dev := perDevice[sample.DeviceID]
			dev.sum += *sample.PowerRate
			dev.n++
			perDevice[sample.DeviceID] = dev
		}
		if sample.EnergyNow != nil {
			st.LatestEnergy = sample.EnergyNow
			st.LatestDevice = sample.DeviceID
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if pctN > 0 {
		avg := float64(pctSum) / float64(pctN)
		st.AveragePercentage = &avg
	}
	if avg, ok := discharge.average(); ok {
		st.AverageDischargePower = &avg
	}
	if st.LatestEnergy != nil {
		if avg, ok := perDevice[st.LatestDevice].average(); ok {
			if d, ok := sensor.EstimatedRuntime(*st.LatestEnergy, avg); ok {
				st.EstimatedRuntime = &d
			}
		}
	}

	return &st, nil
}
