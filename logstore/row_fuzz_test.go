// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package logstore

import (
	"encoding/csv"
	"strings"
	"testing"
)

// FuzzDecodeRow checks that arbitrary input never panics and that anything
// accepted survives a round trip and satisfies the sample invariants.
func FuzzDecodeRow(f *testing.F) {
	seeds := []string{
		"2025-03-01 12:00:00,BAT0,76,discharging,34.20,12.50,90.00",
		"2025-03-01 12:00:00,BAT0,,unknown,,,",
		"2025-03-01 12:00:00,BAT0,76%,Charging,1,2,3",
		"2025-03-01 12:00:00,BAT0,NaN,full,Inf,-1,",
		"garbage",
		",,,,,,",
		"2025-13-40 99:99:99,BAT0,1,full,1,1,1",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, line string) {
		rec, err := csv.NewReader(strings.NewReader(line)).Read()
		if err != nil {
			return
		}

		sample, err := decodeRow(rec)
		if err != nil {
			return
		}
		if sample.DeviceID == "" {
			t.Fatalf("decodeRow accepted an empty device: %q", line)
		}

		again, err := decodeRow(encodeRow(sample))
		if err != nil {
			t.Fatalf("re-decoding %q failed: %v", line, err)
		}
		if again.DeviceID != sample.DeviceID || again.State != sample.State {
			t.Fatalf("round trip changed row %q", line)
		}
	})
}
