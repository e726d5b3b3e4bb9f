// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soothill/battery-data-logger/monitoring"
	"github.com/soothill/battery-data-logger/pkg/errors"
	"github.com/soothill/battery-data-logger/sensor"
)

const headerLine = "Timestamp,Battery,Percentage,State,Energy,Power_Usage,Health\n"

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "battery_log.csv"))
}

func sampleAt(i int, pct int, state sensor.State, power float64) *monitoring.BatterySample {
	return &monitoring.BatterySample{
		Timestamp:  baseTime.Add(time.Duration(i) * time.Minute),
		DeviceID:   "BAT0",
		Percentage: intp(pct),
		State:      state,
		EnergyNow:  floatp(34.2),
		PowerRate:  floatp(power),
		HealthPct:  floatp(90),
	}
}

func mustAppend(t *testing.T, s *Store, samples ...*monitoring.BatterySample) {
	t.Helper()
	for _, sample := range samples {
		require.NoError(t, s.Append(sample))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestEnsureInitialized(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.EnsureInitialized())
	assert.Equal(t, headerLine, readFile(t, s.Path()))

	// Second call leaves existing content alone
	mustAppend(t, s, sampleAt(0, 80, sensor.StateDischarging, 10))
	before := readFile(t, s.Path())
	require.NoError(t, s.EnsureInitialized())
	assert.Equal(t, before, readFile(t, s.Path()))
}

func TestEnsureInitialized_CreatesDirectory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested", "dir", "log.csv"))
	require.NoError(t, s.EnsureInitialized())
	assert.FileExists(t, s.Path())
}

func TestAppend_RowFormat(t *testing.T) {
	s := newTestStore(t)

	mustAppend(t, s,
		sampleAt(0, 76, sensor.StateDischarging, 12.5),
		&monitoring.BatterySample{
			Timestamp: baseTime.Add(time.Minute),
			DeviceID:  "BAT1",
			State:     sensor.StateUnknown,
		},
	)

	want := headerLine +
		"2025-03-01 12:00:00,BAT0,76,discharging,34.20,12.50,90.00\n" +
		"2025-03-01 12:01:00,BAT1,,unknown,,,\n"
	assert.Equal(t, want, readFile(t, s.Path()))
}

func TestAppend_IncrementsCount(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		before, err := s.CountRows()
		require.NoError(t, err)
		mustAppend(t, s, sampleAt(i, 50, sensor.StateCharging, 5))
		after, err := s.CountRows()
		require.NoError(t, err)
		assert.Equal(t, before+1, after)
	}
}

func TestAppend_RejectsInvalidSample(t *testing.T) {
	s := newTestStore(t)
	err := s.Append(&monitoring.BatterySample{Timestamp: baseTime, State: sensor.StateFull})
	assert.True(t, errors.IsValidationError(err))
}

func TestAppend_TerminatesPartialRow(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, sampleAt(0, 80, sensor.StateDischarging, 10))

	// Simulate an append cut short by a crash
	f, err := os.OpenFile(s.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2025-03-01 12:01:00,BAT0,7")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	mustAppend(t, s, sampleAt(2, 60, sensor.StateDischarging, 10))

	rows, err := s.TailSlice(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 80, *rows[0].Percentage)
	assert.Equal(t, 60, *rows[1].Percentage)
}

func TestCountRows_MissingFile(t *testing.T) {
	s := newTestStore(t)
	n, err := s.CountRows()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTail(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 10; i++ {
		mustAppend(t, s, sampleAt(i, 100-i, sensor.StateDischarging, 10))
	}

	rows, err := s.TailSlice(3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{93, 92, 91}, []int{*rows[0].Percentage, *rows[1].Percentage, *rows[2].Percentage})
	assert.True(t, rows[0].Timestamp.Before(rows[2].Timestamp))
}

func TestTail_FewerRowsThanRequested(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s,
		sampleAt(0, 80, sensor.StateDischarging, 10),
		sampleAt(1, 70, sensor.StateDischarging, 10),
	)

	rows, err := s.TailSlice(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 80, *rows[0].Percentage)
	assert.Equal(t, 70, *rows[1].Percentage)

	rows, err = s.TailSlice(0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTail_IsRestartableAndLazy(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, sampleAt(0, 80, sensor.StateDischarging, 10))

	seq := s.Tail(5)

	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 1, count())
	assert.Equal(t, 1, count())

	// The sequence reads the file when ranged over, not when created
	mustAppend(t, s, sampleAt(1, 70, sensor.StateDischarging, 10))
	assert.Equal(t, 2, count())

	// Early break is honoured
	for range seq {
		break
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s,
		sampleAt(0, 80, sensor.StateDischarging, 10),
		sampleAt(1, 70, sensor.StateDischarging, 10),
	)

	require.NoError(t, s.Clear())

	n, err := s.CountRows()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, headerLine, readFile(t, s.Path()))

	// Appends continue after clear
	mustAppend(t, s, sampleAt(2, 60, sensor.StateDischarging, 10))
	n, err = s.CountRows()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExportCopy(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s,
		sampleAt(0, 80, sensor.StateDischarging, 10),
		sampleAt(1, 70, sensor.StateCharging, 5),
	)

	dest := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, s.ExportCopy(dest))
	assert.Equal(t, readFile(t, s.Path()), readFile(t, dest))
}

func TestExportCopy_BeforeFirstAppend(t *testing.T) {
	s := newTestStore(t)

	dest := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, s.ExportCopy(dest))
	assert.Equal(t, headerLine, readFile(t, dest))
	assert.Equal(t, headerLine, readFile(t, s.Path()))
}

func TestExportCopy_BadDestination(t *testing.T) {
	s := newTestStore(t)
	mustAppend(t, s, sampleAt(0, 80, sensor.StateDischarging, 10))
	before := readFile(t, s.Path())

	tests := []struct {
		name string
		dest string
	}{
		{"missing directory", filepath.Join(t.TempDir(), "no", "such", "dir", "out.csv")},
		{"empty", ""},
		{"log itself", s.Path()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ExportCopy(tt.dest)
			assert.True(t, errors.IsStorageError(err), "error = %v", err)
			assert.Equal(t, before, readFile(t, s.Path()))
		})
	}
}

func TestReaders_SkipMalformedRows(t *testing.T) {
	s := newTestStore(t)
	content := headerLine +
		"2025-03-01 12:00:00,BAT0,80,discharging,34.20,10.00,90.00\n" +
		"2025-03-01 12:01:00,BAT0,70\n" +
		"not a time,BAT0,10,discharging,1.00,1.00,1.00\n" +
		"2025-03-01 12:02:00,BAT0,abc,discharging,1.00,1.00,1.00\n" +
		"2025-03-01 12:03:00,,50,discharging,1.00,1.00,1.00\n" +
		"2025-03-01 12:04:00,BAT0,60%,Discharging,30.00,20.00,\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	n, err := s.CountRows()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	avg, ok, err := s.AveragePercentage()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 70.0, avg)
}

func TestTail_FollowsFileOrderWhenWallClockRepeats(t *testing.T) {
	s := newTestStore(t)
	// The 01:xx hour repeats after a fall-back transition
	content := headerLine +
		"2025-10-26 01:30:00,BAT0,60,discharging,30.00,10.00,90.00\n" +
		"2025-10-26 01:59:00,BAT0,55,discharging,27.00,10.00,90.00\n" +
		"2025-10-26 01:05:00,BAT0,50,discharging,24.00,12.00,90.00\n" +
		"2025-10-26 01:35:00,BAT0,45,discharging,21.00,14.00,90.00\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	rows, err := s.TailSlice(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 50, *rows[0].Percentage)
	assert.Equal(t, 45, *rows[1].Percentage)

	st, err := s.Stats()
	require.NoError(t, err)
	require.NotNil(t, st.LatestEnergy)
	assert.Equal(t, 21.0, *st.LatestEnergy)
}

func TestConcurrentAppendAndTail(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.EnsureInitialized())

	const writers, perWriter = 4, 50
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				sample := sampleAt(i, i%101, sensor.StateDischarging, 10)
				sample.DeviceID = fmt.Sprintf("BAT%d", w)
				if err := s.Append(sample); err != nil {
					t.Errorf("Append() error = %v", err)
					return
				}
			}
		}(w)
	}

	var readers sync.WaitGroup
	for r := 0; r < 2; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for sample, err := range s.Tail(20) {
					if err != nil {
						t.Errorf("Tail() error = %v", err)
						return
					}
					if sample.Percentage == nil || sample.State != sensor.StateDischarging || sample.HealthPct == nil {
						t.Errorf("Tail() returned a partial row: %+v", sample)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	n, err := s.CountRows()
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, n)

	for _, line := range strings.Split(strings.TrimSuffix(readFile(t, s.Path()), "\n"), "\n") {
		assert.Equal(t, columns-1, strings.Count(line, ","), "line %q", line)
	}
}

func TestConcurrentClearAndAppend(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = s.Append(sampleAt(i, 50, sensor.StateCharging, 5))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			_ = s.Clear()
		}
	}()
	wg.Wait()

	content := readFile(t, s.Path())
	assert.True(t, strings.HasPrefix(content, headerLine), "header lost: %q", content[:min(len(content), 80)])
	assert.Equal(t, 1, strings.Count(content, "Timestamp,"))
}
