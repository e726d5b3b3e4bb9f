// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package sensor

import (
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

func TestHealthPercent(t *testing.T) {
	tests := []struct {
		name   string
		full   *float64
		design *float64
		want   *float64
	}{
		{"typical", ptr(45.0), ptr(50.0), ptr(90.00)},
		{"rounds to two decimals", ptr(41.234), ptr(57.0), ptr(72.34)},
		{"missing design", ptr(45.0), nil, nil},
		{"missing full", nil, ptr(50.0), nil},
		{"zero design", ptr(45.0), ptr(0), nil},
		{"negative full", ptr(-1), ptr(50.0), nil},
		{"above design clamps", ptr(52.0), ptr(50.0), ptr(100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HealthPercent(tt.full, tt.design)
			if tt.want == nil {
				if got != nil {
					t.Errorf("HealthPercent() = %v, want nil", *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("HealthPercent() = nil, want %v", *tt.want)
			}
			if *got != *tt.want {
				t.Errorf("HealthPercent() = %v, want %v", *got, *tt.want)
			}
			if *got < 0 || *got > 100 {
				t.Errorf("HealthPercent() = %v, outside [0,100]", *got)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		in   string
		want State
	}{
		{"Charging", StateCharging},
		{"discharging", StateDischarging},
		{"  Discharging\n", StateDischarging},
		{"empty", StateDischarging},
		{"pending-discharge", StateDischarging},
		{"Full", StateFull},
		{"fully-charged", StateFull},
		{"Not charging", StateUnknown},
		{"pending-charge", StateUnknown},
		{"", StateUnknown},
	}

	for _, tt := range tests {
		if got := ParseState(tt.in); got != tt.want {
			t.Errorf("ParseState(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, kind := range []string{"", KindBattery, KindSysfs, KindUPower, "SYSFS"} {
		s, err := New(Options{Kind: kind})
		if err != nil {
			t.Errorf("New(%q) error = %v", kind, err)
			continue
		}
		if s.Name() == "" {
			t.Errorf("New(%q).Name() is empty", kind)
		}
	}

	if _, err := New(Options{Kind: "acpi"}); err == nil {
		t.Error("New(acpi) should fail")
	}
}

func TestDefaultKind(t *testing.T) {
	tests := map[string]string{
		"linux":   KindSysfs,
		"darwin":  KindBattery,
		"windows": KindBattery,
		"freebsd": KindBattery,
	}
	for goos, want := range tests {
		if got := defaultKindFor(goos); got != want {
			t.Errorf("defaultKindFor(%q) = %q, want %q", goos, got, want)
		}
	}

	s, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.Name() != DefaultKind() {
		t.Errorf("New() backend = %q, want %q", s.Name(), DefaultKind())
	}
}

func TestClampPercent(t *testing.T) {
	if got := ClampPercent(-3); got != 0 {
		t.Errorf("ClampPercent(-3) = %v", got)
	}
	if got := ClampPercent(104.5); got != 100 {
		t.Errorf("ClampPercent(104.5) = %v", got)
	}
	if got := ClampPercent(55.5); got != 55.5 {
		t.Errorf("ClampPercent(55.5) = %v", got)
	}
}

func TestEstimates(t *testing.T) {
	wear := WearPercent(ptr(90))
	if wear == nil || *wear != 10 {
		t.Fatalf("WearPercent(90) = %v, want 10", wear)
	}
	if WearPercent(nil) != nil {
		t.Error("WearPercent(nil) should be nil")
	}

	cycles := EstimatedCycles(ptr(90))
	if cycles == nil || *cycles != 250 {
		t.Errorf("EstimatedCycles(90) = %v, want 250", cycles)
	}
	if EstimatedCycles(nil) != nil {
		t.Error("EstimatedCycles(nil) should be nil")
	}

	d, ok := EstimatedRuntime(30, 15)
	if !ok || d != 2*time.Hour {
		t.Errorf("EstimatedRuntime(30, 15) = %v, %v; want 2h, true", d, ok)
	}
	if _, ok := EstimatedRuntime(30, 0); ok {
		t.Error("EstimatedRuntime with zero power should not be ok")
	}
}
