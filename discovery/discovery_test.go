// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestNewScanner(t *testing.T) {
	scanner := NewScanner("", "")

	if scanner.serviceType != DefaultService {
		t.Errorf("serviceType = %v, want %v", scanner.serviceType, DefaultService)
	}
	if scanner.domain != DefaultDomain {
		t.Errorf("domain = %v, want %v", scanner.domain, DefaultDomain)
	}
	if len(scanner.GetInstances()) != 0 {
		t.Error("new scanner should have no instances")
	}
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    *zeroconf.ServiceEntry
		wantNil  bool
		wantAddr string
	}{
		{
			name:    "nil entry",
			entry:   nil,
			wantNil: true,
		},
		{
			name: "no addresses",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "laptop"},
				Port:          9090,
			},
			wantNil: true,
		},
		{
			name: "ipv4 preferred",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "laptop"},
				AddrIPv4:      []net.IP{net.ParseIP("192.168.1.20")},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
				Port:          9090,
				Text:          []string{"version=1.0.0", "sensor=sysfs"},
			},
			wantAddr: "192.168.1.20:9090",
		},
		{
			name: "ipv6 fallback",
			entry: &zeroconf.ServiceEntry{
				ServiceRecord: zeroconf.ServiceRecord{Instance: "laptop"},
				AddrIPv6:      []net.IP{net.ParseIP("fe80::1")},
				Port:          9090,
			},
			wantAddr: "[fe80::1]:9090",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := parseServiceEntry(tt.entry)
			if tt.wantNil {
				if inst != nil {
					t.Errorf("parseServiceEntry() = %+v, want nil", inst)
				}
				return
			}
			if inst == nil {
				t.Fatal("parseServiceEntry() returned nil")
			}
			if got := inst.APIAddress(); got != tt.wantAddr {
				t.Errorf("APIAddress() = %q, want %q", got, tt.wantAddr)
			}
			if inst.Name != "laptop" {
				t.Errorf("Name = %q", inst.Name)
			}
		})
	}
}

func TestTXTRoundTrip(t *testing.T) {
	txt := map[string]string{"version": "1.0.0", "sensor": "upower", "api": "/api"}

	formatted := FormatTXT(txt)
	if formatted[0] != "api=/api" {
		t.Errorf("FormatTXT() not sorted: %v", formatted)
	}

	parsed := ParseTXT(append(formatted, "garbage", "=novalue"))
	if len(parsed) != len(txt) {
		t.Fatalf("ParseTXT() = %v", parsed)
	}
	for k, v := range txt {
		if parsed[k] != v {
			t.Errorf("ParseTXT()[%q] = %q, want %q", k, parsed[k], v)
		}
	}
}

func TestAdvertiseRejectsBadAddresses(t *testing.T) {
	tests := []string{"localhost:9090", "127.0.0.1:9090", "[::1]:9090", "no-port", "0.0.0.0:abc"}
	for _, listen := range tests {
		if _, err := Advertise(Advertisement{Listen: listen}); err == nil {
			t.Errorf("Advertise(%q) should fail", listen)
		}
	}
}

func TestAdvertiserShutdownNil(t *testing.T) {
	var a *Advertiser
	a.Shutdown()
}
