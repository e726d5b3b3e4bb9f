// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package discovery

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"

	"github.com/grandcat/zeroconf"

	"github.com/soothill/battery-data-logger/pkg/logger"
)

// Advertisement describes the service to register
type Advertisement struct {
	Instance string
	Service  string
	Domain   string
	Listen   string // host:port the API listens on
	TXT      map[string]string
}

// Advertiser keeps an mDNS registration alive until Shutdown
type Advertiser struct {
	server *zeroconf.Server
}

// Advertise registers the API. A loopback listen address cannot be reached
// from other hosts, so it is rejected.
func Advertise(ad Advertisement) (*Advertiser, error) {
	host, portStr, err := net.SplitHostPort(ad.Listen)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %q: %w", ad.Listen, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("invalid listen port %q", portStr)
	}
	if isLoopback(host) {
		return nil, fmt.Errorf("listen address %s is loopback only; advertise needs a reachable address", ad.Listen)
	}

	instance := ad.Instance
	if instance == "" {
		instance, _ = os.Hostname()
	}
	service := ad.Service
	if service == "" {
		service = DefaultService
	}
	domain := ad.Domain
	if domain == "" {
		domain = DefaultDomain
	}

	server, err := zeroconf.Register(instance, service, domain, port, FormatTXT(ad.TXT), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logger.Info().
		Str("instance", instance).
		Str("service", service).
		Int("port", port).
		Msg("Advertising API over mDNS")

	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the registration
func (a *Advertiser) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

// FormatTXT renders TXT records as sorted key=value strings
func FormatTXT(txt map[string]string) []string {
	out := make([]string, 0, len(txt))
	for k, v := range txt {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
