// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package discovery advertises a running battery logger's HTTP API over mDNS
// and finds loggers on the local network.
//
// A logger registers the service "_battery-logger._tcp" with TXT records:
//   - version: logger version
//   - sensor:  sensor backend in use
//   - api:     API path prefix
//
// # Example Usage
//
//	scanner := discovery.NewScanner("_battery-logger._tcp", "local.")
//	loggers, err := scanner.Discover(ctx, 3*time.Second)
//	for _, l := range loggers {
//	    fmt.Println(l.Name, l.APIAddress())
//	}
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/soothill/battery-data-logger/pkg/logger"
)

const (
	// DefaultService is the DNS-SD service type of the logger API
	DefaultService = "_battery-logger._tcp"

	// DefaultDomain is the mDNS domain
	DefaultDomain = "local."
)

// Instance is one logger found on the network
type Instance struct {
	Name      string
	Address   net.IP
	Port      int
	TXTRecord map[string]string
	Hostname  string
}

// APIAddress returns host:port for the instance's HTTP API
func (i *Instance) APIAddress() string {
	return net.JoinHostPort(i.Address.String(), strconv.Itoa(i.Port))
}

// ID returns a unique identifier for the instance
func (i *Instance) ID() string {
	return fmt.Sprintf("%s@%s", i.Name, i.APIAddress())
}

// Scanner browses for logger instances
type Scanner struct {
	serviceType string
	domain      string
	instances   map[string]*Instance
	mu          sync.RWMutex // Protects instances
}

// NewScanner creates a new scanner
func NewScanner(serviceType, domain string) *Scanner {
	if serviceType == "" {
		serviceType = DefaultService
	}
	if domain == "" {
		domain = DefaultDomain
	}
	return &Scanner{
		serviceType: serviceType,
		domain:      domain,
		instances:   make(map[string]*Instance),
	}
}

// Discover browses for timeout and returns the instances seen in this scan.
// The resolver feeds a buffered channel drained by one consumer goroutine.
func (s *Scanner) Discover(ctx context.Context, timeout time.Duration) ([]*Instance, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 10)
	var found []*Instance
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			inst := parseServiceEntry(entry)
			if inst == nil {
				continue
			}

			s.mu.Lock()
			s.instances[inst.ID()] = inst
			s.mu.Unlock()
			found = append(found, inst)

			logger.Debug().
				Str("name", inst.Name).
				Str("address", inst.APIAddress()).
				Msg("Discovered battery logger")
		}
	}()

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := resolver.Browse(browseCtx, s.serviceType, s.domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse: %w", err)
	}

	<-browseCtx.Done()
	wg.Wait()

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })
	return found, nil
}

// parseServiceEntry converts a zeroconf service entry to an Instance
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Instance {
	if entry == nil {
		return nil
	}
	if len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0 {
		return nil
	}

	// Prefer IPv4, fallback to IPv6
	var addr net.IP
	if len(entry.AddrIPv4) > 0 {
		addr = entry.AddrIPv4[0]
	} else {
		addr = entry.AddrIPv6[0]
	}

	return &Instance{
		Name:      entry.Instance,
		Address:   addr,
		Port:      entry.Port,
		TXTRecord: ParseTXT(entry.Text),
		Hostname:  entry.HostName,
	}
}

// ParseTXT splits key=value TXT strings. Entries without "=" are ignored.
func ParseTXT(text []string) map[string]string {
	txt := make(map[string]string, len(text))
	for _, t := range text {
		key, value, ok := strings.Cut(t, "=")
		if ok && key != "" {
			txt[key] = value
		}
	}
	return txt
}

// GetInstances returns every instance seen by any scan
func (s *Scanner) GetInstances() []*Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		out = append(out, inst)
	}
	return out
}
