// Package discovery finds Oasis devices on the local network via DNS-SD.
// The scan walks a fixed list of service types, giving each an equal slice
// of the overall time budget, then takes a best-effort second pass to
// refine display names via mDNS record lookup.
package discovery

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oasis-home/oasisctl/internal/models"
	"github.com/sirupsen/logrus"
)

// ServiceTypes is the ordered list of DNS-SD service types scanned, most
// specific first
var ServiceTypes = []string{
	"_oasis._tcp",
	"_oasis-jsonrpc._tcp",
	"_ubus._tcp",
	"_http._tcp",
}

// RefineServiceType is browsed during the name-refinement pass
const RefineServiceType = "_oasis._tcp"

const (
	// DefaultTimeout bounds the whole scan
	DefaultTimeout = 5 * time.Second
	// DefaultRefineBudget bounds the name-refinement pass
	DefaultRefineBudget = 1500 * time.Millisecond
)

// ServiceEntry is one advertisement seen during a browse
type ServiceEntry struct {
	Instance string
	Host     string
	Port     int
	IPs      []string
}

// Browser abstracts the mDNS/DNS-SD listener. Browse must send entries
// until ctx is done and then close the channel.
type Browser interface {
	Browse(ctx context.Context, serviceType string, entries chan<- ServiceEntry) error
}

// MulticastLock models the network resource that must be held while
// listening for multicast traffic and released on every exit path.
type MulticastLock interface {
	Acquire() error
	Release()
}

type noopLock struct{}

func (noopLock) Acquire() error { return nil }
func (noopLock) Release()       {}

// Engine runs the multi-phase scan
type Engine struct {
	browser      Browser
	lock         MulticastLock
	logger       *logrus.Logger
	timeout      time.Duration
	refineBudget time.Duration
	serviceTypes []string
}

// Option customizes an Engine
type Option func(*Engine)

// WithTimeout overrides the overall scan budget
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithRefineBudget overrides the refinement pass budget
func WithRefineBudget(d time.Duration) Option {
	return func(e *Engine) { e.refineBudget = d }
}

// WithLock installs a multicast lock implementation
func WithLock(l MulticastLock) Option {
	return func(e *Engine) { e.lock = l }
}

// WithServiceTypes overrides the scanned service types (used by tests)
func WithServiceTypes(types []string) Option {
	return func(e *Engine) { e.serviceTypes = types }
}

// NewEngine creates a discovery engine over the given browser
func NewEngine(browser Browser, logger *logrus.Logger, opts ...Option) *Engine {
	e := &Engine{
		browser:      browser,
		lock:         noopLock{},
		logger:       logger,
		timeout:      DefaultTimeout,
		refineBudget: DefaultRefineBudget,
		serviceTypes: ServiceTypes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discover scans for devices and returns what it found, deduplicated by
// name. An empty result is a normal outcome, not an error; the only error
// returned is the caller's own cancellation.
func (e *Engine) Discover(ctx context.Context) ([]models.DiscoveredDevice, error) {
	if err := e.lock.Acquire(); err != nil {
		e.logger.WithError(err).Debug("multicast lock not acquired, scanning anyway")
	}
	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(e.lock.Release) }
	defer release()

	overallCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	found := make(map[string]models.DiscoveredDevice)
	slice := e.timeout / time.Duration(len(e.serviceTypes))

	for _, serviceType := range e.serviceTypes {
		if overallCtx.Err() != nil {
			break
		}
		e.runPhase(overallCtx, serviceType, slice, found)
	}

	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}

	devices := make([]models.DiscoveredDevice, 0, len(found))
	for _, d := range found {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })

	// Scan listeners are finished; release before the refinement pass.
	release()
	e.refineNames(ctx, devices)
	return devices, nil
}

// runPhase browses one service type for its time slice, folding resolved
// services into found. A failed browse just moves on to the next phase.
func (e *Engine) runPhase(ctx context.Context, serviceType string, slice time.Duration, found map[string]models.DiscoveredDevice) {
	phaseCtx, cancel := context.WithTimeout(ctx, slice)
	defer cancel()

	entries := make(chan ServiceEntry, 8)
	if err := e.browser.Browse(phaseCtx, serviceType, entries); err != nil {
		e.logger.WithError(err).WithField("service_type", serviceType).Debug("browse failed, skipping phase")
		return
	}

	for entry := range entries {
		device, ok := entryToDevice(entry)
		if !ok {
			continue
		}
		// Earlier phases win for the same name
		if _, exists := found[device.Name]; !exists {
			found[device.Name] = device
		}
	}
}

// entryToDevice derives a displayable device from a resolved advertisement
func entryToDevice(entry ServiceEntry) (models.DiscoveredDevice, bool) {
	name := strings.TrimSpace(entry.Host)
	if name == "" {
		name = strings.TrimSpace(entry.Instance)
	}

	ip := pickIPv4(entry.IPs)
	if name == "" || ip == "" || entry.Port <= 0 {
		return models.DiscoveredDevice{}, false
	}
	return models.DiscoveredDevice{Name: name, IP: ip, Port: entry.Port}, true
}

// pickIPv4 prefers a dotted-quad address, falling back to whatever came
// first
func pickIPv4(ips []string) string {
	for _, ip := range ips {
		if strings.Contains(ip, ".") {
			return ip
		}
	}
	if len(ips) > 0 {
		return ips[0]
	}
	return ""
}

// refineNames attempts to replace each device's display name with the host
// advertised under the Oasis service type, matching by IP. Pure best
// effort: any failure or timeout leaves the scan result untouched.
func (e *Engine) refineNames(ctx context.Context, devices []models.DiscoveredDevice) {
	if len(devices) == 0 {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.refineBudget)
	defer cancel()

	entries := make(chan ServiceEntry, 8)
	if err := e.browser.Browse(lookupCtx, RefineServiceType, entries); err != nil {
		return
	}

	var records []ServiceEntry
	for entry := range entries {
		records = append(records, entry)
	}

	for i := range devices {
		if host, ok := matchHostByIP(records, devices[i].IP); ok {
			devices[i].Name = strings.TrimSuffix(host, ".")
		}
	}
}

// matchHostByIP returns the first advertised host whose address list
// contains ip
func matchHostByIP(records []ServiceEntry, ip string) (string, bool) {
	for _, rec := range records {
		if rec.Host == "" {
			continue
		}
		for _, recIP := range rec.IPs {
			if recIP == ip {
				return rec.Host, true
			}
		}
	}
	return "", false
}
