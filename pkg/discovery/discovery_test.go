package discovery

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/oasis-home/oasisctl/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBrowser replays canned entries per service type and records the order
// phases ran in
type fakeBrowser struct {
	mu      sync.Mutex
	entries map[string][]ServiceEntry
	browsed []string
}

func (f *fakeBrowser) Browse(ctx context.Context, serviceType string, entries chan<- ServiceEntry) error {
	f.mu.Lock()
	f.browsed = append(f.browsed, serviceType)
	canned := f.entries[serviceType]
	f.mu.Unlock()

	go func() {
		defer close(entries)
		for _, e := range canned {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()
	return nil
}

type countingLock struct {
	mu       sync.Mutex
	acquires int
	releases int
}

func (l *countingLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	return nil
}

func (l *countingLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestDiscover_EmptyResultWithinBudget(t *testing.T) {
	browser := &fakeBrowser{entries: map[string][]ServiceEntry{}}
	lock := &countingLock{}
	engine := NewEngine(browser, testLogger(),
		WithTimeout(200*time.Millisecond),
		WithRefineBudget(20*time.Millisecond),
		WithLock(lock),
	)

	start := time.Now()
	devices, err := engine.Discover(context.Background())

	require.NoError(t, err)
	assert.Empty(t, devices)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, lock.releases, "multicast lock must be released exactly once")
}

func TestDiscover_AllPhasesRunInOrder(t *testing.T) {
	browser := &fakeBrowser{entries: map[string][]ServiceEntry{}}
	engine := NewEngine(browser, testLogger(),
		WithTimeout(200*time.Millisecond),
		WithRefineBudget(10*time.Millisecond),
	)

	_, err := engine.Discover(context.Background())
	require.NoError(t, err)

	browser.mu.Lock()
	defer browser.mu.Unlock()
	assert.Equal(t, ServiceTypes, browser.browsed)
}

func TestDiscover_DeduplicatesByName(t *testing.T) {
	browser := &fakeBrowser{entries: map[string][]ServiceEntry{
		"_oasis._tcp": {
			{Instance: "oasis", Host: "oasis.local.", Port: 80, IPs: []string{"192.168.1.10"}},
		},
		"_http._tcp": {
			// Same name again from a later phase with a different port:
			// the earlier result must survive.
			{Instance: "oasis", Host: "oasis.local.", Port: 8080, IPs: []string{"192.168.1.99"}},
			{Instance: "printer", Host: "printer.local.", Port: 631, IPs: []string{"192.168.1.20"}},
		},
	}}
	engine := NewEngine(browser, testLogger(),
		WithTimeout(200*time.Millisecond),
		WithRefineBudget(10*time.Millisecond),
		WithServiceTypes([]string{"_oasis._tcp", "_http._tcp"}),
	)

	devices, err := engine.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, devices, 2)
	assert.Equal(t, models.DiscoveredDevice{Name: "oasis.local.", IP: "192.168.1.10", Port: 80}, devices[0])
	assert.Equal(t, "printer.local.", devices[1].Name)
}

func TestDiscover_SkipsUnresolvableEntries(t *testing.T) {
	browser := &fakeBrowser{entries: map[string][]ServiceEntry{
		"_oasis._tcp": {
			{Instance: "", Host: "", Port: 80, IPs: []string{"192.168.1.10"}}, // no name
			{Instance: "noaddr", Host: "noaddr.local.", Port: 80},             // no IP
			{Instance: "noport", Host: "noport.local.", IPs: []string{"192.168.1.11"}},
			{Instance: "good", Host: "good.local.", Port: 80, IPs: []string{"fe80::1", "192.168.1.12"}},
		},
	}}
	engine := NewEngine(browser, testLogger(),
		WithTimeout(100*time.Millisecond),
		WithRefineBudget(10*time.Millisecond),
		WithServiceTypes([]string{"_oasis._tcp"}),
	)

	devices, err := engine.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, devices, 1)
	assert.Equal(t, "192.168.1.12", devices[0].IP, "IPv4 address preferred")
}

func TestDiscover_RefinementPassRenamesByIP(t *testing.T) {
	browser := &fakeBrowser{entries: map[string][]ServiceEntry{
		"_http._tcp": {
			{Instance: "generic-name", Host: "", Port: 80, IPs: []string{"192.168.1.30"}},
		},
		// Refinement pass browses _oasis._tcp and matches by IP
		"_oasis._tcp": {
			{Instance: "oasis", Host: "oasis-living-room.local.", Port: 80, IPs: []string{"192.168.1.30"}},
		},
	}}
	engine := NewEngine(browser, testLogger(),
		WithTimeout(100*time.Millisecond),
		WithRefineBudget(50*time.Millisecond),
		WithServiceTypes([]string{"_http._tcp"}),
	)

	devices, err := engine.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, devices, 1)
	assert.Equal(t, "oasis-living-room.local", devices[0].Name, "trailing dot trimmed")
}

func TestDiscover_CancellationReleasesLockOnce(t *testing.T) {
	browser := &fakeBrowser{entries: map[string][]ServiceEntry{}}
	lock := &countingLock{}
	engine := NewEngine(browser, testLogger(),
		WithTimeout(5*time.Second),
		WithLock(lock),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := engine.Discover(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, lock.releases)
}
