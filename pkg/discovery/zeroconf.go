package discovery

import (
	"context"

	"github.com/grandcat/zeroconf"
)

const mdnsDomain = "local."

// ZeroconfBrowser implements Browser over the system's multicast DNS stack
type ZeroconfBrowser struct{}

// NewZeroconfBrowser returns the production browser
func NewZeroconfBrowser() *ZeroconfBrowser {
	return &ZeroconfBrowser{}
}

// Browse listens for serviceType advertisements until ctx is done. A fresh
// resolver is created per browse so each phase owns (and tears down) its
// own multicast listener.
func (b *ZeroconfBrowser) Browse(ctx context.Context, serviceType string, entries chan<- ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		close(entries)
		return err
	}

	raw := make(chan *zeroconf.ServiceEntry, 8)
	if err := resolver.Browse(ctx, serviceType, mdnsDomain, raw); err != nil {
		close(entries)
		return err
	}

	go func() {
		defer close(entries)
		for entry := range raw {
			if entry == nil {
				continue
			}
			entries <- convertEntry(entry)
		}
	}()
	return nil
}

func convertEntry(entry *zeroconf.ServiceEntry) ServiceEntry {
	out := ServiceEntry{
		Instance: entry.Instance,
		Host:     entry.HostName,
		Port:     entry.Port,
	}
	for _, ip := range entry.AddrIPv4 {
		out.IPs = append(out.IPs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		out.IPs = append(out.IPs, ip.String())
	}
	return out
}
