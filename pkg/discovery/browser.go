package discovery

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowseTimeout is the default duration of a browse operation.
const BrowseTimeout = 10 * time.Second

// ErrNoServiceFound indicates browsing ended without a usable service.
var ErrNoServiceFound = errors.New("no onboarding service found")

// BrowserConfig configures mDNS browsing.
type BrowserConfig struct {
	// BrowseTimeout bounds Resolve. Zero uses BrowseTimeout.
	BrowseTimeout time.Duration

	// Interface restricts browsing to one interface. Empty means all.
	Interface string
}

// Browser locates onboarding services over mDNS.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	return &Browser{config: config}
}

// Browse emits every onboarding service found until ctx ends. The channel
// is closed when browsing stops.
func (b *Browser) Browse(ctx context.Context) (<-chan *ServiceInfo, error) {
	out := make(chan *ServiceInfo)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				info := entryToService(entry)
				if info == nil {
					continue
				}
				select {
				case out <- info:
				case <-ctx.Done():
					return
				}

			case _, ok := <-removed:
				if !ok {
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.options()...)
	}()

	return out, nil
}

// Resolve returns the first onboarding service discovered, or
// ErrNoServiceFound when the browse window closes empty.
func (b *Browser) Resolve(ctx context.Context) (*ServiceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.BrowseTimeout)
	defer cancel()

	services, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	for info := range services {
		if len(info.Addresses) > 0 || info.Host != "" {
			return info, nil
		}
	}
	return nil, ErrNoServiceFound
}

func (b *Browser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		if iface, err := net.InterfaceByName(b.config.Interface); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

// entryToService converts a zeroconf entry, dropping entries with
// unparseable TXT records.
func entryToService(entry *zeroconf.ServiceEntry) *ServiceInfo {
	info := &ServiceInfo{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
	}
	if err := DecodeTXT(entry.Text, info); err != nil {
		return nil
	}

	for _, ip := range entry.AddrIPv4 {
		info.Addresses = append(info.Addresses, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		info.Addresses = append(info.Addresses, ip.String())
	}
	return info
}
