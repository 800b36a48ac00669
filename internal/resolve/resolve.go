package resolve

import (
	"context"
	"net"
	"sync"
	"time"

	mdns "github.com/miekg/dns"
)

// Host is one scan target after resolution. Address is empty when
// resolution failed; the host is still probed by name and grouped under
// the unresolved bucket.
type Host struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Dynamic bool   `json:"dynamic,omitempty"`
}

// Resolved reports whether forward resolution produced an address.
func (h Host) Resolved() bool { return h.Address != "" }

// LookupFunc resolves a host name to its addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver performs forward resolution and dynamic-DNS sampling.
//
// Lookup is the plain resolver, defaulting to the system stub. Sample is
// used only by DetectDynamic and defaults to a direct wire query against
// the server from resolv.conf: the stub resolver caches answers, so three
// back-to-back lookups through it would always agree and never expose a
// changing address.
type Resolver struct {
	Lookup   LookupFunc
	Sample   LookupFunc
	Attempts int
	Interval time.Duration
}

// New returns a Resolver with platform defaults.
func New() *Resolver {
	return &Resolver{
		Lookup:   systemLookup,
		Sample:   wireLookup,
		Attempts: 3,
		Interval: time.Second,
	}
}

// Resolve performs a single forward resolution and returns the primary
// address. Failure is not an error: ok is false and the caller groups the
// host under the unresolved bucket.
func (r *Resolver) Resolve(ctx context.Context, host string) (addr string, ok bool) {
	addrs, err := r.Lookup(ctx, host)
	if err != nil || len(addrs) == 0 {
		return "", false
	}
	return addrs[0], true
}

// DetectDynamic resolves host Attempts times, Interval apart, and reports
// whether more than one distinct address was observed. A failed attempt
// contributes nothing to the observed set and does not abort the rest.
func (r *Resolver) DetectDynamic(ctx context.Context, host string) bool {
	seen := map[string]struct{}{}
	for i := 0; i < r.Attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(r.Interval):
			case <-ctx.Done():
				return len(seen) > 1
			}
		}
		addrs, err := r.Sample(ctx, host)
		if err != nil {
			continue
		}
		for _, a := range addrs {
			seen[a] = struct{}{}
		}
	}
	return len(seen) > 1
}

func systemLookup(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}

var (
	confOnce sync.Once
	conf     *mdns.ClientConfig
)

// wireLookup queries the configured nameserver directly for A records,
// bypassing the OS stub and its cache. Falls back to the stub when no
// resolv.conf is available (e.g. on Windows).
func wireLookup(ctx context.Context, host string) ([]string, error) {
	confOnce.Do(func() {
		conf, _ = mdns.ClientConfigFromFile("/etc/resolv.conf")
	})
	if conf == nil || len(conf.Servers) == 0 {
		return systemLookup(ctx, host)
	}

	c := &mdns.Client{Timeout: 5 * time.Second}
	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(host), mdns.TypeA)

	reply, _, err := c.ExchangeContext(ctx, msg, net.JoinHostPort(conf.Servers[0], conf.Port))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ans := range reply.Answer {
		if a, ok := ans.(*mdns.A); ok {
			out = append(out, a.A.String())
		}
	}
	if len(out) == 0 {
		return nil, &net.DNSError{Err: "no A records", Name: host, IsNotFound: true}
	}
	return out, nil
}
