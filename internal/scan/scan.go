// Package scan drives the hosts × ports × checks cross product and
// regroups the results by resolved address.
package scan

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/jmreyn/sitescout/internal/normalize"
	"github.com/jmreyn/sitescout/internal/probe"
	"github.com/jmreyn/sitescout/internal/resolve"
	"github.com/jmreyn/sitescout/internal/whois"
)

// Unresolved is the pseudo-address grouping hosts whose forward
// resolution failed. They are still probed by name.
const Unresolved = "unresolved"

const defaultConcurrency = 4

// Config describes one scan run. Validation of ports and check selection
// is the caller's job; the scan takes the request as given.
type Config struct {
	Ports         []int         // default [80, 443], probed in caller order
	Checks        []probe.Check // content checks, run in caller order
	DetectDynamic bool
	Fold          bool // canonicalize names before dedupe (see normalize.Options)
	Whois         bool // registrar summary per group base domain
	Concurrency   int  // bounded worker pool size
	RateLimit     int  // probes per second across all workers; 0 = unlimited
	Request       probe.RequestConfig
	Resolver      *resolve.Resolver     // nil means resolve.New()
	Progress      func(done, total int) // called after each target finishes
}

// Row is one report line: a (host, port) target that answered the
// reachability probe. Immutable once built.
type Row struct {
	Target   probe.Target  `json:"target"`
	Status   int           `json:"status"`
	Redirect bool          `json:"redirect,omitempty"`
	Banner   string        `json:"banner"`
	Dynamic  bool          `json:"dynamic,omitempty"`
	Checks   []CheckResult `json:"checks,omitempty"`
}

// CheckResult pairs a content check with its classified outcome.
type CheckResult struct {
	Check probe.Check `json:"check"`
	probe.Result
}

// Group clusters rows sharing a resolved address, in
// resolution-encounter order.
type Group struct {
	Address string          `json:"address"`
	Hosts   []resolve.Host  `json:"hosts"`
	Whois   []whois.Summary `json:"whois,omitempty"`
	Rows    []Row           `json:"rows"`
}

type task struct {
	group   int
	target  probe.Target
	dynamic bool
}

// Run normalizes, resolves and probes the given names. Per-target
// failures are absorbed into the row model; Run itself cannot fail.
// Targets whose reachability probe gets no status code are silently
// dropped.
func Run(ctx context.Context, names []string, cfg Config) []Group {
	if len(cfg.Ports) == 0 {
		cfg.Ports = []int{80, 443}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = resolve.New()
	}

	hosts := normalize.Hosts(names, normalize.Options{Fold: cfg.Fold})
	resolved := resolveAll(ctx, resolver, hosts, cfg)
	groups := groupByAddress(resolved)

	// Probes run out of order across the pool; the task list is built in
	// (group, host, port) order and results land in their task slot, so
	// emission order stays deterministic.
	var tasks []task
	for gi, g := range groups {
		for _, h := range g.Hosts {
			for _, port := range cfg.Ports {
				tasks = append(tasks, task{
					group:   gi,
					target:  probe.Target{Host: h.Name, Port: port},
					dynamic: h.Dynamic,
				})
			}
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	client := probe.NewClient(cfg.Request)
	rows := make([]*Row, len(tasks))
	var done int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.Concurrency)
	for i, tk := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, tk task) {
			defer wg.Done()
			defer func() { <-sem }()
			rows[i] = probeTarget(ctx, client, limiter, tk, cfg.Checks)
			if cfg.Progress != nil {
				cfg.Progress(int(atomic.AddInt64(&done, 1)), len(tasks))
			}
		}(i, tk)
	}
	wg.Wait()

	for i, tk := range tasks {
		if rows[i] != nil {
			groups[tk.group].Rows = append(groups[tk.group].Rows, *rows[i])
		}
	}

	if cfg.Whois {
		for gi := range groups {
			groups[gi].Whois = groupWhois(groups[gi].Hosts)
		}
	}
	return groups
}

// probeTarget runs the reachability gate and, when it passes, each
// requested content check. Returns nil when the target never answered:
// no row, no error surfaced.
func probeTarget(ctx context.Context, client *probe.Client, limiter *rate.Limiter, tk task, checks []probe.Check) *Row {
	wait(ctx, limiter)
	banner, ok := client.Reachability(ctx, tk.target)
	if !ok {
		return nil
	}
	row := &Row{
		Target:   tk.target,
		Status:   banner.Status,
		Redirect: probe.IsRedirect(banner.Status),
		Banner:   banner.Server,
		Dynamic:  tk.dynamic,
	}
	for _, check := range checks {
		wait(ctx, limiter)
		// A failed check yields NoResponse for that check only; siblings
		// still run.
		row.Checks = append(row.Checks, CheckResult{
			Check:  check,
			Result: client.Fetch(ctx, tk.target, check),
		})
	}
	return row
}

func wait(ctx context.Context, limiter *rate.Limiter) {
	if limiter != nil {
		_ = limiter.Wait(ctx)
	}
}

// resolveAll resolves every host through the worker pool. Results keep
// normalized-list order regardless of completion order.
func resolveAll(ctx context.Context, r *resolve.Resolver, hosts []string, cfg Config) []resolve.Host {
	out := make([]resolve.Host, len(hosts))
	var wg sync.WaitGroup
	sem := make(chan struct{}, cfg.Concurrency)
	for i, name := range hosts {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, name string) {
			defer wg.Done()
			defer func() { <-sem }()
			h := resolve.Host{Name: name}
			if addr, ok := r.Resolve(ctx, name); ok {
				h.Address = addr
			}
			if cfg.DetectDynamic {
				h.Dynamic = r.DetectDynamic(ctx, name)
			}
			out[i] = h
		}(i, name)
	}
	wg.Wait()
	return out
}

// groupByAddress clusters hosts by resolved address, groups ordered by
// first encounter, hosts inside a group in normalized-list order.
func groupByAddress(hosts []resolve.Host) []Group {
	var groups []Group
	index := map[string]int{}
	for _, h := range hosts {
		addr := h.Address
		if addr == "" {
			addr = Unresolved
		}
		gi, ok := index[addr]
		if !ok {
			gi = len(groups)
			index[addr] = gi
			groups = append(groups, Group{Address: addr})
		}
		groups[gi].Hosts = append(groups[gi].Hosts, h)
	}
	return groups
}

// groupWhois looks up each distinct base domain of a group once, in host
// order. The unresolved pseudo-group is enriched too: WHOIS can succeed
// where forward DNS does not.
func groupWhois(hosts []resolve.Host) []whois.Summary {
	seen := map[string]struct{}{}
	var out []whois.Summary
	for _, h := range hosts {
		base := strings.TrimPrefix(h.Name, "www.")
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		out = append(out, whois.Lookup(base))
	}
	return out
}
