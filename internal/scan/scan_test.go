package scan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jmreyn/sitescout/internal/probe"
	"github.com/jmreyn/sitescout/internal/resolve"
)

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return port
}

// stubResolver maps 127.0.0.1 to a fixed address and fails everything
// else, pushing the www. twin into the unresolved bucket.
func stubResolver() *resolve.Resolver {
	r := resolve.New()
	r.Lookup = func(ctx context.Context, host string) ([]string, error) {
		if host == "127.0.0.1" {
			return []string{"10.9.9.9"}, nil
		}
		return nil, errors.New("no such host")
	}
	r.Sample = r.Lookup
	r.Interval = time.Millisecond
	return r
}

func fastRequest() probe.RequestConfig {
	cfg := probe.DefaultRequestConfig()
	cfg.Timeout = 500 * time.Millisecond
	return cfg
}

func TestRunGroupsGatesAndClassifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Server", "unit-test/1.0")
		case "/wp-login.php":
			fmt.Fprint(w, "<html>wp-includes</html>")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	groups := Run(context.Background(), []string{"127.0.0.1"}, Config{
		Ports:    []int{serverPort(t, srv)},
		Checks:   []probe.Check{probe.CmsLogin, probe.CrawlerPolicy},
		Request:  fastRequest(),
		Resolver: stubResolver(),
	})

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2 (resolved + unresolved): %+v", len(groups), groups)
	}

	g := groups[0]
	if g.Address != "10.9.9.9" {
		t.Fatalf("first group address = %q", g.Address)
	}
	if len(g.Rows) != 1 {
		t.Fatalf("resolved group rows = %d, want 1", len(g.Rows))
	}
	row := g.Rows[0]
	if row.Banner != "unit-test/1.0" || row.Status != 200 || row.Redirect {
		t.Errorf("row = %+v", row)
	}
	if len(row.Checks) != 2 {
		t.Fatalf("checks = %+v", row.Checks)
	}
	if row.Checks[0].Check != probe.CmsLogin || row.Checks[0].Outcome != probe.Found {
		t.Errorf("wp-login = %+v, want Found", row.Checks[0])
	}
	if row.Checks[1].Check != probe.CrawlerPolicy || row.Checks[1].Outcome != probe.NotFound {
		t.Errorf("robots = %+v, want NotFound", row.Checks[1])
	}

	// www.127.0.0.1 does not resolve and does not answer: grouped under
	// the pseudo-address with zero rows, no error surfaced.
	u := groups[1]
	if u.Address != Unresolved {
		t.Fatalf("second group address = %q", u.Address)
	}
	if len(u.Hosts) != 1 || u.Hosts[0].Name != "www.127.0.0.1" {
		t.Errorf("unresolved hosts = %+v", u.Hosts)
	}
	if len(u.Rows) != 0 {
		t.Errorf("unresolved group rows = %+v, want none", u.Rows)
	}
}

func TestRunUnreachableTargetProducesNoRows(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	groups := Run(context.Background(), []string{"127.0.0.1"}, Config{
		Ports:    []int{port},
		Checks:   []probe.Check{probe.CmsLogin},
		Request:  fastRequest(),
		Resolver: stubResolver(),
	})
	for _, g := range groups {
		if len(g.Rows) != 0 {
			t.Errorf("group %s has rows %+v, want none", g.Address, g.Rows)
		}
	}
}

func TestRunPortOrderPreserved(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	srv1 := httptest.NewServer(handler)
	defer srv1.Close()
	srv2 := httptest.NewServer(handler)
	defer srv2.Close()

	ports := []int{serverPort(t, srv2), serverPort(t, srv1)}
	groups := Run(context.Background(), []string{"127.0.0.1"}, Config{
		Ports:       ports,
		Request:     fastRequest(),
		Resolver:    stubResolver(),
		Concurrency: 8,
	})

	var rows []Row
	for _, g := range groups {
		if g.Address == "10.9.9.9" {
			rows = g.Rows
		}
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v, want 2", rows)
	}
	for i, r := range rows {
		if r.Target.Port != ports[i] {
			t.Errorf("row %d port = %d, want %d (caller order)", i, r.Target.Port, ports[i])
		}
	}
}

func TestRunDynamicFlagOnRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	r := stubResolver()
	flip := 0
	var mu sync.Mutex
	r.Sample = func(ctx context.Context, host string) ([]string, error) {
		mu.Lock()
		defer mu.Unlock()
		flip++
		return []string{fmt.Sprintf("10.9.9.%d", flip)}, nil
	}

	groups := Run(context.Background(), []string{"127.0.0.1"}, Config{
		Ports:         []int{serverPort(t, srv)},
		DetectDynamic: true,
		Request:       fastRequest(),
		Resolver:      r,
		Concurrency:   1,
	})

	found := false
	for _, g := range groups {
		for _, row := range g.Rows {
			if row.Target.Host == "127.0.0.1" {
				found = true
				if !row.Dynamic {
					t.Error("changing address not flagged dynamic on row")
				}
			}
		}
	}
	if !found {
		t.Fatal("no row for 127.0.0.1")
	}
}

func TestRunProgressCoversEveryTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	var mu sync.Mutex
	var maxDone, total int
	calls := 0
	Run(context.Background(), []string{"127.0.0.1"}, Config{
		Ports:    []int{serverPort(t, srv)},
		Request:  fastRequest(),
		Resolver: stubResolver(),
		Progress: func(done, n int) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if done > maxDone {
				maxDone = done
			}
			total = n
		},
	})
	// 2 normalized hosts x 1 port.
	if calls != 2 || maxDone != 2 || total != 2 {
		t.Fatalf("progress calls=%d max=%d total=%d, want 2/2/2", calls, maxDone, total)
	}
}

func TestGroupByAddress(t *testing.T) {
	hosts := []resolve.Host{
		{Name: "a.com", Address: "1.1.1.1"},
		{Name: "b.com"},
		{Name: "c.com", Address: "1.1.1.1"},
		{Name: "d.com", Address: "2.2.2.2"},
	}
	groups := groupByAddress(hosts)
	if len(groups) != 3 {
		t.Fatalf("groups = %+v", groups)
	}
	if groups[0].Address != "1.1.1.1" || groups[1].Address != Unresolved || groups[2].Address != "2.2.2.2" {
		t.Fatalf("encounter order broken: %+v", groups)
	}
	if len(groups[0].Hosts) != 2 || groups[0].Hosts[0].Name != "a.com" || groups[0].Hosts[1].Name != "c.com" {
		t.Fatalf("host order inside group broken: %+v", groups[0].Hosts)
	}
}
