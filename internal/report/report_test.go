package report

import (
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/jmreyn/sitescout/internal/probe"
	"github.com/jmreyn/sitescout/internal/resolve"
	"github.com/jmreyn/sitescout/internal/scan"
)

func sampleGroups() []scan.Group {
	return []scan.Group{
		{
			Address: "93.184.216.34",
			Hosts:   []resolve.Host{{Name: "a.com", Address: "93.184.216.34"}},
			Rows: []scan.Row{
				{
					Target: probe.Target{Host: "a.com", Port: 80},
					Status: 200,
					Banner: "nginx/1.24",
					Checks: []scan.CheckResult{
						{Check: probe.CmsLogin, Result: probe.Result{Outcome: probe.Found, Status: 200}},
						{Check: probe.CrawlerPolicy, Result: probe.Result{Outcome: probe.NoResponse}},
					},
				},
				{
					Target:   probe.Target{Host: "a.com", Port: 443},
					Status:   301,
					Redirect: true,
					Banner:   "nginx/1.24",
				},
			},
		},
		{
			Address: scan.Unresolved,
			Hosts:   []resolve.Host{{Name: "b.com"}},
		},
		{
			Address: "10.0.0.7",
			Hosts:   []resolve.Host{{Name: "c.com", Address: "10.0.0.7", Dynamic: true}},
			Rows: []scan.Row{
				{
					Target:  probe.Target{Host: "c.com", Port: 80},
					Status:  200,
					Banner:  "Unknown",
					Dynamic: true,
				},
			},
		},
	}
}

func TestRenderGroupsAndSeparators(t *testing.T) {
	color.NoColor = true
	var b strings.Builder
	Render(&b, sampleGroups(), Options{Checks: []probe.Check{probe.CmsLogin, probe.CrawlerPolicy}})
	out := b.String()

	// Two non-empty groups, exactly one boundary between them.
	if n := strings.Count(out, "┌─"); n != 2 {
		t.Fatalf("group headers = %d, want 2 (empty group skipped):\n%s", n, out)
	}
	if n := strings.Count(out, "└────"); n != 2 {
		t.Fatalf("group footers = %d, want 2:\n%s", n, out)
	}
	if n := strings.Count(out, "\n\n"); n != 1 {
		t.Fatalf("blank separators = %d, want 1:\n%s", n, out)
	}

	for _, want := range []string{
		"93.184.216.34",
		"a.com:80",
		"wp-login: found",
		"robots: no response",
		"301 (redirect)",
		"c.com:80 [dynamic]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "b.com") {
		t.Errorf("group without rows should be skipped:\n%s", out)
	}
}

func TestRenderOutcomeDistinguishable(t *testing.T) {
	color.NoColor = true
	var b strings.Builder
	groups := sampleGroups()[:1]
	Render(&b, groups, Options{Checks: []probe.Check{probe.CrawlerPolicy}})
	out := b.String()
	if !strings.Contains(out, "robots: no response") {
		t.Fatalf("NoResponse must render distinctly from NotFound:\n%s", out)
	}
	if strings.Contains(out, "robots: not found") {
		t.Fatalf("timeout rendered as not found:\n%s", out)
	}
}

func TestRenderRowWithoutRequestedCheck(t *testing.T) {
	color.NoColor = true
	var b strings.Builder
	groups := sampleGroups()[:1]
	// The 443 row carries no check results; the column still renders.
	Render(&b, groups, Options{Checks: []probe.Check{probe.CmsLogin}})
	if n := strings.Count(b.String(), "wp-login:"); n != 2 {
		t.Fatalf("wp-login column on %d rows, want 2:\n%s", n, b.String())
	}
}
