// Package report renders grouped scan rows for a terminal. It consumes
// the structured results only; classification never happens here.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/jmreyn/sitescout/internal/probe"
	"github.com/jmreyn/sitescout/internal/scan"
)

var (
	addrColor     = color.New(color.FgCyan, color.Bold)
	redirectColor = color.New(color.FgYellow)
	foundColor    = color.New(color.FgGreen)
	missColor     = color.New(color.FgRed)
	quietColor    = color.New(color.Faint)
)

// Options controls rendering. Checks gives the column order and must
// match the checks requested from the scan.
type Options struct {
	Checks []probe.Check
}

// Render writes one box per group with rows in scan order and a blank
// line between groups. Groups without a single responsive target are
// skipped entirely, matching the quiet-skip policy for unreachable
// ports.
func Render(w io.Writer, groups []scan.Group, opts Options) {
	first := true
	for _, g := range groups {
		if len(g.Rows) == 0 && len(g.Whois) == 0 {
			continue
		}
		if !first {
			fmt.Fprintln(w)
		}
		first = false
		renderGroup(w, g, opts)
	}
}

func renderGroup(w io.Writer, g scan.Group, opts Options) {
	fmt.Fprintf(w, "┌─ %s\n", addrColor.Sprint(g.Address))
	for _, s := range g.Whois {
		line := fmt.Sprintf("whois %s", s.Domain)
		if s.Registrar != "" {
			line += ": " + s.Registrar
		}
		if s.Created != "" {
			line += fmt.Sprintf(" (created %s", s.Created)
			if s.Expires != "" {
				line += fmt.Sprintf(", expires %s", s.Expires)
			}
			line += ")"
		}
		fmt.Fprintf(w, "│  %s\n", quietColor.Sprint(line))
	}
	for _, row := range g.Rows {
		fmt.Fprintf(w, "│  %s\n", formatRow(row, opts.Checks))
	}
	fmt.Fprintln(w, "└────────────────────────────")
}

func formatRow(row scan.Row, checks []probe.Check) string {
	target := row.Target.String()
	if row.Dynamic {
		target += " [dynamic]"
	}

	status := fmt.Sprintf("%d", row.Status)
	if row.Redirect {
		status = redirectColor.Sprint(pad(status+" (redirect)", 16))
	} else {
		status = pad(status, 16)
	}

	line := pad(target, 32) + status + pad(row.Banner, 24)
	for _, check := range checks {
		line += "  " + check.String() + ": " + outcomeCell(row, check)
	}
	return line
}

// outcomeCell finds the row's result for a check. A check that was
// requested but is missing from the row never happens in practice; show
// it as no response rather than panicking on malformed input.
func outcomeCell(row scan.Row, check probe.Check) string {
	for _, cr := range row.Checks {
		if cr.Check != check {
			continue
		}
		switch cr.Outcome {
		case probe.Found:
			return foundColor.Sprint(cr.Outcome.String())
		case probe.NotFound:
			return missColor.Sprint(cr.Outcome.String())
		default:
			return quietColor.Sprint(cr.Outcome.String())
		}
	}
	return quietColor.Sprint(probe.NoResponse.String())
}

// pad pads the plain text before any color is applied, so ANSI escapes
// never skew the columns.
func pad(s string, width int) string {
	if len(s) >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}
