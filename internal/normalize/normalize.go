package normalize

import (
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// Options controls host canonicalization.
type Options struct {
	// Fold lowercases names and converts them to IDNA ASCII form before
	// deduplication. DNS is case-insensitive, so without folding the same
	// domain written in two cases survives as two scan targets. Off by
	// default to keep the historical behavior.
	Fold bool
}

// Hosts pairs bare and www. variants of the input FQDNs.
//
// Every base domain present in the input (after stripping one leading
// "www.") comes back with both its bare and www.-prefixed form, exactly
// once each, sorted lexicographically as plain strings. The transform is
// idempotent: applying it to its own output returns the same list.
func Hosts(raw []string, opts Options) []string {
	bases := make(map[string]struct{}, len(raw))
	for _, fqdn := range raw {
		if fqdn == "" {
			continue
		}
		if opts.Fold {
			fqdn = fold(fqdn)
		}
		bases[strings.TrimPrefix(fqdn, "www.")] = struct{}{}
	}

	full := make(map[string]struct{}, len(bases)*2)
	for base := range bases {
		full[base] = struct{}{}
		full["www."+base] = struct{}{}
	}

	out := make([]string, 0, len(full))
	for h := range full {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func fold(fqdn string) string {
	fqdn = strings.ToLower(fqdn)
	if ascii, err := idna.Lookup.ToASCII(fqdn); err == nil {
		return ascii
	}
	return fqdn
}
