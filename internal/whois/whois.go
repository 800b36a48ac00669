// Package whois enriches report groups with registrar data. Lookup
// failures degrade to an empty summary; they never fail a scan.
package whois

import (
	gowhois "github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
)

// Summary is the slice of WHOIS data worth showing next to a scan group.
type Summary struct {
	Domain      string   `json:"domain"`
	Registrar   string   `json:"registrar,omitempty"`
	Created     string   `json:"created,omitempty"`
	Expires     string   `json:"expires,omitempty"`
	NameServers []string `json:"name_servers,omitempty"`
}

// Lookup fetches and parses the WHOIS record for a domain.
func Lookup(domain string) Summary {
	raw, err := gowhois.Whois(domain)
	if err != nil {
		return Summary{Domain: domain}
	}
	return summarize(domain, raw)
}

func summarize(domain, raw string) Summary {
	s := Summary{Domain: domain}
	parsed, err := whoisparser.Parse(raw)
	if err != nil {
		return s
	}
	if parsed.Registrar != nil {
		s.Registrar = parsed.Registrar.Name
	}
	if parsed.Domain != nil {
		s.Created = parsed.Domain.CreatedDate
		s.Expires = parsed.Domain.ExpirationDate
		s.NameServers = parsed.Domain.NameServers
	}
	return s
}
