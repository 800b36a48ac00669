package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Check identifies one fingerprint probe.
type Check int

const (
	Reachability Check = iota
	CmsLogin
	CrawlerPolicy
)

func (c Check) String() string {
	switch c {
	case Reachability:
		return "reachability"
	case CmsLogin:
		return "wp-login"
	case CrawlerPolicy:
		return "robots"
	default:
		return fmt.Sprintf("check(%d)", int(c))
	}
}

func (c Check) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Outcome classifies a content probe.
type Outcome int

const (
	// NoResponse: the server did not answer this particular request.
	NoResponse Outcome = iota
	// NotFound: the server answered but no signature matched.
	NotFound
	Found
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not found"
	default:
		return "no response"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Result is the classified outcome of one content probe. Status is 0 when
// the request itself failed.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Status  int     `json:"status,omitempty"`
}

// Banner is the reachability probe result for a target that answered.
type Banner struct {
	Server string `json:"server"`
	Status int    `json:"status"`
}

type checkSpec struct {
	path    string
	markers []string // lowercase literals; any hit on a 200 body means Found
}

// Adding a fingerprint is a table change, not new code.
var checks = map[Check]checkSpec{
	Reachability: {path: "/"},
	CmsLogin: {
		path: "/wp-login.php",
		markers: []string{
			"username or email address",
			"wp-includes",
			"https://wordpress.org",
		},
	},
	CrawlerPolicy: {
		path:    "/robots.txt",
		markers: []string{"user-agent:", "disallow:"},
	},
}

// Path returns the fixed URL path probed for a check.
func (c Check) Path() string { return checks[c].path }

// IsRedirect reports whether a status code is in the 3xx range.
func IsRedirect(code int) bool { return code >= 300 && code < 400 }

// Target is one (host, port) pair. The scheme is https exactly when the
// port is 443; there is no content negotiation.
type Target struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (t Target) scheme() string {
	if t.Port == 443 {
		return "https"
	}
	return "http"
}

// URL builds the probe URL for a path. Default ports are left implicit.
func (t Target) URL(path string) string {
	scheme := t.scheme()
	if (scheme == "http" && t.Port == 80) || (scheme == "https" && t.Port == 443) {
		return fmt.Sprintf("%s://%s%s", scheme, t.Host, path)
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, t.Host, t.Port, path)
}

func (t Target) String() string { return fmt.Sprintf("%s:%d", t.Host, t.Port) }

// RequestConfig is threaded explicitly through every probe; there is no
// package-level request state.
type RequestConfig struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	VerifyTLS bool
}

// DefaultRequestConfig matches the reference scan behavior: 5 second
// timeout per probe, TLS verification skipped.
func DefaultRequestConfig() RequestConfig {
	return RequestConfig{
		Timeout:   5 * time.Second,
		UserAgent: "sitescout/1.0",
	}
}

const maxBodyRead = 2 << 20 // 2 MB is plenty for login pages and robots files

// Client issues the fixed-path probes for one target at a time. Safe for
// concurrent use.
type Client struct {
	cfg  RequestConfig
	head *http.Client // reachability: no redirect following
	get  *http.Client // content probes: redirects followed
}

func NewClient(cfg RequestConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRequestConfig().Timeout
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS},
	}
	return &Client{
		cfg: cfg,
		head: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		get: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

// Reachability sends a header-only request to the target root. ok is false
// on any transport failure (timeout, refused connection, TLS or DNS error
// at connect time); such targets produce no report row at all.
func (c *Client) Reachability(ctx context.Context, t Target) (Banner, bool) {
	req, err := c.newRequest(ctx, http.MethodHead, t.URL(checks[Reachability].path))
	if err != nil {
		return Banner{}, false
	}
	resp, err := c.head.Do(req)
	if err != nil {
		return Banner{}, false
	}
	resp.Body.Close()

	server := resp.Header.Get("Server")
	if server == "" {
		server = "Unknown"
	}
	return Banner{Server: server, Status: resp.StatusCode}, true
}

// Fetch runs a content check against a target already proven reachable.
// Found requires status 200 and a case-insensitive marker hit; any other
// answered request is NotFound; a transport failure is NoResponse and
// never affects sibling checks.
func (c *Client) Fetch(ctx context.Context, t Target, check Check) Result {
	spec, ok := checks[check]
	if !ok || len(spec.markers) == 0 {
		return Result{Outcome: NoResponse}
	}

	req, err := c.newRequest(ctx, http.MethodGet, t.URL(spec.path))
	if err != nil {
		return Result{Outcome: NoResponse}
	}
	resp, err := c.get.Do(req)
	if err != nil {
		return Result{Outcome: NoResponse}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Outcome: NotFound, Status: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		// Answered, then died mid-body: the server never completed this
		// request, so it counts as no response.
		return Result{Outcome: NoResponse}
	}
	body := strings.ToLower(string(raw))
	for _, m := range spec.markers {
		if strings.Contains(body, m) {
			return Result{Outcome: Found, Status: resp.StatusCode}
		}
	}
	return Result{Outcome: NotFound, Status: resp.StatusCode}
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
