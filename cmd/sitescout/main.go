// sitescout probes a portfolio of domains for CMS login surfaces,
// crawler-policy files and server banners, grouped by resolved address.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/jmreyn/sitescout/internal/logutil"
	"github.com/jmreyn/sitescout/internal/probe"
	"github.com/jmreyn/sitescout/internal/report"
	"github.com/jmreyn/sitescout/internal/scan"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] [domain ...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Fingerprints web hosts: WordPress login surface, robots.txt, server banner.\n")
		fmt.Fprintf(os.Stderr, "Results are grouped by resolved IP address.\n\nOptions:\n")
		flag.PrintDefaults()
	}

	domainFlag := flag.String("domain", "", "Target domains (comma-separated). Positional arguments work too.")
	targetsFile := flag.String("targets-file", "", "File with one domain per line")
	wpFlag := flag.Bool("wp", false, "Probe /wp-login.php for a WordPress login surface")
	robotsFlag := flag.Bool("robots", false, "Probe /robots.txt for a crawler policy")
	bannerOnly := flag.Bool("banner-only", false, "Permit a scan with no content checks; rows carry status and banner only")
	portsFlag := flag.String("p", "80,443", "Ports to probe, comma-separated, in scan order")
	dynFlag := flag.Bool("dyndns", false, "Detect dynamic DNS: 3 resolutions 1s apart, flags hosts whose address changes")
	foldFlag := flag.Bool("fold", false, "Lowercase + IDNA-fold names before dedup. DNS-correct, but Foo.com and foo.com stop being separate targets")
	whoisFlag := flag.Bool("whois", false, "Add a registrar summary per address group")
	concurrency := flag.Int("concurrency", 4, "Concurrent probe workers")
	rateLimit := flag.Int("rate-limit", 0, "Global probes per second. 0 = unlimited")
	timeout := flag.Int("timeout", 5, "Per-probe timeout in seconds")
	uaFlag := flag.String("ua", "sitescout/1.0", "User-Agent header sent on every probe")
	format := flag.String("format", "normal", "Output format: normal or json")
	output := flag.String("output", "", "Write the report to a file instead of stdout")
	progressFlag := flag.Bool("progress", false, "Show a progress bar on stderr")
	noColor := flag.Bool("no-color", false, "Disable color output")
	logPath := flag.String("log", "", "Append scan diagnostics to a log file")
	flag.Parse()

	logger := logutil.Discard()
	if *logPath != "" {
		var err error
		logger, err = logutil.ToFile(*logPath)
		if err != nil {
			fatalf("cannot open log file: %v", err)
		}
	}

	var checks []probe.Check
	if *wpFlag {
		checks = append(checks, probe.CmsLogin)
	}
	if *robotsFlag {
		checks = append(checks, probe.CrawlerPolicy)
	}
	if len(checks) == 0 && !*bannerOnly {
		fatalf("select at least one of -wp / -robots, or pass -banner-only for banner rows")
	}

	ports, err := parsePorts(*portsFlag)
	if err != nil {
		fatalf("invalid port list %q: %v", *portsFlag, err)
	}

	names := flag.Args()
	if *domainFlag != "" {
		for _, d := range strings.Split(*domainFlag, ",") {
			if d = strings.TrimSpace(d); d != "" {
				names = append(names, d)
			}
		}
	}
	if *targetsFile != "" {
		fromFile, err := readTargets(*targetsFile)
		if err != nil {
			fatalf("cannot read targets file: %v", err)
		}
		names = append(names, fromFile...)
	}
	if len(names) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	request := probe.DefaultRequestConfig()
	request.Timeout = time.Duration(*timeout) * time.Second
	request.UserAgent = *uaFlag

	cfg := scan.Config{
		Ports:         ports,
		Checks:        checks,
		DetectDynamic: *dynFlag,
		Fold:          *foldFlag,
		Whois:         *whoisFlag,
		Concurrency:   *concurrency,
		RateLimit:     *rateLimit,
		Request:       request,
	}
	if *progressFlag {
		cfg.Progress = newProgress()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info.Printf("scanning %d raw names, ports=%v, checks=%v, dyndns=%v", len(names), ports, checks, *dynFlag)
	start := time.Now()
	groups := scan.Run(ctx, names, cfg)
	logger.Info.Printf("scan finished in %s, %d groups", time.Since(start).Round(time.Millisecond), len(groups))

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fatalf("cannot create output file: %v", err)
		}
		defer f.Close()
		out = f
		color.NoColor = true
	}
	if *noColor {
		color.NoColor = true
	}

	if strings.EqualFold(*format, "json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(groups); err != nil {
			fatalf("encode results: %v", err)
		}
		return
	}
	report.Render(out, groups, report.Options{Checks: checks})
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "sitescout: "+format+"\n", args...)
	os.Exit(2)
}

// parsePorts validates the port list up front; a malformed spec aborts
// before any scanning starts.
func parsePorts(s string) ([]int, error) {
	var ports []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		if p < 1 || p > 65535 {
			return nil, fmt.Errorf("port %d out of range", p)
		}
		ports = append(ports, p)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no ports given")
	}
	return ports, nil
}

func readTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names, sc.Err()
}

// newProgress builds the scan progress callback. The bar is created on
// the first call because the target count is only known after
// normalization and resolution.
func newProgress() func(done, total int) {
	var mu sync.Mutex
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("probing"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	}
}
