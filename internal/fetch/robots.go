package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

const (
	// robotsCacheTTL bounds how long parsed rules are reused per host.
	robotsCacheTTL = 24 * time.Hour

	robotsPath = "/robots.txt"

	// maxRobotsBytes caps how much of a robots.txt response is read.
	maxRobotsBytes = 512 * 1024
)

// RobotsGate answers whether a URL may be fetched under the host's
// robots.txt, caching parsed rules per host. A missing, unreachable, or
// unparseable robots.txt allows everything; sources that set
// ignore_robots skip the gate at the call site.
type RobotsGate struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration

	mu    sync.RWMutex
	hosts map[string]*hostRules
}

type hostRules struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
	allowAll  bool
}

// NewRobotsGate builds a gate sharing the given client.
func NewRobotsGate(client *http.Client, userAgent string) *RobotsGate {
	return &RobotsGate{
		client:    client,
		userAgent: userAgent,
		ttl:       robotsCacheTTL,
		hosts:     make(map[string]*hostRules),
	}
}

// Check returns nil when rawURL may be fetched, or a fetch.robots_denied
// error when the host's rules forbid it. Denials are permanent.
func (g *RobotsGate) Check(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return domain.NewPipelineError(domain.ErrFetchRobotsDenied, false,
			fmt.Errorf("robots: parse url: %w", err))
	}

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return domain.NewPipelineError(domain.ErrFetchRobotsDenied, false,
			fmt.Errorf("robots: empty host in url %q", rawURL))
	}

	rules := g.rulesFor(ctx, host, parsed.Scheme)
	if rules.allowAll {
		return nil
	}

	if rules.data.TestAgent(parsed.Path, g.userAgent) {
		return nil
	}

	return domain.NewPipelineError(domain.ErrFetchRobotsDenied, false,
		fmt.Errorf("robots: %s disallows %s", host, parsed.Path))
}

// CrawlDelay returns the host's crawl-delay directive, or zero when none
// is cached. Detail fetches honor this between hops.
func (g *RobotsGate) CrawlDelay(host string) time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rules, ok := g.hosts[strings.ToLower(host)]
	if !ok || rules.allowAll || rules.data == nil {
		return 0
	}

	group := rules.data.FindGroup(g.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

// rulesFor returns fresh cached rules or fetches them. Fetch and parse
// failures degrade to allow-all, which is still cached so a flaky host
// is not re-probed on every URL.
func (g *RobotsGate) rulesFor(ctx context.Context, host, scheme string) *hostRules {
	g.mu.RLock()
	rules, ok := g.hosts[host]
	g.mu.RUnlock()
	if ok && time.Since(rules.fetchedAt) <= g.ttl {
		return rules
	}

	rules = g.fetchRules(ctx, host, scheme)

	g.mu.Lock()
	g.hosts[host] = rules
	g.mu.Unlock()

	return rules
}

func (g *RobotsGate) fetchRules(ctx context.Context, host, scheme string) *hostRules {
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := scheme + "://" + host + robotsPath

	allowAll := &hostRules{fetchedAt: time.Now(), allowAll: true}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return allowAll
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return allowAll
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < statusOK || resp.StatusCode >= 300 {
		return allowAll
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return allowAll
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return allowAll
	}

	return &hostRules{data: data, fetchedAt: time.Now()}
}
