package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/fetch"
)

func newTestGate() *fetch.RobotsGate {
	return fetch.NewRobotsGate(&http.Client{Timeout: 5 * time.Second}, "JobCrawlTest/1.0")
}

func robotsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRobotsGate_Allowed(t *testing.T) {
	t.Parallel()

	server := robotsServer(t, "User-agent: *\nDisallow: /private/\n")
	gate := newTestGate()

	if err := gate.Check(context.Background(), server.URL+"/careers/listing"); err != nil {
		t.Errorf("expected allowed, got %v", err)
	}
}

func TestRobotsGate_Denied(t *testing.T) {
	t.Parallel()

	server := robotsServer(t, "User-agent: *\nDisallow: /private/\n")
	gate := newTestGate()

	err := gate.Check(context.Background(), server.URL+"/private/roles")
	if err == nil {
		t.Fatal("expected denial for /private/roles")
	}

	if kind := domain.KindOf(err); kind != domain.ErrFetchRobotsDenied {
		t.Errorf("error kind = %q, want %q", kind, domain.ErrFetchRobotsDenied)
	}
	if domain.IsRetriable(err) {
		t.Error("robots denial should be permanent")
	}
}

func TestRobotsGate_MissingAllowsAll(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	gate := newTestGate()

	if err := gate.Check(context.Background(), server.URL+"/anything"); err != nil {
		t.Errorf("missing robots.txt should allow all, got %v", err)
	}
}

func TestRobotsGate_UnreachableAllowsAll(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	deadURL := server.URL
	server.Close()

	gate := newTestGate()

	if err := gate.Check(context.Background(), deadURL+"/page"); err != nil {
		t.Errorf("unreachable robots.txt should allow all, got %v", err)
	}
}

func TestRobotsGate_CachesPerHost(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
	}))
	defer server.Close()

	gate := newTestGate()

	for _, path := range []string{"/a", "/b", "/c"} {
		if err := gate.Check(context.Background(), server.URL+path); err != nil {
			t.Fatalf("check %s: %v", path, err)
		}
	}

	if got := requests.Load(); got != 1 {
		t.Errorf("expected 1 robots fetch for 3 checks, got %d", got)
	}
}

func TestRobotsGate_CrawlDelay(t *testing.T) {
	t.Parallel()

	server := robotsServer(t, "User-agent: *\nCrawl-delay: 3\nDisallow: /private/\n")
	gate := newTestGate()

	// Populate the cache.
	if err := gate.Check(context.Background(), server.URL+"/page"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	parsed, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}

	if got := gate.CrawlDelay(parsed.Host); got != 3*time.Second {
		t.Errorf("crawl delay = %v, want 3s", got)
	}
	if got := gate.CrawlDelay("never-seen.example.com"); got != 0 {
		t.Errorf("uncached host delay = %v, want 0", got)
	}
}

func TestRobotsGate_EmptyHost(t *testing.T) {
	t.Parallel()

	gate := newTestGate()

	err := gate.Check(context.Background(), "/relative/only")
	if err == nil {
		t.Fatal("expected error for URL without host")
	}
}
