package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
)

// Default fetch profile values, used when config leaves them zero.
const (
	DefaultHTMLTimeout = 30 * time.Second
	DefaultFeedTimeout = 15 * time.Second
	DefaultAPITimeout  = 20 * time.Second

	DefaultMaxHTMLBytes = 5 << 20  // 5 MiB
	DefaultMaxFeedBytes = 2 << 20  // 2 MiB
	DefaultMaxJSONBytes = 10 << 20 // 10 MiB

	DefaultMaxRetries   = 2
	DefaultMaxRedirects = 10

	statusOK          = 200
	statusNotModified = 304
)

// retryBackoff is the fixed wait before each retry attempt.
var retryBackoff = []time.Duration{time.Second, 4 * time.Second}

// acceptHeaders by request kind.
var acceptHeaders = map[Kind]string{
	KindPage: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	KindFeed: "application/rss+xml,application/atom+xml,application/xml;q=0.9,text/xml;q=0.8,*/*;q=0.5",
	KindAPI:  "application/json",
}

// profile is the timeout and size cap applied to one request kind.
type profile struct {
	timeout  time.Duration
	maxBytes int64
}

// HTTPFetcher fetches pages, feeds, and API responses with per-kind
// timeouts, size caps, conditional requests, and bounded retries.
type HTTPFetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	backoff    []time.Duration
	profiles   map[Kind]profile
	metrics    *metrics.Metrics
	log        logger.Interface
}

// NewHTTPFetcher builds a fetcher from config, filling zero values with
// the package defaults. MaxRetries < 0 disables retries, which probe
// requests use to report the first failure as-is.
func NewHTTPFetcher(cfg *config.FetchConfig, log logger.Interface) *HTTPFetcher {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "JobCrawl/1.0"
	}

	maxRetries := cfg.MaxRetries
	switch {
	case maxRetries < 0:
		maxRetries = 0
	case maxRetries == 0:
		maxRetries = DefaultMaxRetries
	}

	profiles := map[Kind]profile{
		KindPage: {
			timeout:  durationOr(cfg.HTMLTimeout, DefaultHTMLTimeout),
			maxBytes: bytesOr(cfg.MaxHTMLBytes, DefaultMaxHTMLBytes),
		},
		KindFeed: {
			timeout:  durationOr(cfg.FeedTimeout, DefaultFeedTimeout),
			maxBytes: bytesOr(cfg.MaxFeedBytes, DefaultMaxFeedBytes),
		},
		KindAPI: {
			timeout:  durationOr(cfg.APITimeout, DefaultAPITimeout),
			maxBytes: bytesOr(cfg.MaxJSONBytes, DefaultMaxJSONBytes),
		},
	}

	client := &http.Client{
		CheckRedirect: RedirectPolicy(DefaultMaxRedirects),
	}

	return &HTTPFetcher{
		client:     client,
		userAgent:  userAgent,
		maxRetries: maxRetries,
		backoff:    retryBackoff,
		profiles:   profiles,
		log:        log,
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func bytesOr(n, fallback int64) int64 {
	if n > 0 {
		return n
	}
	return fallback
}

// SetMetrics attaches fetch instrumentation. Call before the first
// Fetch; leaving it unset disables recording.
func (f *HTTPFetcher) SetMetrics(m *metrics.Metrics) {
	f.metrics = m
}

// Fetch performs the request, retrying retriable failures with the fixed
// backoff schedule. A 304 returns a Result with NotModified set and no
// body.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result, err := f.fetch(ctx, req)
	f.observe(start, result, err)
	return result, err
}

// observe records the completed fetch, retries included.
func (f *HTTPFetcher) observe(start time.Time, result *Result, err error) {
	if f.metrics == nil {
		return
	}
	f.metrics.FetchDurationSeconds.WithLabelValues(adapterHTTP).Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		f.metrics.FetchesTotal.WithLabelValues(adapterHTTP, outcomeError).Inc()
	case result.NotModified:
		f.metrics.NotModifiedTotal.Inc()
		f.metrics.FetchesTotal.WithLabelValues(adapterHTTP, outcomeNotModified).Inc()
	default:
		f.metrics.FetchesTotal.WithLabelValues(adapterHTTP, outcomeOK).Inc()
	}
}

// fetch runs the retry loop around fetchOnce.
func (f *HTTPFetcher) fetch(ctx context.Context, req Request) (*Result, error) {
	prof, ok := f.profiles[req.Kind]
	if !ok {
		prof = f.profiles[KindPage]
	}

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			wait := f.backoff[len(f.backoff)-1]
			if attempt-1 < len(f.backoff) {
				wait = f.backoff[attempt-1]
			}
			f.log.Debug("retrying fetch",
				"url", req.URL,
				"attempt", attempt,
				"wait", wait.String(),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, domain.NewPipelineError(domain.ErrFetchTimeout, false, err)
			}
		}

		result, err := f.fetchOnce(ctx, req, prof)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !domain.IsRetriable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// fetchOnce performs a single attempt.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, req Request, prof profile) (*Result, error) {
	reqCtx, cancel := context.WithTimeout(ctx, prof.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrFetchTCP, false, fmt.Errorf("building request: %w", err))
	}

	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", acceptHeaders[req.Kind])
	f.setConditionalHeaders(httpReq, req.Conditional)
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == statusNotModified:
		return &Result{
			Status:       resp.StatusCode,
			Headers:      resp.Header,
			FinalURL:     resp.Request.URL.String(),
			NotModified:  true,
			ETag:         headerPtr(resp.Header, "ETag"),
			LastModified: headerPtr(resp.Header, "Last-Modified"),
		}, nil

	case resp.StatusCode < statusOK || resp.StatusCode >= 300:
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, classifyStatus(resp.StatusCode)
	}

	// Read one byte past the cap to distinguish at-cap from over-cap.
	body, err := io.ReadAll(io.LimitReader(resp.Body, prof.maxBytes+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > prof.maxBytes {
		return nil, domain.NewPipelineError(
			domain.ErrFetchPayloadTooLarge,
			false,
			fmt.Errorf("response exceeds %d bytes", prof.maxBytes),
		)
	}

	return &Result{
		Body:         body,
		Status:       resp.StatusCode,
		Headers:      resp.Header,
		FinalURL:     resp.Request.URL.String(),
		ETag:         headerPtr(resp.Header, "ETag"),
		LastModified: headerPtr(resp.Header, "Last-Modified"),
	}, nil
}

// setConditionalHeaders adds If-None-Match / If-Modified-Since from the
// previous run's validators.
func (f *HTTPFetcher) setConditionalHeaders(httpReq *http.Request, cond Conditional) {
	if cond.ETag != nil && *cond.ETag != "" {
		httpReq.Header.Set("If-None-Match", *cond.ETag)
	}
	if cond.LastModified != nil && *cond.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", *cond.LastModified)
	}
}

// headerPtr returns a pointer to the header value, or nil when absent.
func headerPtr(headers http.Header, name string) *string {
	value := headers.Get(name)
	if value == "" {
		return nil
	}
	return &value
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
