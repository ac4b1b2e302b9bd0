package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
)

// Browser rendering defaults, used when config leaves them zero.
const (
	DefaultRenderTimeout      = 30 * time.Second
	DefaultNetworkIdleWindow  = 500 * time.Millisecond
	DefaultNetworkIdleCeiling = 15 * time.Second
	DefaultBrowserPoolSize    = 2

	idlePollInterval = 50 * time.Millisecond

	// screenshotTimeout bounds the best-effort capture after a render
	// failure, so a hung tab cannot stall the run further.
	screenshotTimeout = 5 * time.Second
)

// BrowserFetcher renders JavaScript-heavy pages in headless Chrome and
// returns the post-render DOM. Renders are bounded by a pool of
// concurrent tabs sharing one browser process. When a render fails, the
// returned Result carries a screenshot of the tab alongside the error so
// the failure can be archived.
type BrowserFetcher struct {
	userAgent  string
	chromePath string
	timeout    time.Duration
	idleWindow time.Duration
	ceiling    time.Duration
	metrics    *metrics.Metrics
	log        logger.Interface

	slots chan struct{}

	mu        sync.Mutex
	allocCtx  context.Context
	allocStop context.CancelFunc
}

// NewBrowserFetcher builds the renderer from config. The browser process
// is started lazily on first fetch.
func NewBrowserFetcher(cfg *config.BrowserConfig, userAgent string, log logger.Interface) *BrowserFetcher {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultBrowserPoolSize
	}

	return &BrowserFetcher{
		userAgent:  userAgent,
		chromePath: cfg.ChromePath,
		timeout:    durationOr(cfg.RenderTimeout, DefaultRenderTimeout),
		idleWindow: durationOr(cfg.NetworkIdleWindow, DefaultNetworkIdleWindow),
		ceiling:    durationOr(cfg.NetworkIdleCeiling, DefaultNetworkIdleCeiling),
		log:        log,
		slots:      make(chan struct{}, poolSize),
	}
}

// SetMetrics attaches fetch instrumentation. Call before the first
// Fetch; leaving it unset disables recording.
func (b *BrowserFetcher) SetMetrics(m *metrics.Metrics) {
	b.metrics = m
}

// Fetch navigates to the URL, waits for the network to go idle (no
// in-flight requests for the idle window, bounded by the ceiling), and
// captures the rendered document. All failures are fetch.render_failure;
// on failure the Result, when non-nil, carries a debug screenshot.
func (b *BrowserFetcher) Fetch(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result, err := b.render(ctx, req)
	if b.metrics != nil {
		b.metrics.FetchDurationSeconds.WithLabelValues(adapterBrowser).Observe(time.Since(start).Seconds())
		outcome := outcomeOK
		if err != nil {
			outcome = outcomeError
		}
		b.metrics.FetchesTotal.WithLabelValues(adapterBrowser, outcome).Inc()
	}
	return result, err
}

// render performs one bounded navigation in a pooled tab.
func (b *BrowserFetcher) render(ctx context.Context, req Request) (*Result, error) {
	select {
	case b.slots <- struct{}{}:
		defer func() { <-b.slots }()
	case <-ctx.Done():
		return nil, domain.NewPipelineError(domain.ErrFetchRenderFailure, true, ctx.Err())
	}

	allocCtx, err := b.allocator()
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrFetchRenderFailure, true, err)
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	runCtx, cancelRun := context.WithTimeout(tabCtx, b.timeout)
	defer cancelRun()

	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, cancelRun)
	defer stop()

	tracker := newIdleTracker()
	chromedp.ListenTarget(runCtx, tracker.handle)

	var html string
	err = chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(req.URL),
		b.waitNetworkIdle(tracker),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		result := &Result{Screenshot: b.screenshot(tabCtx)}
		b.log.Warn("render failed",
			"url", req.URL,
			"error", err.Error(),
			"screenshot_bytes", len(result.Screenshot),
		)
		return result, domain.NewPipelineError(domain.ErrFetchRenderFailure, true,
			fmt.Errorf("render %s: %w", req.URL, err))
	}

	return &Result{
		Body:     []byte(html),
		Status:   statusOK,
		Headers:  http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		FinalURL: req.URL,
	}, nil
}

// allocator starts the shared browser process on first use.
func (b *BrowserFetcher) allocator() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allocCtx != nil {
		return b.allocCtx, nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(b.userAgent),
	)
	if b.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.chromePath))
	}

	b.allocCtx, b.allocStop = chromedp.NewExecAllocator(context.Background(), opts...)
	b.log.Info("browser allocator started", "pool_size", cap(b.slots))

	return b.allocCtx, nil
}

// Shutdown tears down the browser process. Safe to call when no render
// ever happened.
func (b *BrowserFetcher) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allocStop != nil {
		b.allocStop()
		b.allocCtx = nil
		b.allocStop = nil
	}
}

// waitNetworkIdle blocks until no requests have been in flight for the
// idle window, or until the ceiling passes, whichever comes first.
// Reaching the ceiling is not an error; the page is captured as-is.
func (b *BrowserFetcher) waitNetworkIdle(tracker *idleTracker) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ceiling := time.NewTimer(b.ceiling)
		defer ceiling.Stop()
		poll := time.NewTicker(idlePollInterval)
		defer poll.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ceiling.C:
				return nil
			case <-poll.C:
				if tracker.idleFor(b.idleWindow) {
					return nil
				}
			}
		}
	})
}

// screenshot captures the current tab, best-effort.
func (b *BrowserFetcher) screenshot(tabCtx context.Context) []byte {
	shotCtx, cancel := context.WithTimeout(tabCtx, screenshotTimeout)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil
	}
	return buf
}

// idleTracker counts in-flight network requests from DevTools events.
// Redirects re-announce the same request id, so membership is tracked by
// id rather than by a bare counter.
type idleTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	lastSeen time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight: make(map[network.RequestID]struct{}),
		lastSeen: time.Now(),
	}
}

func (t *idleTracker) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.mu.Lock()
		t.inflight[e.RequestID] = struct{}{}
		t.lastSeen = time.Now()
		t.mu.Unlock()
	case *network.EventLoadingFinished:
		t.finish(e.RequestID)
	case *network.EventLoadingFailed:
		t.finish(e.RequestID)
	}
}

func (t *idleTracker) finish(id network.RequestID) {
	t.mu.Lock()
	delete(t.inflight, id)
	t.lastSeen = time.Now()
	t.mu.Unlock()
}

// idleFor reports whether nothing has been in flight for at least d.
func (t *idleTracker) idleFor(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && time.Since(t.lastSeen) >= d
}
