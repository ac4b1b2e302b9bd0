package enrich_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/enrich"
	"github.com/jonesrussell/jobcrawl/internal/extract"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

type stubRobots struct {
	deny   bool
	delay  time.Duration
	checks int
}

func (s *stubRobots) Check(_ context.Context, rawURL string) error {
	s.checks++
	if s.deny {
		return domain.NewPipelineError(domain.ErrFetchRobotsDenied, false,
			fmt.Errorf("robots: disallowed %s", rawURL))
	}
	return nil
}

func (s *stubRobots) CrawlDelay(string) time.Duration { return s.delay }

type stubDetailExtractor struct {
	fields map[domain.FieldName]string
	urls   []string
}

func (s *stubDetailExtractor) Extract(_ context.Context, in extract.Input) *extract.Output {
	s.urls = append(s.urls, in.URL)
	result := domain.NewExtractionResult(in.URL, "test")
	for name, value := range s.fields {
		result.SetField(name, value, domain.FieldSourceDOM, "")
	}
	return &extract.Output{Candidates: []*domain.ExtractionResult{result}}
}

func listingCandidate(t *testing.T, applyURL string, fields map[domain.FieldName]string) *domain.ExtractionResult {
	t.Helper()

	result := domain.NewExtractionResult("https://careers.example.org/jobs", "test")
	result.SetField(domain.FieldTitle, "Field Officer", domain.FieldSourceDOM, "")
	result.SetField(domain.FieldApplicationURL, applyURL, domain.FieldSourceDOM, "")
	for name, value := range fields {
		result.SetField(name, value, domain.FieldSourceDOM, "")
	}
	return result
}

func newDetailServer(t *testing.T, status int) (*httptest.Server, *int32) {
	t.Helper()

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		if status != http.StatusOK {
			http.Error(w, http.StatusText(status), status)
			return
		}
		_, _ = w.Write([]byte("<html><body><h1>Field Officer</h1><p>Duty station: Lagos</p></body></html>"))
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func testDetailConfig() enrich.DetailConfig {
	return enrich.DetailConfig{Delay: time.Millisecond}
}

func TestDetailEnrichFillsMissingFields(t *testing.T) {
	t.Parallel()

	server, hits := newDetailServer(t, http.StatusOK)
	extractor := &stubDetailExtractor{fields: map[domain.FieldName]string{
		domain.FieldTitle:    "Detail Title Must Not Win",
		domain.FieldLocation: "Lagos, Nigeria",
		domain.FieldDeadline: "2025-12-31",
	}}
	robots := &stubRobots{}
	detail := enrich.NewDetailEnricher(extractor, robots, testDetailConfig(), logger.NewNoOp())

	cand := listingCandidate(t, server.URL+"/jobs/1", nil)
	src := &domain.Source{ID: "src-1", SourceType: domain.SourceTypeHTML, DetailEnrich: true}

	fetched, errs := detail.Enrich(context.Background(), src, []*domain.ExtractionResult{cand})
	if fetched != 1 {
		t.Fatalf("fetched = %d, want 1", fetched)
	}
	if len(errs) != 0 {
		t.Fatalf("errs = %v, want none", errs)
	}

	if got := cand.Get(domain.FieldLocation); got != "Lagos, Nigeria" {
		t.Errorf("location = %q, want Lagos, Nigeria", got)
	}
	if got := cand.Get(domain.FieldDeadline); got != "2025-12-31" {
		t.Errorf("deadline = %q, want 2025-12-31", got)
	}
	if got := cand.Get(domain.FieldTitle); got != "Field Officer" {
		t.Errorf("title = %q, listing value must stand", got)
	}
	if robots.checks != 1 {
		t.Errorf("robots checks = %d, want 1", robots.checks)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
	if len(extractor.urls) != 1 {
		t.Errorf("extractor calls = %d, want 1", len(extractor.urls))
	}
}

func TestDetailEnrichSkipsCompleteCandidates(t *testing.T) {
	t.Parallel()

	server, hits := newDetailServer(t, http.StatusOK)
	extractor := &stubDetailExtractor{}
	detail := enrich.NewDetailEnricher(extractor, &stubRobots{}, testDetailConfig(), logger.NewNoOp())

	cand := listingCandidate(t, server.URL+"/jobs/1", map[domain.FieldName]string{
		domain.FieldLocation: "Nairobi, Kenya",
		domain.FieldDeadline: "2025-11-30",
	})
	src := &domain.Source{ID: "src-1", SourceType: domain.SourceTypeHTML}

	fetched, errs := detail.Enrich(context.Background(), src, []*domain.ExtractionResult{cand})
	if fetched != 0 {
		t.Errorf("fetched = %d, want 0", fetched)
	}
	if len(errs) != 0 {
		t.Errorf("errs = %v, want none", errs)
	}
	if got := atomic.LoadInt32(hits); got != 0 {
		t.Errorf("server hits = %d, want 0", got)
	}
}

func TestDetailEnrichHonorsFetchCap(t *testing.T) {
	t.Parallel()

	server, hits := newDetailServer(t, http.StatusOK)
	extractor := &stubDetailExtractor{fields: map[domain.FieldName]string{
		domain.FieldLocation: "Lagos, Nigeria",
		domain.FieldDeadline: "2025-12-31",
	}}
	cfg := testDetailConfig()
	cfg.MaxFetches = 2
	detail := enrich.NewDetailEnricher(extractor, &stubRobots{}, cfg, logger.NewNoOp())

	cands := []*domain.ExtractionResult{
		listingCandidate(t, server.URL+"/jobs/1", nil),
		listingCandidate(t, server.URL+"/jobs/2", nil),
		listingCandidate(t, server.URL+"/jobs/3", nil),
	}
	src := &domain.Source{ID: "src-1", SourceType: domain.SourceTypeHTML}

	fetched, _ := detail.Enrich(context.Background(), src, cands)
	if fetched != 2 {
		t.Errorf("fetched = %d, want 2", fetched)
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
	if cands[2].Has(domain.FieldLocation) {
		t.Error("third candidate enriched past the fetch cap")
	}
}

func TestDetailEnrichSharesFetchedPages(t *testing.T) {
	t.Parallel()

	server, hits := newDetailServer(t, http.StatusOK)
	extractor := &stubDetailExtractor{fields: map[domain.FieldName]string{
		domain.FieldLocation: "Lagos, Nigeria",
		domain.FieldDeadline: "2025-12-31",
	}}
	detail := enrich.NewDetailEnricher(extractor, &stubRobots{}, testDetailConfig(), logger.NewNoOp())

	shared := server.URL + "/jobs/1"
	cands := []*domain.ExtractionResult{
		listingCandidate(t, shared, nil),
		listingCandidate(t, shared, nil),
	}
	src := &domain.Source{ID: "src-1", SourceType: domain.SourceTypeHTML}

	fetched, errs := detail.Enrich(context.Background(), src, cands)
	if fetched != 1 {
		t.Errorf("fetched = %d, want 1", fetched)
	}
	if len(errs) != 0 {
		t.Errorf("errs = %v, want none", errs)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
	for i, cand := range cands {
		if !cand.Has(domain.FieldLocation) {
			t.Errorf("candidate %d missing location after shared fetch", i)
		}
	}
}

func TestDetailEnrichRespectsRobots(t *testing.T) {
	t.Parallel()

	server, hits := newDetailServer(t, http.StatusOK)
	robots := &stubRobots{deny: true}
	detail := enrich.NewDetailEnricher(&stubDetailExtractor{}, robots, testDetailConfig(), logger.NewNoOp())

	cand := listingCandidate(t, server.URL+"/jobs/1", nil)
	src := &domain.Source{ID: "src-1", SourceType: domain.SourceTypeHTML}

	fetched, errs := detail.Enrich(context.Background(), src, []*domain.ExtractionResult{cand})
	if fetched != 0 {
		t.Errorf("fetched = %d, want 0", fetched)
	}
	if len(errs) != 1 || domain.KindOf(errs[0]) != domain.ErrFetchRobotsDenied {
		t.Errorf("errs = %v, want one fetch.robots_denied", errs)
	}
	if got := atomic.LoadInt32(hits); got != 0 {
		t.Errorf("server hits = %d, want 0", got)
	}
}

func TestDetailEnrichIgnoreRobotsFlag(t *testing.T) {
	t.Parallel()

	server, hits := newDetailServer(t, http.StatusOK)
	extractor := &stubDetailExtractor{fields: map[domain.FieldName]string{
		domain.FieldLocation: "Lagos, Nigeria",
	}}
	robots := &stubRobots{deny: true}
	detail := enrich.NewDetailEnricher(extractor, robots, testDetailConfig(), logger.NewNoOp())

	cand := listingCandidate(t, server.URL+"/jobs/1", nil)
	src := &domain.Source{ID: "src-1", SourceType: domain.SourceTypeHTML, IgnoreRobots: true}

	fetched, errs := detail.Enrich(context.Background(), src, []*domain.ExtractionResult{cand})
	if fetched != 1 {
		t.Errorf("fetched = %d, want 1", fetched)
	}
	if len(errs) != 0 {
		t.Errorf("errs = %v, want none", errs)
	}
	if robots.checks != 0 {
		t.Errorf("robots checks = %d, want 0 for ignore_robots source", robots.checks)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestDetailEnrichSkipsUnfetchableURLs(t *testing.T) {
	t.Parallel()

	extractor := &stubDetailExtractor{}
	detail := enrich.NewDetailEnricher(extractor, &stubRobots{}, testDetailConfig(), logger.NewNoOp())
	src := &domain.Source{ID: "src-1", SourceType: domain.SourceTypeHTML}

	tests := []struct {
		applyURL string
	}{
		{"mailto:hr@example.org"},
		{"javascript:void(0)"},
		{"ftp://example.org/jobs"},
	}

	for _, tt := range tests {
		cand := listingCandidate(t, tt.applyURL, nil)
		fetched, errs := detail.Enrich(context.Background(), src, []*domain.ExtractionResult{cand})
		if fetched != 0 {
			t.Errorf("Enrich(%q): fetched = %d, want 0", tt.applyURL, fetched)
		}
		if len(errs) != 0 {
			t.Errorf("Enrich(%q): errs = %v, want none", tt.applyURL, errs)
		}
	}

	if len(extractor.urls) != 0 {
		t.Errorf("extractor calls = %d, want 0", len(extractor.urls))
	}
}

func TestDetailEnrichRecordsFetchErrors(t *testing.T) {
	t.Parallel()

	server, hits := newDetailServer(t, http.StatusNotFound)
	detail := enrich.NewDetailEnricher(&stubDetailExtractor{}, &stubRobots{}, testDetailConfig(), logger.NewNoOp())

	cand := listingCandidate(t, server.URL+"/jobs/1", nil)
	src := &domain.Source{ID: "src-1", SourceType: domain.SourceTypeHTML}

	fetched, errs := detail.Enrich(context.Background(), src, []*domain.ExtractionResult{cand})
	if fetched != 1 {
		t.Errorf("fetched = %d, want 1", fetched)
	}
	if len(errs) != 1 || domain.KindOf(errs[0]) != domain.ErrFetchHTTP4xx {
		t.Fatalf("errs = %v, want one fetch.http_4xx", errs)
	}
	if cand.Has(domain.FieldLocation) {
		t.Error("candidate enriched from a failed fetch")
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}
