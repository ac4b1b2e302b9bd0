package sources_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/extract"
	"github.com/jonesrussell/jobcrawl/internal/fetch"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/normalize"
	"github.com/jonesrussell/jobcrawl/internal/quality"
	"github.com/jonesrussell/jobcrawl/internal/secrets"
	"github.com/jonesrussell/jobcrawl/internal/sources"
)

type stubExtractor struct {
	out *extract.Output
	in  extract.Input
}

func (s *stubExtractor) Extract(_ context.Context, in extract.Input) *extract.Output {
	s.in = in
	if s.out != nil {
		return s.out
	}
	return &extract.Output{}
}

func newProber(extractor extract.Extractor, resolver secrets.Resolver) *sources.Prober {
	log := logger.NewNoOp()
	return sources.NewProber(sources.ProberParams{
		HTTP: fetch.NewHTTPFetcher(&config.FetchConfig{
			UserAgent:  "JobCrawlTest/1.0",
			MaxRetries: -1,
		}, log),
		Extractor:  extractor,
		Normalizer: normalize.New(nil, log),
		Scorer:     quality.NewScorer(),
		Secrets:    resolver,
		Log:        log,
	})
}

func candidates(n int) []*domain.ExtractionResult {
	out := make([]*domain.ExtractionResult, 0, n)
	for i := 0; i < n; i++ {
		cand := domain.NewExtractionResult("https://example.org/careers", "test")
		cand.SetField(domain.FieldTitle, "Water Engineer", domain.FieldSourceJSONLD, "")
		cand.SetField(domain.FieldApplicationURL, "https://example.org/jobs/1", domain.FieldSourceJSONLD, "")
		out = append(out, cand)
	}
	return out
}

func TestProbeReportsLiveFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A probe must not revalidate against stored validators.
		if got := r.Header.Get("If-None-Match"); got != "" {
			t.Errorf("probe sent If-None-Match %q", got)
		}
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Set-Cookie", "session=abc")
		_, _ = w.Write([]byte("<html>jobs</html>"))
	}))
	defer server.Close()

	stored := `"v1"`
	src := &domain.Source{
		ID:         "src-1",
		CareersURL: server.URL + "/careers",
		SourceType: domain.SourceTypeHTML,
		ETag:       &stored,
	}

	p := newProber(&stubExtractor{}, secrets.StaticResolver{})
	report := p.Probe(context.Background(), src)

	if !report.OK {
		t.Fatalf("probe not OK: %+v", report)
	}
	if report.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", report.Status)
	}
	if report.Size != len("<html>jobs</html>") {
		t.Errorf("size = %d", report.Size)
	}
	if report.ETag == nil || *report.ETag != `"v2"` {
		t.Errorf("etag = %v, want live value", report.ETag)
	}
	if report.Host != "127.0.0.1" {
		t.Errorf("host = %q", report.Host)
	}
	if _, leaked := report.HeadersSanitized["set-cookie"]; leaked {
		t.Error("set-cookie survived sanitization")
	}
	if got := report.HeadersSanitized["content-type"]; got != "text/html" {
		t.Errorf("content-type = %q", got)
	}
}

func TestProbeCarriesHTTPErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	src := &domain.Source{ID: "src-1", CareersURL: server.URL, SourceType: domain.SourceTypeHTML}
	p := newProber(&stubExtractor{}, secrets.StaticResolver{})
	report := p.Probe(context.Background(), src)

	if report.OK {
		t.Fatal("404 probe reported OK")
	}
	if report.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", report.Status)
	}
	if report.Error == "" {
		t.Error("error missing from failed probe")
	}
}

func TestProbeMissingSecretsBlockFetch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("probe fetched despite missing secrets")
	}))
	defer server.Close()

	hint := `{"v":1,"base_url":"` + server.URL + `","path":"/v2/postings",` +
		`"auth":{"Authorization":"SECRET:RELIEF_TOKEN"},"map":{"title":"title","apply_url":"url"}}`
	src := &domain.Source{
		ID:         "src-1",
		CareersURL: server.URL,
		SourceType: domain.SourceTypeAPI,
		ParserHint: &hint,
	}

	p := newProber(&stubExtractor{}, secrets.StaticResolver{})
	report := p.Probe(context.Background(), src)

	if report.OK {
		t.Fatal("probe reported OK with unresolvable auth")
	}
	if len(report.MissingSecrets) != 1 || report.MissingSecrets[0] != "RELIEF_TOKEN" {
		t.Errorf("missing_secrets = %v, want [RELIEF_TOKEN]", report.MissingSecrets)
	}
}

func TestProbeSurfacesBadHint(t *testing.T) {
	t.Parallel()

	hint := `{"v":2}`
	src := &domain.Source{
		ID:         "src-1",
		CareersURL: "https://example.org/careers",
		SourceType: domain.SourceTypeAPI,
		ParserHint: &hint,
	}

	p := newProber(&stubExtractor{}, secrets.StaticResolver{})
	report := p.Probe(context.Background(), src)

	if report.OK {
		t.Fatal("probe reported OK with an invalid hint")
	}
	if !strings.Contains(report.Error, "parser_hint") {
		t.Errorf("error = %q, want parser_hint mention", report.Error)
	}
}

func TestSimulateExtractSamplesFirstThree(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>listing</html>"))
	}))
	defer server.Close()

	extractor := &stubExtractor{out: &extract.Output{Candidates: candidates(5)}}
	src := &domain.Source{ID: "src-1", CareersURL: server.URL, SourceType: domain.SourceTypeHTML}

	p := newProber(extractor, secrets.StaticResolver{})
	report := p.SimulateExtract(context.Background(), src)

	if !report.OK {
		t.Fatalf("simulation failed: %+v", report)
	}
	if report.Count != 5 {
		t.Errorf("count = %d, want 5", report.Count)
	}
	if len(report.Sample) != 3 {
		t.Fatalf("sample = %d jobs, want 3", len(report.Sample))
	}
	job := report.Sample[0]
	if job.Title != "Water Engineer" {
		t.Errorf("sample title = %q", job.Title)
	}
	if job.QualityGrade == "" {
		t.Error("sample job not scored")
	}
	if string(extractor.in.Body) != "<html>listing</html>" {
		t.Errorf("extractor saw body %q", extractor.in.Body)
	}
}

func TestSimulateExtractCategorizesFetchError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	src := &domain.Source{ID: "src-1", CareersURL: server.URL, SourceType: domain.SourceTypeHTML}
	p := newProber(&stubExtractor{}, secrets.StaticResolver{})
	report := p.SimulateExtract(context.Background(), src)

	if report.OK {
		t.Fatal("simulation reported OK on a 500")
	}
	if report.ErrorCategory != string(domain.ErrFetchHTTP5xx) {
		t.Errorf("error_category = %q, want %s", report.ErrorCategory, domain.ErrFetchHTTP5xx)
	}
}
