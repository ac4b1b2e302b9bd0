package pipeline_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/extract"
	"github.com/jonesrussell/jobcrawl/internal/fetch"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/normalize"
	"github.com/jonesrussell/jobcrawl/internal/pipeline"
	"github.com/jonesrussell/jobcrawl/internal/quality"
	"github.com/jonesrussell/jobcrawl/internal/secrets"
	"github.com/jonesrussell/jobcrawl/internal/validate"
)

type stubFetcher struct {
	res   *fetch.Result
	err   error
	req   fetch.Request
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, req fetch.Request) (*fetch.Result, error) {
	f.calls++
	f.req = req
	return f.res, f.err
}

type stubStore struct {
	puts  map[string][]byte
	types map[string]string
	err   error
}

func newStubStore() *stubStore {
	return &stubStore{puts: map[string][]byte{}, types: map[string]string{}}
}

func (s *stubStore) Put(_ context.Context, key string, body []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.puts[key] = body
	s.types[key] = contentType
	return key, nil
}

func (s *stubStore) DeleteBefore(context.Context, time.Time) (int, error) { return 0, nil }

func (s *stubStore) Healthy(context.Context) error { return nil }

type stubExtractor struct {
	out   *extract.Output
	in    extract.Input
	calls int
}

func (e *stubExtractor) Extract(_ context.Context, in extract.Input) *extract.Output {
	e.calls++
	e.in = in
	return e.out
}

type stubJobs struct {
	stats *database.UpsertStats
	err   error
	batch []*domain.Job
	count int
	calls int
}

func (s *stubJobs) UpsertBatch(_ context.Context, jobs []*domain.Job) (*database.UpsertStats, error) {
	s.calls++
	s.batch = jobs
	if s.err != nil || s.stats != nil {
		return s.stats, s.err
	}
	stats := &database.UpsertStats{Inserted: len(jobs)}
	for _, job := range jobs {
		stats.InsertedIDs = append(stats.InsertedIDs, job.ID)
	}
	return stats, nil
}

func (s *stubJobs) List(context.Context, database.JobFilters) ([]*domain.Job, int, error) {
	return nil, s.count, nil
}

type stubPages struct {
	pages []*domain.RawPage
	err   error
}

func (s *stubPages) Create(_ context.Context, page *domain.RawPage) error {
	if s.err != nil {
		return s.err
	}
	s.pages = append(s.pages, page)
	return nil
}

type stubLogs struct {
	rows []*domain.ExtractionLog
}

func (s *stubLogs) Create(_ context.Context, row *domain.ExtractionLog) error {
	s.rows = append(s.rows, row)
	return nil
}

type stubFailures struct {
	rows []*domain.FailedInsert
}

func (s *stubFailures) CreateBatch(_ context.Context, rows []*domain.FailedInsert) error {
	s.rows = append(s.rows, rows...)
	return nil
}

type stubSink struct {
	jobs []*domain.Job
}

func (s *stubSink) Upsert(job *domain.Job) { s.jobs = append(s.jobs, job) }

type stubDetail struct {
	cands []*domain.ExtractionResult
	calls int
}

func (d *stubDetail) Enrich(_ context.Context, _ *domain.Source, cands []*domain.ExtractionResult) (int, []error) {
	d.calls++
	d.cands = cands
	return len(cands), nil
}

type stubRobots struct {
	err   error
	calls int
}

func (r *stubRobots) Check(context.Context, string) error {
	r.calls++
	return r.err
}

type harness struct {
	http      *stubFetcher
	store     *stubStore
	extractor *stubExtractor
	jobs      *stubJobs
	pages     *stubPages
	logs      *stubLogs
	failures  *stubFailures
	sink      *stubSink
	runner    *pipeline.Runner
}

func newHarness(mutate func(*pipeline.Params)) *harness {
	h := &harness{
		http:      &stubFetcher{res: okResult("<html><body>jobs</body></html>")},
		store:     newStubStore(),
		extractor: &stubExtractor{out: &extract.Output{}},
		jobs:      &stubJobs{},
		pages:     &stubPages{},
		logs:      &stubLogs{},
		failures:  &stubFailures{},
		sink:      &stubSink{},
	}
	log := logger.NewNoOp()
	p := pipeline.Params{
		HTTP:       h.http,
		Store:      h.store,
		Extractor:  h.extractor,
		Normalizer: normalize.New(nil, log),
		Scorer:     quality.NewScorer(),
		Validator:  validate.New(log),
		Sink:       h.sink,
		Jobs:       h.jobs,
		RawPages:   h.pages,
		Logs:       h.logs,
		Failures:   h.failures,
		Secrets:    secrets.StaticResolver{},
		Log:        log,
	}
	if mutate != nil {
		mutate(&p)
	}
	h.runner = pipeline.New(p)
	return h
}

func htmlSource() *domain.Source {
	return &domain.Source{
		ID:         "src-1",
		Name:       "Relief Careers",
		SourceType: domain.SourceTypeHTML,
		CareersURL: "https://example.org/careers",
	}
}

func okResult(body string) *fetch.Result {
	headers := http.Header{}
	headers.Set("Content-Type", "text/html; charset=utf-8")
	headers.Set("Set-Cookie", "session=abc123")
	etag := `W/"abc"`
	return &fetch.Result{
		Body:     []byte(body),
		Status:   http.StatusOK,
		Headers:  headers,
		FinalURL: "https://example.org/careers",
		ETag:     &etag,
	}
}

func candidate(title, applyURL string) *domain.ExtractionResult {
	res := domain.NewExtractionResult("https://example.org/careers", "test")
	res.SetField(domain.FieldTitle, title, domain.FieldSourceJSONLD, "")
	res.SetField(domain.FieldApplicationURL, applyURL, domain.FieldSourceJSONLD, "")
	return res
}

func candidates(results ...*domain.ExtractionResult) *extract.Output {
	return &extract.Output{Candidates: results}
}

func strPtr(s string) *string { return &s }

func TestRunCommitsExtractedJobs(t *testing.T) {
	t.Parallel()

	h := newHarness(func(p *pipeline.Params) {})
	h.extractor.out = candidates(
		candidate("Field Coordinator", "https://example.org/jobs/1"),
		candidate("Logistics Officer", "https://example.org/jobs/2"),
	)

	src := htmlSource()
	src.ETag = strPtr(`W/"old"`)
	src.LastModified = strPtr("Mon, 02 Jan 2006 15:04:05 GMT")

	res, err := h.runner.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Report.Status != domain.RunStatusOK {
		t.Errorf("status = %q, want OK", res.Report.Status)
	}
	if res.Report.Found != 2 || res.Report.Inserted != 2 {
		t.Errorf("found/inserted = %d/%d, want 2/2", res.Report.Found, res.Report.Inserted)
	}

	if h.http.req.Conditional.ETag == nil || *h.http.req.Conditional.ETag != `W/"old"` {
		t.Errorf("conditional etag not sent: %+v", h.http.req.Conditional)
	}
	if h.http.req.Kind != fetch.KindPage {
		t.Errorf("kind = %q, want page", h.http.req.Kind)
	}

	if !res.SetConditional {
		t.Error("SetConditional = false, want true after a fresh body")
	}
	if res.ETag == nil || *res.ETag != `W/"abc"` {
		t.Errorf("result etag = %v, want W/\"abc\"", res.ETag)
	}

	if len(h.store.puts) != 1 {
		t.Fatalf("blob count = %d, want 1", len(h.store.puts))
	}
	for key := range h.store.puts {
		if !strings.HasSuffix(key, ".html") {
			t.Errorf("blob key = %q, want .html suffix", key)
		}
	}

	if len(h.pages.pages) != 1 {
		t.Fatalf("raw page rows = %d, want 1", len(h.pages.pages))
	}
	page := h.pages.pages[0]
	if page.ContentHash == "" || page.ContentLength == 0 {
		t.Errorf("raw page missing hash or length: %+v", page)
	}
	if _, leaked := page.HTTPHeaders["set-cookie"]; leaked {
		t.Error("set-cookie survived sanitization")
	}
	if page.HTTPHeaders["content-type"] != "text/html; charset=utf-8" {
		t.Errorf("content-type not kept: %v", page.HTTPHeaders)
	}

	if len(h.logs.rows) != 1 {
		t.Fatalf("extraction log rows = %d, want 1", len(h.logs.rows))
	}
	row := h.logs.rows[0]
	if row.ID == "" || row.SourceID != "src-1" {
		t.Errorf("log row identity wrong: %+v", row)
	}
	if row.RawPageID == nil {
		t.Error("log row not keyed to raw page")
	}
	if row.Status != domain.RunStatusOK || row.JobsFound != 2 || row.JobsInserted != 2 {
		t.Errorf("log row counters wrong: %+v", row)
	}

	if len(h.sink.jobs) != 2 {
		t.Errorf("sink received %d jobs, want 2", len(h.sink.jobs))
	}
	for _, job := range h.jobs.batch {
		if job.ID == "" {
			t.Error("job committed without an id")
		}
	}
}

func TestRunNotModifiedShortCircuit(t *testing.T) {
	t.Parallel()

	etag := `W/"abc"`
	h := newHarness(nil)
	h.http.res = &fetch.Result{
		Status:      http.StatusNotModified,
		Headers:     http.Header{"Etag": []string{etag}},
		NotModified: true,
		ETag:        &etag,
	}
	h.jobs.count = 7

	res, err := h.runner.Run(context.Background(), htmlSource())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Report.Status != domain.RunStatusOK {
		t.Errorf("status = %q, want OK", res.Report.Status)
	}
	if res.Report.Skipped != 7 {
		t.Errorf("skipped = %d, want 7 prior jobs", res.Report.Skipped)
	}
	if res.SetConditional {
		t.Error("SetConditional = true on a 304, want stored validators untouched")
	}
	if h.extractor.calls != 0 {
		t.Errorf("extractor ran %d times on a 304", h.extractor.calls)
	}
	if len(h.store.puts) != 0 {
		t.Errorf("304 stored %d blobs, want none", len(h.store.puts))
	}

	if len(h.pages.pages) != 1 {
		t.Fatalf("raw page rows = %d, want 1", len(h.pages.pages))
	}
	page := h.pages.pages[0]
	if !page.NotModified || page.ContentLength != 0 || page.StoragePath != "" {
		t.Errorf("304 sidecar wrong: %+v", page)
	}

	row := h.logs.rows[0]
	if row.Reason == nil || *row.Reason != "not modified" {
		t.Errorf("reason = %v, want not modified", row.Reason)
	}
	if row.JobsSkipped != 7 {
		t.Errorf("log skipped = %d, want 7", row.JobsSkipped)
	}
}

func TestRunEmptyWhenNoCandidates(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	h.extractor.out = &extract.Output{
		StageErrors: []extract.StageError{
			{Stage: "jsonld", Err: errors.New("no JobPosting nodes")},
		},
	}

	res, err := h.runner.Run(context.Background(), htmlSource())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Report.Status != domain.RunStatusEmpty {
		t.Errorf("status = %q, want EMPTY", res.Report.Status)
	}
	if h.jobs.calls != 0 {
		t.Error("upsert called for an empty run")
	}

	row := h.logs.rows[0]
	if row.Reason == nil || !strings.Contains(*row.Reason, "jsonld: no JobPosting nodes") {
		t.Errorf("reason = %v, want stage detail", row.Reason)
	}
}

func TestRunValidationFailuresGoPartial(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	h.extractor.out = candidates(
		candidate("", "https://example.org/jobs/1"),
		candidate("", "https://example.org/jobs/2"),
	)

	res, err := h.runner.Run(context.Background(), htmlSource())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Report.Status != domain.RunStatusPartial {
		t.Errorf("status = %q, want PARTIAL", res.Report.Status)
	}
	if res.Report.Failed != 2 {
		t.Errorf("failed = %d, want 2", res.Report.Failed)
	}
	if h.jobs.calls != 0 {
		t.Error("upsert called with zero valid jobs")
	}

	if len(h.failures.rows) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(h.failures.rows))
	}
	for _, row := range h.failures.rows {
		if row.Operation != domain.OperationValidation {
			t.Errorf("operation = %q, want validation", row.Operation)
		}
		if row.Error != "Missing required field: title" {
			t.Errorf("error = %q, want the title hard error", row.Error)
		}
		if row.Payload[domain.ValidationErrorKey] != "Missing required field: title" {
			t.Errorf("payload validation_error = %v", row.Payload[domain.ValidationErrorKey])
		}
		if row.SourceID != "src-1" || row.ID == "" {
			t.Errorf("ledger row identity wrong: %+v", row)
		}
	}
}

func TestRunUpsertErrorIsDBFail(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	h.extractor.out = candidates(candidate("Field Coordinator", "https://example.org/jobs/1"))
	h.jobs.err = errors.New("connection refused")

	res, err := h.runner.Run(context.Background(), htmlSource())
	if err == nil {
		t.Fatal("Run() error = nil, want upsert failure")
	}
	if kind := domain.KindOf(err); kind != domain.ErrUpsertSQLError {
		t.Errorf("kind = %q, want upsert.sql_error", kind)
	}

	if res.Report.Status != domain.RunStatusDBFail {
		t.Errorf("status = %q, want DB_FAIL", res.Report.Status)
	}
	if len(h.logs.rows) != 1 || h.logs.rows[0].Status != domain.RunStatusDBFail {
		t.Errorf("extraction log not written as DB_FAIL: %+v", h.logs.rows)
	}
	if len(h.sink.jobs) != 0 {
		t.Errorf("sink received %d jobs after a failed upsert", len(h.sink.jobs))
	}
}

func TestRunFetchErrorWritesLog(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	h.http.res = nil
	h.http.err = domain.NewPipelineError(domain.ErrFetchHTTP5xx, true, errors.New("status 503"))

	res, err := h.runner.Run(context.Background(), htmlSource())
	if err == nil {
		t.Fatal("Run() error = nil, want fetch failure")
	}
	if kind := domain.KindOf(err); kind != domain.ErrFetchHTTP5xx {
		t.Errorf("kind = %q, want fetch.http_5xx", kind)
	}

	if res.Report.Status != domain.RunStatusEmpty {
		t.Errorf("status = %q, want EMPTY", res.Report.Status)
	}
	if len(h.store.puts) != 0 || len(h.pages.pages) != 0 {
		t.Error("failed fetch still archived something")
	}

	if len(h.logs.rows) != 1 {
		t.Fatalf("extraction log rows = %d, want exactly 1", len(h.logs.rows))
	}
	row := h.logs.rows[0]
	if row.RawPageID != nil {
		t.Error("log row keyed to a raw page that does not exist")
	}
	if row.Reason == nil || !strings.Contains(*row.Reason, "503") {
		t.Errorf("reason = %v, want the fetch error", row.Reason)
	}
}

func TestRunRenderFailureArchivesScreenshot(t *testing.T) {
	t.Parallel()

	browser := &stubFetcher{
		res: &fetch.Result{Screenshot: []byte("png-bytes")},
		err: domain.NewPipelineError(domain.ErrFetchRenderFailure, true, errors.New("network never settled")),
	}
	h := newHarness(func(p *pipeline.Params) {
		p.Browser = browser
	})

	src := htmlSource()
	src.RenderJS = true

	_, err := h.runner.Run(context.Background(), src)
	if err == nil {
		t.Fatal("Run() error = nil, want render failure")
	}
	if kind := domain.KindOf(err); kind != domain.ErrFetchRenderFailure {
		t.Errorf("kind = %q, want fetch.render_failure", kind)
	}

	if h.http.calls != 0 {
		t.Error("plain fetcher used for a render_js source")
	}
	if len(h.store.puts) != 1 {
		t.Fatalf("blob count = %d, want the screenshot", len(h.store.puts))
	}
	for key, body := range h.store.puts {
		if !strings.HasSuffix(key, ".png") {
			t.Errorf("screenshot key = %q, want .png suffix", key)
		}
		if string(body) != "png-bytes" {
			t.Errorf("screenshot body = %q", body)
		}
	}
}

func TestRunAPISourceComposesHintRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(func(p *pipeline.Params) {
		p.Secrets = secrets.StaticResolver{"RELIEF_TOKEN": "tok-123"}
	})
	h.http.res = &fetch.Result{
		Body:    []byte(`{"jobs":[]}`),
		Status:  http.StatusOK,
		Headers: http.Header{},
	}

	src := htmlSource()
	src.SourceType = domain.SourceTypeAPI
	src.ParserHint = strPtr(`{"v":1,"base_url":"https://api.example.org/","path":"/v2/postings","auth":{"Authorization":"SECRET:RELIEF_TOKEN"},"map":{"title":"title","apply_url":"url"}}`)

	if _, err := h.runner.Run(context.Background(), src); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if h.http.req.URL != "https://api.example.org/v2/postings" {
		t.Errorf("url = %q, want joined base_url+path", h.http.req.URL)
	}
	if h.http.req.Kind != fetch.KindAPI {
		t.Errorf("kind = %q, want api", h.http.req.Kind)
	}
	if h.http.req.Headers["Authorization"] != "tok-123" {
		t.Errorf("auth header = %q, want resolved secret", h.http.req.Headers["Authorization"])
	}
}

func TestRunAPISourceMissingSecretBlocksFetch(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)

	src := htmlSource()
	src.SourceType = domain.SourceTypeAPI
	src.ParserHint = strPtr(`{"v":1,"base_url":"https://api.example.org","path":"/jobs","auth":{"X-Api-Key":"SECRET:MISSING"},"map":{"title":"t","apply_url":"u"}}`)

	_, err := h.runner.Run(context.Background(), src)
	if err == nil {
		t.Fatal("Run() error = nil, want unresolved secret")
	}
	if !strings.Contains(err.Error(), "X-Api-Key") {
		t.Errorf("error = %v, want the header name", err)
	}
	if strings.Contains(err.Error(), "tok") {
		t.Errorf("error leaked a secret value: %v", err)
	}
	if h.http.calls != 0 {
		t.Error("fetch attempted without resolved auth")
	}
	if len(h.logs.rows) != 1 {
		t.Errorf("extraction log rows = %d, want 1", len(h.logs.rows))
	}
}

func TestRunRobotsDenied(t *testing.T) {
	t.Parallel()

	robots := &stubRobots{
		err: domain.NewPipelineError(domain.ErrFetchRobotsDenied, false, errors.New("disallowed by robots.txt")),
	}
	h := newHarness(func(p *pipeline.Params) {
		p.Robots = robots
	})

	_, err := h.runner.Run(context.Background(), htmlSource())
	if err == nil {
		t.Fatal("Run() error = nil, want robots denial")
	}
	if kind := domain.KindOf(err); kind != domain.ErrFetchRobotsDenied {
		t.Errorf("kind = %q, want fetch.robots_denied", kind)
	}
	if h.http.calls != 0 {
		t.Error("fetch attempted after robots denial")
	}
	if len(h.logs.rows) != 1 {
		t.Errorf("extraction log rows = %d, want 1", len(h.logs.rows))
	}
}

func TestRunIgnoreRobotsSkipsGate(t *testing.T) {
	t.Parallel()

	robots := &stubRobots{
		err: domain.NewPipelineError(domain.ErrFetchRobotsDenied, false, errors.New("disallowed")),
	}
	h := newHarness(func(p *pipeline.Params) {
		p.Robots = robots
	})

	src := htmlSource()
	src.IgnoreRobots = true

	if _, err := h.runner.Run(context.Background(), src); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if robots.calls != 0 {
		t.Errorf("robots checked %d times for an ignore_robots source", robots.calls)
	}
	if h.http.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", h.http.calls)
	}
}

func TestRunCanceledBeforeExtraction(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.runner.Run(ctx, htmlSource())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	if h.extractor.calls != 0 {
		t.Error("extractor ran on a canceled context")
	}
	if res.Report.Status != domain.RunStatusEmpty {
		t.Errorf("status = %q, want EMPTY", res.Report.Status)
	}
	if len(h.logs.rows) != 1 {
		t.Errorf("extraction log rows = %d, want 1 even when canceled", len(h.logs.rows))
	}
}

func TestRunDetailPassRespectsFlag(t *testing.T) {
	t.Parallel()

	detail := &stubDetail{}
	h := newHarness(func(p *pipeline.Params) {
		p.Detail = detail
	})
	h.extractor.out = candidates(candidate("Field Coordinator", "https://example.org/jobs/1"))

	src := htmlSource()
	src.DetailEnrich = true
	if _, err := h.runner.Run(context.Background(), src); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if detail.calls != 1 || len(detail.cands) != 1 {
		t.Errorf("detail pass calls/candidates = %d/%d, want 1/1", detail.calls, len(detail.cands))
	}

	detail.calls = 0
	h2 := newHarness(func(p *pipeline.Params) {
		p.Detail = detail
	})
	h2.extractor.out = candidates(candidate("Field Coordinator", "https://example.org/jobs/1"))

	if _, err := h2.runner.Run(context.Background(), htmlSource()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if detail.calls != 0 {
		t.Error("detail pass ran without the source flag")
	}
}

func TestRunSkippedOnlyStillOK(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	h.extractor.out = candidates(
		candidate("Field Coordinator", "https://example.org/jobs/1"),
		candidate("Logistics Officer", "https://example.org/jobs/2"),
	)
	h.jobs.stats = &database.UpsertStats{Skipped: 2}

	res, err := h.runner.Run(context.Background(), htmlSource())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Report.Status != domain.RunStatusOK {
		t.Errorf("status = %q, want OK for an unchanged catalog", res.Report.Status)
	}
	if res.Report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", res.Report.Skipped)
	}
	if len(h.sink.jobs) != 0 {
		t.Errorf("sink received %d jobs with nothing committed", len(h.sink.jobs))
	}
}

func TestRunAllRowsFailedIsDBFail(t *testing.T) {
	t.Parallel()

	h := newHarness(nil)
	h.extractor.out = candidates(candidate("Field Coordinator", "https://example.org/jobs/1"))
	h.jobs.stats = &database.UpsertStats{
		Failed: 1,
		Failures: []database.UpsertFailure{
			{
				Job:       &domain.Job{Title: "Field Coordinator", ApplyURL: "https://example.org/jobs/1"},
				Operation: domain.OperationInsert,
				Err:       errors.New("value too long for column"),
			},
		},
	}

	res, err := h.runner.Run(context.Background(), htmlSource())
	if err == nil {
		t.Fatal("Run() error = nil, want all-rows failure")
	}
	if res.Report.Status != domain.RunStatusDBFail {
		t.Errorf("status = %q, want DB_FAIL", res.Report.Status)
	}
	if len(h.failures.rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(h.failures.rows))
	}
	if h.failures.rows[0].Operation != domain.OperationInsert {
		t.Errorf("operation = %q, want insert", h.failures.rows[0].Operation)
	}
}
