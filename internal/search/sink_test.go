package search_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
	"github.com/jonesrussell/jobcrawl/internal/search"
)

// mockTransport scripts Elasticsearch responses per request.
type mockTransport struct {
	hits int32
	fn   func(n int32, req *http.Request) *http.Response
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&t.hits, 1)
	return t.fn(n, req), nil
}

func (t *mockTransport) Hits() int32 {
	return atomic.LoadInt32(&t.hits)
}

func esResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header: http.Header{
			"X-Elastic-Product": []string{"Elasticsearch"},
			"Content-Type":      []string{"application/json"},
		},
	}
}

func newTestSink(t *testing.T, transport http.RoundTripper, mutate func(*config.ElasticsearchConfig)) *search.Sink {
	t.Helper()

	client, err := es.NewClient(es.Config{Transport: transport})
	require.NoError(t, err)

	cfg := &config.ElasticsearchConfig{
		IndexName:    "jobs",
		MaxRetries:   5,
		QueueSize:    16,
		Timeout:      5 * time.Second,
		RetryBackoff: time.Millisecond,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return search.NewSink(client, cfg, logger.NewNoOp())
}

func indexedJob(id string) *domain.Job {
	return &domain.Job{
		ID:        id,
		SourceID:  "src-1",
		Title:     "Senior Data Analyst",
		ApplyURL:  "https://acme.example.org/careers/1",
		UpdatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSinkUpsertIndexesDocument(t *testing.T) {
	transport := &mockTransport{fn: func(_ int32, req *http.Request) *http.Response {
		if req.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", req.Method)
		}
		if req.URL.Path != "/jobs/_doc/job-1" {
			t.Errorf("path = %s, want /jobs/_doc/job-1", req.URL.Path)
		}
		body, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(body), `"title":"Senior Data Analyst"`) {
			t.Errorf("body missing title: %s", body)
		}
		return esResponse(http.StatusOK, `{"_index":"jobs","_id":"job-1","result":"updated"}`)
	}}
	sink := newTestSink(t, transport, nil)

	sink.Upsert(indexedJob("job-1"))
	sink.Close()

	assert.Equal(t, int32(1), transport.Hits())
	assert.Equal(t, int64(0), sink.Dropped())
}

func TestSinkRetriesUntilSuccess(t *testing.T) {
	transport := &mockTransport{fn: func(n int32, _ *http.Request) *http.Response {
		if n <= 2 {
			return esResponse(http.StatusServiceUnavailable, `{"error":"unavailable"}`)
		}
		return esResponse(http.StatusOK, `{"result":"updated"}`)
	}}
	sink := newTestSink(t, transport, nil)

	sink.Upsert(indexedJob("job-1"))

	require.Eventually(t, func() bool {
		return transport.Hits() == 3
	}, 2*time.Second, 5*time.Millisecond)

	sink.Close()
	assert.Equal(t, int64(0), sink.Dropped())
}

func TestSinkDropsAfterMaxRetries(t *testing.T) {
	transport := &mockTransport{fn: func(_ int32, _ *http.Request) *http.Response {
		return esResponse(http.StatusServiceUnavailable, `{"error":"unavailable"}`)
	}}
	sink := newTestSink(t, transport, func(cfg *config.ElasticsearchConfig) {
		cfg.MaxRetries = 2
	})

	sink.Upsert(indexedJob("job-1"))

	require.Eventually(t, func() bool {
		return sink.Dropped() == 1
	}, 2*time.Second, 5*time.Millisecond)

	sink.Close()
	assert.Equal(t, int32(3), transport.Hits(), "initial attempt plus two retries")
}

func TestSinkNonRetriableFailureDropsImmediately(t *testing.T) {
	transport := &mockTransport{fn: func(_ int32, _ *http.Request) *http.Response {
		return esResponse(http.StatusBadRequest, `{"error":{"type":"mapper_parsing_exception"}}`)
	}}
	sink := newTestSink(t, transport, nil)

	sink.Upsert(indexedJob("job-1"))

	require.Eventually(t, func() bool {
		return sink.Dropped() == 1
	}, 2*time.Second, 5*time.Millisecond)

	sink.Close()
	assert.Equal(t, int32(1), transport.Hits(), "mapping rejections must not retry")
}

func TestSinkDeleteTreatsMissingAsDone(t *testing.T) {
	transport := &mockTransport{fn: func(_ int32, req *http.Request) *http.Response {
		if req.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", req.Method)
		}
		if req.URL.Path != "/jobs/_doc/gone-1" {
			t.Errorf("path = %s", req.URL.Path)
		}
		return esResponse(http.StatusNotFound, `{"result":"not_found"}`)
	}}
	sink := newTestSink(t, transport, nil)

	sink.Delete("gone-1")
	sink.Close()

	assert.Equal(t, int32(1), transport.Hits())
	assert.Equal(t, int64(0), sink.Dropped(), "deleting an absent document is success")
}

func TestSinkQueueFullDrops(t *testing.T) {
	entered := make(chan struct{})
	gate := make(chan struct{})
	transport := &mockTransport{fn: func(n int32, _ *http.Request) *http.Response {
		if n == 1 {
			close(entered)
		}
		<-gate
		return esResponse(http.StatusOK, `{"result":"updated"}`)
	}}
	sink := newTestSink(t, transport, func(cfg *config.ElasticsearchConfig) {
		cfg.QueueSize = 1
	})

	// First op occupies the worker, second fills the queue, third has
	// nowhere to go.
	sink.Upsert(indexedJob("job-1"))
	<-entered
	sink.Upsert(indexedJob("job-2"))
	sink.Upsert(indexedJob("job-3"))

	assert.Equal(t, int64(1), sink.Dropped())

	close(gate)
	sink.Close()
	assert.Equal(t, int32(2), transport.Hits())
}

func TestSinkClosedDrops(t *testing.T) {
	transport := &mockTransport{fn: func(_ int32, _ *http.Request) *http.Response {
		return esResponse(http.StatusOK, `{"result":"updated"}`)
	}}
	sink := newTestSink(t, transport, nil)
	sink.Close()

	sink.Upsert(indexedJob("job-1"))

	assert.Equal(t, int64(1), sink.Dropped())
	assert.Equal(t, int32(0), transport.Hits())
}

func TestSinkRecordsDeliveryMetrics(t *testing.T) {
	transport := &mockTransport{fn: func(_ int32, req *http.Request) *http.Response {
		if req.Method == http.MethodDelete {
			return esResponse(http.StatusOK, `{"result":"deleted"}`)
		}
		return esResponse(http.StatusOK, `{"result":"updated"}`)
	}}
	sink := newTestSink(t, transport, nil)
	m := metrics.New(prometheus.NewRegistry())
	sink.SetMetrics(m)

	sink.Upsert(indexedJob("job-1"))
	sink.Delete("job-2")
	sink.Close()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.SinkDeliveredTotal.WithLabelValues("index")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SinkDeliveredTotal.WithLabelValues("delete")))

	// Operations after Close land in the drop counter, not the queue.
	sink.Upsert(indexedJob("job-3"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SinkDroppedTotal))
}

func TestSinkGetDocument(t *testing.T) {
	transport := &mockTransport{fn: func(_ int32, req *http.Request) *http.Response {
		if req.Method != http.MethodGet || req.URL.Path != "/jobs/_doc/job-9" {
			t.Errorf("request = %s %s", req.Method, req.URL.Path)
		}
		return esResponse(http.StatusOK, `{"_id":"job-9","_source":{`+
			`"id":"job-9","source_id":"src-1","title":"Field Officer",`+
			`"is_remote":true,"quality_score":0.85,"quality_grade":"high"}}`)
	}}
	sink := newTestSink(t, transport, nil)
	defer sink.Close()

	doc, err := sink.GetDocument(context.Background(), "job-9")
	require.NoError(t, err)

	assert.Equal(t, "job-9", doc.ID)
	assert.Equal(t, "Field Officer", doc.Title)
	assert.True(t, doc.IsRemote)
	assert.InEpsilon(t, 0.85, doc.QualityScore, 1e-9)
	assert.Equal(t, "high", doc.QualityGrade)
}

func TestSinkEnsureIndexCreatesWhenMissing(t *testing.T) {
	transport := &mockTransport{fn: func(n int32, req *http.Request) *http.Response {
		if n == 1 {
			if req.Method != http.MethodHead || req.URL.Path != "/jobs" {
				t.Errorf("first request = %s %s, want HEAD /jobs", req.Method, req.URL.Path)
			}
			return esResponse(http.StatusNotFound, "")
		}
		if req.Method != http.MethodPut || req.URL.Path != "/jobs" {
			t.Errorf("second request = %s %s, want PUT /jobs", req.Method, req.URL.Path)
		}
		body, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(body), `"mappings"`) {
			t.Errorf("create body missing mappings: %s", body)
		}
		return esResponse(http.StatusOK, `{"acknowledged":true}`)
	}}
	sink := newTestSink(t, transport, nil)
	defer sink.Close()

	require.NoError(t, sink.EnsureIndex(context.Background()))
	assert.Equal(t, int32(2), transport.Hits())
}

func TestSinkEnsureIndexSkipsExisting(t *testing.T) {
	transport := &mockTransport{fn: func(_ int32, _ *http.Request) *http.Response {
		return esResponse(http.StatusOK, "")
	}}
	sink := newTestSink(t, transport, nil)
	defer sink.Close()

	require.NoError(t, sink.EnsureIndex(context.Background()))
	assert.Equal(t, int32(1), transport.Hits())
}
