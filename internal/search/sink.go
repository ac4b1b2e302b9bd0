package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/jobcrawl/internal/config"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/metrics"
)

const (
	defaultIndexName    = "jobs"
	defaultQueueSize    = 1024
	defaultMaxRetries   = 5
	defaultOpTimeout    = 30 * time.Second
	defaultRetryBackoff = time.Second
)

type opKind int

const (
	opUpsert opKind = iota
	opDelete
)

type op struct {
	kind  opKind
	docID string
	doc   *domain.SearchDocument
}

// Sink delivers job documents to the search index from behind a bounded
// queue. Producers never block and never see delivery errors: when the
// queue is full, delivery keeps failing, or the sink is closed, the
// operation is counted as dropped and the index catches up on a later
// run. Documents are keyed by job id, so redelivery is harmless.
type Sink struct {
	client     *es.Client
	index      string
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
	log        logger.Interface

	mu     sync.RWMutex
	queue  chan op
	closed bool

	quit    chan struct{}
	done    chan struct{}
	dropped atomic.Int64

	// metrics is atomic because the delivery worker is already running
	// when SetMetrics is called.
	metrics atomic.Pointer[metrics.Metrics]
}

// NewSink starts the delivery worker. Callers must Close the sink to
// flush queued operations on shutdown.
func NewSink(client *es.Client, cfg *config.ElasticsearchConfig, log logger.Interface) *Sink {
	index := defaultIndexName
	queueSize := defaultQueueSize
	maxRetries := defaultMaxRetries
	timeout := defaultOpTimeout
	retryBase := defaultRetryBackoff
	if cfg != nil {
		if cfg.IndexName != "" {
			index = cfg.IndexName
		}
		if cfg.QueueSize > 0 {
			queueSize = cfg.QueueSize
		}
		if cfg.MaxRetries > 0 {
			maxRetries = cfg.MaxRetries
		}
		if cfg.Timeout > 0 {
			timeout = cfg.Timeout
		}
		if cfg.RetryBackoff > 0 {
			retryBase = cfg.RetryBackoff
		}
	}

	s := &Sink{
		client:     client,
		index:      index,
		timeout:    timeout,
		maxRetries: maxRetries,
		retryBase:  retryBase,
		log:        log,
		queue:      make(chan op, queueSize),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.run()
	return s
}

// Upsert queues a job document for indexing. The document is built here,
// so later mutations of the job never leak into the index write.
func (s *Sink) Upsert(job *domain.Job) {
	if job == nil || job.ID == "" {
		return
	}
	s.enqueue(op{kind: opUpsert, docID: job.ID, doc: job.ToSearchDocument()})
}

// Delete queues removal of a job document.
func (s *Sink) Delete(jobID string) {
	if jobID == "" {
		return
	}
	s.enqueue(op{kind: opDelete, docID: jobID})
}

// SetMetrics attaches queue and delivery instrumentation.
func (s *Sink) SetMetrics(m *metrics.Metrics) {
	s.metrics.Store(m)
}

// Dropped reports operations lost to a full queue, delivery failure, or
// shutdown.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// QueueDepth reports operations waiting for delivery.
func (s *Sink) QueueDepth() int {
	return len(s.queue)
}

// Close stops intake and drains queued operations. Backoff waits are
// abandoned during drain, so each remaining operation gets at most one
// delivery attempt and shutdown stays bounded.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.quit)
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *Sink) enqueue(o op) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.drop()
		s.log.Warn("search sink closed, dropping operation", "doc_id", o.docID)
		return
	}
	select {
	case s.queue <- o:
		s.gaugeDepth()
	default:
		s.drop()
		s.log.Warn("search queue full, dropping operation",
			"doc_id", o.docID,
			"dropped_total", s.dropped.Load())
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for o := range s.queue {
		s.deliver(o)
		s.gaugeDepth()
	}
}

func (s *Sink) deliver(o op) {
	for attempt := 0; ; attempt++ {
		retriable, err := s.attempt(o)
		if err == nil {
			s.delivered(o)
			return
		}
		if !retriable || attempt >= s.maxRetries {
			s.drop()
			s.log.Error("search delivery failed, dropping operation",
				"kind", string(domain.ErrSinkSearchUnavailable),
				"doc_id", o.docID,
				"attempts", attempt+1,
				"error", err.Error())
			return
		}
		if !s.sleep(s.retryBase << attempt) {
			s.drop()
			s.log.Warn("search delivery abandoned during shutdown", "doc_id", o.docID)
			return
		}
		if m := s.metrics.Load(); m != nil {
			m.SinkRetriesTotal.Inc()
		}
	}
}

// drop counts one lost operation.
func (s *Sink) drop() {
	s.dropped.Add(1)
	if m := s.metrics.Load(); m != nil {
		m.SinkDroppedTotal.Inc()
	}
}

func (s *Sink) delivered(o op) {
	m := s.metrics.Load()
	if m == nil {
		return
	}
	label := "index"
	if o.kind == opDelete {
		label = "delete"
	}
	m.SinkDeliveredTotal.WithLabelValues(label).Inc()
}

func (s *Sink) gaugeDepth() {
	if m := s.metrics.Load(); m != nil {
		m.SinkQueueDepth.Set(float64(len(s.queue)))
	}
}

// attempt performs one delivery and reports whether a failure is worth
// retrying. Rejections the cluster will repeat, like mapping conflicts,
// are not.
func (s *Sink) attempt(o op) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if o.kind == opDelete {
		res, err := s.client.Delete(s.index, o.docID, s.client.Delete.WithContext(ctx))
		if err != nil {
			return true, fmt.Errorf("delete document: %w", err)
		}
		defer res.Body.Close()

		// A missing document is already deleted.
		if res.StatusCode == http.StatusNotFound {
			return false, nil
		}
		if res.IsError() {
			return retriableStatus(res.StatusCode), fmt.Errorf("delete document: %s", res.String())
		}
		return false, nil
	}

	body, err := json.Marshal(o.doc)
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}

	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(o.docID),
	)
	if err != nil {
		return true, fmt.Errorf("index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return retriableStatus(res.StatusCode), fmt.Errorf("index document: %s", res.String())
	}
	return false, nil
}

// sleep waits out a backoff, or returns false when the sink is closing.
func (s *Sink) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.quit:
		return false
	}
}

func retriableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
