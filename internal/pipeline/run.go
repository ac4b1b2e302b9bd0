package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/extract"
	"github.com/jonesrussell/jobcrawl/internal/fetch"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/rawstore"
	"github.com/jonesrussell/jobcrawl/internal/secrets"
	"github.com/jonesrussell/jobcrawl/internal/validate"
)

const (
	// graceTimeout bounds the work still allowed after the run context
	// dies: flushing already-normalized jobs past a deadline and writing
	// the extraction log row.
	graceTimeout = 30 * time.Second

	// maxReasonLen caps the extraction-log reason column.
	maxReasonLen = 1024
)

// run is the mutable state of one source run.
type run struct {
	src  *domain.Source
	log  logger.Interface
	rep  *domain.RunReport
	elog *domain.ExtractionLog
	res  *Result

	started time.Time
}

// Run executes one source end to end. The returned Result is always
// non-nil; a non-nil error means the run produced nothing durable and
// the scheduler should apply failure backoff instead of the regular
// schedule.
func (r *Runner) Run(ctx context.Context, src *domain.Source) (*Result, error) {
	runID := uuid.New().String()

	rn := &run{
		src:     src,
		log:     r.log.WithSource(src.ID).WithRun(runID),
		rep:     &domain.RunReport{SourceID: src.ID, Status: domain.RunStatusEmpty},
		started: r.now(),
	}
	rn.res = &Result{Report: rn.rep}
	rn.elog = &domain.ExtractionLog{
		ID:       runID,
		SourceID: src.ID,
		URL:      src.CareersURL,
	}

	runErr := r.execute(ctx, rn)

	elapsed := r.now().Sub(rn.started)
	rn.rep.DurationMs = elapsed.Milliseconds()
	rn.elog.DurationMs = elapsed.Milliseconds()
	rn.elog.Status = rn.rep.Status
	if runErr != nil && rn.rep.Message == "" {
		rn.rep.SetMessage(runErr.Error())
	}
	r.writeLog(ctx, rn)

	if runErr != nil {
		rn.log.Warn("Run failed",
			"status", string(rn.rep.Status),
			"kind", string(domain.KindOf(runErr)),
			"duration_ms", rn.rep.DurationMs,
			"error", runErr.Error(),
		)
		return rn.res, runErr
	}

	rn.log.Info("Run finished",
		"status", string(rn.rep.Status),
		"found", rn.rep.Found,
		"inserted", rn.rep.Inserted,
		"updated", rn.rep.Updated,
		"skipped", rn.rep.Skipped,
		"failed", rn.rep.Failed,
		"duration_ms", rn.rep.DurationMs,
	)
	return rn.res, nil
}

// execute walks the stages, mutating the run state. Terminal paths set
// the report status and the log reason before returning.
func (r *Runner) execute(ctx context.Context, rn *run) error {
	target, headers, err := r.resolveTarget(rn.src)
	if err != nil {
		rn.setReason(err.Error())
		return err
	}
	rn.elog.URL = target

	if r.robots != nil && !rn.src.IgnoreRobots {
		if robotsErr := r.robots.Check(ctx, target); robotsErr != nil {
			rn.setReason(robotsErr.Error())
			return robotsErr
		}
	}

	res, err := r.fetchBody(ctx, rn, target, headers)
	if err != nil {
		rn.setReason(err.Error())
		return err
	}

	if res.NotModified {
		return r.notModified(ctx, rn, res)
	}

	rn.res.SetConditional = true
	rn.res.ETag = res.ETag
	rn.res.LastModified = res.LastModified

	pageURL := res.FinalURL
	if pageURL == "" {
		pageURL = target
	}
	rn.elog.URL = pageURL

	r.archive(ctx, rn, pageURL, res)

	if ctx.Err() != nil {
		rn.setReason("run canceled before extraction")
		return ctx.Err()
	}

	out := r.extractor.Extract(ctx, extract.Input{Source: rn.src, URL: pageURL, Body: res.Body})
	rn.rep.Found = len(out.Candidates)
	rn.elog.JobsFound = len(out.Candidates)
	rn.elog.ExtractedFields = fieldCoverage(out.Candidates)
	for _, se := range out.StageErrors {
		rn.log.Debug("Extraction stage degraded", "stage", se.Stage, "error", se.Err.Error())
	}

	if len(out.Candidates) == 0 {
		rn.rep.Status = domain.RunStatusEmpty
		rn.setReason(emptyReason(out))
		rn.rep.SetMessage("no job candidates extracted")
		return nil
	}

	if rn.src.DetailEnrich && r.detail != nil {
		fetched, detailErrs := r.detail.Enrich(ctx, rn.src, out.Candidates)
		for _, detailErr := range detailErrs {
			rn.log.Debug("Detail fetch degraded", "error", detailErr.Error())
		}
		if fetched > 0 {
			rn.log.Debug("Detail pass finished", "pages", fetched, "errors", len(detailErrs))
		}
	}

	jobs, interrupted := r.buildJobs(ctx, rn, out.Candidates)
	if interrupted {
		if errors.Is(ctx.Err(), context.Canceled) {
			rn.setReason("run canceled")
			rn.rep.SetMessage("run canceled")
			return ctx.Err()
		}
		if len(jobs) == 0 {
			rn.setReason("run deadline exceeded")
			rn.rep.SetMessage("run deadline exceeded")
			return ctx.Err()
		}
	}

	// Past the deadline the built jobs are still flushed, on a short
	// detached context, so the 15-minute budget never loses work that is
	// already normalized.
	flushCtx := ctx
	if interrupted {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), graceTimeout)
		defer cancel()
	}

	verdict := r.validator.Validate(jobs)
	rn.rep.Failed = len(verdict.Invalid)
	rn.elog.JobsFailed = len(verdict.Invalid)
	for _, warning := range verdict.Warnings {
		rn.log.Debug("Validation warning", "warning", warning)
	}
	r.ledgerInvalid(flushCtx, rn, verdict.Invalid)

	if len(verdict.Valid) == 0 {
		rn.rep.Status = domain.RunStatusPartial
		rn.setReason("all extracted candidates failed validation")
		rn.rep.SetMessage(fmt.Sprintf("%d candidates, none survived validation", len(jobs)))
		return nil
	}

	for _, job := range verdict.Valid {
		if job.ID == "" {
			job.ID = uuid.New().String()
		}
	}

	stats, err := r.jobs.UpsertBatch(flushCtx, verdict.Valid)
	rn.applyStats(stats)
	if err != nil {
		rn.rep.Status = domain.RunStatusDBFail
		rn.setReason(err.Error())
		rn.rep.SetMessage(err.Error())
		// Chunks committed before the failure are real rows; index them.
		r.index(verdict.Valid, stats)
		return domain.NewPipelineError(domain.ErrUpsertSQLError, true, err)
	}
	if stats.Failed > 0 && stats.Inserted+stats.Updated+stats.Skipped == 0 {
		rn.rep.Status = domain.RunStatusDBFail
		rn.setReason("every row failed to upsert")
		rn.rep.SetMessage(fmt.Sprintf("all %d rows failed to upsert", stats.Failed))
		r.ledgerUpsertFailures(flushCtx, rn, stats.Failures)
		return domain.NewPipelineError(domain.ErrUpsertSQLError, true,
			fmt.Errorf("all %d rows failed to upsert", stats.Failed))
	}

	r.ledgerUpsertFailures(flushCtx, rn, stats.Failures)
	r.index(verdict.Valid, stats)

	if interrupted {
		rn.rep.Status = domain.RunStatusPartial
		rn.setReason("run deadline reached; partial batch committed")
		rn.rep.SetMessage(fmt.Sprintf("deadline reached; committed %d of %d candidates",
			rn.rep.Inserted+rn.rep.Updated, rn.rep.Found))
		return nil
	}

	rn.rep.Status = domain.RunStatusOK
	rn.rep.SetMessage(fmt.Sprintf("%d found, %d inserted, %d updated, %d skipped, %d failed",
		rn.rep.Found, rn.rep.Inserted, rn.rep.Updated, rn.rep.Skipped, rn.rep.Failed))
	return nil
}

// resolveTarget gives the fetch URL and extra headers for a source. API
// sources compose the hint's base_url and path; their auth headers may
// hold SECRET:NAME references, resolved here and never logged. An
// invalid hint falls back to careers_url so the generic JSON adapter
// still gets a shot while the extractor surfaces the bad config.
func (r *Runner) resolveTarget(src *domain.Source) (string, map[string]string, error) {
	if src.SourceType != domain.SourceTypeAPI {
		return src.CareersURL, nil, nil
	}

	hint, err := src.ParseAPIHint()
	if err != nil {
		return src.CareersURL, nil, nil
	}

	target := strings.TrimRight(hint.BaseURL, "/")
	if hint.Path != "" {
		target += "/" + strings.TrimLeft(hint.Path, "/")
	}

	if len(hint.Auth) == 0 {
		return target, nil, nil
	}

	headers := make(map[string]string, len(hint.Auth))
	for name, value := range hint.Auth {
		resolved, expandErr := secrets.Expand(r.secrets, value)
		if expandErr != nil {
			return "", nil, fmt.Errorf("auth header %s: %w", name, expandErr)
		}
		headers[name] = resolved
	}
	return target, headers, nil
}

// fetchBody picks the renderer for render_js sources and archives the
// failure screenshot when a render dies without a page.
func (r *Runner) fetchBody(ctx context.Context, rn *run, target string, headers map[string]string) (*fetch.Result, error) {
	req := fetch.Request{
		URL:  target,
		Kind: kindFor(rn.src.SourceType),
		Conditional: fetch.Conditional{
			ETag:         rn.src.ETag,
			LastModified: rn.src.LastModified,
		},
		Headers: headers,
	}

	if rn.src.RenderJS && r.browser != nil {
		res, err := r.browser.Fetch(ctx, req)
		if err != nil {
			if res != nil && len(res.Screenshot) > 0 {
				r.archiveScreenshot(ctx, rn, target, res.Screenshot)
			}
			return nil, err
		}
		return res, nil
	}

	return r.http.Fetch(ctx, req)
}

// notModified closes out a 304 run: the stored catalog is untouched, the
// prior rows count as skipped, and a bodyless sidecar records the
// revalidation. The stored validators just proved current, so they are
// left alone.
func (r *Runner) notModified(ctx context.Context, rn *run, res *fetch.Result) error {
	page := &domain.RawPage{
		ID:          uuid.New().String(),
		SourceID:    rn.src.ID,
		URL:         rn.elog.URL,
		Status:      res.Status,
		HTTPHeaders: headerMap(res.Headers),
		NotModified: true,
		FetchedAt:   r.now().UTC(),
	}
	if err := r.rawPages.Create(ctx, page); err != nil {
		rn.log.Warn("Raw page sidecar write failed", "error", err.Error())
	} else {
		rn.elog.RawPageID = &page.ID
	}

	prior := r.priorCount(ctx, rn)
	rn.rep.Status = domain.RunStatusOK
	rn.rep.Skipped = prior
	rn.elog.JobsSkipped = prior
	rn.setReason("not modified")
	rn.rep.SetMessage(fmt.Sprintf("not modified; %d stored jobs unchanged", prior))
	return nil
}

// priorCount is how many live jobs the source already has; a 304 run
// reports them as skipped.
func (r *Runner) priorCount(ctx context.Context, rn *run) int {
	_, count, err := r.jobs.List(ctx, database.JobFilters{SourceID: rn.src.ID, Limit: 1})
	if err != nil {
		rn.log.Warn("Prior job count unavailable", "error", err.Error())
		return 0
	}
	return count
}

// archive writes the body blob, then its sidecar row. The blob goes
// first: a failed row insert leaves an orphan the retention sweep
// removes, while the reverse order would leave a row pointing at
// nothing. Archive trouble degrades the run to an unkeyed extraction
// log rather than aborting it.
func (r *Runner) archive(ctx context.Context, rn *run, pageURL string, res *fetch.Result) {
	fetchedAt := r.now().UTC()
	ext := extFor(kindFor(rn.src.SourceType))
	key := rawstore.Key(pageURL, fetchedAt, res.Body, ext)

	path, err := r.store.Put(ctx, key, res.Body, rawstore.ContentTypeFor(ext))
	if err != nil {
		rn.log.Warn("Raw page blob write failed", "key", key, "error", err.Error())
		return
	}

	sum := sha256.Sum256(res.Body)
	page := &domain.RawPage{
		ID:            uuid.New().String(),
		SourceID:      rn.src.ID,
		URL:           pageURL,
		Status:        res.Status,
		HTTPHeaders:   headerMap(res.Headers),
		StoragePath:   path,
		ContentLength: int64(len(res.Body)),
		ContentHash:   hex.EncodeToString(sum[:]),
		FetchedAt:     fetchedAt,
	}
	if err := r.rawPages.Create(ctx, page); err != nil {
		rn.log.Warn("Raw page sidecar write failed", "key", key, "error", err.Error())
		return
	}
	rn.elog.RawPageID = &page.ID
}

// archiveScreenshot stores a render-failure capture in the raw store so
// the broken page can be inspected later.
func (r *Runner) archiveScreenshot(ctx context.Context, rn *run, target string, shot []byte) {
	key := rawstore.Key(target, r.now().UTC(), shot, rawstore.ExtPNG)
	if _, err := r.store.Put(ctx, key, shot, rawstore.ContentTypePNG); err != nil {
		rn.log.Warn("Screenshot archive failed", "key", key, "error", err.Error())
		return
	}
	rn.log.Info("Render failure screenshot archived", "key", key)
}

// buildJobs normalizes, geocodes, and scores each candidate. It stops
// early when the run context dies, reporting interruption so the caller
// decides whether the partial batch is worth flushing.
func (r *Runner) buildJobs(ctx context.Context, rn *run, cands []*domain.ExtractionResult) ([]*domain.Job, bool) {
	jobs := make([]*domain.Job, 0, len(cands))
	for _, cand := range cands {
		if ctx.Err() != nil {
			rn.log.Warn("Job building interrupted", "built", len(jobs), "candidates", len(cands))
			return jobs, true
		}

		job, warns := r.normalizer.Normalize(ctx, rn.src, cand)
		for _, warn := range warns {
			rn.log.Debug("Normalization degraded",
				"apply_url", job.ApplyURL,
				"kind", string(domain.KindOf(warn)),
				"error", warn.Error(),
			)
		}

		if r.enricher != nil {
			if err := r.enricher.Enrich(ctx, job); err != nil {
				rn.log.Debug("Geocoding degraded",
					"apply_url", job.ApplyURL,
					"kind", string(domain.KindOf(err)),
					"error", err.Error(),
				)
			}
		}

		r.scorer.Score(job)
		jobs = append(jobs, job)
	}
	return jobs, false
}

// ledgerInvalid writes one failed_inserts row per blocked job, carrying
// the hard error verbatim under the validation_error payload key.
func (r *Runner) ledgerInvalid(ctx context.Context, rn *run, blocked []validate.InvalidJob) {
	if len(blocked) == 0 {
		return
	}

	at := r.now().UTC()
	rows := make([]*domain.FailedInsert, 0, len(blocked))
	for _, inv := range blocked {
		rows = append(rows, &domain.FailedInsert{
			ID:        uuid.New().String(),
			SourceID:  rn.src.ID,
			SourceURL: rn.elog.URL,
			RawPageID: rn.elog.RawPageID,
			Error:     inv.Reason,
			Payload:   domain.ValidationPayload(inv.Job, inv.Reason),
			Operation: domain.OperationValidation,
			AttemptAt: at,
		})
	}
	if err := r.failures.CreateBatch(ctx, rows); err != nil {
		rn.log.Error("Validation failure ledger write failed", "rows", len(rows), "error", err.Error())
	}
}

// ledgerUpsertFailures records rows that failed even when retried on
// their own.
func (r *Runner) ledgerUpsertFailures(ctx context.Context, rn *run, failures []database.UpsertFailure) {
	if len(failures) == 0 {
		return
	}

	at := r.now().UTC()
	rows := make([]*domain.FailedInsert, 0, len(failures))
	for _, failure := range failures {
		rows = append(rows, &domain.FailedInsert{
			ID:        uuid.New().String(),
			SourceID:  rn.src.ID,
			SourceURL: rn.elog.URL,
			RawPageID: rn.elog.RawPageID,
			Error:     failure.Err.Error(),
			Payload:   domain.JobPayload(failure.Job),
			Operation: failure.Operation,
			AttemptAt: at,
		})
	}
	if err := r.failures.CreateBatch(ctx, rows); err != nil {
		rn.log.Error("Upsert failure ledger write failed", "rows", len(rows), "error", err.Error())
	}
}

// index enqueues committed rows for the search sink. Skipped rows are
// already indexed by the run that last changed them.
func (r *Runner) index(jobs []*domain.Job, stats *database.UpsertStats) {
	if r.sink == nil || stats == nil {
		return
	}

	committed := make(map[string]bool, len(stats.InsertedIDs)+len(stats.UpdatedIDs))
	for _, id := range stats.InsertedIDs {
		committed[id] = true
	}
	for _, id := range stats.UpdatedIDs {
		committed[id] = true
	}
	for _, job := range jobs {
		if committed[job.ID] {
			r.sink.Upsert(job)
		}
	}
}

// writeLog appends the one-per-run summary row. The write runs on a
// detached context so canceled runs still get their row; losing it is
// logged loudly since the row is the run's only durable record.
func (r *Runner) writeLog(ctx context.Context, rn *run) {
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), graceTimeout)
	defer cancel()

	if err := r.logs.Create(logCtx, rn.elog); err != nil {
		rn.log.Error("Extraction log write failed",
			"status", string(rn.elog.Status),
			"error", err.Error(),
		)
	}
}

// applyStats copies upsert accounting onto the report and the log row.
func (rn *run) applyStats(stats *database.UpsertStats) {
	if stats == nil {
		return
	}
	rn.rep.Inserted = stats.Inserted
	rn.rep.Updated = stats.Updated
	rn.rep.Skipped = stats.Skipped
	rn.rep.Failed += stats.Failed

	rn.elog.JobsInserted = stats.Inserted
	rn.elog.JobsUpdated = stats.Updated
	rn.elog.JobsSkipped = stats.Skipped
	rn.elog.JobsFailed += stats.Failed
}

// setReason stores the first terminal reason, truncated to the column cap.
func (rn *run) setReason(reason string) {
	if rn.elog.Reason != nil || reason == "" {
		return
	}
	if len(reason) > maxReasonLen {
		reason = reason[:maxReasonLen]
	}
	rn.elog.Reason = &reason
}

// emptyReason renders why extraction produced nothing.
func emptyReason(out *extract.Output) string {
	if reasons := out.Reasons(); len(reasons) > 0 {
		return strings.Join(reasons, "; ")
	}
	return "no job candidates found"
}

// fieldCoverage summarizes which fields extraction produced, and for how
// many candidates, for the extraction log.
func fieldCoverage(cands []*domain.ExtractionResult) domain.JSONBMap {
	if len(cands) == 0 {
		return nil
	}

	coverage := domain.JSONBMap{}
	for _, cand := range cands {
		for _, name := range cand.FieldNames() {
			count, _ := coverage[name].(int)
			coverage[name] = count + 1
		}
	}
	return coverage
}

// headerMap converts sanitized response headers for the JSONB column.
func headerMap(h http.Header) domain.JSONBMap {
	sanitized := fetch.SanitizeHeaders(h)
	if len(sanitized) == 0 {
		return nil
	}

	m := make(domain.JSONBMap, len(sanitized))
	for name, value := range sanitized {
		m[name] = value
	}
	return m
}

// kindFor maps a source type onto its fetch profile.
func kindFor(st domain.SourceType) fetch.Kind {
	switch st {
	case domain.SourceTypeRSS:
		return fetch.KindFeed
	case domain.SourceTypeAPI:
		return fetch.KindAPI
	default:
		return fetch.KindPage
	}
}

// extFor maps a fetch kind onto the stored blob extension.
func extFor(kind fetch.Kind) string {
	switch kind {
	case fetch.KindFeed:
		return rawstore.ExtXML
	case fetch.KindAPI:
		return rawstore.ExtJSON
	default:
		return rawstore.ExtHTML
	}
}
