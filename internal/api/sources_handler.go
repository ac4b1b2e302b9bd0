package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/scheduler"
	"github.com/jonesrussell/jobcrawl/internal/sources"
)

const (
	defaultLogLimit    = 20
	defaultSourceLimit = 50
)

// SourceAdmin is the slice of the source repository the handlers drive.
type SourceAdmin interface {
	GetByID(ctx context.Context, id string) (*domain.Source, error)
	List(ctx context.Context, filters database.SourceFilters) ([]*domain.Source, int, error)
	CreateOrUpdate(ctx context.Context, source *domain.Source) (bool, error)
	MarkRunNow(ctx context.Context, id string) (bool, error)
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
}

// Prober serves the fetch-only diagnostics.
type Prober interface {
	Probe(ctx context.Context, src *domain.Source) *sources.ProbeReport
	SimulateExtract(ctx context.Context, src *domain.Source) *sources.SimulationReport
}

// RunController reaches into the scheduler for in-flight runs. Absent
// when the API runs in a separate process from the scheduler.
type RunController interface {
	Cancel(sourceID string) error
	Running() []string
}

// RunLogReader reads the per-run ledger.
type RunLogReader interface {
	ListBySource(ctx context.Context, sourceID string, limit int) ([]*domain.ExtractionLog, error)
	Coverage(ctx context.Context, since time.Time) ([]*domain.CoverageRow, error)
}

// FailureReader reads the failure ledger.
type FailureReader interface {
	List(ctx context.Context, filters database.FailedInsertFilters) ([]*domain.FailedInsert, error)
}

// SourcesHandler owns /api/v1/sources.
type SourcesHandler struct {
	sources SourceAdmin
	prober  Prober
	runs    RunController
	logs    RunLogReader
	log     logger.Interface
}

// List handles GET /api/v1/sources.
func (h *SourcesHandler) List(c *gin.Context) {
	filters := database.SourceFilters{
		Status: c.Query("status"),
		Type:   c.Query("type"),
		Search: c.Query("search"),
		Limit:  intQuery(c, "limit", defaultSourceLimit),
		Offset: intQuery(c, "offset", 0),
	}

	list, total, err := h.sources.List(c.Request.Context(), filters)
	if err != nil {
		h.log.Error("Source list failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sources"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sources": list, "total": total})
}

// Get handles GET /api/v1/sources/:id.
func (h *SourcesHandler) Get(c *gin.Context) {
	src, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, src)
}

// Upsert handles POST /api/v1/sources. The body is a catalog entry;
// upsert is by name, so posting an edited entry updates the row without
// touching its scheduling state.
func (h *SourcesHandler) Upsert(c *gin.Context) {
	var entry sources.Entry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if err := entry.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	src := entry.ToSource()
	created, err := h.sources.CreateOrUpdate(c.Request.Context(), src)
	if err != nil {
		h.log.Error("Source upsert failed", "name", entry.Name, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save source"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"id": src.ID, "created": created})
}

// Run handles POST /api/v1/sources/:id/run. It marks the source due
// immediately; the next scheduler tick picks it up.
func (h *SourcesHandler) Run(c *gin.Context) {
	src, ok := h.load(c)
	if !ok {
		return
	}

	switch {
	case src.Status == domain.SourceStatusPaused:
		c.JSON(http.StatusConflict, gin.H{"accepted": false, "reason": "source is paused"})
		return
	case src.Status == domain.SourceStatusDeleted:
		c.JSON(http.StatusConflict, gin.H{"accepted": false, "reason": "source is deleted"})
		return
	case src.LeasedUntil != nil && src.LeasedUntil.After(time.Now()):
		c.JSON(http.StatusConflict, gin.H{"accepted": false, "reason": "run in progress"})
		return
	}

	marked, err := h.sources.MarkRunNow(c.Request.Context(), src.ID)
	if err != nil {
		h.log.Error("Run-now failed", "source_id", src.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule run"})
		return
	}
	if !marked {
		c.JSON(http.StatusConflict, gin.H{"accepted": false, "reason": "source is not active"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

// Test handles POST /api/v1/sources/:id/test.
func (h *SourcesHandler) Test(c *gin.Context) {
	src, ok := h.load(c)
	if !ok {
		return
	}
	if h.prober == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Prober not available"})
		return
	}

	c.JSON(http.StatusOK, h.prober.Probe(c.Request.Context(), src))
}

// SimulateExtract handles POST /api/v1/sources/:id/simulate-extract.
func (h *SourcesHandler) SimulateExtract(c *gin.Context) {
	src, ok := h.load(c)
	if !ok {
		return
	}
	if h.prober == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Prober not available"})
		return
	}

	c.JSON(http.StatusOK, h.prober.SimulateExtract(c.Request.Context(), src))
}

// Logs handles GET /api/v1/sources/:id/logs.
func (h *SourcesHandler) Logs(c *gin.Context) {
	src, ok := h.load(c)
	if !ok {
		return
	}

	limit := intQuery(c, "limit", defaultLogLimit)
	logs, err := h.logs.ListBySource(c.Request.Context(), src.ID, limit)
	if err != nil {
		h.log.Error("Log list failed", "source_id", src.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// Pause handles POST /api/v1/sources/:id/pause.
func (h *SourcesHandler) Pause(c *gin.Context) {
	src, ok := h.load(c)
	if !ok {
		return
	}
	if src.Status != domain.SourceStatusActive {
		c.JSON(http.StatusConflict, gin.H{"error": "source is not active"})
		return
	}

	if err := h.sources.Pause(c.Request.Context(), src.ID); err != nil {
		h.log.Error("Pause failed", "source_id", src.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pause source"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.SourceStatusPaused)})
}

// Resume handles POST /api/v1/sources/:id/resume. Resuming clears the
// failure streak and makes the source due immediately.
func (h *SourcesHandler) Resume(c *gin.Context) {
	src, ok := h.load(c)
	if !ok {
		return
	}
	if src.Status != domain.SourceStatusPaused {
		c.JSON(http.StatusConflict, gin.H{"error": "source is not paused"})
		return
	}

	if err := h.sources.Resume(c.Request.Context(), src.ID); err != nil {
		h.log.Error("Resume failed", "source_id", src.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resume source"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.SourceStatusActive)})
}

// Delete handles DELETE /api/v1/sources/:id (soft).
func (h *SourcesHandler) Delete(c *gin.Context) {
	src, ok := h.load(c)
	if !ok {
		return
	}
	if src.Status == domain.SourceStatusDeleted {
		c.JSON(http.StatusConflict, gin.H{"error": "source is already deleted"})
		return
	}

	if err := h.sources.SoftDelete(c.Request.Context(), src.ID); err != nil {
		h.log.Error("Delete failed", "source_id", src.ID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete source"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.SourceStatusDeleted)})
}

// Restore handles POST /api/v1/sources/:id/restore. Restored sources
// come back paused for review.
func (h *SourcesHandler) Restore(c *gin.Context) {
	id := c.Param("id")
	if err := h.sources.Restore(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrSourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No deleted source with that id"})
			return
		}
		h.log.Error("Restore failed", "source_id", id, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restore source"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(domain.SourceStatusPaused)})
}

// Cancel handles DELETE /api/v1/sources/:id/cancel.
func (h *SourcesHandler) Cancel(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not attached"})
		return
	}

	id := c.Param("id")
	if err := h.runs.Cancel(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"canceled": true})
}

// load resolves :id or writes the 404.
func (h *SourcesHandler) load(c *gin.Context) (*domain.Source, bool) {
	id := c.Param("id")
	src, err := h.sources.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrSourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
			return nil, false
		}
		h.log.Error("Source lookup failed", "source_id", id, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load source"})
		return nil, false
	}
	return src, true
}

// intQuery parses a non-negative integer query parameter.
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.DefaultQuery(name, strconv.Itoa(fallback))
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}

var (
	_ SourceAdmin   = (*database.SourceRepository)(nil)
	_ Prober        = (*sources.Prober)(nil)
	_ RunController = (*scheduler.Scheduler)(nil)
	_ RunLogReader  = (*database.ExtractionLogRepository)(nil)
	_ FailureReader = (*database.FailedInsertRepository)(nil)
)
