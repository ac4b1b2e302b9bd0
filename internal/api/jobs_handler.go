package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
	"github.com/jonesrussell/jobcrawl/internal/search"
)

const defaultJobLimit = 50

// JobAdmin is the slice of the job repository the handlers drive.
type JobAdmin interface {
	GetByID(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, filters database.JobFilters) ([]*domain.Job, int, error)
	SoftDelete(ctx context.Context, id, deletedBy, reason string) error
	Restore(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id, reason string) error
}

// JobIndex mirrors deletes and restores into the search index.
type JobIndex interface {
	Upsert(job *domain.Job)
	Delete(jobID string)
}

// JobsHandler owns /api/v1/jobs.
type JobsHandler struct {
	jobs  JobAdmin
	index JobIndex
	log   logger.Interface
}

type deleteJobRequest struct {
	DeletedBy string `json:"deleted_by"`
	Reason    string `json:"reason"`
	Hard      bool   `json:"hard"`
}

// List handles GET /api/v1/jobs.
func (h *JobsHandler) List(c *gin.Context) {
	filters := database.JobFilters{
		SourceID:       c.Query("source_id"),
		Grade:          c.Query("grade"),
		Search:         c.Query("search"),
		IncludeDeleted: c.Query("include_deleted") == "true",
		Limit:          intQuery(c, "limit", defaultJobLimit),
		Offset:         intQuery(c, "offset", 0),
	}
	if raw := c.Query("needs_review"); raw != "" {
		val := raw == "true"
		filters.NeedsReview = &val
	}

	jobs, total, err := h.jobs.List(c.Request.Context(), filters)
	if err != nil {
		h.log.Error("Job list failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": total})
}

// Get handles GET /api/v1/jobs/:id.
func (h *JobsHandler) Get(c *gin.Context) {
	job, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, job)
}

// Delete handles DELETE /api/v1/jobs/:id. The default is a soft delete
// that keeps the row; {"hard": true} removes it permanently and then
// requires a non-empty reason. Both variants drop the search document.
func (h *JobsHandler) Delete(c *gin.Context) {
	job, ok := h.load(c)
	if !ok {
		return
	}

	var req deleteJobRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.Hard {
		if err := h.jobs.HardDelete(c.Request.Context(), job.ID, req.Reason); err != nil {
			if errors.Is(err, database.ErrDeletionReasonRequired) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			h.log.Error("Hard delete failed", "job_id", job.ID, "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete job"})
			return
		}
	} else {
		if err := h.jobs.SoftDelete(c.Request.Context(), job.ID, req.DeletedBy, req.Reason); err != nil {
			h.log.Error("Soft delete failed", "job_id", job.ID, "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete job"})
			return
		}
	}

	if h.index != nil {
		h.index.Delete(job.ID)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "hard": req.Hard})
}

// Restore handles POST /api/v1/jobs/:id/restore. The restored job goes
// back into the search index.
func (h *JobsHandler) Restore(c *gin.Context) {
	id := c.Param("id")
	if err := h.jobs.Restore(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No deleted job with that id"})
			return
		}
		h.log.Error("Job restore failed", "job_id", id, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restore job"})
		return
	}

	if h.index != nil {
		if job, err := h.jobs.GetByID(c.Request.Context(), id); err == nil {
			h.index.Upsert(job)
		}
	}
	c.JSON(http.StatusOK, gin.H{"restored": true})
}

func (h *JobsHandler) load(c *gin.Context) (*domain.Job, bool) {
	id := c.Param("id")
	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return nil, false
		}
		h.log.Error("Job lookup failed", "job_id", id, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load job"})
		return nil, false
	}
	return job, true
}

var (
	_ JobAdmin = (*database.JobRepository)(nil)
	_ JobIndex = (*search.Sink)(nil)
)
