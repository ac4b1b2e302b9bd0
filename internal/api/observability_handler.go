package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
)

const (
	defaultCoverageHours    = 24
	defaultValidationErrors = 50
)

// ObservabilityHandler owns /api/v1/observability.
type ObservabilityHandler struct {
	logs     RunLogReader
	failures FailureReader
}

// Coverage handles GET /api/v1/observability/coverage?hours=. It
// compares jobs discovered against rows that reached the jobs table and
// flags sources whose mismatch crosses the warning or critical line.
func (h *ObservabilityHandler) Coverage(c *gin.Context) {
	hours := intQuery(c, "hours", defaultCoverageHours)
	if hours == 0 {
		hours = defaultCoverageHours
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	rows, err := h.logs.Coverage(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute coverage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"since":   since.UTC().Format(time.RFC3339),
		"hours":   hours,
		"sources": rows,
	})
}

// ValidationErrors handles GET /api/v1/observability/validation-errors.
// It reads the failure ledger filtered to rows rejected by validation,
// so an operator can see why a source's jobs never landed.
func (h *ObservabilityHandler) ValidationErrors(c *gin.Context) {
	filters := database.FailedInsertFilters{
		SourceID:  c.Query("source_id"),
		Operation: domain.OperationValidation,
		Limit:     intQuery(c, "limit", defaultValidationErrors),
	}

	failures, err := h.failures.List(c.Request.Context(), filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list validation errors"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"errors": failures, "count": len(failures)})
}
