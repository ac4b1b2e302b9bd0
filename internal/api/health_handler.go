package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/jobcrawl/internal/search"
)

const healthPingTimeout = 5 * time.Second

// DBPinger is satisfied by *sqlx.DB.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// SearchHealth reports the state of the search sink.
type SearchHealth interface {
	Ping(ctx context.Context) error
	QueueDepth() int
	Dropped() int64
}

// HealthHandler owns GET /health. Backends that are not wired report as
// absent rather than failing the check, so the endpoint works for
// API-only deployments too.
type HealthHandler struct {
	db     DBPinger
	search SearchHealth
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok"}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = gin.H{"status": "error", "error": err.Error()}
		} else {
			body["database"] = gin.H{"status": "ok"}
		}
	}

	if h.search != nil {
		searchBody := gin.H{
			"queue_depth": h.search.QueueDepth(),
			"dropped":     h.search.Dropped(),
		}
		if err := h.search.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			searchBody["status"] = "error"
			searchBody["error"] = err.Error()
		} else {
			searchBody["status"] = "ok"
		}
		body["search"] = searchBody
	}

	c.JSON(status, body)
}

var (
	_ DBPinger     = (*sqlx.DB)(nil)
	_ SearchHealth = (*search.Sink)(nil)
)
