package extract

import (
	"context"
	"sort"
	"sync"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// Plugin is a site-specific extractor consulted before the generic cascade.
// Match decides applicability per source; an Extract that returns no
// candidates and no error falls through to the next plugin or the cascade.
type Plugin interface {
	Name() string
	Priority() int
	Match(src *domain.Source) bool
	Extract(ctx context.Context, in Input) ([]*domain.ExtractionResult, error)
}

// Registry holds plugins in descending priority order. Registration happens
// at composition time; Matching is safe for concurrent runs.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a plugin, keeping the priority order stable for plugins of
// equal priority.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.plugins = append(r.plugins, p)
	sort.SliceStable(r.plugins, func(i, j int) bool {
		return r.plugins[i].Priority() > r.plugins[j].Priority()
	})
}

// Matching returns the plugins that apply to a source, in priority order.
func (r *Registry) Matching(src *domain.Source) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Plugin
	for _, p := range r.plugins {
		if p.Match(src) {
			matched = append(matched, p)
		}
	}

	return matched
}
