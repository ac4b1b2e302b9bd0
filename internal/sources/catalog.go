package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// Store is the slice of the source repository the catalog needs.
type Store interface {
	CreateOrUpdate(ctx context.Context, source *domain.Source) (bool, error)
	List(ctx context.Context, filters database.SourceFilters) ([]*domain.Source, int, error)
}

var _ Store = (*database.SourceRepository)(nil)

// Catalog imports and exports the source list as YAML. Import upserts
// by name, so re-importing a file is idempotent and an edited file
// updates rows in place without touching their scheduling state.
type Catalog struct {
	store Store
	log   logger.Interface
}

// NewCatalog builds the catalog service.
func NewCatalog(store Store, log logger.Interface) *Catalog {
	return &Catalog{store: store, log: log}
}

// ImportStats summarizes one import.
type ImportStats struct {
	Created int
	Updated int
}

const exportPageSize = 1000

// Import reads a catalog document and upserts every entry. The document
// is validated in full before the first write, so a typo in entry nine
// does not leave entries one through eight half-imported.
func (c *Catalog) Import(ctx context.Context, r io.Reader) (*ImportStats, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, errors.New("catalog has no sources")
	}

	var invalid []error
	seen := make(map[string]bool, len(file.Sources))
	for i := range file.Sources {
		e := &file.Sources[i]
		if err := e.Validate(); err != nil {
			invalid = append(invalid, fmt.Errorf("source %d (%s): %w", i+1, e.Name, err))
			continue
		}
		if seen[e.Name] {
			invalid = append(invalid, fmt.Errorf("source %d (%s): duplicate name", i+1, e.Name))
		}
		seen[e.Name] = true
	}
	if len(invalid) > 0 {
		return nil, errors.Join(invalid...)
	}

	stats := &ImportStats{}
	for i := range file.Sources {
		src := file.Sources[i].ToSource()
		inserted, err := c.store.CreateOrUpdate(ctx, src)
		if err != nil {
			return stats, fmt.Errorf("upsert %q: %w", src.Name, err)
		}
		if inserted {
			stats.Created++
		} else {
			stats.Updated++
		}
		c.log.Debug("Catalog entry imported", "name", src.Name, "id", src.ID, "created", inserted)
	}

	c.log.Info("Catalog imported", "created", stats.Created, "updated", stats.Updated)
	return stats, nil
}

// ImportFile imports a catalog from disk.
func (c *Catalog) ImportFile(ctx context.Context, path string) (*ImportStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	return c.Import(ctx, f)
}

// Export writes the current catalog (deleted sources excluded) as YAML
// and returns the number of entries written.
func (c *Catalog) Export(ctx context.Context, w io.Writer) (int, error) {
	var file File
	for offset := 0; ; offset += exportPageSize {
		page, _, err := c.store.List(ctx, database.SourceFilters{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("list sources: %w", err)
		}
		for _, src := range page {
			if src.Status == domain.SourceStatusDeleted {
				continue
			}
			file.Sources = append(file.Sources, entryFromSource(src))
		}
		if len(page) < exportPageSize {
			break
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&file); err != nil {
		return 0, fmt.Errorf("encode catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("flush catalog: %w", err)
	}
	return len(file.Sources), nil
}
