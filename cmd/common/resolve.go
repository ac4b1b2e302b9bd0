package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/jobcrawl/internal/database"
	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// ResolveSource accepts a source name first, then an id. Names are the
// operator-facing handle; ids appear in logs and API responses.
func ResolveSource(ctx context.Context, repo *database.SourceRepository, ref string) (*domain.Source, error) {
	src, err := repo.GetByName(ctx, ref)
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, database.ErrSourceNotFound) {
		return nil, fmt.Errorf("look up source: %w", err)
	}

	src, err = repo.GetByID(ctx, ref)
	if err != nil {
		if errors.Is(err, database.ErrSourceNotFound) {
			return nil, fmt.Errorf("source %q not found by name or id", ref)
		}
		return nil, fmt.Errorf("look up source: %w", err)
	}
	return src, nil
}
