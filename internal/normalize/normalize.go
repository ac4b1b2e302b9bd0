// Package normalize converts raw extracted fields into stored job values.
package normalize

import (
	"context"
	"strings"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// Completer answers one prompt. The AI client behind it owns the response
// cache and the per-tick call budget.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Normalizer builds job drafts from extraction candidates. Pure heuristics
// run first; fields they cannot settle go to the completer under the
// shared budget.
type Normalizer struct {
	ai  Completer
	log logger.Interface
	now func() time.Time
}

// New builds a normalizer. A nil completer disables AI escalation.
func New(ai Completer, log logger.Interface) *Normalizer {
	return &Normalizer{ai: ai, log: log, now: time.Now}
}

// Normalize converts one extraction candidate into a job draft for the
// source. Returned warnings are non-fatal; a field that cannot be
// normalized stays unset and the draft is still usable.
func (n *Normalizer) Normalize(ctx context.Context, src *domain.Source, res *domain.ExtractionResult) (*domain.Job, []error) {
	job := &domain.Job{
		SourceID:       src.ID,
		Title:          CleanTitle(res.Get(domain.FieldTitle)),
		ApplyURL:       strings.TrimSpace(res.Get(domain.FieldApplicationURL)),
		OrgName:        optional(collapseSpace(res.Get(domain.FieldEmployer))),
		SalaryRaw:      optional(collapseSpace(res.Get(domain.FieldSalary))),
		EmploymentType: optional(employmentType(res.Get(domain.FieldEmploymentType))),
	}
	job.LevelNorm = optional(levelFromTitle(job.Title))

	if desc := StripHTML(res.Get(domain.FieldDescription)); desc != "" {
		job.Description = &desc
	}

	var warnings []error

	if raw := strings.TrimSpace(res.Get(domain.FieldDeadline)); raw != "" {
		iso, err := n.normalizeDate(ctx, raw)
		switch {
		case err != nil:
			warnings = append(warnings, domain.NewPipelineError(domain.ErrNormalizeUnparseableDate, false, err))
		case iso != "":
			job.Deadline = &iso
		}
	}

	if raw := strings.TrimSpace(res.Get(domain.FieldPostedOn)); raw != "" {
		if t, err := ParseDate(raw); err == nil {
			iso := t.Format(isoLayout)
			job.PostedOn = &iso
		} else {
			n.log.Debug("Dropping unparseable posted date", "source_id", src.ID, "value", raw)
		}
	}

	if raw := collapseSpace(res.Get(domain.FieldLocation)); raw != "" {
		job.LocationRaw = &raw

		loc, settled := ParseLocation(raw)
		if !settled {
			var err error
			loc, err = n.resolveLocation(ctx, raw)
			if err != nil {
				warnings = append(warnings, domain.NewPipelineError(domain.ErrNormalizeUnresolvedLocation, false, err))
			}
		}
		job.City = optional(loc.City)
		job.Country = optional(loc.Country)
		job.CountryISO = optional(loc.CountryISO)
	}

	return job, warnings
}

// employmentType folds "Full-Time", "FULL_TIME" and "full time" into one
// spelling.
func employmentType(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	return strings.Join(fields, "_")
}
