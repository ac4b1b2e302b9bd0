package extract

import (
	"context"
	"encoding/json"
	"html"
	"strings"

	"github.com/jonesrussell/jobcrawl/internal/domain"
)

// greenhousePriority ranks the built-in board plugins above ad-hoc ones.
const greenhousePriority = 10

// GreenhousePlugin extracts postings from the Greenhouse boards API, which
// many employers expose unauthenticated at
// boards-api.greenhouse.io/v1/boards/<org>/jobs?content=true.
type GreenhousePlugin struct{}

func NewGreenhousePlugin() *GreenhousePlugin {
	return &GreenhousePlugin{}
}

func (p *GreenhousePlugin) Name() string { return "greenhouse" }

func (p *GreenhousePlugin) Priority() int { return greenhousePriority }

// Match applies the plugin to any source pointed at a Greenhouse board.
func (p *GreenhousePlugin) Match(src *domain.Source) bool {
	return src != nil && strings.Contains(strings.ToLower(src.CareersURL), "greenhouse.io")
}

// greenhouseResponse is the boards API job-list shape.
type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

type greenhouseJob struct {
	Title       string `json:"title"`
	AbsoluteURL string `json:"absolute_url"`
	CompanyName string `json:"company_name"`
	Content     string `json:"content"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
}

func (p *GreenhousePlugin) Extract(_ context.Context, in Input) ([]*domain.ExtractionResult, error) {
	var resp greenhouseResponse
	if err := json.Unmarshal(in.Body, &resp); err != nil {
		return nil, domain.NewPipelineError(domain.ErrParseMalformedJSON, false, err)
	}

	results := make([]*domain.ExtractionResult, 0, len(resp.Jobs))
	for _, job := range resp.Jobs {
		if job.Title == "" || job.AbsoluteURL == "" {
			continue
		}

		result := domain.NewExtractionResult(job.AbsoluteURL, "")
		result.IsJob = true
		result.SetField(domain.FieldTitle, strings.TrimSpace(job.Title), domain.FieldSourceDOM, "")
		result.SetField(domain.FieldApplicationURL, job.AbsoluteURL, domain.FieldSourceDOM, "")
		result.SetField(domain.FieldLocation, strings.TrimSpace(job.Location.Name), domain.FieldSourceDOM, "")
		result.SetField(domain.FieldEmployer, strings.TrimSpace(job.CompanyName), domain.FieldSourceDOM, "")
		// The boards API ships content HTML-escaped.
		result.SetField(domain.FieldDescription, strings.TrimSpace(html.UnescapeString(job.Content)), domain.FieldSourceDOM, "")

		results = append(results, result)
	}

	return results, nil
}

var _ Plugin = (*GreenhousePlugin)(nil)
