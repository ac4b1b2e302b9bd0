// Package extract turns fetched payloads into candidate job postings.
// One cascade of ordered stages serves all source types: site plugins
// run first, then the adapter for the source type discovers candidates,
// and the shared gap-filling stages complete them under first-wins
// fusion. Stage failures are recorded as verdicts, never thrown.
package extract

import (
	"context"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// maxCandidatesPerPage caps how many candidates one payload can yield,
// guarding against pathological list pages.
const maxCandidatesPerPage = 100

// Input is one fetched payload.
type Input struct {
	Source *domain.Source
	URL    string // final URL after redirects
	Body   []byte
}

// StageError is a stage that failed; the cascade continued without it.
type StageError struct {
	Stage string
	Err   error
}

// Output is the extraction verdict for one payload. A nil error model:
// failures degrade into StageErrors and fewer candidates, they do not
// abort the run.
type Output struct {
	Candidates  []*domain.ExtractionResult
	StageErrors []StageError
}

func (o *Output) addStageError(stage string, err error) {
	o.StageErrors = append(o.StageErrors, StageError{Stage: stage, Err: err})
}

// Reasons renders the stage errors for the extraction log reason column.
func (o *Output) Reasons() []string {
	reasons := make([]string, 0, len(o.StageErrors))
	for _, se := range o.StageErrors {
		reasons = append(reasons, se.Stage+": "+se.Err.Error())
	}
	return reasons
}

// Completer is the AI capability used by the fallback stage. Budget
// accounting and response caching live behind this interface; an
// exhausted budget surfaces as an ai.budget_exhausted error, which the
// stage treats as no improvement.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extractor produces candidates from a payload.
type Extractor interface {
	Extract(ctx context.Context, in Input) *Output
}

// Dispatcher routes payloads through site plugins first, then the
// source-type adapter.
type Dispatcher struct {
	registry *Registry
	html     *htmlCascade
	feed     *feedExtractor
	api      *apiExtractor
	version  string
	log      logger.Interface
}

// New composes the extractor. A nil classifier selects the rule-based
// default; a nil registry means no site plugins.
func New(registry *Registry, ai Completer, classifier Classifier, version string, log logger.Interface) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	if classifier == nil {
		classifier = NewRuleClassifier()
	}

	filler := newGapFiller(ai, log)

	return &Dispatcher{
		registry: registry,
		html:     &htmlCascade{classifier: classifier, filler: filler, version: version, log: log},
		feed:     &feedExtractor{filler: filler, version: version, log: log},
		api:      &apiExtractor{filler: filler, version: version, log: log},
		version:  version,
		log:      log,
	}
}

// Extract runs the payload through the first matching plugin that
// produces candidates, falling through to the generic cascade.
func (d *Dispatcher) Extract(ctx context.Context, in Input) *Output {
	out := &Output{}

	for _, plugin := range d.registry.Matching(in.Source) {
		candidates, err := plugin.Extract(ctx, in)
		if err != nil {
			out.addStageError("plugin:"+plugin.Name(), err)
			continue
		}
		if len(candidates) > 0 {
			d.log.Debug("plugin produced candidates",
				"plugin", plugin.Name(),
				"source_id", in.Source.ID,
				"count", len(candidates),
			)
			for _, result := range candidates {
				if result.PipelineVersion == "" {
					result.PipelineVersion = d.version
				}
			}
			out.Candidates = capCandidates(candidates)
			return out
		}
	}

	var adapted *Output
	switch in.Source.SourceType {
	case domain.SourceTypeRSS:
		adapted = d.feed.extract(ctx, in)
	case domain.SourceTypeAPI:
		adapted = d.api.extract(ctx, in)
	case domain.SourceTypeHTML:
		adapted = d.html.extract(ctx, in)
	default:
		adapted = d.html.extract(ctx, in)
	}

	adapted.StageErrors = append(out.StageErrors, adapted.StageErrors...)
	adapted.Candidates = capCandidates(adapted.Candidates)
	return adapted
}

func capCandidates(candidates []*domain.ExtractionResult) []*domain.ExtractionResult {
	if len(candidates) > maxCandidatesPerPage {
		return candidates[:maxCandidatesPerPage]
	}
	return candidates
}

// Interface conformance check.
var _ Extractor = (*Dispatcher)(nil)
