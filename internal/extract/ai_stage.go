package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// maxAIContextLen caps the page text included in a fill prompt.
const maxAIContextLen = 6000

// aiFillFields are the fields the AI fallback may fill, in prompt order.
// URLs are excluded: a model can fabricate a plausible apply link, and a
// fabricated link is worse than a missing one.
var aiFillFields = []domain.FieldName{
	domain.FieldTitle,
	domain.FieldEmployer,
	domain.FieldLocation,
	domain.FieldDeadline,
}

// extractPromptHeader is the fixed prefix of every fill prompt. The prompt
// must stay deterministic for a given page so responses cache well.
const extractPromptHeader = `Extract job posting fields from the page text.
Respond with a single JSON object containing exactly the requested keys.
Use "" for a field the text does not state. Do not guess.

Example:
Fields: title, location
Text: Senior Accountant wanted in Nairobi, Kenya. Apply by 2025-01-31.
Answer: {"title":"Senior Accountant","location":"Nairobi, Kenya"}

Example:
Fields: deadline
Text: We are hiring a driver. Call us today.
Answer: {"deadline":""}

`

// gapFiller runs the per-candidate fill stages in cascade order: meta, DOM,
// labels, regex, then the AI fallback for whatever is still missing.
type gapFiller struct {
	ai  Completer
	log logger.Interface
}

func newGapFiller(ai Completer, log logger.Interface) *gapFiller {
	return &gapFiller{ai: ai, log: log}
}

// fill completes each candidate from its own scope. Page-wide stages apply
// only when the page holds a single candidate; with several candidates a
// page-wide value would cross-contaminate them.
func (g *gapFiller) fill(ctx context.Context, doc *goquery.Document, base *url.URL, cands []*candidate, out *Output) {
	aiExhausted := false

	for _, cand := range cands {
		if ctx.Err() != nil {
			return
		}

		scope := cand.scope
		if scope == nil {
			if doc == nil || len(cands) > 1 {
				continue
			}
			scope = doc.Selection
			fillFromMeta(doc, cand)
			fillFromPage(doc, cand)
		}

		fillFromLabels(scope, cand)
		fillFromRegex(scope, base, cand)

		if aiExhausted {
			continue
		}
		if err := g.fillFromAI(ctx, scope, cand); err != nil {
			out.addStageError("ai", err)
			if domain.KindOf(err) == domain.ErrAIBudgetExhausted {
				aiExhausted = true
			}
		}
	}
}

// fillFromAI asks the completer for the fields still missing after the
// deterministic stages. The response must be a strict JSON object; anything
// else leaves the fields missing.
func (g *gapFiller) fillFromAI(ctx context.Context, scope *goquery.Selection, cand *candidate) error {
	if g.ai == nil {
		return nil
	}

	var missing []domain.FieldName
	for _, field := range aiFillFields {
		if !cand.result.Has(field) {
			missing = append(missing, field)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	raw, err := g.ai.Complete(ctx, fillPrompt(missing, scope.Text()))
	if err != nil {
		return err
	}

	values, err := parseFillResponse(raw)
	if err != nil {
		return err
	}
	for _, field := range missing {
		cand.result.SetField(field, values[string(field)], domain.FieldSourceAI, "")
	}

	return nil
}

// fillPrompt builds the deterministic prompt for a set of missing fields.
func fillPrompt(missing []domain.FieldName, text string) string {
	names := make([]string, len(missing))
	for i, field := range missing {
		names[i] = string(field)
	}

	text = collapseSpace(text)
	if len(text) > maxAIContextLen {
		text = text[:maxAIContextLen]
	}

	return fmt.Sprintf("%sFields: %s\nText: %s\nAnswer:", extractPromptHeader, strings.Join(names, ", "), text)
}

// parseFillResponse decodes a completion as a strict JSON object of strings.
func parseFillResponse(raw string) (map[string]string, error) {
	values := make(map[string]string)
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &values); err != nil {
		return nil, domain.NewPipelineError(domain.ErrAIInvalidJSONResponse, false, errors.New("completion is not a JSON object of strings"))
	}

	for key, value := range values {
		values[key] = strings.TrimSpace(value)
	}

	return values, nil
}

// collapseSpace reduces runs of whitespace to single spaces so prompts stay
// stable across formatting-only page changes.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
