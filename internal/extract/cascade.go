package extract

import (
	"bytes"
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// candidate pairs a result under construction with the DOM scope it was
// discovered in. A nil scope means the whole page backs the candidate.
type candidate struct {
	result *domain.ExtractionResult
	scope  *goquery.Selection
}

// htmlCascade runs the staged cascade over an HTML page: classify, then
// discover candidates (JSON-LD postings, job cards, table rows, or the page
// itself), then fill each candidate's gaps stage by stage.
type htmlCascade struct {
	classifier Classifier
	filler     *gapFiller
	version    string
	log        logger.Interface
}

func (c *htmlCascade) extract(ctx context.Context, in Input) *Output {
	out := &Output{}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Body))
	if err != nil {
		out.addStageError("parse", domain.NewPipelineError(domain.ErrParseMalformedHTML, false, err))
		return out
	}

	isJob, score := c.classifier.Classify(in.URL, doc)
	if !isJob && score <= notJobCutoff {
		c.log.Debug("Page classified as non-job", "url", in.URL, "score", score)
		return out
	}

	base := pageBaseURL(in.URL)

	cands := jsonldCandidates(doc, in.URL, c.version, out)
	if len(cands) == 0 {
		cands = discoverCards(doc, in.Source, base, in.URL, c.version)
	}
	if len(cands) == 0 {
		cands = tableCandidates(doc, base, in.URL, c.version)
	}
	if len(cands) == 0 && isJob {
		// Detail pages carry one posting and no list structure; the page
		// itself is the candidate and its URL is where to apply.
		cand := &candidate{result: domain.NewExtractionResult(in.URL, c.version)}
		cand.result.SetField(domain.FieldApplicationURL, in.URL, domain.FieldSourceDOM, "")
		cands = append(cands, cand)
	}

	if ctx.Err() != nil {
		return out
	}
	c.filler.fill(ctx, doc, base, cands, out)

	for _, cand := range cands {
		cand.result.IsJob = true
		cand.result.ClassifierScore = score
		out.Candidates = append(out.Candidates, cand.result)
	}

	return out
}

// jsonldCandidates wraps JSON-LD postings as scope-less candidates.
func jsonldCandidates(doc *goquery.Document, pageURL, version string, out *Output) []*candidate {
	results := extractJSONLD(doc, pageURL, version, out)
	cands := make([]*candidate, 0, len(results))
	for _, result := range results {
		cands = append(cands, &candidate{result: result})
	}

	return cands
}

// pageBaseURL parses the page URL for resolving relative links.
func pageBaseURL(raw string) *url.URL {
	base, err := url.Parse(raw)
	if err != nil {
		return nil
	}

	return base
}
