package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/jonesrussell/jobcrawl/internal/domain"
	"github.com/jonesrussell/jobcrawl/internal/logger"
)

// feedExtractor adapts RSS and Atom feeds to the cascade. Each item maps
// directly to a candidate; the label, regex, and AI stages then run over the
// item's own description fragment.
type feedExtractor struct {
	filler  *gapFiller
	version string
	log     logger.Interface
}

func (f *feedExtractor) extract(ctx context.Context, in Input) *Output {
	out := &Output{}

	feed, err := gofeed.NewParser().ParseString(string(in.Body))
	if err != nil {
		out.addStageError("feed", domain.NewPipelineError(domain.ErrParseSchemaMismatch, false, err))
		return out
	}

	base := pageBaseURL(in.URL)
	cands := make([]*candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if cand := feedCandidate(item, base, in.URL, f.version); cand != nil {
			cands = append(cands, cand)
		}
	}

	f.filler.fill(ctx, nil, base, cands, out)

	for _, cand := range cands {
		cand.result.IsJob = true
		out.Candidates = append(out.Candidates, cand.result)
	}

	return out
}

// feedCandidate maps one feed item to a candidate scoped to the item's
// description fragment.
func feedCandidate(item *gofeed.Item, base *url.URL, pageURL, version string) *candidate {
	if item == nil {
		return nil
	}

	link := resolveURL(base, item.Link)
	resultURL := link
	if resultURL == "" {
		resultURL = pageURL
	}

	result := domain.NewExtractionResult(resultURL, version)
	result.SetField(domain.FieldTitle, strings.TrimSpace(item.Title), domain.FieldSourceDOM, "")
	result.SetField(domain.FieldApplicationURL, link, domain.FieldSourceDOM, truncateSnippet(item.Link))
	result.SetField(domain.FieldPostedOn, feedPublished(item), domain.FieldSourceDOM, "")

	// content:encoded carries the full body when present; description is
	// often a teaser.
	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}
	frag, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return &candidate{result: result, scope: nil}
	}

	result.SetField(domain.FieldDescription, strings.TrimSpace(frag.Text()), domain.FieldSourceDOM, "")

	return &candidate{result: result, scope: frag.Selection}
}

// feedPublished returns the item's publication date as YYYY-MM-DD, falling
// back to the raw string for the normalizer.
func feedPublished(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC().Format("2006-01-02")
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC().Format("2006-01-02")
	}

	return strings.TrimSpace(item.Published)
}
