// Package extractor implements the Extractor (C3): turns a fetched Page's
// raw body into Fragments, resolves Work/Author metadata, and extracts
// candidate Claims via the LLM sidecar (spec §4.3). Fragmentation is
// grounded on the retrieval pack's HTML-to-structured-text pattern
// (PuerkitoBio/goquery, as used by the docs-crawler reference repo for
// turning rendered HTML into clean text blocks); nothing in the teacher
// itself does HTML parsing.
package extractor

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/llmsidecar"
	"github.com/lyralabs/evidence-runtime/internal/model"
)

// Extractor turns page bodies into fragments and claims.
type Extractor struct {
	sidecar *llmsidecar.Client
}

// New constructs an Extractor backed by a sidecar client.
func New(sidecar *llmsidecar.Client) *Extractor {
	return &Extractor{sidecar: sidecar}
}

// Fragmentize splits an HTML (or plain-text) document into heading-scoped
// fragments, each truncated to model.FragmentMaxLen (spec §3, §8).
func (e *Extractor) Fragmentize(contentType string, body []byte) ([]*model.Fragment, error) {
	if strings.Contains(contentType, "html") {
		return fragmentizeHTML(body)
	}
	return fragmentizePlainText(string(body)), nil
}

func fragmentizeHTML(body []byte) ([]*model.Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, errors.Wrap(err, errors.ExtractionFailed, errors.SeverityMedium, "parse HTML body")
	}

	var frags []*model.Fragment
	heading := ""
	position := 0

	doc.Find("h1, h2, h3, p, li, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1", "h2", "h3":
			heading = text
			return
		}
		frags = append(frags, &model.Fragment{
			HeadingContext: heading,
			Text:           model.TruncateFragment(text),
			Position:       position,
		})
		position++
	})

	if len(frags) == 0 {
		return nil, errors.ExtractionFailedError("")
	}
	return frags, nil
}

// fragmentizePlainText splits on blank lines (paragraph boundaries) as a
// fallback for non-HTML documents (e.g. plain-text DOI abstracts).
func fragmentizePlainText(body string) []*model.Fragment {
	paragraphs := strings.Split(body, "\n\n")
	var frags []*model.Fragment
	position := 0
	for _, p := range paragraphs {
		text := strings.TrimSpace(p)
		if text == "" {
			continue
		}
		frags = append(frags, &model.Fragment{
			Text:     model.TruncateFragment(text),
			Position: position,
		})
		position++
	}
	return frags
}

// ExtractClaims asks the sidecar for claims in a fragment relevant to
// hypothesis (spec §4.3).
func (e *Extractor) ExtractClaims(ctx context.Context, hypothesis string, fragment *model.Fragment) ([]llmsidecar.ExtractedClaim, error) {
	return e.sidecar.ExtractClaims(ctx, hypothesis, fragment.Text)
}
