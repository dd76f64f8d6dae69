// Package citation implements the Citation Ingestor (C5): parses a page's
// reference list, emits CITES edges to already-known pages/works, and
// records CitationCandidates for references that don't yet resolve to a
// fetched page (spec §4.5).
package citation

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/lyralabs/evidence-runtime/internal/model"
	"github.com/lyralabs/evidence-runtime/internal/store"
)

// Ingestor parses references out of a page's fragments and links them into
// the evidence graph.
type Ingestor struct {
	store *store.Store
}

func New(s *store.Store) *Ingestor {
	return &Ingestor{store: s}
}

// doiPattern matches bare DOIs embedded in reference-list text.
var doiPattern = regexp.MustCompile(`\b10\.\d{4,9}/[^\s"'<>]+\b`)

// urlPattern matches bare http(s) URLs.
var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// ParsedReference is one reference extracted from a page.
type ParsedReference struct {
	DOI     string
	URL     string
	Context string
}

// ParseReferences scans fragment text for DOI/URL-shaped references (spec
// §4.5: "reference parsing identifies DOI or URL citations within fragment
// text, typically in a trailing bibliography section").
func ParseReferences(fragments []*model.Fragment) []ParsedReference {
	var refs []ParsedReference
	seen := make(map[string]bool)
	for _, f := range fragments {
		for _, doi := range doiPattern.FindAllString(f.Text, -1) {
			doi = strings.TrimRight(doi, ".,;)")
			if seen[doi] {
				continue
			}
			seen[doi] = true
			refs = append(refs, ParsedReference{DOI: doi, Context: f.HeadingContext})
		}
		for _, u := range urlPattern.FindAllString(f.Text, -1) {
			u = strings.TrimRight(u, ".,;)")
			if seen[u] {
				continue
			}
			seen[u] = true
			refs = append(refs, ParsedReference{URL: u, Context: f.HeadingContext})
		}
	}
	return refs
}

// Ingest parses a page's fragments, resolving each reference to an existing
// page by canonical_id when possible (CITES edge), or recording an
// unresolved CitationCandidate for the citation-chase phase to queue as a
// Target (spec §4.5, §4.6 "citation" phase).
func (ing *Ingestor) Ingest(ctx context.Context, taskID, citingPageID string, fragments []*model.Fragment) (citesEmitted, candidatesQueued int, err error) {
	refs := ParseReferences(fragments)

	for _, ref := range refs {
		var canonicalID string
		if ref.DOI != "" {
			canonicalID = "doi:" + ref.DOI
		} else {
			canonicalID = canonicalizeForLookup(ref.URL)
		}

		targetPage, lookupErr := ing.store.FindPageByCanonicalID(ctx, canonicalID)
		ctxCopy := ref.Context
		if lookupErr == nil && targetPage != nil {
			edge := &model.Edge{
				SourceType:      model.EndpointPage,
				SourceID:        citingPageID,
				TargetType:      model.EndpointPage,
				TargetID:        targetPage.PageID,
				Relation:        model.RelationCites,
				CitationContext: &ctxCopy,
			}
			if _, err := ing.store.InsertEdge(ctx, edge); err != nil {
				return citesEmitted, candidatesQueued, err
			}
			citesEmitted++
			continue
		}

		cand := &model.CitationCandidate{
			EdgeID:          uuid.NewString(),
			TaskID:          taskID,
			CitingPageID:    citingPageID,
			CitationContext: &ctxCopy,
		}
		if ref.DOI != "" {
			cand.CandidateDOI = &ref.DOI
		} else {
			cand.CandidateURL = &ref.URL
		}
		if err := ing.store.InsertCitationCandidate(ctx, cand); err != nil {
			return citesEmitted, candidatesQueued, err
		}
		candidatesQueued++
	}

	return citesEmitted, candidatesQueued, nil
}

func canonicalizeForLookup(u string) string {
	return strings.TrimSuffix(strings.ToLower(u), "/")
}
