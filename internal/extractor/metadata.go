package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lyralabs/evidence-runtime/internal/cache"
	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/model"
)

// MetadataResolver resolves a DOI to a canonical Work/Author record via
// Crossref's public REST API. Structurally grounded on
// internal/github/entity_resolver.go's "resolve a reference to a canonical
// entity" shape, generalized from an internal-DB lookup to an external API
// call since no bibliographic-metadata client exists in the retrieval pack;
// net/http + encoding/json is used directly rather than inventing a client
// library (see DESIGN.md).
type MetadataResolver struct {
	httpClient *http.Client
	cache      *cache.Client // optional; nil disables caching
}

func NewMetadataResolver() *MetadataResolver {
	return &MetadataResolver{httpClient: http.DefaultClient}
}

// WithCache attaches a Redis-backed cache of past DOI resolutions, so a
// citation chased by two different tasks only hits Crossref once.
func (r *MetadataResolver) WithCache(c *cache.Client) *MetadataResolver {
	r.cache = c
	return r
}

type doiResolution struct {
	Work    *model.Work     `json:"work"`
	Authors []*model.Author `json:"authors"`
}

type crossrefResponse struct {
	Message struct {
		DOI     string `json:"DOI"`
		Title   []string `json:"title"`
		Container []string `json:"container-title"`
		Published struct {
			DateParts [][]int `json:"date-parts"`
		} `json:"published"`
		Author []struct {
			Given  string `json:"given"`
			Family string `json:"family"`
			ORCID  string `json:"ORCID"`
		} `json:"author"`
	} `json:"message"`
}

// ResolveDOI fetches Work and ordered Author records for a DOI
// (spec §4.3: "resolve bibliographic metadata via DOI when available").
func (r *MetadataResolver) ResolveDOI(ctx context.Context, doi string) (*model.Work, []*model.Author, error) {
	cacheKey := "doi:" + doi
	if r.cache != nil {
		var cached doiResolution
		if hit, err := r.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return cached.Work, cached.Authors, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.crossref.org/works/"+doi, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, nil, errors.TransientFetchError(err, doi)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil, errors.NotFoundError("doi", doi)
	}
	if resp.StatusCode >= 500 {
		return nil, nil, errors.TransientFetchError(fmt.Errorf("status %d", resp.StatusCode), doi)
	}
	if resp.StatusCode >= 400 {
		return nil, nil, errors.TerminalFetchError(fmt.Errorf("status %d", resp.StatusCode), doi)
	}

	var parsed crossrefResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, nil, errors.Wrap(err, errors.ExtractionFailed, errors.SeverityMedium, "decode crossref response")
	}

	canonicalID := "doi:" + doi
	work := &model.Work{CanonicalID: canonicalID, DOI: &doi}
	if len(parsed.Message.Container) > 0 {
		venue := parsed.Message.Container[0]
		work.Venue = &venue
	}
	if len(parsed.Message.Published.DateParts) > 0 && len(parsed.Message.Published.DateParts[0]) > 0 {
		year := parsed.Message.Published.DateParts[0][0]
		work.Year = &year
	}

	var authors []*model.Author
	for i, a := range parsed.Message.Author {
		name := fmt.Sprintf("%s %s", a.Given, a.Family)
		var orcid *string
		if a.ORCID != "" {
			orcid = &a.ORCID
		}
		authors = append(authors, &model.Author{
			CanonicalID: canonicalID,
			Position:    i,
			Name:        name,
			ORCID:       orcid,
		})
	}

	if r.cache != nil {
		_ = r.cache.Set(ctx, cacheKey, doiResolution{Work: work, Authors: authors})
	}

	return work, authors, nil
}
