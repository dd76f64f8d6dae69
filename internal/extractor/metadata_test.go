package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyralabs/evidence-runtime/internal/errors"
)

// rewriteTransport redirects every request to srv regardless of the
// requested host, so ResolveDOI's hardcoded Crossref URL can be exercised
// against a real local HTTP server instead of the live API.
type rewriteTransport struct {
	target *url.URL
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func resolverAgainst(t *testing.T, srv *httptest.Server) *MetadataResolver {
	t.Helper()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &MetadataResolver{httpClient: &http.Client{Transport: &rewriteTransport{target: target}}}
}

func TestResolveDOIParsesCrossrefWork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"message": {
				"DOI": "10.1000/xyz",
				"title": ["A Study of Evidence"],
				"container-title": ["Journal of Examples"],
				"published": {"date-parts": [[2021, 6]]},
				"author": [{"given": "Ada", "family": "Lovelace", "ORCID": "0000-0001-2345-6789"}]
			}
		}`))
	}))
	defer srv.Close()

	r := resolverAgainst(t, srv)
	work, authors, err := r.ResolveDOI(context.Background(), "10.1000/xyz")
	require.NoError(t, err)
	assert.Equal(t, "doi:10.1000/xyz", work.CanonicalID)
	require.NotNil(t, work.Venue)
	assert.Equal(t, "Journal of Examples", *work.Venue)
	require.NotNil(t, work.Year)
	assert.Equal(t, 2021, *work.Year)

	require.Len(t, authors, 1)
	assert.Equal(t, "Ada Lovelace", authors[0].Name)
	require.NotNil(t, authors[0].ORCID)
}

func TestResolveDOINotFoundReturnsNotFoundError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := resolverAgainst(t, srv)
	_, _, err := r.ResolveDOI(context.Background(), "10.1000/missing")
	require.Error(t, err)
	assert.Equal(t, errors.NotFound, errors.GetType(err))
}

func TestResolveDOIServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := resolverAgainst(t, srv)
	_, _, err := r.ResolveDOI(context.Background(), "10.1000/flaky")
	require.Error(t, err)
	assert.Equal(t, errors.TransientFetch, errors.GetType(err))
}
