package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"

	"github.com/lyralabs/evidence-runtime/internal/errors"
)

// githubBackend fetches github.com targets through the GitHub API instead
// of scraping HTML, grounded on internal/github/client.go's
// NewClient/FetchRepository pattern. Used by Pool.FetchURL whenever the
// target domain is github.com and the path is a bare owner/repo reference;
// everything else (issue/PR pages included) falls back to the generic HTTP
// path.
type githubBackend struct {
	client *github.Client
}

func newGithubBackend(token string) *githubBackend {
	c := github.NewClient(nil)
	if token != "" {
		c = c.WithAuthToken(token)
	}
	return &githubBackend{client: c}
}

// ownerRepoFromPath extracts "owner/repo" from a github.com URL path, or
// ok=false if the path doesn't match that shape.
func ownerRepoFromPath(path string) (owner, repo string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// fetchRepoReadme retrieves a repository's README as fragment-ready text,
// used as a faithful source when a target URL references a GitHub repo
// directly (spec §4.2: "targets may resolve to any HTTP-reachable
// document"; the GitHub API gives a cleaner document than scraping the
// rendered HTML page).
func (b *githubBackend) fetchRepoReadme(ctx context.Context, owner, repo string) (*Result, error) {
	readme, _, err := b.client.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		return nil, errors.TerminalFetchError(err, fmt.Sprintf("github.com/%s/%s", owner, repo))
	}
	content, err := readme.GetContent()
	if err != nil {
		return nil, errors.TerminalFetchError(err, readme.GetHTMLURL())
	}
	return &Result{
		URL:         readme.GetHTMLURL(),
		CanonicalID: CanonicalizeURL(fmt.Sprintf("https://github.com/%s/%s", owner, repo)),
		Domain:      "github.com",
		Title:       fmt.Sprintf("%s/%s", owner, repo),
		Body:        []byte(content),
		ContentType: "text/markdown",
		FetchedAt:   time.Now(),
	}, nil
}
