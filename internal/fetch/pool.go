// Package fetch implements the Fetch Pool (C2): per-domain rate-limited,
// concurrency-capped retrieval of SERP queries, URLs, and DOIs, with retry
// classification and auth-block tracking. Grounded on
// internal/github/client.go's rate.Limiter + errgroup worker-pool pattern,
// generalized from a single GitHub API host to an arbitrary per-domain pool
// (spec §4.2).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/model"
)

// Result is the outcome of a single fetch.
type Result struct {
	URL         string
	CanonicalID string
	Domain      string
	Title       string
	Body        []byte
	ContentType string
	FetchedAt   time.Time
}

// Config controls per-domain concurrency/rate and retry policy (spec §4.2).
type Config struct {
	PerDomainConcurrency int
	PerDomainRate        float64
	Timeout              time.Duration
	MaxAttempts          int
}

// DomainState tracks the rate limiter and active-fetch semaphore for one
// domain; domainStates are created lazily and kept for the process lifetime
// (spec §9: "per-domain fetch state is process-wide").
type domainState struct {
	limiter *rate.Limiter
	sem     chan struct{}
}

// Pool is the Fetch Pool. http.Client is shared; per-domain state is
// isolated so a slow or blocked domain never starves others.
type Pool struct {
	cfg    Config
	client *http.Client

	mu      sync.Mutex
	domains map[string]*domainState

	// AuthBlockHook is invoked when a fetch is classified as an auth
	// challenge (401/403/429 treated as auth-adjacent per spec §4.2); wired
	// to store.MarkAuthBlocked by the caller.
	AuthBlockHook func(ctx context.Context, domain string) error
	// SuccessHook is invoked after every non-blocked successful fetch;
	// wired to store.MarkFetchSuccess.
	SuccessHook func(ctx context.Context, domain string) error

	github *githubBackend
}

// New constructs a Pool with the given configuration. githubToken may be
// empty (unauthenticated, low rate limit).
func New(cfg Config, githubToken string) *Pool {
	if cfg.PerDomainConcurrency <= 0 {
		cfg.PerDomainConcurrency = 4
	}
	if cfg.PerDomainRate <= 0 {
		cfg.PerDomainRate = 2.0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Pool{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		domains: make(map[string]*domainState),
		github:  newGithubBackend(githubToken),
	}
}

func (p *Pool) stateFor(domain string) *domainState {
	p.mu.Lock()
	defer p.mu.Unlock()
	ds, ok := p.domains[domain]
	if !ok {
		ds = &domainState{
			limiter: rate.NewLimiter(rate.Limit(p.cfg.PerDomainRate), 1),
			sem:     make(chan struct{}, p.cfg.PerDomainConcurrency),
		}
		p.domains[domain] = ds
	}
	return ds
}

// FetchTarget resolves a Target into an HTTP request and executes it,
// classifying the outcome per spec §4.2's retryable/terminal/auth-blocked
// taxonomy.
func (p *Pool) FetchTarget(ctx context.Context, t model.Target) (*Result, error) {
	switch t.Kind {
	case model.TargetURL:
		return p.FetchURL(ctx, t.URL)
	case model.TargetDOI:
		return p.FetchURL(ctx, "https://doi.org/"+t.DOI)
	case model.TargetQuery:
		return nil, errors.InvalidArgumentError("query targets must be resolved to URLs by a SERP backend before fetching")
	default:
		return nil, errors.InvalidArgumentErrorf("unknown target kind: %s", t.Kind)
	}
}

// FetchURL performs a rate-limited, concurrency-capped GET, retrying
// transient failures up to MaxAttempts (spec §4.2, §7: TransientFetch
// disposition is Retry).
func (p *Pool) FetchURL(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.InvalidArgumentErrorf("invalid url %q: %v", rawURL, err)
	}
	domain := u.Hostname()

	if domain == "github.com" || domain == "www.github.com" {
		// Only a bare owner/repo path goes through the API; issue/PR and other
		// deeper pages take the generic HTML fetch below.
		if owner, repo, ok := ownerRepoFromPath(u.Path); ok && strings.Count(strings.Trim(u.Path, "/"), "/") == 1 {
			if res, err := p.github.fetchRepoReadme(ctx, owner, repo); err == nil {
				if p.SuccessHook != nil {
					_ = p.SuccessHook(ctx, domain)
				}
				return res, nil
			}
			// README lookup failed: fall through to generic HTML fetch
		}
	}

	ds := p.stateFor(domain)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if err := ds.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, errors.Cancelled, errors.SeverityMedium, "rate limiter wait")
		}

		select {
		case ds.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, errors.CancelledError("")
		}
		res, classErr := p.doFetch(ctx, rawURL, domain)
		<-ds.sem

		if classErr == nil {
			if p.SuccessHook != nil {
				_ = p.SuccessHook(ctx, domain)
			}
			return res, nil
		}

		lastErr = classErr
		switch errors.GetType(classErr) {
		case errors.AuthBlocked:
			if p.AuthBlockHook != nil {
				_ = p.AuthBlockHook(ctx, domain)
			}
			return nil, classErr // parked, not retried by the pool itself
		case errors.TerminalFetch:
			return nil, classErr // no point retrying a 404
		case errors.TransientFetch:
			if attempt < p.cfg.MaxAttempts {
				backoff := time.Duration(attempt) * 500 * time.Millisecond
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, errors.CancelledError("")
				}
				continue
			}
		}
	}
	return nil, lastErr
}

// doFetch executes one HTTP attempt and classifies the outcome.
func (p *Pool) doFetch(ctx context.Context, rawURL, domain string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.TerminalFetchError(err, rawURL)
	}
	req.Header.Set("User-Agent", "lyra-evidence-runtime/1.0 (+research agent)")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.TransientFetchError(err, rawURL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.AuthBlockedError(domain)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, errors.TerminalFetchError(fmt.Errorf("status %d", resp.StatusCode), rawURL)
	case resp.StatusCode >= 500:
		return nil, errors.TransientFetchError(fmt.Errorf("status %d", resp.StatusCode), rawURL)
	case resp.StatusCode >= 400:
		return nil, errors.TerminalFetchError(fmt.Errorf("status %d", resp.StatusCode), rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB cap
	if err != nil {
		return nil, errors.TransientFetchError(err, rawURL)
	}

	return &Result{
		URL:         rawURL,
		CanonicalID: CanonicalizeURL(rawURL),
		Domain:      domain,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		FetchedAt:   time.Now(),
	}, nil
}
