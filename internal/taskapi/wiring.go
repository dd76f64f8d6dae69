package taskapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/model"
	"github.com/lyralabs/evidence-runtime/internal/scheduler"
)

// SearchBackend resolves a free-text query target to a page of search-result
// URLs (spec §6 external collaborator: "web-search backend search(query)").
// The runtime has no opinion on which provider backs this; it is supplied
// at wiring time by the caller (e.g. a hosted search API client).
type SearchBackend interface {
	Search(ctx context.Context, query string) (urls []string, err error)
}

// RegisterHandlers wires every job kind the Job Scheduler dispatches to the
// Fetch Pool, Extractor, NLI Verifier, and Citation Ingestor (spec §4.6's
// exploration -> verification -> citation pipeline).
func (a *API) RegisterHandlers(search SearchBackend) {
	a.Scheduler.RegisterHandler(model.JobFetchSERP, a.handleFetchSERP(search))
	a.Scheduler.RegisterHandler(model.JobFetchURL, a.handleFetchURL)
	a.Scheduler.RegisterHandler(model.JobFetchDOI, a.handleFetchDOI)
	a.Scheduler.RegisterHandler(model.JobExtract, a.handleExtract)
	a.Scheduler.RegisterHandler(model.JobVerifyClaim, a.handleVerifyClaim)
	a.Scheduler.RegisterHandler(model.JobParseCitations, a.handleParseCitations)
}

func (a *API) handleFetchSERP(search SearchBackend) scheduler.Handler {
	return func(ctx context.Context, job *model.Job) error {
		if search == nil {
			return errors.New(errors.TerminalFetch, errors.SeverityMedium, "no search backend configured")
		}
		var t model.Target
		if err := json.Unmarshal([]byte(job.Payload), &t); err != nil {
			return errors.InvalidArgumentErrorf("fetch_serp payload: %v", err)
		}
		urls, err := search.Search(ctx, t.Text)
		if err != nil {
			return err
		}
		for _, u := range urls {
			if err := a.checkBudget(ctx, job.TaskID); err != nil {
				return err
			}
			sub := model.Target{Kind: model.TargetURL, URL: u, Reason: model.ReasonManual}
			if _, err := a.Store.EnqueueJob(ctx, job.TaskID, model.PhaseExploration, model.JobFetchURL, mustJSON(sub)); err != nil {
				return err
			}
		}
		return nil
	}
}

func (a *API) handleFetchURL(ctx context.Context, job *model.Job) error {
	var t model.Target
	if err := json.Unmarshal([]byte(job.Payload), &t); err != nil {
		return errors.InvalidArgumentErrorf("fetch_url payload: %v", err)
	}
	return a.fetchAndStage(ctx, job.TaskID, t)
}

func (a *API) handleFetchDOI(ctx context.Context, job *model.Job) error {
	var t model.Target
	if err := json.Unmarshal([]byte(job.Payload), &t); err != nil {
		return errors.InvalidArgumentErrorf("fetch_doi payload: %v", err)
	}

	work, authors, err := a.Metadata.ResolveDOI(ctx, t.DOI)
	if err == nil && work != nil {
		if err := a.Store.UpsertWork(ctx, work); err != nil {
			return err
		}
		if err := a.Store.ReplaceAuthors(ctx, work.CanonicalID, authors); err != nil {
			return err
		}
	}
	return a.fetchAndStage(ctx, job.TaskID, t)
}

// fetchAndStage fetches a URL/DOI target, upserts the resulting page,
// decrements the task's budget for the completed fetch, and enqueues an
// extract job for it (spec §4.2, §4.6).
func (a *API) fetchAndStage(ctx context.Context, taskID string, t model.Target) error {
	res, err := a.Fetch.FetchTarget(ctx, t)
	if err != nil {
		return err
	}

	sum := sha256.Sum256(res.Body)
	page := &model.Page{
		URL:         res.URL,
		CanonicalID: res.CanonicalID,
		Domain:      res.Domain,
		Title:       res.Title,
		FetchedAt:   res.FetchedAt,
		ContentHash: hex.EncodeToString(sum[:]),
	}
	pageID, err := a.Store.UpsertPage(ctx, page)
	if err != nil {
		return err
	}

	if _, err := a.Store.DecrementBudget(ctx, taskID, 1); err != nil {
		return err
	}

	payload := extractPayload{TaskID: taskID, PageID: pageID, CanonicalID: page.CanonicalID, ContentType: res.ContentType, Body: res.Body}
	_, err = a.Store.EnqueueJob(ctx, taskID, model.PhaseExploration, model.JobExtract, mustJSON(payload))
	return err
}

// checkBudget rejects enqueuing new exploration work once a task's budget
// has been exhausted by completed fetches (spec §4.6, §8: a >0 -> 0 budget
// transition rejects subsequent exploration).
func (a *API) checkBudget(ctx context.Context, taskID string) error {
	task, err := a.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.BudgetRemaining <= 0 {
		return errors.BudgetExhaustedError(taskID)
	}
	return nil
}

// extractPayload carries a fetched page's raw body into the extract job,
// since the body itself is not persisted as a column (spec §3: only
// fragments/claims are durable; raw bodies are transient).
type extractPayload struct {
	TaskID      string `json:"task_id"`
	PageID      string `json:"page_id"`
	CanonicalID string `json:"canonical_id"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

func (a *API) handleExtract(ctx context.Context, job *model.Job) error {
	var p extractPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return errors.InvalidArgumentErrorf("extract payload: %v", err)
	}

	frags, err := a.Extractor.Fragmentize(p.ContentType, p.Body)
	if err != nil {
		return err
	}
	if err := a.Store.InsertFragments(ctx, p.PageID, frags); err != nil {
		return err
	}

	task, err := a.Store.GetTask(ctx, p.TaskID)
	if err != nil {
		return err
	}

	for _, f := range frags {
		claims, err := a.Extractor.ExtractClaims(ctx, task.Hypothesis, f)
		if err != nil {
			return err
		}
		for _, c := range claims {
			claimID, wasNew, err := a.Store.InsertClaim(ctx, p.TaskID, c.Text, f.FragmentID)
			if err != nil {
				return err
			}
			if !wasNew {
				if err := a.Store.ReverifyOnNewOrigin(ctx, claimID, p.CanonicalID); err != nil {
					return err
				}
			}
			if _, err := a.Store.EnqueueJob(ctx, p.TaskID, model.PhaseVerification, model.JobVerifyClaim, mustJSON(verifyPayload{ClaimID: claimID, ClaimText: c.Text})); err != nil {
				return err
			}
		}
		vec, err := a.Embedder.Embed(ctx, f.Text)
		if err == nil {
			_ = a.Vectors.Put(ctx, p.TaskID, f.FragmentID, vec)
		}
	}

	_, err = a.Store.EnqueueJob(ctx, p.TaskID, model.PhaseCitation, model.JobParseCitations, mustJSON(citationPayload{TaskID: p.TaskID, PageID: p.PageID}))
	return err
}

type citationPayload struct {
	TaskID string `json:"task_id"`
	PageID string `json:"page_id"`
}

type verifyPayload struct {
	ClaimID   string `json:"claim_id"`
	ClaimText string `json:"claim_text"`
}

func (a *API) handleVerifyClaim(ctx context.Context, job *model.Job) error {
	var p verifyPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return errors.InvalidArgumentErrorf("verify_claim payload: %v", err)
	}
	_, err := a.Verifier.VerifyClaim(ctx, job.TaskID, p.ClaimID, p.ClaimText)
	return err
}

func (a *API) handleParseCitations(ctx context.Context, job *model.Job) error {
	var p citationPayload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return errors.InvalidArgumentErrorf("parse_citations payload: %v", err)
	}
	frags, err := a.Store.FragmentsByPage(ctx, p.PageID)
	if err != nil {
		return err
	}
	_, _, err = a.Citation.Ingest(ctx, p.TaskID, p.PageID, frags)
	return err
}
