// Package taskapi implements the Task API (C7): the single facade exposed
// to callers, wiring the Evidence Store, Fetch Pool, Extractor, NLI
// Verifier, Citation Ingestor, and Job Scheduler behind the eleven
// operations of spec §4.7. Grounded on internal/mcp/handler.go's pattern of
// one typed method per registered tool call.
package taskapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/browser"

	"github.com/lyralabs/evidence-runtime/internal/citation"
	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/extractor"
	"github.com/lyralabs/evidence-runtime/internal/fetch"
	"github.com/lyralabs/evidence-runtime/internal/llmsidecar"
	"github.com/lyralabs/evidence-runtime/internal/model"
	"github.com/lyralabs/evidence-runtime/internal/nli"
	"github.com/lyralabs/evidence-runtime/internal/scheduler"
	"github.com/lyralabs/evidence-runtime/internal/store"
)

// API is the Task API facade.
type API struct {
	Store     *store.Store
	Vectors   *store.VectorIndex
	Fetch     *fetch.Pool
	Extractor *extractor.Extractor
	Verifier  *nli.Verifier
	Citation  *citation.Ingestor
	Scheduler *scheduler.Scheduler
	Embedder  *llmsidecar.EmbeddingProvider
	Metadata  *extractor.MetadataResolver
	DefaultBudget int
}

// CreateTask implements create_task(hypothesis) -> {task_id} (spec §4.7).
func (a *API) CreateTask(ctx context.Context, hypothesis string) (string, error) {
	t, err := a.Store.CreateTask(ctx, hypothesis, a.DefaultBudget)
	if err != nil {
		return "", err
	}
	return t.TaskID, nil
}

// QueueTargets implements queue_targets(task_id, targets[]) -> {accepted_count}.
func (a *API) QueueTargets(ctx context.Context, taskID string, targets []model.Target) (int, error) {
	task, err := a.Store.GetTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if task.Status == model.TaskStopped {
		return 0, errors.TaskStoppedError(taskID)
	}
	if task.BudgetRemaining <= 0 {
		return 0, errors.BudgetExhaustedError(taskID)
	}

	accepted := 0
	for _, t := range targets {
		switch t.Kind {
		case model.TargetQuery:
			if t.Text == "" {
				return accepted, errors.InvalidArgumentError("query target requires text")
			}
			if _, err := a.Store.EnqueueJob(ctx, taskID, model.PhaseExploration, model.JobFetchSERP, mustJSON(t)); err != nil {
				return accepted, err
			}
		case model.TargetURL:
			if t.URL == "" {
				return accepted, errors.InvalidArgumentError("url target requires url")
			}
			if _, err := a.Store.EnqueueJob(ctx, taskID, model.PhaseExploration, model.JobFetchURL, mustJSON(t)); err != nil {
				return accepted, err
			}
		case model.TargetDOI:
			if t.DOI == "" {
				return accepted, errors.InvalidArgumentError("doi target requires doi")
			}
			if _, err := a.Store.EnqueueJob(ctx, taskID, model.PhaseExploration, model.JobFetchDOI, mustJSON(t)); err != nil {
				return accepted, err
			}
		default:
			return accepted, errors.InvalidArgumentErrorf("unknown target kind: %s", t.Kind)
		}
		accepted++
	}
	return accepted, nil
}

// QueueReferenceCandidatesOptions mirrors the mutually-exclusive
// include/exclude option set of spec §4.7. IncludeIDs/ExcludeIDs are
// pointers so a caller can distinguish "filter not set" (nil) from
// "filter set to an empty list" ([]string{}) -- both are indistinguishable
// once collapsed to a plain slice, and spec §8 requires rejecting a caller
// who sets both, even to empty lists.
type QueueReferenceCandidatesOptions struct {
	IncludeIDs *[]string
	ExcludeIDs *[]string
	Limit      int
	DryRun     bool
}

// QueueReferenceCandidates implements queue_reference_candidates: promotes
// unresolved citation candidates into exploration targets, with
// citation_chase reason (spec §4.5, §4.7).
func (a *API) QueueReferenceCandidates(ctx context.Context, taskID string, opts QueueReferenceCandidatesOptions) (int, []model.CitationCandidate, error) {
	if opts.IncludeIDs != nil && opts.ExcludeIDs != nil {
		return 0, nil, errors.InvalidArgumentError("include_ids and exclude_ids are mutually exclusive")
	}

	candidates, err := a.Store.UnresolvedCitationCandidates(ctx, taskID)
	if err != nil {
		return 0, nil, err
	}

	var includeIDs, excludeIDs []string
	if opts.IncludeIDs != nil {
		includeIDs = *opts.IncludeIDs
	}
	if opts.ExcludeIDs != nil {
		excludeIDs = *opts.ExcludeIDs
	}
	include := toSet(includeIDs)
	exclude := toSet(excludeIDs)

	var selected []*model.CitationCandidate
	for _, c := range candidates {
		if len(include) > 0 && !include[c.EdgeID] {
			continue
		}
		if exclude[c.EdgeID] {
			continue
		}
		selected = append(selected, c)
		if opts.Limit > 0 && len(selected) >= opts.Limit {
			break
		}
	}

	if opts.DryRun {
		preview := make([]model.CitationCandidate, 0, len(selected))
		for _, c := range selected {
			preview = append(preview, *c)
		}
		return 0, preview, nil
	}

	accepted := 0
	for _, c := range selected {
		target := model.Target{Reason: model.ReasonCitationChase}
		if c.CandidateDOI != nil {
			target.Kind = model.TargetDOI
			target.DOI = *c.CandidateDOI
		} else if c.CandidateURL != nil {
			target.Kind = model.TargetURL
			target.URL = *c.CandidateURL
		} else {
			continue
		}
		if _, err := a.Store.EnqueueJob(ctx, taskID, model.PhaseExploration, jobKindFor(target.Kind), mustJSON(target)); err != nil {
			return accepted, nil, err
		}
		if err := a.Store.ResolveCitationCandidate(ctx, c.EdgeID); err != nil {
			return accepted, nil, err
		}
		accepted++
	}
	return accepted, nil, nil
}

func jobKindFor(kind model.TargetKind) model.JobKind {
	switch kind {
	case model.TargetURL:
		return model.JobFetchURL
	case model.TargetDOI:
		return model.JobFetchDOI
	default:
		return model.JobFetchSERP
	}
}

// StatusDetail selects the shape of GetStatus's response (spec §4.7).
type StatusDetail string

const (
	DetailSummary StatusDetail = "summary"
	DetailFull    StatusDetail = "full"
)

// Status is the get_status response shape.
type Status struct {
	TaskID                 string                `json:"task_id"`
	BudgetRemainingPercent float64               `json:"budget_remaining_percent"`
	Milestones             *scheduler.Milestones `json:"milestones"`
	Metrics                *store.TaskMetrics    `json:"metrics,omitempty"`
}

// GetStatus implements get_status(task_id, wait>=0, detail). wait bounds
// server-side polling for a milestone change before returning (spec §4.7,
// §5: "cooperatively releasing resources").
func (a *API) GetStatus(ctx context.Context, taskID string, wait time.Duration, detail StatusDetail) (*Status, error) {
	task, err := a.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(wait)
	m, err := a.Scheduler.ComputeMilestones(ctx, taskID)
	if err != nil {
		return nil, err
	}

	for wait > 0 && len(m.WaitingFor) > 0 && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, errors.CancelledError("")
		case <-time.After(200 * time.Millisecond):
		}
		m, err = a.Scheduler.ComputeMilestones(ctx, taskID)
		if err != nil {
			return nil, err
		}
	}

	status := &Status{
		TaskID:                 taskID,
		BudgetRemainingPercent: task.BudgetRemainingPercent(),
		Milestones:             m,
	}

	if detail == DetailFull {
		metrics, err := a.Store.TaskMetrics(ctx, taskID)
		if err != nil {
			return nil, err
		}
		status.Metrics = metrics
	}

	return status, nil
}

// StopTask implements stop_task(task_id): idempotent transition to stopped,
// discarding queued jobs (spec §4.6, §4.7).
func (a *API) StopTask(ctx context.Context, taskID string) error {
	if err := a.Store.StopTask(ctx, taskID); err != nil {
		return err
	}
	_, err := a.Store.DiscardQueuedJobs(ctx, taskID)
	return err
}

// QueryView implements query_view(name, task_id, limit, cursor) (spec §4.1, §4.7).
func (a *API) QueryView(ctx context.Context, name, taskID string, limit, offset int) ([]map[string]interface{}, error) {
	return a.Store.QueryView(ctx, name, taskID, limit, offset)
}

// QuerySQL implements query_sql(sql, options) (spec §4.7).
func (a *API) QuerySQL(ctx context.Context, sql string, limit int) ([]map[string]interface{}, error) {
	return a.Store.QuerySQL(ctx, sql, limit)
}

// VectorSearch implements vector_search(query, target, task_id, k) (spec §4.1, §4.7).
func (a *API) VectorSearch(ctx context.Context, taskID, query string, k int) ([]store.ScoredFragment, error) {
	vec, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return a.Vectors.Search(ctx, taskID, vec, k)
}

// GetAuthQueue implements get_auth_queue(task_id) (spec §4.7).
func (a *API) GetAuthQueue(ctx context.Context, taskID string) ([]store.AuthQueueEntry, error) {
	return a.Store.GetAuthQueue(ctx, taskID)
}

// ResolveAuth implements resolve_auth(action, domain). "open" launches the
// domain's login page in a local browser for a human to complete the
// challenge manually (grounded on cmd/crisk/login.go's browser-assisted
// flow); "complete" unblocks the domain so queued jobs resume (spec §4.7).
func (a *API) ResolveAuth(ctx context.Context, action, domain string) error {
	switch action {
	case "open":
		return browser.OpenURL("https://" + domain)
	case "complete":
		return a.Store.ResolveAuth(ctx, domain)
	default:
		return errors.InvalidArgumentErrorf("unsupported resolve_auth action: %s", action)
	}
}

// Feedback implements feedback(action, ids, correction) (spec §4.7).
func (a *API) Feedback(ctx context.Context, taskID string, action store.FeedbackKind, targetID, correction string) error {
	return a.Store.RecordFeedback(ctx, taskID, action, targetID, correction)
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
