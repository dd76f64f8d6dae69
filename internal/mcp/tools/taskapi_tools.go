package tools

import (
	"context"
	"time"

	"github.com/lyralabs/evidence-runtime/internal/model"
	"github.com/lyralabs/evidence-runtime/internal/store"
	"github.com/lyralabs/evidence-runtime/internal/taskapi"
)

// genericTool adapts one taskapi.API method to the mcp.Tool interface,
// grounded on the teacher's single-purpose get_risk_summary tool shape
// generalized to eleven operations sharing one adapter.
type genericTool struct {
	schema map[string]interface{}
	fn     func(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

func (t *genericTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	return t.fn(ctx, args)
}

func (t *genericTool) GetSchema() map[string]interface{} { return t.schema }

func strArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func strSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// strSlicePtrArg is strSliceArg but presence-aware: it returns nil when key
// is absent from args, and a non-nil pointer (possibly to an empty slice)
// when the caller explicitly supplied the argument, even as [].
func strSlicePtrArg(args map[string]interface{}, key string) *[]string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return &out
}

// NewCreateTaskTool implements create_task(hypothesis) (spec §4.7).
func NewCreateTaskTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"hypothesis": "string"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			id, err := api.CreateTask(ctx, strArg(args, "hypothesis"))
			if err != nil {
				return nil, err
			}
			return map[string]string{"task_id": id}, nil
		},
	}
}

// NewQueueTargetsTool implements queue_targets(task_id, targets[]) (spec §4.7).
func NewQueueTargetsTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"task_id": "string", "targets": "array"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			raw, _ := args["targets"].([]interface{})
			targets := make([]model.Target, 0, len(raw))
			for _, item := range raw {
				m, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				targets = append(targets, model.Target{
					Kind: model.TargetKind(strArg(m, "kind")),
					Text: strArg(m, "text"),
					URL:  strArg(m, "url"),
					DOI:  strArg(m, "doi"),
				})
			}
			n, err := api.QueueTargets(ctx, strArg(args, "task_id"), targets)
			if err != nil {
				return nil, err
			}
			return map[string]int{"accepted_count": n}, nil
		},
	}
}

// NewQueueReferenceCandidatesTool implements queue_reference_candidates (spec §4.7).
func NewQueueReferenceCandidatesTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"task_id": "string", "include_ids": "array", "exclude_ids": "array", "limit": "int", "dry_run": "bool"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			opts := taskapi.QueueReferenceCandidatesOptions{
				IncludeIDs: strSlicePtrArg(args, "include_ids"),
				ExcludeIDs: strSlicePtrArg(args, "exclude_ids"),
				Limit:      intArg(args, "limit", 0),
				DryRun:     boolArg(args, "dry_run"),
			}
			accepted, preview, err := api.QueueReferenceCandidates(ctx, strArg(args, "task_id"), opts)
			if err != nil {
				return nil, err
			}
			if opts.DryRun {
				return map[string]interface{}{"preview": preview}, nil
			}
			return map[string]interface{}{"accepted_count": accepted}, nil
		},
	}
}

// NewGetStatusTool implements get_status(task_id, wait, detail) (spec §4.7).
func NewGetStatusTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"task_id": "string", "wait": "int", "detail": "string"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			wait := time.Duration(intArg(args, "wait", 0)) * time.Second
			detail := taskapi.StatusDetail(strArg(args, "detail"))
			if detail == "" {
				detail = taskapi.DetailSummary
			}
			return api.GetStatus(ctx, strArg(args, "task_id"), wait, detail)
		},
	}
}

// NewStopTaskTool implements stop_task(task_id) (spec §4.7).
func NewStopTaskTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"task_id": "string"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			if err := api.StopTask(ctx, strArg(args, "task_id")); err != nil {
				return nil, err
			}
			return map[string]bool{"ok": true}, nil
		},
	}
}

// NewQueryViewTool implements query_view(name, task_id, limit, cursor) (spec §4.7).
func NewQueryViewTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"name": "string", "task_id": "string", "limit": "int", "cursor": "int"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			rows, err := api.QueryView(ctx, strArg(args, "name"), strArg(args, "task_id"), intArg(args, "limit", 100), intArg(args, "cursor", 0))
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"rows": rows}, nil
		},
	}
}

// NewQuerySQLTool implements query_sql(sql, options) (spec §4.7).
func NewQuerySQLTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"sql": "string", "limit": "int"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			rows, err := api.QuerySQL(ctx, strArg(args, "sql"), intArg(args, "limit", 100))
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"rows": rows}, nil
		},
	}
}

// NewVectorSearchTool implements vector_search(query, target, task_id, k) (spec §4.7).
func NewVectorSearchTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"query": "string", "task_id": "string", "k": "int"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			results, err := api.VectorSearch(ctx, strArg(args, "task_id"), strArg(args, "query"), intArg(args, "k", 10))
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"results": results}, nil
		},
	}
}

// NewGetAuthQueueTool implements get_auth_queue(task_id) (spec §4.7).
func NewGetAuthQueueTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"task_id": "string"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			entries, err := api.GetAuthQueue(ctx, strArg(args, "task_id"))
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"entries": entries}, nil
		},
	}
}

// NewResolveAuthTool implements resolve_auth(action, domain) (spec §4.7).
func NewResolveAuthTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"action": "string", "domain": "string"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			if err := api.ResolveAuth(ctx, strArg(args, "action"), strArg(args, "domain")); err != nil {
				return nil, err
			}
			return map[string]bool{"ok": true}, nil
		},
	}
}

// NewFeedbackTool implements feedback(action, ids, correction) (spec §4.7).
func NewFeedbackTool(api *taskapi.API) *genericTool {
	return &genericTool{
		schema: map[string]interface{}{"task_id": "string", "action": "string", "target_id": "string", "correction": "string"},
		fn: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			kind := store.FeedbackKind(strArg(args, "action"))
			if err := api.Feedback(ctx, strArg(args, "task_id"), kind, strArg(args, "target_id"), strArg(args, "correction")); err != nil {
				return nil, err
			}
			return map[string]bool{"ok": true}, nil
		},
	}
}
