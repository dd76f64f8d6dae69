// Package scheduler implements the Job Scheduler (C6): per-phase worker
// pools that claim, execute, and retry jobs, compute phase milestones, and
// honor task cancellation (spec §4.6). Worker-pool fan-out is grounded on
// internal/ingestion/orchestrator.go's errgroup.WithContext pattern,
// generalized from a fixed set of parallel save calls to N long-lived
// workers pulling from a shared queue per phase.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lyralabs/evidence-runtime/internal/errors"
	"github.com/lyralabs/evidence-runtime/internal/model"
	"github.com/lyralabs/evidence-runtime/internal/store"
)

// Handler executes one job and returns its classified outcome.
type Handler func(ctx context.Context, job *model.Job) error

// Scheduler runs one worker pool per phase, each polling the store for
// queued jobs (spec §4.6: exploration -> verification -> citation).
type Scheduler struct {
	store         *store.Store
	logger        *slog.Logger
	workerPoolSize int
	nliPoolSize    int
	pollInterval   time.Duration

	handlers map[model.JobKind]Handler
}

// New constructs a Scheduler. workerPoolSize sizes the exploration/citation
// pools; nliPoolSize sizes the verification pool, since NLI calls are the
// most latency-sensitive and get their own concurrency budget (spec §6
// configuration: worker_pool_size, nli_pool_size).
func New(s *store.Store, workerPoolSize, nliPoolSize int) *Scheduler {
	if workerPoolSize <= 0 {
		workerPoolSize = 8
	}
	if nliPoolSize <= 0 {
		nliPoolSize = 4
	}
	return &Scheduler{
		store:          s,
		logger:         slog.Default().With("component", "scheduler"),
		workerPoolSize: workerPoolSize,
		nliPoolSize:    nliPoolSize,
		pollInterval:   250 * time.Millisecond,
		handlers:       make(map[model.JobKind]Handler),
	}
}

// RegisterHandler wires a job kind to its executor (Fetch Pool, Extractor,
// NLI Verifier, or Citation Ingestor callers register themselves here).
func (sc *Scheduler) RegisterHandler(kind model.JobKind, h Handler) {
	sc.handlers[kind] = h
}

// Run starts all phase worker pools and blocks until ctx is cancelled.
func (sc *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < sc.workerPoolSize; i++ {
		g.Go(func() error { return sc.workerLoop(ctx, model.PhaseExploration) })
	}
	for i := 0; i < sc.nliPoolSize; i++ {
		g.Go(func() error { return sc.workerLoop(ctx, model.PhaseVerification) })
	}
	for i := 0; i < sc.workerPoolSize; i++ {
		g.Go(func() error { return sc.workerLoop(ctx, model.PhaseCitation) })
	}

	return g.Wait()
}

func (sc *Scheduler) workerLoop(ctx context.Context, phase model.JobPhase) error {
	ticker := time.NewTicker(sc.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			job, err := sc.store.ClaimNextJob(ctx, phase)
			if err != nil {
				sc.logger.Error("claim job failed", "phase", phase, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			sc.execute(ctx, job)
		}
	}
}

func (sc *Scheduler) execute(ctx context.Context, job *model.Job) {
	handler, ok := sc.handlers[job.Kind]
	if !ok {
		sc.logger.Error("no handler registered", "kind", job.Kind)
		_ = sc.store.FailJob(ctx, job.JobID, "no handler registered for job kind")
		return
	}

	err := handler(ctx, job)
	if err == nil {
		_ = sc.store.CompleteJob(ctx, job.JobID)
		return
	}

	switch errors.GetType(err) {
	case errors.TransientFetch:
		if job.Attempts < 3 {
			_ = sc.store.RequeueJob(ctx, job.JobID)
			return
		}
		_ = sc.store.FailJob(ctx, job.JobID, err.Error())
	case errors.AuthBlocked:
		// Parked: the fetch pool's AuthBlockHook already enqueued the
		// auth-queue entry. The job itself is failed so it doesn't spin;
		// resolve_auth lets a caller re-queue a fresh target for the domain.
		_ = sc.store.FailJob(ctx, job.JobID, "parked: domain auth-blocked")
	default:
		_ = sc.store.FailJob(ctx, job.JobID, err.Error())
	}
}
