package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lyralabs/evidence-runtime/internal/cache"
	"github.com/lyralabs/evidence-runtime/internal/citation"
	"github.com/lyralabs/evidence-runtime/internal/extractor"
	"github.com/lyralabs/evidence-runtime/internal/fetch"
	"github.com/lyralabs/evidence-runtime/internal/llmsidecar"
	"github.com/lyralabs/evidence-runtime/internal/mcp"
	"github.com/lyralabs/evidence-runtime/internal/mcp/tools"
	"github.com/lyralabs/evidence-runtime/internal/nli"
	"github.com/lyralabs/evidence-runtime/internal/scheduler"
	"github.com/lyralabs/evidence-runtime/internal/store"
	"github.com/lyralabs/evidence-runtime/internal/taskapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the evidence-runtime tool-call server over stdio",
	Long: `serve wires the Evidence Store, Fetch Pool, Extractor, NLI Verifier,
Citation Ingestor, and Job Scheduler together, runs the scheduler's worker
pools in the background, and exposes the Task API over an MCP stdio
transport for an external reasoning agent to drive.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := store.Open(cfg.Store.LocalPath, logger)
	if err != nil {
		return fmt.Errorf("open evidence store: %w", err)
	}
	defer s.Close()

	vectors, err := store.OpenVectorIndex(cfg.Store.VectorCachePath)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}
	defer vectors.Close()

	var rateLimiter *llmsidecar.RateLimiter
	if cfg.Fetch.RedisAddr != "" && cfg.LLM.RPMLimit > 0 {
		rateLimiter, err = llmsidecar.NewRateLimiter(cfg.Fetch.RedisAddr, cfg.LLM.RPMLimit)
		if err != nil {
			logger.WithError(err).Warn("sidecar rate limiter unavailable, proceeding unthrottled")
		}
	}
	sidecar := llmsidecar.New(cfg.LLM.SidecarURL, cfg.LLM.APIKey, cfg.LLM.Model, rateLimiter)

	embedder, err := llmsidecar.NewEmbeddingProvider(ctx, cfg.LLM.EmbeddingAPIKey, cfg.LLM.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("init embedding provider: %w", err)
	}

	fetchPool := fetch.New(fetch.Config{
		PerDomainConcurrency: cfg.Fetch.PerDomainConcurrency,
		PerDomainRate:        cfg.Fetch.PerDomainRate,
		Timeout:              cfg.Fetch.Timeout,
		MaxAttempts:          cfg.Fetch.MaxAttempts,
	}, cfg.Fetch.GithubToken)
	fetchPool.AuthBlockHook = s.MarkAuthBlocked
	fetchPool.SuccessHook = s.MarkFetchSuccess

	extract := extractor.New(sidecar)
	metadata := extractor.NewMetadataResolver()
	if cfg.Fetch.MetadataCacheAddr != "" {
		if metadataCache, err := cache.NewClient(ctx, cfg.Fetch.MetadataCacheAddr, ""); err != nil {
			logger.WithError(err).Warn("metadata cache unavailable, DOI resolution will not be cached")
		} else {
			defer metadataCache.Close()
			metadata = metadata.WithCache(metadataCache)
		}
	}
	ingestor := citation.New(s)
	verifier := nli.New(s, vectors, sidecar, embedder, cfg.NLI.CandidateK, nli.Thresholds{
		Entail:     cfg.NLI.ThresholdEntail,
		Contradict: cfg.NLI.ThresholdContradict,
	})
	sched := scheduler.New(s, cfg.Scheduler.WorkerPoolSize, cfg.Scheduler.NLIPoolSize)

	api := &taskapi.API{
		Store:         s,
		Vectors:       vectors,
		Fetch:         fetchPool,
		Extractor:     extract,
		Verifier:      verifier,
		Citation:      ingestor,
		Scheduler:     sched,
		Embedder:      embedder,
		Metadata:      metadata,
		DefaultBudget: cfg.Task.DefaultBudget,
	}
	api.RegisterHandlers(nil)

	handler := mcp.NewHandler()
	handler.RegisterTool("create_task", tools.NewCreateTaskTool(api))
	handler.RegisterTool("queue_targets", tools.NewQueueTargetsTool(api))
	handler.RegisterTool("queue_reference_candidates", tools.NewQueueReferenceCandidatesTool(api))
	handler.RegisterTool("get_status", tools.NewGetStatusTool(api))
	handler.RegisterTool("stop_task", tools.NewStopTaskTool(api))
	handler.RegisterTool("query_view", tools.NewQueryViewTool(api))
	handler.RegisterTool("query_sql", tools.NewQuerySQLTool(api))
	handler.RegisterTool("vector_search", tools.NewVectorSearchTool(api))
	handler.RegisterTool("get_auth_queue", tools.NewGetAuthQueueTool(api))
	handler.RegisterTool("resolve_auth", tools.NewResolveAuthTool(api))
	handler.RegisterTool("feedback", tools.NewFeedbackTool(api))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("lyra-runtime tool-call server started on stdio")
	transport := mcp.NewStdioTransport(handler)
	if err := transport.Start(); err != nil {
		cancel()
		return err
	}

	cancel()
	return g.Wait()
}
