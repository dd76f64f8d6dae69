package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyralabs/evidence-runtime/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the evidence store and LLM sidecar are reachable",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("lyra-runtime doctor")
	fmt.Println("====================")

	fmt.Printf("store path:        %s\n", cfg.Store.LocalPath)
	s, err := store.Open(cfg.Store.LocalPath, logger)
	if err != nil {
		fmt.Printf("  evidence store:  FAIL (%v)\n", err)
	} else {
		fmt.Println("  evidence store:  OK")
		s.Close()
	}

	fmt.Printf("vector cache path: %s\n", cfg.Store.VectorCachePath)
	vi, err := store.OpenVectorIndex(cfg.Store.VectorCachePath)
	if err != nil {
		fmt.Printf("  vector cache:    FAIL (%v)\n", err)
	} else {
		fmt.Println("  vector cache:    OK")
		vi.Close()
	}

	fmt.Printf("llm sidecar url:   %s\n", cfg.LLM.SidecarURL)
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(cfg.LLM.SidecarURL + "/health")
	if err != nil {
		fmt.Printf("  llm sidecar:     unreachable (%v)\n", err)
	} else {
		resp.Body.Close()
		fmt.Printf("  llm sidecar:     reachable (status %d)\n", resp.StatusCode)
	}

	if cfg.LLM.EmbeddingAPIKey == "" {
		fmt.Println("  embedding key:   not set (LYRA_EMBEDDING_API_KEY)")
	} else {
		fmt.Println("  embedding key:   set")
	}

	return nil
}
