package llmsidecar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/lyralabs/evidence-runtime/internal/errors"
)

// Client talks to the local LLM sidecar (any OpenAI-chat-completion-shaped
// endpoint, spec §6: "LLM sidecar: local inference server, contract is
// OpenAI-compatible chat completion") for claim extraction and NLI scoring.
// Grounded on internal/llm/client.go's OpenAI path; the teacher's Anthropic
// branch is dropped (see DESIGN.md — its SDK import was already broken in
// the teacher, and one OpenAI-shaped client is enough for a single sidecar
// contract).
type Client struct {
	openai  *openai.Client
	model   string
	limiter *RateLimiter
	logger  *slog.Logger
}

// New constructs a sidecar client pointed at baseURL (e.g.
// http://127.0.0.1:8088/v1) with an optional rate limiter.
func New(baseURL, apiKey, model string, limiter *RateLimiter) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		openai:  openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: limiter,
		logger:  slog.Default().With("component", "llmsidecar"),
	}
}

func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// ExtractedClaim is one assertion surfaced by the extraction prompt.
type ExtractedClaim struct {
	Text           string `json:"text"`
	FragmentOffset int    `json:"fragment_offset"`
}

// ExtractClaims asks the sidecar to extract candidate claims relevant to
// hypothesis from a fragment's text (spec §4.3: Extractor claim extraction).
func (c *Client) ExtractClaims(ctx context.Context, hypothesis, fragmentText string) ([]ExtractedClaim, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	resp, err := c.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Hypothesis: %s\n\nText:\n%s", hypothesis, fragmentText)},
		},
		Temperature: 0,
		MaxTokens:   800,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ExtractionFailed, errors.SeverityMedium, "sidecar extraction call failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.ExtractionFailedError("")
	}

	var parsed struct {
		Claims []ExtractedClaim `json:"claims"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, errors.Wrap(err, errors.ExtractionFailed, errors.SeverityMedium, "malformed extraction response")
	}
	return parsed.Claims, nil
}

// NLIVerdict is the sidecar's entailment judgement for one fragment/claim pair.
type NLIVerdict struct {
	Relation   string  `json:"relation"` // "supports" | "refutes" | "neutral"
	Confidence float64 `json:"confidence"`
}

// VerifyClaim asks the sidecar whether a fragment supports, refutes, or is
// neutral toward a claim (spec §4.4: NLI Verifier).
func (c *Client) VerifyClaim(ctx context.Context, claimText, fragmentText string) (*NLIVerdict, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	resp, err := c.openai.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: nliSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Claim: %s\n\nEvidence:\n%s", claimText, fragmentText)},
		},
		Temperature: 0,
		MaxTokens:   150,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ExtractionFailed, errors.SeverityMedium, "sidecar NLI call failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.ExtractionFailedError("")
	}

	var verdict NLIVerdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		return nil, errors.Wrap(err, errors.ExtractionFailed, errors.SeverityMedium, "malformed NLI response")
	}
	return &verdict, nil
}

const extractionSystemPrompt = `You extract factual claims relevant to a research hypothesis from a text fragment.
Respond with JSON: {"claims": [{"text": "...", "fragment_offset": 0}]}. Return no claims if none are relevant.`

const nliSystemPrompt = `You judge whether a piece of evidence supports, refutes, or is neutral toward a claim.
Respond with JSON: {"relation": "supports"|"refutes"|"neutral", "confidence": 0.0-1.0}.`
