// Package llmsidecar is the client for the local LLM/embedding sidecar
// used by the Extractor (C3) and NLI Verifier (C4): claim extraction,
// natural-language-inference scoring, and embeddings. Grounded on
// internal/llm/client.go (OpenAI-shaped chat completion) and
// internal/llm/gemini_client.go (embedding provider), with proactive
// rate limiting adapted from internal/llm/rate_limiter.go's Redis
// Lua-script counter.
package llmsidecar

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter proactively throttles sidecar calls using a Redis-backed
// atomic counter, generalized from the teacher's Gemini-specific RPM/TPM/RPD
// limiter to a single configurable requests-per-minute budget for the local
// sidecar (spec §11: "DOMAIN STACK... redis/go-redis... distributed
// proactive rate limiting for the local ML sidecar").
type RateLimiter struct {
	redis    *redis.Client
	rpmLimit int64
}

// NewRateLimiter connects to Redis at addr. rpmLimit <= 0 uses a
// conservative default of 600 requests/minute (10 req/s local sidecar).
func NewRateLimiter(addr string, rpmLimit int64) (*RateLimiter, error) {
	if rpmLimit <= 0 {
		rpmLimit = 600
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	return &RateLimiter{redis: client, rpmLimit: rpmLimit}, nil
}

var throttleScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local count = redis.call('INCR', key)
	if count == 1 then redis.call('EXPIRE', key, 70) end
	if count > limit then
		return {-1, count, limit}
	end
	return {0, count, limit}
`)

// Wait blocks (respecting ctx) until a request slot is available this minute.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		minuteKey := fmt.Sprintf("lyra:sidecar:rpm:%s", time.Now().Format("2006-01-02T15:04"))
		result, err := throttleScript.Run(ctx, r.redis, []string{minuteKey}, r.rpmLimit).Result()
		if err != nil {
			return fmt.Errorf("rate limiter redis operation: %w", err)
		}
		values, ok := result.([]interface{})
		if !ok || len(values) < 1 {
			return fmt.Errorf("invalid rate limiter response")
		}
		if code, _ := values[0].(int64); code == 0 {
			return nil
		}

		waitTime := 60 - time.Now().Second()
		if waitTime <= 0 {
			waitTime = 1
		}
		select {
		case <-time.After(time.Duration(waitTime) * time.Second):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the Redis connection.
func (r *RateLimiter) Close() error {
	if r.redis != nil {
		return r.redis.Close()
	}
	return nil
}
