package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lyralabs/evidence-runtime/internal/errors"
)

// ValidationContext specifies what configuration is required for a given
// entry point into the runtime.
type ValidationContext string

const (
	// ValidationContextServe - lyra-runtime serve requires the sidecar URL and store path
	ValidationContextServe ValidationContext = "serve"
	// ValidationContextDoctor - lyra-runtime doctor checks everything, nothing required
	ValidationContextDoctor ValidationContext = "doctor"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result.
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result.
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors.
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message.
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nwarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context.
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextServe:
		c.validateStore(result, true)
		c.validateLLM(result, true)
		c.validateFetch(result)
		c.validateNLI(result)
		c.validateScheduler(result)
		c.validateTask(result)
	case ValidationContextDoctor:
		c.validateStore(result, false)
		c.validateLLM(result, false)
		c.validateFetch(result)
		c.validateNLI(result)
		c.validateScheduler(result)
		c.validateTask(result)
	case ValidationContextAll:
		c.validateStore(result, true)
		c.validateLLM(result, true)
		c.validateFetch(result)
		c.validateNLI(result)
		c.validateScheduler(result)
		c.validateTask(result)
	}

	return result
}

// ValidateOrFatal validates configuration and panics with a ConfigError if invalid.
func (c *Config) ValidateOrFatal(ctx ValidationContext) {
	result := c.Validate(ctx)
	if result.HasErrors() {
		panic(errors.ConfigError(result.Error()))
	}
}

func (c *Config) validateStore(result *ValidationResult, required bool) {
	if c.Store.LocalPath == "" {
		if required {
			result.AddError("store.local_path is required but not set")
		} else {
			result.AddWarning("store.local_path is not set, will use default")
		}
	}
	if c.Store.VectorCachePath == "" {
		result.AddWarning("store.vector_cache_path is not set, will use default")
	}
}

func (c *Config) validateLLM(result *ValidationResult, required bool) {
	if c.LLM.SidecarURL == "" {
		if required {
			result.AddError("llm.sidecar_url is required but not set")
		} else {
			result.AddWarning("llm.sidecar_url is not set, extraction/embedding/NLI calls will fail")
		}
	} else if _, err := url.Parse(c.LLM.SidecarURL); err != nil {
		result.AddError("llm.sidecar_url is invalid: %v", err)
	}

	if c.LLM.Model == "" {
		result.AddWarning("llm.model is not set, will use default model")
	}

	if c.LLM.APIKey == "" {
		result.AddWarning("llm.api_key is not set. Set it via LYRA_LLM_API_KEY, keychain, or config file.")
	}
}

func (c *Config) validateFetch(result *ValidationResult) {
	if c.Fetch.PerDomainConcurrency <= 0 {
		result.AddWarning("fetch.per_domain_concurrency is invalid, will use default")
	}
	if c.Fetch.PerDomainRate <= 0 {
		result.AddWarning("fetch.per_domain_rate is invalid, will use default")
	}
	if c.Fetch.MaxAttempts <= 0 {
		result.AddWarning("fetch.max_attempts is invalid, will use default")
	}
	if c.Fetch.Timeout <= 0 {
		result.AddWarning("fetch.timeout is invalid, will use default")
	}
}

func (c *Config) validateNLI(result *ValidationResult) {
	if c.NLI.ThresholdEntail < 0 || c.NLI.ThresholdEntail > 1 {
		result.AddError("nli.threshold_entail out of range [0,1]: %.2f", c.NLI.ThresholdEntail)
	}
	if c.NLI.ThresholdContradict < 0 || c.NLI.ThresholdContradict > 1 {
		result.AddError("nli.threshold_contradict out of range [0,1]: %.2f", c.NLI.ThresholdContradict)
	}
	if c.NLI.CandidateK <= 0 {
		result.AddWarning("nli.candidate_k is invalid, will use default")
	}
}

func (c *Config) validateScheduler(result *ValidationResult) {
	if c.Scheduler.WorkerPoolSize <= 0 {
		result.AddWarning("scheduler.worker_pool_size is invalid, will use default")
	}
	if c.Scheduler.NLIPoolSize <= 0 {
		result.AddWarning("scheduler.nli_pool_size is invalid, will use default")
	}
}

func (c *Config) validateTask(result *ValidationResult) {
	if c.Task.DefaultBudget <= 0 {
		result.AddWarning("task.default_budget is invalid, will use default")
	}
}

// RequireLLM checks if the LLM sidecar configuration is usable and returns an error if not.
func (c *Config) RequireLLM() error {
	result := &ValidationResult{Valid: true}
	c.validateLLM(result, true)

	if result.HasErrors() {
		return errors.ConfigError(result.Error())
	}

	return nil
}
