package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateServeRequiresStoreAndSidecarURL(t *testing.T) {
	cfg := Default()
	cfg.Store.LocalPath = ""
	cfg.LLM.SidecarURL = ""

	result := cfg.Validate(ValidationContextServe)
	require.False(t, result.Valid)
	assert.False(t, result.Valid)
	assert.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "store.local_path is required")
	assert.Contains(t, result.Error(), "llm.sidecar_url is required")
}

func TestValidateDoctorDowngradesMissingStoreToWarning(t *testing.T) {
	cfg := Default()
	cfg.Store.LocalPath = ""

	result := cfg.Validate(ValidationContextDoctor)
	assert.True(t, result.Valid, "doctor context must not hard-fail on a missing store path")
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateRejectsOutOfRangeNLIThresholds(t *testing.T) {
	cfg := Default()
	cfg.NLI.ThresholdEntail = 1.5
	cfg.NLI.ThresholdContradict = -0.1

	result := cfg.Validate(ValidationContextAll)
	require.False(t, result.Valid)
	assert.Contains(t, result.Error(), "nli.threshold_entail")
	assert.Contains(t, result.Error(), "nli.threshold_contradict")
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	cfg := Default()
	cfg.Store.LocalPath = "/tmp/lyra.db"
	cfg.LLM.SidecarURL = "http://127.0.0.1:8088/v1"

	result := cfg.Validate(ValidationContextServe)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateLLMRejectsMalformedSidecarURL(t *testing.T) {
	cfg := Default()
	cfg.LLM.SidecarURL = "://not-a-valid-url"

	result := cfg.Validate(ValidationContextServe)
	require.False(t, result.Valid)
	assert.Contains(t, result.Error(), "llm.sidecar_url is invalid")
}

func TestRequireLLMReturnsErrorWhenSidecarURLMissing(t *testing.T) {
	cfg := Default()
	cfg.LLM.SidecarURL = ""

	err := cfg.RequireLLM()
	require.Error(t, err)
}

func TestRequireLLMPassesWhenSidecarURLSet(t *testing.T) {
	cfg := Default()
	cfg.LLM.SidecarURL = "http://127.0.0.1:8088/v1"

	assert.NoError(t, cfg.RequireLLM())
}

func TestValidationResultErrorIsEmptyWhenValid(t *testing.T) {
	result := &ValidationResult{Valid: true}
	assert.Equal(t, "", result.Error())
}
