package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings for the Lyra runtime.
type Config struct {
	// Evidence Store (C1) persistence settings.
	Store StoreConfig `yaml:"store"`

	// Local ML sidecar (extraction, embedding, NLI client shape).
	LLM LLMConfig `yaml:"llm"`

	// NLI Verifier (C4) tuning.
	NLI NLIConfig `yaml:"nli"`

	// Fetch Pool (C2) tuning.
	Fetch FetchConfig `yaml:"fetch"`

	// Job Scheduler (C6) tuning.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Task API (C7) defaults.
	Task TaskConfig `yaml:"task"`

	// Internet Archive fallback.
	Wayback WaybackConfig `yaml:"wayback"`
}

type StoreConfig struct {
	// Path to the single on-disk sqlite database (§6: "a single on-disk
	// relational store").
	LocalPath string `yaml:"local_path"`
	// Path to the durable bbolt side-cache holding the vector index snapshot.
	VectorCachePath string `yaml:"vector_cache_path"`
}

type LLMConfig struct {
	// identifier of local LLM used for extraction (spec.md §6: llm.model)
	Model string `yaml:"model"`
	APIKey string `yaml:"api_key"`
	// Base URL of the local ML sidecar exposing extraction/embedding/NLI endpoints.
	SidecarURL string `yaml:"sidecar_url"`
	// RPMLimit proactively throttles sidecar chat calls (0 disables).
	RPMLimit int64 `yaml:"rpm_limit"`

	// EmbeddingAPIKey/EmbeddingModel address the separate embeddings
	// provider, since the sidecar contract is chat-only (spec.md §6).
	EmbeddingAPIKey string `yaml:"embedding_api_key"`
	EmbeddingModel  string `yaml:"embedding_model"`
}

type NLIConfig struct {
	// per-class minimum confidence for emitting an edge (spec.md §6: nli.thresholds)
	ThresholdEntail     float64 `yaml:"threshold_entail"`
	ThresholdContradict float64 `yaml:"threshold_contradict"`
	// upper bound on candidate fragments per claim (spec.md §6: nli.candidate_k)
	CandidateK int `yaml:"candidate_k"`
}

type FetchConfig struct {
	PerDomainConcurrency int           `yaml:"per_domain_concurrency"`
	PerDomainRate        float64       `yaml:"per_domain_rate"` // requests/second
	Timeout              time.Duration `yaml:"timeout"`
	MaxAttempts          int           `yaml:"max_attempts"`
	RedisAddr            string        `yaml:"redis_addr"` // distributed counters, empty disables
	GithubToken          string        `yaml:"github_token"` // optional, raises GitHub API rate limit
	MetadataCacheAddr    string        `yaml:"metadata_cache_addr"` // caches DOI resolutions, empty disables
}

type SchedulerConfig struct {
	WorkerPoolSize int `yaml:"worker_pool_size"`
	NLIPoolSize    int `yaml:"nli_pool_size"`
}

type TaskConfig struct {
	DefaultBudget int `yaml:"default_budget"`
}

type WaybackConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Store: StoreConfig{
			LocalPath:       filepath.Join(homeDir, ".lyra", "evidence.db"),
			VectorCachePath: filepath.Join(homeDir, ".lyra", "vectors.bbolt"),
		},
		LLM: LLMConfig{
			Model:          "local-extractor-v1",
			SidecarURL:     "http://127.0.0.1:8088",
			RPMLimit:       60,
			EmbeddingModel: "text-embedding-004",
		},
		NLI: NLIConfig{
			ThresholdEntail:     0.70,
			ThresholdContradict: 0.70,
			CandidateK:          20,
		},
		Fetch: FetchConfig{
			PerDomainConcurrency: 4,
			PerDomainRate:        2.0,
			Timeout:              30 * time.Second,
			MaxAttempts:          3,
		},
		Scheduler: SchedulerConfig{
			WorkerPoolSize: 8,
			NLIPoolSize:    4,
		},
		Task: TaskConfig{
			DefaultBudget: 200,
		},
		Wayback: WaybackConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from file, layering env vars and .env files over defaults.
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults
	cfg := Default()
	v.SetDefault("store", cfg.Store)
	v.SetDefault("llm", cfg.LLM)
	v.SetDefault("nli", cfg.NLI)
	v.SetDefault("fetch", cfg.Fetch)
	v.SetDefault("scheduler", cfg.Scheduler)
	v.SetDefault("task", cfg.Task)
	v.SetDefault("wayback", cfg.Wayback)

	// Load from environment variables
	v.SetEnvPrefix("LYRA")
	v.AutomaticEnv()

	// Try to find config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Search for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath(".lyra")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".lyra"))
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	// Unmarshal into struct
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",   // Local overrides (highest precedence)
		".env",         // Main environment file
		".env.example", // Example file as fallback
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err == nil {
				continue
			}
		}
	}

	// Also try loading from home directory
	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".lyra", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config.
// Precedence for secrets: env var (highest) > keychain > config file (lowest).
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("LYRA_LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	} else {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if keychainKey, err := km.GetAPIKey(); err == nil && keychainKey != "" {
				cfg.LLM.APIKey = keychainKey
			}
		}
	}

	if model := os.Getenv("LYRA_LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if url := os.Getenv("LYRA_LLM_SIDECAR_URL"); url != "" {
		cfg.LLM.SidecarURL = url
	}
	if key := os.Getenv("LYRA_EMBEDDING_API_KEY"); key != "" {
		cfg.LLM.EmbeddingAPIKey = key
	}
	if token := os.Getenv("LYRA_FETCH_GITHUB_TOKEN"); token != "" {
		cfg.Fetch.GithubToken = token
	}
	if addr := os.Getenv("LYRA_METADATA_CACHE_ADDR"); addr != "" {
		cfg.Fetch.MetadataCacheAddr = addr
	}

	if path := os.Getenv("LYRA_STORE_LOCAL_PATH"); path != "" {
		cfg.Store.LocalPath = expandPath(path)
	}
	if path := os.Getenv("LYRA_STORE_VECTOR_CACHE_PATH"); path != "" {
		cfg.Store.VectorCachePath = expandPath(path)
	}

	if addr := os.Getenv("LYRA_FETCH_REDIS_ADDR"); addr != "" {
		cfg.Fetch.RedisAddr = addr
	}
	if conc := os.Getenv("LYRA_FETCH_PER_DOMAIN_CONCURRENCY"); conc != "" {
		if n, err := strconv.Atoi(conc); err == nil {
			cfg.Fetch.PerDomainConcurrency = n
		}
	}
	if rate := os.Getenv("LYRA_FETCH_PER_DOMAIN_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			cfg.Fetch.PerDomainRate = r
		}
	}
	if attempts := os.Getenv("LYRA_FETCH_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			cfg.Fetch.MaxAttempts = n
		}
	}

	if budget := os.Getenv("LYRA_TASK_DEFAULT_BUDGET"); budget != "" {
		if n, err := strconv.Atoi(budget); err == nil {
			cfg.Task.DefaultBudget = n
		}
	}

	if wayback := os.Getenv("LYRA_WAYBACK_ENABLED"); wayback != "" {
		cfg.Wayback.Enabled = wayback == "true"
	}

	if k := os.Getenv("LYRA_NLI_CANDIDATE_K"); k != "" {
		if n, err := strconv.Atoi(k); err == nil {
			cfg.NLI.CandidateK = n
		}
	}
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save saves configuration to file.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("store", c.Store)
	v.Set("llm", c.LLM)
	v.Set("nli", c.NLI)
	v.Set("fetch", c.Fetch)
	v.Set("scheduler", c.Scheduler)
	v.Set("task", c.Task)
	v.Set("wayback", c.Wayback)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
