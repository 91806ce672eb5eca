// Package config loads and holds runtime configuration for the core
// execution substrate (§6 "Config options").
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"codenerd-core/internal/logging"
)

// BudgetConfig carries the five budget-dimension caps (§3 Budget).
type BudgetConfig struct {
	MaxIterations  int `yaml:"max_iterations"`
	MaxTokens      int `yaml:"max_tokens"`
	MaxTimeSeconds int `yaml:"max_time_seconds"`
	MaxLLMCalls    int `yaml:"max_llm_calls"`
	MaxTestRuns    int `yaml:"max_test_runs"`
}

// TOFSConfig carries the transactional overlay filesystem's parse and
// materialization settings (§4.1).
type TOFSConfig struct {
	IRMaxFileSize        int64 `yaml:"ir_max_file_size"`
	IRParseTimeoutSeconds int  `yaml:"ir_parse_timeout_seconds"`
	ExplicitIRDispose    bool  `yaml:"explicit_ir_dispose"`
}

// LockConfig carries soft-lock defaults (§4.2).
type LockConfig struct {
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
	Backend           string `yaml:"backend"` // "process-local" or "distributed"
}

// RetrievalConfig carries the hybrid retrieval pipeline's tunables (§4.3).
type RetrievalConfig struct {
	AdaptiveTopK struct {
		Min     int `yaml:"min"`
		Default int `yaml:"default"`
		Max     int `yaml:"max"`
	} `yaml:"adaptive_top_k"`
	RRFK                  int     `yaml:"rrf_k"`
	ConsensusBoostBase    float64 `yaml:"consensus_boost_base"`
	ConsensusMaxStrategies int    `yaml:"consensus_max_strategies"`
	CrossEncoderTopN      int     `yaml:"cross_encoder_top_n"`
	FinalTopK             int     `yaml:"final_top_k"`
}

// PipelineConfig carries the patch pipeline's convergence/oscillation
// tunables (§4.4).
type PipelineConfig struct {
	MaxFilesInScope               int     `yaml:"max_files_in_scope"`
	ConvergenceThreshold          float64 `yaml:"convergence_threshold"`
	OscillationWindowSize         int     `yaml:"oscillation_window_size"`
	OscillationSimilarityThreshold float64 `yaml:"oscillation_similarity_threshold"`
	LintPassScore                 float64 `yaml:"lint_pass_score"`
	ForbiddenPathPatterns         []string `yaml:"forbidden_path_patterns"`
}

// LoggingConfig mirrors the teacher's file-trace logging knobs.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Dir       string `yaml:"dir"`
	Level     string `yaml:"level"`
}

// Config is the top-level configuration object, loaded from
// `.nerd/config.yaml`.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Budget    BudgetConfig    `yaml:"budget"`
	TOFS      TOFSConfig      `yaml:"tofs"`
	Locks     LockConfig      `yaml:"locks"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DefaultConfig returns the baseline configuration, matching the defaults
// named throughout §6.
func DefaultConfig() *Config {
	cfg := &Config{
		Name:    "codenerd-core",
		Version: "0.1.0",

		Budget: BudgetConfig{
			MaxIterations:  20,
			MaxTokens:      200000,
			MaxTimeSeconds: 1800,
			MaxLLMCalls:    40,
			MaxTestRuns:    40,
		},

		TOFS: TOFSConfig{
			IRMaxFileSize:         5 * 1024 * 1024,
			IRParseTimeoutSeconds: 5,
			ExplicitIRDispose:     false,
		},

		Locks: LockConfig{
			DefaultTTLSeconds: 600,
			Backend:           "process-local",
		},

		Pipeline: PipelineConfig{
			MaxFilesInScope:                50,
			ConvergenceThreshold:           0.95,
			OscillationWindowSize:          3,
			OscillationSimilarityThreshold: 0.85,
			LintPassScore:                  0.8,
			ForbiddenPathPatterns: []string{
				"**/.git/**",
				"**/node_modules/**",
				"**/vendor/**",
				"**/.nerd/secrets/**",
				"**/*.env",
			},
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Dir:       ".nerd/logs",
			Level:     "info",
		},
	}
	cfg.Retrieval.AdaptiveTopK.Min = 5
	cfg.Retrieval.AdaptiveTopK.Default = 15
	cfg.Retrieval.AdaptiveTopK.Max = 50
	cfg.Retrieval.RRFK = 60
	cfg.Retrieval.ConsensusBoostBase = 0.15
	cfg.Retrieval.ConsensusMaxStrategies = 3
	cfg.Retrieval.CrossEncoderTopN = 20
	cfg.Retrieval.FinalTopK = 10
	return cfg
}

// Load reads configuration from a YAML file at path, falling back to
// DefaultConfig() when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Operator().Infow("config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	logging.Operator().Infow("config loaded", "path", path)
	return cfg, nil
}

// Save marshals c to path as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: mkdir %s: %w", dir, err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
