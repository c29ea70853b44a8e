package config

import (
	"fmt"
	"strings"
)

// Validator checks a loaded Config for semantic errors, returning all of
// them aggregated rather than stopping at the first.
type Validator struct{}

// NewValidator constructs a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns a combined error listing every field-level problem,
// or nil if cfg is valid.
func (*Validator) Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if d := cfg.ToolZoo.EmbeddingDim; d != nil && (*d < 1 || *d > 4096) {
		errs = append(errs, "tool_zoo.embedding_dim must be between 1 and 4096")
	}
	if w := cfg.ToolZoo.HybridSemanticW; w != nil && (*w < 0 || *w > 1) {
		errs = append(errs, "tool_zoo.hybrid_semantic_weight must be between 0 and 1")
	}
	if w := cfg.ToolZoo.HybridKeywordW; w != nil && (*w < 0 || *w > 1) {
		errs = append(errs, "tool_zoo.hybrid_keyword_weight must be between 0 and 1")
	}

	if v := cfg.Router.MaxTools; v != nil && (*v < 0 || *v > 200) {
		errs = append(errs, "router.max_tools must be between 0 and 200")
	}
	if v := cfg.Router.MinTools; v != nil && *v < 0 {
		errs = append(errs, "router.min_tools must be >= 0")
	}
	if cfg.Router.MaxTools != nil && cfg.Router.MinTools != nil && *cfg.Router.MinTools > *cfg.Router.MaxTools {
		errs = append(errs, "router.min_tools must be <= router.max_tools")
	}
	if v := cfg.Router.MaxContextTokens; v != nil && *v < 0 {
		errs = append(errs, "router.max_context_tokens must be >= 0")
	}
	if v := cfg.Router.MaxPerServer; v != nil && *v < 1 {
		errs = append(errs, "router.max_per_server must be >= 1")
	}
	if v := cfg.Router.CandidatePoolSize; v != nil && cfg.Router.MaxTools != nil && *cfg.Router.MaxTools > 0 && *v < 4*(*cfg.Router.MaxTools) {
		errs = append(errs, "router.candidate_pool_size must be at least 4x router.max_tools")
	}
	if v := cfg.Router.ExplorationRate; v != nil && (*v < 0 || *v > 1) {
		errs = append(errs, "router.exploration_rate must be between 0 and 1")
	}
	switch cfg.Router.ExplorationType {
	case "", "epsilon_greedy", "thompson", "none":
	default:
		errs = append(errs, "router.exploration_type must be one of epsilon_greedy, thompson, none")
	}

	switch cfg.Session.Store {
	case "", "sqlite", "redis":
	default:
		errs = append(errs, "session.store must be one of sqlite, redis")
	}
	if cfg.Session.Store == "redis" && cfg.Session.RedisAddr == "" {
		errs = append(errs, "session.redis_addr is required when session.store is redis")
	}

	if v := cfg.Telemetry.RetentionDays; v != nil && *v < 1 {
		errs = append(errs, "telemetry.retention_days must be >= 1")
	}

	if v := cfg.Bandit.LearningRate; v != nil && (*v <= 0 || *v > 1) {
		errs = append(errs, "bandit.learning_rate must be between 0 (exclusive) and 1")
	}
	if v := cfg.Bandit.FeatureDim; v != nil && *v < 1 {
		errs = append(errs, "bandit.feature_dim must be >= 1")
	}

	if v := cfg.BiasLearning.MaxBias; v != nil && *v < 0 {
		errs = append(errs, "bias_learning.max_bias must be >= 0")
	}

	seen := map[string]bool{}
	for i, srv := range cfg.DownstreamServers {
		if srv.Name == "" {
			errs = append(errs, fmt.Sprintf("downstream_servers[%d].name is required", i))
			continue
		}
		if seen[srv.Name] {
			errs = append(errs, fmt.Sprintf("downstream_servers[%d].name %q is not unique", i, srv.Name))
		}
		seen[srv.Name] = true

		switch srv.Transport {
		case "stdio":
			if srv.Command == "" {
				errs = append(errs, fmt.Sprintf("downstream_servers[%d] (%s): command is required for stdio transport", i, srv.Name))
			}
		case "http":
			if srv.URL == "" {
				errs = append(errs, fmt.Sprintf("downstream_servers[%d] (%s): url is required for http transport", i, srv.Name))
			}
		default:
			errs = append(errs, fmt.Sprintf("downstream_servers[%d] (%s): transport must be stdio or http", i, srv.Name))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration:\n  %s", strings.Join(errs, "\n  "))
}
