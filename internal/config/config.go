// Package config loads and validates UCP's YAML configuration file,
// following the same loader/validator split as its grounding teacher: a
// loader that parses and applies defaults, and a validator that returns
// aggregated field errors.
package config

import (
	"time"

	"github.com/ucp-project/ucp/pkg/ucp"
)

// ServerConfig is the `server` top-level section: the gateway's own
// listen settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ToolZooConfig is the `tool_zoo` top-level section.
type ToolZooConfig struct {
	DBPath            string  `yaml:"db_path"`
	EmbeddingDim      *int    `yaml:"embedding_dim"`
	HybridSemanticW   *float64 `yaml:"hybrid_semantic_weight"`
	HybridKeywordW    *float64 `yaml:"hybrid_keyword_weight"`
	MinSimilarity     *float64 `yaml:"min_similarity"`
}

// RouterConfig is the `router` top-level section.
type RouterConfig struct {
	CandidatePoolSize    *int     `yaml:"candidate_pool_size"`
	MaxTools             *int     `yaml:"max_tools"`
	MinTools             *int     `yaml:"min_tools"`
	MaxContextTokens     *int     `yaml:"max_context_tokens"`
	MaxPerServer         *int     `yaml:"max_per_server"`
	ExplorationRate      *float64 `yaml:"exploration_rate"`
	ExplorationType      string   `yaml:"exploration_type"` // epsilon_greedy | thompson | none
	CrossEncoderEnabled  bool     `yaml:"cross_encoder_enabled"`
	FallbackTools        []string `yaml:"fallback_tools"`
}

// SessionConfig is the `session` top-level section.
type SessionConfig struct {
	Store         string `yaml:"store"` // sqlite | redis
	DBPath        string `yaml:"db_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RecentToolsN  *int   `yaml:"recent_tools_n"`
}

// TelemetryConfig is the `telemetry` top-level section.
type TelemetryConfig struct {
	JSONLDir        string        `yaml:"jsonl_dir"`
	DBPath          string        `yaml:"db_path"`
	RetentionDays   *int          `yaml:"retention_days"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	sweepInterval   time.Duration // derived, not from YAML
}

// SweepInterval returns the background retention sweep interval
// (defaulted to once per hour, not user-configurable at the YAML level).
func (t TelemetryConfig) SweepInterval() time.Duration {
	if t.sweepInterval == 0 {
		return time.Hour
	}
	return t.sweepInterval
}

// BanditConfig is the `bandit` top-level section.
type BanditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	LearningRate  *float64 `yaml:"learning_rate"`
	L2Reg         *float64 `yaml:"l2_reg"`
	FeatureDim    *int     `yaml:"feature_dim"`
}

// BiasLearningConfig is the `bias_learning` top-level section.
type BiasLearningConfig struct {
	Enabled      bool     `yaml:"enabled"`
	LearningRate *float64 `yaml:"learning_rate"`
	Decay        *float64 `yaml:"decay"`
	MaxBias      *float64 `yaml:"max_bias"`
}

// DownstreamServerConfig is one entry in `downstream_servers`.
type DownstreamServerConfig struct {
	Name        string            `yaml:"name"`
	Transport   string            `yaml:"transport"` // stdio | http
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	URL         string            `yaml:"url"`
	Tags        []string          `yaml:"tags"`
	Description string            `yaml:"description"`
}

// Config is the full parsed UCP configuration, matching spec.md §6's
// top-level key list.
type Config struct {
	Server            ServerConfig             `yaml:"server"`
	ToolZoo           ToolZooConfig            `yaml:"tool_zoo"`
	Router            RouterConfig             `yaml:"router"`
	Session           SessionConfig            `yaml:"session"`
	Telemetry         TelemetryConfig          `yaml:"telemetry"`
	Bandit            BanditConfig             `yaml:"bandit"`
	BiasLearning      BiasLearningConfig       `yaml:"bias_learning"`
	DownstreamServers []DownstreamServerConfig `yaml:"downstream_servers"`
}

// ToServerDescriptors converts the YAML downstream server entries into
// the shared domain type the pool consumes.
func (c *Config) ToServerDescriptors() []ucp.ServerDescriptor {
	out := make([]ucp.ServerDescriptor, 0, len(c.DownstreamServers))
	for _, d := range c.DownstreamServers {
		out = append(out, ucp.ServerDescriptor{
			Name:      d.Name,
			Transport: ucp.TransportKind(d.Transport),
			Command:   d.Command,
			Args:      d.Args,
			Env:       d.Env,
			URL:       d.URL,
			Tags:      d.Tags,
			Description: d.Description,
		})
	}
	return out
}
