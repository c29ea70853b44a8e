package config

func ptrInt(v int) *int         { return &v }
func ptrFloat(v float64) *float64 { return &v }

// applyDefaults fills every unset (nil or zero-value) field with the
// value spec.md names as the default, mutating cfg in place.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4483
	}

	if cfg.ToolZoo.DBPath == "" {
		cfg.ToolZoo.DBPath = "ucp_zoo.db"
	}
	if cfg.ToolZoo.EmbeddingDim == nil {
		cfg.ToolZoo.EmbeddingDim = ptrInt(384)
	}
	if cfg.ToolZoo.HybridSemanticW == nil {
		cfg.ToolZoo.HybridSemanticW = ptrFloat(0.6)
	}
	if cfg.ToolZoo.HybridKeywordW == nil {
		cfg.ToolZoo.HybridKeywordW = ptrFloat(0.4)
	}
	if cfg.ToolZoo.MinSimilarity == nil {
		cfg.ToolZoo.MinSimilarity = ptrFloat(0.01)
	}

	if cfg.Router.CandidatePoolSize == nil {
		cfg.Router.CandidatePoolSize = ptrInt(50)
	}
	if cfg.Router.MaxTools == nil {
		cfg.Router.MaxTools = ptrInt(10)
	}
	if cfg.Router.MinTools == nil {
		cfg.Router.MinTools = ptrInt(1)
	}
	if cfg.Router.MaxContextTokens == nil {
		cfg.Router.MaxContextTokens = ptrInt(4000)
	}
	if cfg.Router.MaxPerServer == nil {
		cfg.Router.MaxPerServer = ptrInt(3)
	}
	if cfg.Router.ExplorationRate == nil {
		cfg.Router.ExplorationRate = ptrFloat(0.05)
	}
	if cfg.Router.ExplorationType == "" {
		cfg.Router.ExplorationType = "epsilon_greedy"
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = "sqlite"
	}
	if cfg.Session.DBPath == "" {
		cfg.Session.DBPath = "ucp_sessions.db"
	}
	if cfg.Session.RecentToolsN == nil {
		cfg.Session.RecentToolsN = ptrInt(10)
	}

	if cfg.Telemetry.JSONLDir == "" {
		cfg.Telemetry.JSONLDir = "."
	}
	if cfg.Telemetry.DBPath == "" {
		cfg.Telemetry.DBPath = "ucp_telemetry.db"
	}
	if cfg.Telemetry.RetentionDays == nil {
		cfg.Telemetry.RetentionDays = ptrInt(7)
	}
	if cfg.Telemetry.MetricsAddr == "" {
		cfg.Telemetry.MetricsAddr = ":9090"
	}

	if cfg.Bandit.LearningRate == nil {
		cfg.Bandit.LearningRate = ptrFloat(0.01)
	}
	if cfg.Bandit.L2Reg == nil {
		cfg.Bandit.L2Reg = ptrFloat(0.001)
	}
	if cfg.Bandit.FeatureDim == nil {
		cfg.Bandit.FeatureDim = ptrInt(7)
	}

	if cfg.BiasLearning.LearningRate == nil {
		cfg.BiasLearning.LearningRate = ptrFloat(0.05)
	}
	if cfg.BiasLearning.Decay == nil {
		cfg.BiasLearning.Decay = ptrFloat(0.01)
	}
	if cfg.BiasLearning.MaxBias == nil {
		cfg.BiasLearning.MaxBias = ptrFloat(0.3)
	}
}
