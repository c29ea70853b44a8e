package router

// RewardConfig parameterizes the canonical reward formula of spec.md §6.
// Defaults match the spec's worked examples.
type RewardConfig struct {
	LatencyScale float64 // ms
	LatencyCap   float64
	ContextScale float64 // tokens
	ContextCap   float64
	FollowupPenalty float64
}

// DefaultRewardConfig returns the spec's canonical coefficients.
func DefaultRewardConfig() RewardConfig {
	return RewardConfig{
		LatencyScale:    1000,
		LatencyCap:      1.0,
		ContextScale:    2000,
		ContextCap:      1.0,
		FollowupPenalty: 0.2,
	}
}

// ComputeReward implements spec.md §6's canonical reward formula:
//
//	reward = success_reward + latency_penalty + context_cost_penalty + followup_penalty
//
// clamped to [-1, 1]. followupRetry is true when another tool_call with
// the same name occurred within 2s after a failure.
func ComputeReward(success bool, execMs float64, schemaTokens int, followupRetry bool, cfg RewardConfig) float64 {
	successReward := -1.0
	if success {
		successReward = 1.0
	}
	latencyPenalty := -min(execMs/cfg.LatencyScale, cfg.LatencyCap)
	contextCostPenalty := -min(float64(schemaTokens)/cfg.ContextScale, cfg.ContextCap)
	followupPenalty := 0.0
	if followupRetry {
		followupPenalty = -cfg.FollowupPenalty
	}
	total := successReward + latencyPenalty + contextCostPenalty + followupPenalty
	return clamp(total, 1)
}
