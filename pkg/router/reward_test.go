package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeReward_Success(t *testing.T) {
	t.Parallel()

	cfg := DefaultRewardConfig()
	got := ComputeReward(true, 50, 100, false, cfg)
	assert.Greater(t, got, 0.0)
	assert.LessOrEqual(t, got, 1.0)
}

func TestComputeReward_Failure(t *testing.T) {
	t.Parallel()

	cfg := DefaultRewardConfig()
	got := ComputeReward(false, 50, 100, false, cfg)
	assert.Less(t, got, 0.0)
	assert.GreaterOrEqual(t, got, -1.0)
}

func TestComputeReward_HighLatencyPenalizesMore(t *testing.T) {
	t.Parallel()

	cfg := DefaultRewardConfig()
	fast := ComputeReward(true, 10, 100, false, cfg)
	slow := ComputeReward(true, 5000, 100, false, cfg)
	assert.Greater(t, fast, slow)
}

func TestComputeReward_FollowupPenaltyApplies(t *testing.T) {
	t.Parallel()

	cfg := DefaultRewardConfig()
	withoutFollowup := ComputeReward(false, 50, 100, false, cfg)
	withFollowup := ComputeReward(false, 50, 100, true, cfg)
	assert.Less(t, withFollowup, withoutFollowup)
}

func TestComputeReward_ClampedToUnitRange(t *testing.T) {
	t.Parallel()

	cfg := DefaultRewardConfig()
	got := ComputeReward(true, 0, 0, false, cfg)
	assert.LessOrEqual(t, got, 1.0)
	assert.GreaterOrEqual(t, got, -1.0)

	got = ComputeReward(false, 1_000_000, 1_000_000, true, cfg)
	assert.GreaterOrEqual(t, got, -1.0)
}
