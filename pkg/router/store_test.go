package router

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteParamStore {
	t.Helper()
	s, err := NewSQLiteParamStore(filepath.Join(t.TempDir(), "router.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteParamStore_BanditWeights_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	initial, err := s.LoadBanditWeights(ctx)
	require.NoError(t, err)
	assert.Empty(t, initial)

	weights := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7}
	require.NoError(t, s.SaveBanditWeights(ctx, weights))

	loaded, err := s.LoadBanditWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, weights, loaded)

	require.NoError(t, s.SaveBanditWeights(ctx, []float64{1, 1, 1, 1, 1, 1, 1}))
	loaded, err = s.LoadBanditWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1, 1}, loaded)
}

func TestSQLiteParamStore_Bias_RoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	all, err := s.LoadAllBias(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, s.SaveBias(ctx, "fs.read_file", 0.1))
	require.NoError(t, s.SaveBias(ctx, "gh.create_issue", -0.05))

	all, err = s.LoadAllBias(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.1, all["fs.read_file"])
	assert.Equal(t, -0.05, all["gh.create_issue"])

	require.NoError(t, s.SaveBias(ctx, "fs.read_file", 0.2))
	all, err = s.LoadAllBias(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.2, all["fs.read_file"])
}
