package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ucp-project/ucp/internal/config"
	"github.com/ucp-project/ucp/pkg/router"
)

func writeTestConfig(t *testing.T, dir string, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "ucp.yaml")
	body := "server:\n  host: 127.0.0.1\n  port: 4483\n" +
		"tool_zoo:\n  db_path: " + filepath.Join(dir, "zoo.db") + "\n" +
		"session:\n  store: sqlite\n  db_path: " + filepath.Join(dir, "sessions.db") + "\n" +
		"telemetry:\n  jsonl_dir: " + dir + "\n  db_path: " + filepath.Join(dir, "telemetry.db") + "\n" +
		extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAndValidateConfig_MissingFileReturnsError(t *testing.T) {
	t.Parallel()

	_, err := loadAndValidateConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoadAndValidateConfig_ValidFile(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, t.TempDir(), "")
	cfg, err := loadAndValidateConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4483, cfg.Server.Port)
	assert.Equal(t, "epsilon_greedy", cfg.Router.ExplorationType)
}

func TestLoadAndValidateConfig_InvalidPortFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ucp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o644))

	_, err := loadAndValidateConfig(path)
	require.Error(t, err)
}

func TestRouterConfigFromYAML_OverridesDefaults(t *testing.T) {
	t.Parallel()

	maxTools := 4
	explorationRate := 0.2
	cfg := &config.Config{
		Router: config.RouterConfig{
			MaxTools:        &maxTools,
			ExplorationRate: &explorationRate,
			ExplorationType: "thompson",
		},
		Bandit: config.BanditConfig{Enabled: true},
	}

	rc := routerConfigFromYAML(cfg)
	assert.Equal(t, 4, rc.MaxTools)
	assert.InDelta(t, 0.2, rc.ExplorationRate, 1e-9)
	assert.Equal(t, "thompson", rc.ExplorationType)
	assert.True(t, rc.BanditEnabled)
}

func TestRouterConfigFromYAML_UnsetFieldsKeepDefaults(t *testing.T) {
	t.Parallel()

	defaults := router.DefaultConfig()
	rc := routerConfigFromYAML(&config.Config{})
	assert.Equal(t, defaults.MaxTools, rc.MaxTools)
	assert.Equal(t, defaults.ExplorationType, rc.ExplorationType)
	assert.False(t, rc.BanditEnabled)
	assert.False(t, rc.BiasEnabled)
}

func TestBuildSessionStore_DefaultsToSQLite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := buildSessionStore(&config.Config{
		Session: config.SessionConfig{DBPath: filepath.Join(dir, "sessions.db")},
	})
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close() //nolint:errcheck
}

func TestBuildSessionStore_Redis(t *testing.T) {
	t.Parallel()

	store, err := buildSessionStore(&config.Config{
		Session: config.SessionConfig{Store: "redis", RedisAddr: "127.0.0.1:0"},
	})
	require.NoError(t, err)
	require.NotNil(t, store)
}

func TestBuildDeps_WiresEveryDependency(t *testing.T) {
	t.Parallel()

	path := writeTestConfig(t, t.TempDir(), "")
	cfg, err := loadAndValidateConfig(path)
	require.NoError(t, err)

	d, err := buildDeps(context.Background(), cfg)
	require.NoError(t, err)
	defer d.Close()

	assert.NotNil(t, d.zoo)
	assert.NotNil(t, d.pool)
	assert.NotNil(t, d.rtr)
	assert.NotNil(t, d.sessions)
	assert.NotNil(t, d.telemetry)
}

func TestNewInitConfigCmd_WritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "generated.yaml")

	cmd := newInitConfigCmd()
	cmd.SetArgs([]string{"--out", out})
	require.NoError(t, cmd.Execute())

	contents, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "downstream_servers")
}

func TestNewRootCmd_HasExpectedSubcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "index", "search", "status", "init-config", "version"} {
		assert.True(t, names[want], "expected subcommand %q", want)
	}
}
