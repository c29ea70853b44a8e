package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEnv map[string]string

func (m mapEnv) Getenv(key string) string { return m[key] }

func writeTempConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ucp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestYAMLLoader_Load(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		envVars mapEnv
		want    func(*testing.T, *Config)
		wantErr bool
	}{
		{
			name: "valid minimal configuration applies defaults",
			yaml: `
server:
  port: 8080
downstream_servers:
  - name: fs
    transport: stdio
    command: mcp-fs
`,
			want: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 10, *cfg.Router.MaxTools)
				assert.Equal(t, 50, *cfg.Router.CandidatePoolSize)
				assert.Equal(t, 3, *cfg.Router.MaxPerServer)
				assert.Len(t, cfg.DownstreamServers, 1)
			},
		},
		{
			name: "env var substitution",
			yaml: `
session:
  store: redis
  redis_addr: ${REDIS_ADDR}
`,
			envVars: mapEnv{"REDIS_ADDR": "localhost:6379"},
			want: func(t *testing.T, cfg *Config) {
				t.Helper()
				assert.Equal(t, "localhost:6379", cfg.Session.RedisAddr)
			},
		},
		{
			name:    "malformed yaml",
			yaml:    "server: [this is not valid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeTempConfig(t, tt.yaml)
			loader := NewYAMLLoader(path, tt.envVars)
			cfg, err := loader.Load()

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.want(t, cfg)
		})
	}
}

func TestYAMLLoader_Load_MissingFile(t *testing.T) {
	t.Parallel()
	loader := NewYAMLLoader("/nonexistent/path.yaml", mapEnv{})
	_, err := loader.Load()
	require.Error(t, err)
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid default configuration",
			mutate: func(*Config) {},
		},
		{
			name: "invalid port",
			mutate: func(c *Config) {
				c.Server.Port = 99999
			},
			wantErr: true,
		},
		{
			name: "min_tools greater than max_tools",
			mutate: func(c *Config) {
				*c.Router.MinTools = 20
			},
			wantErr: true,
		},
		{
			name: "max_per_server below 1",
			mutate: func(c *Config) {
				*c.Router.MaxPerServer = 0
			},
			wantErr: true,
		},
		{
			name: "redis store without address",
			mutate: func(c *Config) {
				c.Session.Store = "redis"
				c.Session.RedisAddr = ""
			},
			wantErr: true,
		},
		{
			name: "duplicate downstream server name",
			mutate: func(c *Config) {
				c.DownstreamServers = []DownstreamServerConfig{
					{Name: "a", Transport: "stdio", Command: "x"},
					{Name: "a", Transport: "stdio", Command: "y"},
				}
			},
			wantErr: true,
		},
		{
			name: "stdio server missing command",
			mutate: func(c *Config) {
				c.DownstreamServers = []DownstreamServerConfig{{Name: "a", Transport: "stdio"}}
			},
			wantErr: true,
		},
		{
			name: "http server missing url",
			mutate: func(c *Config) {
				c.DownstreamServers = []DownstreamServerConfig{{Name: "a", Transport: "http"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{}
			applyDefaults(cfg)
			tt.mutate(cfg)

			err := NewValidator().Validate(cfg)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
