package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ucp-project/ucp/internal/logging"
)

// envVarPattern matches ${VAR_NAME} placeholders in the raw YAML text,
// substituted from the environment before parsing (e.g. for downstream
// server auth tokens).
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// YAMLLoader loads a Config from a YAML file on disk.
type YAMLLoader struct {
	path string
	env  logging.EnvReader
}

// NewYAMLLoader constructs a loader for the file at path, resolving
// ${VAR} placeholders against env.
func NewYAMLLoader(path string, env logging.EnvReader) *YAMLLoader {
	return &YAMLLoader{path: path, env: env}
}

// Load reads, expands, parses, and defaults the configuration file.
func (l *YAMLLoader) Load() (*Config, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", l.path, err)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(raw), func(m string) string {
		name := envVarPattern.FindStringSubmatch(m)[1]
		if v := l.env.Getenv(name); v != "" {
			return v
		}
		return m
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", l.path, err)
	}

	// An explicit server.port (even 0) is kept, so the validator can reject
	// it; only an absent port gets the default.
	var explicit struct {
		Server struct {
			Port *int `yaml:"port"`
		} `yaml:"server"`
	}
	_ = yaml.Unmarshal([]byte(expanded), &explicit)

	applyDefaults(&cfg)
	if explicit.Server.Port != nil {
		cfg.Server.Port = *explicit.Server.Port
	}
	return &cfg, nil
}
