// Package config loads CLI configuration from an optional YAML file and
// the environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dlovans/charsheet/pkg/ruleset"
)

// Config is the CLI configuration.
type Config struct {
	DBPath   string `env:"CHARSHEET_DB_PATH"   yaml:"db_path"`
	LogLevel string `env:"CHARSHEET_LOG_LEVEL" yaml:"log_level"`
	Role     string `env:"CHARSHEET_ROLE"      yaml:"role"`
	Actor    string `env:"CHARSHEET_ACTOR"     yaml:"actor"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DBPath:   "charsheet.db",
		LogLevel: "info",
		Role:     string(ruleset.RolePlayer),
	}
}

// ParseEnv loads configuration from environment variables. Fields whose
// variable is unset keep their current value.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load starts from Default, overlays the YAML file at path (if path is not
// empty) and then the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ActorRole is Role parsed as a ruleset role; unknown roles are players.
func (c Config) ActorRole() ruleset.Role {
	return ruleset.ParseRole(strings.ToLower(strings.TrimSpace(c.Role)))
}
