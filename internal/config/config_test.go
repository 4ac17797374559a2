package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlovans/charsheet/pkg/ruleset"
)

type envTestConfig struct {
	Port int `env:"CHARSHEET_TEST_PORT" envDefault:"123"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig
	require.NoError(t, ParseEnv(&cfg))
	assert.Equal(t, 123, cfg.Port)
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CHARSHEET_TEST_PORT", "not-an-int")

	err := ParseEnv(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ruleset.RolePlayer, cfg.ActorRole())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charsheet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: table.db\nrole: dm\nactor: alice\n"), 0o600))
	t.Setenv("CHARSHEET_ACTOR", "bob")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "table.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel, "unset keys keep their default")
	assert.Equal(t, "bob", cfg.Actor, "environment wins over the file")
	assert.Equal(t, ruleset.RoleDM, cfg.ActorRole())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestActorRoleFallsBackToPlayer(t *testing.T) {
	assert.Equal(t, ruleset.RoleDM, Config{Role: " DM "}.ActorRole())
	assert.Equal(t, ruleset.RolePlayer, Config{Role: "gm"}.ActorRole())
}
