package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	require.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	require.Equal(t, DefaultOpenAIModel, cfg.OpenAI.Model)
	require.Equal(t, DefaultGenerationTimeout,
		cfg.Report.GenerationTimeout)
	require.Zero(t, cfg.Report.SummaryTTL)
	require.NotEmpty(t, cfg.DBPath)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: "0.0.0.0:9000"
db_path: "/tmp/digest.db"
github:
  max_items: 25
openai:
  model: gpt-4o
report:
  generation_timeout: 2m
  summary_ttl: 1h
  max_people: 3
`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	require.Equal(t, "/tmp/digest.db", cfg.DBPath)
	require.Equal(t, 25, cfg.GitHub.MaxItems)
	require.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	require.Equal(t, 2*time.Minute, cfg.Report.GenerationTimeout)
	require.Equal(t, time.Hour, cfg.Report.SummaryTTL)
	require.Equal(t, 3, cfg.Report.MaxPeople)
}

func TestLoadFromInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(
		path, []byte("listen_addr: [broken"), 0o600,
	))

	_, err := LoadFrom(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "gh-token-from-env")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("OPENAI_MODEL", "gpt-4o")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
github:
  token: file-token
openai:
  api_key: file-key
  model: gpt-4o-mini
`), 0o600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	require.Equal(t, "gh-token-from-env", cfg.GitHub.Token)
	require.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
	require.Equal(t, "gpt-4o", cfg.OpenAI.Model)
}
