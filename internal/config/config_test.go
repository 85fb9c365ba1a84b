package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndExpandsEnv(t *testing.T) {
	t.Setenv("TEST_ROUTERD_CAP", "12.5")

	dir := t.TempDir()
	path := filepath.Join(dir, "routerd.yaml")
	contents := "usage:\n  daily_cap_usd: ${TEST_ROUTERD_CAP}\nproviders:\n  default_model: claude-sonnet\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 12.5, cfg.Usage.DailyCapUSD)
	require.Equal(t, "anthropic", cfg.Providers.Default)
	require.Equal(t, "claude-sonnet", cfg.Providers.DefaultModel)
	require.Greater(t, int64(cfg.Pool.CleanupInterval), int64(0))
	require.Equal(t, 200_000, cfg.Prompt.ContextWindow)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load("/nonexistent/routerd.yaml")
	require.Error(t, err)
}
