package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv("TOTAL_ROUNDS", "5")
	t.Setenv("WRITING_SECONDS", "0")
	t.Setenv("VOTING_SECONDS", "12")
	t.Setenv("AI_CONCURRENCY", "-3")
	t.Setenv("OPENAI_MODEL", "gpt-test")
	t.Setenv("AI_OUTPUT_MICROS_PER_1K", "900")

	cfg := Load()
	assert.Equal(t, 5, cfg.TotalRounds)
	assert.Equal(t, 0, cfg.WritingDurationSeconds)
	assert.Equal(t, time.Duration(0), cfg.WritingDuration())
	assert.Equal(t, 12*time.Second, cfg.VotingDuration())
	assert.Equal(t, Default().AIConcurrency, cfg.AIConcurrency)
	assert.Equal(t, "gpt-test", cfg.OpenAIModel)
	assert.Equal(t, int64(900), cfg.AIOutputMicrosPer1K)
}

func TestLoadIgnoresGarbage(t *testing.T) {
	t.Setenv("REVEAL_SECONDS", "soon")
	t.Setenv("STREAM_TICK_MS", "0")

	cfg := Load()
	assert.Equal(t, Default().RevealDurationSeconds, cfg.RevealDurationSeconds)
	assert.Equal(t, time.Second, cfg.StreamTick())
}

func TestLoadDotEnvMissingFileIsNotAnError(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadDotEnvDoesNotOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HOST_STALE_SECONDS=99\nINACTIVE_SECONDS=70\n"), 0o644))
	t.Setenv("HOST_STALE_SECONDS", "31")
	t.Setenv("INACTIVE_SECONDS", "")
	os.Unsetenv("INACTIVE_SECONDS")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("INACTIVE_SECONDS") })

	cfg := Load()
	assert.Equal(t, 31, cfg.HostStaleSeconds)
	assert.Equal(t, 70, cfg.InactiveSeconds)
}
