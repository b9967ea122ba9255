package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adswap/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.TransportLocal, cfg.Transport)
	assert.Equal(t, 0.7, cfg.ConfidenceThreshold)
	assert.Equal(t, 5.0, cfg.GeometryTolerance)
	assert.Equal(t, 0, cfg.QuoteRefreshMinutes)
	assert.False(t, cfg.RuleOnlyFallback)
}

func TestLoadConfig(t *testing.T) {
	os.Setenv("RULE_LIST_URL", "http://rules.test/list.txt")
	defer os.Unsetenv("RULE_LIST_URL")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "http://rules.test/list.txt", cfg.RuleListURL)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("QUOTE_URL=http://quotes.test/random")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "http://quotes.test/random", cfg.QuoteURL)
}

func TestLoadConfig_Toggles(t *testing.T) {
	os.Setenv("ENABLE_API", "false")
	os.Setenv("ENABLE_COMPUTE", "false")
	os.Setenv("SCORE_TIMEOUT_MS", "250")
	defer os.Unsetenv("ENABLE_API")
	defer os.Unsetenv("ENABLE_COMPUTE")
	defer os.Unsetenv("SCORE_TIMEOUT_MS")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.False(t, cfg.EnableAPI)
	assert.False(t, cfg.EnableCompute)
	assert.Equal(t, 250, cfg.ScoreTimeoutMS)
	assert.Equal(t, int64(250), cfg.ScoreTimeout().Milliseconds())
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "adswap.replace.tab-1", config.ReplaceTopic("tab-1"))
	assert.Equal(t, "adswap.reply.orc-1", config.ReplyTopic("orc-1"))
}
