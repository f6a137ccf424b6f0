package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("COZE_API_KEY", "ck")
	t.Setenv("COZE_BOT_ID", "bot")
	t.Setenv("DEEPSEEK_API_KEY", "dk")
	t.Setenv("DEEPSEEK_API_ENDPOINT", "https://api.deepseek.com/v1")
	t.Setenv("COZE_POLL_INTERVAL", "250ms")
	t.Setenv("MODEL_TEMPERATURE", "not-a-number")
	t.Setenv("COZE_API_ENDPOINT", "")

	cfg := ConfigFromEnv()
	assert.Equal(t, "ck", cfg.Coze.APIKey)
	assert.Equal(t, defaultCozeEndpoint, cfg.Coze.Endpoint)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, defaultCozeMaxAttempts, cfg.MaxPollAttempts)
	assert.InDelta(t, 0.7, cfg.Tuning.Temperature, 1e-6)
	assert.Equal(t, 2*time.Minute, cfg.HTTPTimeout)
}

func TestBuild_OnlyConfiguredProviders(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Coze:     ProviderCoze{APIKey: "ck", BotID: "bot", Endpoint: defaultCozeEndpoint},
		DeepSeek: ProviderCompat{APIKey: "dk", Endpoint: "https://api.deepseek.com/v1", Model: "deepseek-chat"},
		Dify:     ProviderDify{APIKey: "dk"},
	}
	ps, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, KindCoze, ps[KindCoze].Kind())
	assert.Equal(t, KindDeepSeek, ps[KindDeepSeek].Kind())
}
