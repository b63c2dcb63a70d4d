package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	require.Equal(t, 120*time.Second, cfg.QuizDuration)
	require.Equal(t, 7*24*time.Hour, cfg.Cooldown)
	require.Equal(t, 5*time.Second, cfg.RedirectDelay)
	require.Equal(t, DefaultRewardAmount, cfg.RewardAmount.Dec())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUIZ_DURATION_SECONDS", "60")
	t.Setenv("COOLDOWN_SECONDS", "3600")
	t.Setenv("REWARD_AMOUNT", "42")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg := Load()
	require.Equal(t, time.Minute, cfg.QuizDuration)
	require.Equal(t, time.Hour, cfg.Cooldown)
	require.Equal(t, uint64(42), cfg.RewardAmount.Uint64())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("QUIZ_DURATION_SECONDS", "soon")
	t.Setenv("REWARD_AMOUNT", "-1")

	cfg := Load()
	require.Equal(t, 120*time.Second, cfg.QuizDuration)
	require.Equal(t, DefaultRewardAmount, cfg.RewardAmount.Dec())
}

func TestCacheKeys(t *testing.T) {
	addr := "0x00000000000000000000000000000000000000A1"
	require.Equal(t, "quiz:user:"+addr+":session_start", CacheKey.QuizSessionStartKey(addr))
	require.Equal(t, "login:"+addr, CacheKey.WalletLoginKey(addr))
	require.Equal(t, "quiz:questions:key", CacheKey.QuestionsAnswerKey())
}
