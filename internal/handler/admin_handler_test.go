package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/luxfi/geth/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/learnframe/learnframe-backend/internal/clock"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/response"
)

func newAdminRouter(t *testing.T) (*gin.Engine, *fakeLedger, *fakeLeaderboard) {
	t.Helper()
	clk := clock.New()
	clk.Set(epoch)
	ledger := newFakeLedger(clk)
	board := &fakeLeaderboard{
		entries: []model.LeaderboardEntry{
			{Rank: 1, Wallet: testWallet, BestCorrect: 10, Attempts: 2, PerfectCount: 1, TotalReward: "10", LastAttemptAt: epoch},
		},
		rewards: map[string][]model.RewardEvent{
			testWallet: {{ID: 1, Wallet: testWallet, Amount: "10", IssuedAt: epoch}},
		},
	}

	h := NewAdminHandler(ledger, board, fakeQuestions{set: quiz.DefaultQuestionSet()}, zerolog.Nop())
	r := gin.New()
	admin := r.Group("/admin", asAdmin(7))
	admin.GET("/wallets/:address/state", h.GetWalletState)
	admin.GET("/wallets/:address/sessions", h.GetWalletSessions)
	admin.POST("/wallets/:address/reset-session", h.ResetWalletSession)
	admin.GET("/wallets/:address/rewards", h.GetWalletRewards)
	admin.GET("/questions", h.GetQuestionSet)
	return r, ledger, board
}

func TestResetWalletSessionLiftsCooldown(t *testing.T) {
	r, ledger, _ := newAdminRouter(t)
	wallet := common.HexToAddress(testWallet)
	ledger.SetLastQuizTime(wallet, epoch.Add(-time.Hour))

	code, env := do(t, r, http.MethodGet, "/admin/wallets/"+testWallet+"/state", nil)
	require.Equal(t, http.StatusOK, code)
	var state model.QuizStateView
	require.NoError(t, json.Unmarshal(env.Data, &state))
	require.False(t, state.Cooldown.CanStart)

	code, _ = do(t, r, http.MethodPost, "/admin/wallets/"+testWallet+"/reset-session", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []common.Address{wallet}, ledger.resets)

	_, env = do(t, r, http.MethodGet, "/admin/wallets/"+testWallet+"/state", nil)
	require.NoError(t, json.Unmarshal(env.Data, &state))
	require.True(t, state.Cooldown.CanStart)
}

func TestAdminRejectsBadWallet(t *testing.T) {
	r, ledger, _ := newAdminRouter(t)

	for _, path := range []string{
		"/admin/wallets/0x1234/state",
		"/admin/wallets/0x0000000000000000000000000000000000000000/sessions",
		"/admin/wallets/nope/rewards",
	} {
		code, env := do(t, r, http.MethodGet, path, nil)
		require.Equal(t, http.StatusBadRequest, code, path)
		require.Equal(t, response.ErrInvalidWallet, env.Error.Code, path)
	}

	code, _ := do(t, r, http.MethodPost, "/admin/wallets/xyz/reset-session", nil)
	require.Equal(t, http.StatusBadRequest, code)
	require.Empty(t, ledger.resets)
}

func TestGetWalletRewardsUsesChecksumAddress(t *testing.T) {
	r, _, _ := newAdminRouter(t)

	// Lower-case input resolves to the checksummed key.
	code, env := do(t, r, http.MethodGet, "/admin/wallets/0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed/rewards", nil)
	require.Equal(t, http.StatusOK, code)

	var body struct {
		Rewards []model.RewardEvent `json:"rewards"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Len(t, body.Rewards, 1)
	require.Equal(t, "10", body.Rewards[0].Amount)
}

func TestGetQuestionSetIncludesAnswers(t *testing.T) {
	r, _, _ := newAdminRouter(t)

	code, env := do(t, r, http.MethodGet, "/admin/questions", nil)
	require.Equal(t, http.StatusOK, code)

	var body struct {
		Questions []quiz.Question `json:"questions"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Len(t, body.Questions, quiz.QuestionCount)
	key := quiz.DefaultQuestionSet().AnswerKey()
	for i, q := range body.Questions {
		require.Equal(t, key[i], q.Correct)
	}
}

func TestLeaderboardHandler(t *testing.T) {
	board := &fakeLeaderboard{
		entries: []model.LeaderboardEntry{{Rank: 1, Wallet: testWallet, BestCorrect: 10, TotalReward: "10"}},
	}
	h := NewLeaderboardHandler(board, zerolog.Nop())

	r := gin.New()
	r.GET("/leaderboard", h.List)
	r.GET("/leaderboard/me", asWallet(testWallet), h.GetMine)
	r.GET("/other/me", asWallet("0x00000000000000000000000000000000000000a1"), h.GetMine)

	code, env := do(t, r, http.MethodGet, "/leaderboard?page=1&per_page=10", nil)
	require.Equal(t, http.StatusOK, code)
	var entries []model.LeaderboardEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)

	code, env = do(t, r, http.MethodGet, "/leaderboard/me", nil)
	require.Equal(t, http.StatusOK, code)
	var mine model.LeaderboardEntry
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Equal(t, 1, mine.Rank)

	code, env = do(t, r, http.MethodGet, "/other/me", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, response.ErrNotFound, env.Error.Code)
}
