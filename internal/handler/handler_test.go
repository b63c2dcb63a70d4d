package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/luxfi/geth/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/learnframe/learnframe-backend/internal/clock"
	"github.com/learnframe/learnframe-backend/internal/middleware"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/quiz/quiztest"
	"github.com/learnframe/learnframe-backend/internal/response"
	"github.com/learnframe/learnframe-backend/internal/service"
	"github.com/learnframe/learnframe-backend/internal/validator"
)

const testWallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

var epoch = time.Unix(1_700_000_000, 0).UTC()

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// fakeLedger adds the HTTP-only operations on top of the in-memory ledger.
type fakeLedger struct {
	*quiztest.Ledger
	clock *clock.Clock

	mu       sync.Mutex
	drafts   map[int]string
	draftErr error
	resets   []common.Address
}

func newFakeLedger(clk *clock.Clock) *fakeLedger {
	return &fakeLedger{
		Ledger: quiztest.NewLedger(clk, quiz.DefaultQuestionSet()),
		clock:  clk,
		drafts: make(map[int]string),
	}
}

func (f *fakeLedger) SaveDraft(_ context.Context, _ common.Address, index int, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.draftErr != nil {
		return f.draftErr
	}
	f.drafts[index] = answer
	return nil
}

func (f *fakeLedger) savedDrafts() map[int]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int]string, len(f.drafts))
	for k, v := range f.drafts {
		out[k] = v
	}
	return out
}

func (f *fakeLedger) Cooldown(ctx context.Context, user common.Address) (*model.CooldownView, error) {
	last, err := f.LastQuizTime(ctx, user)
	if err != nil {
		return nil, err
	}
	cd := quiz.NewCooldown(last, f.clock.Time(), quiz.DefaultCooldownPeriod)
	view := &model.CooldownView{
		RemainingSeconds: cd.RemainingSeconds(),
		Remaining:        quiz.FormatRemaining(cd.Remaining),
		CanStart:         cd.CanStart,
	}
	if !last.IsZero() {
		view.LastQuizTime = &last
	}
	return view, nil
}

func (f *fakeLedger) State(ctx context.Context, user common.Address) (*model.QuizStateView, error) {
	cd, err := f.Cooldown(ctx, user)
	if err != nil {
		return nil, err
	}
	view := &model.QuizStateView{Cooldown: *cd}
	if s, ok := f.Session(user); ok {
		status := model.SessionStatusCompleted
		if s.IsActive {
			status = model.SessionStatusInProgress
		}
		view.Session = &model.QuizSession{
			ID:        s.ID,
			Wallet:    user.Hex(),
			StartedAt: s.StartTime,
			Status:    status,
		}
	}
	return view, nil
}

func (f *fakeLedger) History(context.Context, common.Address, int) ([]model.QuizSession, error) {
	return []model.QuizSession{}, nil
}

func (f *fakeLedger) ResetSession(_ context.Context, user common.Address) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, user)
	f.Ledger.SetLastQuizTime(user, time.Time{})
	return 1, nil
}

type fakeQuestions struct {
	set quiz.QuestionSet
}

func (f fakeQuestions) GetPayload(context.Context) (*service.QuestionPayload, error) {
	return &service.QuestionPayload{Total: quiz.QuestionCount, DurationSeconds: 120, Questions: f.set.Public()}, nil
}

func (f fakeQuestions) Set() quiz.QuestionSet { return f.set }

type fakeLeaderboard struct {
	entries []model.LeaderboardEntry
	rewards map[string][]model.RewardEvent
}

func (f *fakeLeaderboard) List(_ context.Context, page, perPage int) ([]model.LeaderboardEntry, *response.Pagination, error) {
	return f.entries, &response.Pagination{Page: page, PerPage: perPage, TotalItems: len(f.entries), TotalPages: 1}, nil
}

func (f *fakeLeaderboard) GetByWallet(_ context.Context, wallet string) (*model.LeaderboardEntry, error) {
	for i := range f.entries {
		if f.entries[i].Wallet == wallet {
			return &f.entries[i], nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (f *fakeLeaderboard) Rewards(_ context.Context, wallet string, _ int) ([]model.RewardEvent, error) {
	return f.rewards[wallet], nil
}

func (f *fakeLeaderboard) Subscribe(context.Context) *redis.PubSub { return nil }

// asWallet stands in for the JWT middleware.
func asWallet(wallet string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeWallet, Wallet: wallet})
		c.Next()
	}
}

func asAdmin(id int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{TokenType: service.TokenTypeAdmin, UserID: id})
		c.Next()
	}
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}
