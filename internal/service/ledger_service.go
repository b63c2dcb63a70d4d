package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/luxfi/geth/common"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/learnframe/learnframe-backend/internal/clock"
	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/metrics"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/repository"
)

var _ quiz.Ledger = (*LedgerService)(nil)

// LedgerService is the server-side quiz ledger. PostgreSQL is the source of
// truth; Redis caches session start, active session and last quiz time.
type LedgerService struct {
	sessionRepo *repository.QuizSessionRepository
	userRepo    *repository.QuizUserRepository
	draftRepo   *repository.DraftRepository
	questions   *QuestionService
	rdb         *redis.Client
	clock       *clock.Clock
	cfg         *config.Config
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(
	sessionRepo *repository.QuizSessionRepository,
	userRepo *repository.QuizUserRepository,
	draftRepo *repository.DraftRepository,
	questions *QuestionService,
	rdb *redis.Client,
	clk *clock.Clock,
	cfg *config.Config,
	m *metrics.Metrics,
	log zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		draftRepo:   draftRepo,
		questions:   questions,
		rdb:         rdb,
		clock:       clk,
		cfg:         cfg,
		metrics:     m,
		log:         log.With().Str("component", "ledger_service").Logger(),
	}
}

// sessionWindow is how long after its start a session still accepts answers.
func (s *LedgerService) sessionWindow() time.Duration {
	return s.cfg.QuizDuration + s.cfg.SubmitGrace
}

// StartSession opens a session for user.
func (s *LedgerService) StartSession(ctx context.Context, user common.Address) error {
	wallet := user.Hex()
	now := s.clock.Time()

	sess, err := s.sessionRepo.Begin(ctx, wallet, now, now.Add(-s.sessionWindow()), s.cfg.Cooldown)
	if err != nil {
		var violation *repository.CooldownViolation
		switch {
		case errors.As(err, &violation):
			s.metrics.StartRejections.WithLabelValues("cooldown").Inc()
			cd := quiz.NewCooldown(violation.LastQuizTime, now, s.cfg.Cooldown)
			s.cacheLastQuizTime(ctx, wallet, violation.LastQuizTime, now)
			return &quiz.CooldownError{Remaining: cd.Remaining}
		case errors.Is(err, repository.ErrActiveSessionExists):
			s.metrics.StartRejections.WithLabelValues("conflict").Inc()
			return quiz.ErrSessionConflict
		default:
			return fmt.Errorf("begin session: %w", err)
		}
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuizSessionStartKey(wallet), sess.StartedAt.Unix(), s.sessionWindow())
	pipe.Set(ctx, config.CacheKey.QuizActiveSessionKey(wallet), sess.ID.String(), s.sessionWindow())
	pipe.Set(ctx, config.CacheKey.QuizLastTimeKey(wallet), sess.StartedAt.Unix(), s.cfg.Cooldown)
	pipe.Del(ctx, config.CacheKey.QuizDraftKey(wallet))
	if _, err := pipe.Exec(ctx); err != nil {
		// Reads fall back to PostgreSQL and heal the cache.
		s.log.Warn().Err(err).Str("wallet", wallet).Msg("Failed to cache session start")
	}

	s.metrics.SessionsStarted.Inc()
	s.log.Info().
		Str("wallet", wallet).
		Str("session_id", sess.ID.String()).
		Msg("Quiz session started")
	return nil
}

// SubmitAnswers grades the user's running session and queues the result and,
// for a perfect score, the reward.
func (s *LedgerService) SubmitAnswers(ctx context.Context, user common.Address, answers quiz.Answers) (quiz.ScoreResult, error) {
	wallet := user.Hex()
	now := s.clock.Time()

	sess, err := s.sessionRepo.GetActive(ctx, wallet)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.metrics.Submissions.WithLabelValues(metrics.OutcomeRejected).Inc()
			return quiz.ScoreResult{}, quiz.ErrNoActiveSession
		}
		return quiz.ScoreResult{}, fmt.Errorf("get active session: %w", err)
	}

	if now.Sub(sess.StartedAt) > s.sessionWindow() {
		s.metrics.Submissions.WithLabelValues(metrics.OutcomeExpired).Inc()
		return quiz.ScoreResult{}, quiz.ErrSessionExpired
	}

	key, err := s.questions.GetAnswerKey(ctx)
	if err != nil {
		return quiz.ScoreResult{}, fmt.Errorf("load answer key: %w", err)
	}
	res := quiz.ScoreKey(key, answers, s.cfg.RewardAmount)

	ok, err := s.sessionRepo.Complete(ctx, sess.ID, answers[:], res.Correct, res.Reward.Dec(), now)
	if err != nil {
		return quiz.ScoreResult{}, fmt.Errorf("complete session: %w", err)
	}
	if !ok {
		// Another submission completed the session first.
		s.metrics.Submissions.WithLabelValues(metrics.OutcomeRejected).Inc()
		return quiz.ScoreResult{}, quiz.ErrNoActiveSession
	}

	s.enqueueResult(ctx, sess.ID, wallet, res, now)

	outcome := metrics.OutcomeScored
	if res.Perfect {
		outcome = metrics.OutcomePerfect
	}
	s.metrics.Submissions.WithLabelValues(outcome).Inc()
	s.log.Info().
		Str("wallet", wallet).
		Str("session_id", sess.ID.String()).
		Int("correct", res.Correct).
		Bool("perfect", res.Perfect).
		Msg("Quiz submitted")
	return res, nil
}

func (s *LedgerService) enqueueResult(ctx context.Context, sessionID uuid.UUID, wallet string, res quiz.ScoreResult, finishedAt time.Time) {
	result, _ := json.Marshal(model.ResultMessage{
		SessionID:  sessionID.String(),
		Wallet:     wallet,
		Correct:    res.Correct,
		Perfect:    res.Perfect,
		Reward:     res.Reward.Dec(),
		FinishedAt: finishedAt.Unix(),
	})

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, result)
	if res.Perfect {
		reward, _ := json.Marshal(model.RewardMessage{
			SessionID: sessionID.String(),
			Wallet:    wallet,
			Amount:    res.Reward.Dec(),
			IssuedAt:  finishedAt.Unix(),
		})
		pipe.RPush(ctx, config.WorkerKey.IssueRewardsQueue, reward)
	}
	pipe.Del(ctx,
		config.CacheKey.QuizSessionStartKey(wallet),
		config.CacheKey.QuizActiveSessionKey(wallet),
		config.CacheKey.QuizDraftKey(wallet),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).
			Str("wallet", wallet).
			Str("session_id", sessionID.String()).
			Msg("Failed to queue quiz result")
		return
	}
	if res.Perfect {
		s.metrics.RewardsQueued.Inc()
	}
}

// LastQuizTime returns when user last started a quiz (zero if never).
func (s *LedgerService) LastQuizTime(ctx context.Context, user common.Address) (time.Time, error) {
	wallet := user.Hex()
	key := config.CacheKey.QuizLastTimeKey(wallet)

	val, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		unix, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid last quiz time in cache: %w", err)
		}
		return time.Unix(unix, 0), nil
	}
	if !errors.Is(err, redis.Nil) {
		return time.Time{}, fmt.Errorf("redis error getting last quiz time: %w", err)
	}

	last, err := s.userRepo.GetLastQuizTime(ctx, wallet)
	if err != nil {
		return time.Time{}, fmt.Errorf("get last quiz time: %w", err)
	}
	s.cacheLastQuizTime(ctx, wallet, last, s.clock.Time())
	return last, nil
}

// cacheLastQuizTime stores last for as long as it still blocks a start.
func (s *LedgerService) cacheLastQuizTime(ctx context.Context, wallet string, last, now time.Time) {
	if last.IsZero() {
		return
	}
	ttl := last.Add(s.cfg.Cooldown).Sub(now)
	if ttl <= 0 {
		return
	}
	_ = s.rdb.Set(ctx, config.CacheKey.QuizLastTimeKey(wallet), last.Unix(), ttl).Err()
}

// ReadSession returns the user's latest session, or nil if there is none.
func (s *LedgerService) ReadSession(ctx context.Context, user common.Address) (*quiz.LedgerSession, error) {
	wallet := user.Hex()

	if sess, err := s.readCachedSession(ctx, user); err != nil {
		return nil, err
	} else if sess != nil {
		return sess, nil
	}

	row, err := s.sessionRepo.GetLatest(ctx, wallet)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest session: %w", err)
	}

	sess := &quiz.LedgerSession{
		ID:           row.ID,
		User:         user,
		StartTime:    row.StartedAt,
		IsActive:     row.Status == model.SessionStatusInProgress,
		HasCompleted: row.Status == model.SessionStatusCompleted,
	}
	copy(sess.Answers[:], row.Answers)

	if sess.IsActive {
		drafts, err := s.draftRepo.ListBySession(ctx, row.ID)
		if err != nil {
			return nil, fmt.Errorf("list drafts: %w", err)
		}
		cached, err := s.rdb.HGetAll(ctx, config.CacheKey.QuizDraftKey(wallet)).Result()
		if err != nil {
			return nil, fmt.Errorf("get drafts: %w", err)
		}
		mergeDrafts(&sess.Answers, drafts, cached)

		// Self-heal so the next read is served from Redis.
		if ttl := row.StartedAt.Add(s.sessionWindow()).Sub(s.clock.Time()); ttl > 0 {
			pipe := s.rdb.Pipeline()
			pipe.Set(ctx, config.CacheKey.QuizSessionStartKey(wallet), row.StartedAt.Unix(), ttl)
			pipe.Set(ctx, config.CacheKey.QuizActiveSessionKey(wallet), row.ID.String(), ttl)
			_, _ = pipe.Exec(ctx)
		}
	}
	return sess, nil
}

// readCachedSession serves a running session from Redis. It returns nil
// without error on any cache miss.
func (s *LedgerService) readCachedSession(ctx context.Context, user common.Address) (*quiz.LedgerSession, error) {
	wallet := user.Hex()

	pipe := s.rdb.Pipeline()
	idCmd := pipe.Get(ctx, config.CacheKey.QuizActiveSessionKey(wallet))
	startCmd := pipe.Get(ctx, config.CacheKey.QuizSessionStartKey(wallet))
	draftCmd := pipe.HGetAll(ctx, config.CacheKey.QuizDraftKey(wallet))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis error reading session: %w", err)
	}

	rawID, err := idCmd.Result()
	if err != nil {
		return nil, nil
	}
	rawStart, err := startCmd.Result()
	if err != nil {
		return nil, nil
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, nil
	}
	start, err := strconv.ParseInt(rawStart, 10, 64)
	if err != nil {
		return nil, nil
	}

	sess := &quiz.LedgerSession{
		ID:        id,
		User:      user,
		StartTime: time.Unix(start, 0),
		IsActive:  true,
	}
	mergeDrafts(&sess.Answers, nil, draftCmd.Val())
	return sess, nil
}

// mergeDrafts applies persisted drafts, then the newer cached ones.
func mergeDrafts(answers *quiz.Answers, persisted map[int]string, cached map[string]string) {
	for idx, ans := range persisted {
		if idx >= 0 && idx < quiz.QuestionCount {
			answers[idx] = ans
		}
	}
	for field, ans := range cached {
		idx, err := strconv.Atoi(field)
		if err != nil || idx < 0 || idx >= quiz.QuestionCount {
			continue
		}
		answers[idx] = ans
	}
}

// SaveDraft records a selection for the user's running session so it can be
// restored after a reconnect.
func (s *LedgerService) SaveDraft(ctx context.Context, user common.Address, index int, answer string) error {
	if !s.questions.Set().IsOption(index, answer) {
		return fmt.Errorf("%w: question %d", quiz.ErrInvalidAnswers, index)
	}

	sess, err := s.ReadSession(ctx, user)
	if err != nil {
		return err
	}
	if sess == nil || !sess.IsActive || s.clock.Time().Sub(sess.StartTime) > s.sessionWindow() {
		return quiz.ErrNoActiveSession
	}

	wallet := user.Hex()
	msg, _ := json.Marshal(model.DraftMessage{
		SessionID: sess.ID.String(),
		Index:     index,
		Answer:    answer,
	})

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, config.CacheKey.QuizDraftKey(wallet), strconv.Itoa(index), answer)
	pipe.Expire(ctx, config.CacheKey.QuizDraftKey(wallet), s.sessionWindow())
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Cooldown returns the user's cooldown view.
func (s *LedgerService) Cooldown(ctx context.Context, user common.Address) (*model.CooldownView, error) {
	last, err := s.LastQuizTime(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.cooldownView(last), nil
}

func (s *LedgerService) cooldownView(last time.Time) *model.CooldownView {
	cd := quiz.NewCooldown(last, s.clock.Time(), s.cfg.Cooldown)
	view := &model.CooldownView{
		RemainingSeconds: cd.RemainingSeconds(),
		Remaining:        quiz.FormatRemaining(cd.Remaining),
		CanStart:         cd.CanStart,
	}
	if !last.IsZero() {
		l := last
		view.LastQuizTime = &l
		if !cd.CanStart {
			until := cd.Until(s.cfg.Cooldown)
			view.AvailableAt = &until
		}
	}
	return view
}

// State returns the cooldown together with the latest session. Both are
// read in parallel.
func (s *LedgerService) State(ctx context.Context, user common.Address) (*model.QuizStateView, error) {
	var (
		last   time.Time
		latest *model.QuizSession
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		last, err = s.LastQuizTime(gctx, user)
		return err
	})
	g.Go(func() error {
		row, err := s.sessionRepo.GetLatest(gctx, user.Hex())
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("get latest session: %w", err)
		}
		latest = row
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	view := &model.QuizStateView{
		Cooldown: *s.cooldownView(last),
		Session:  latest,
	}
	if latest != nil && latest.Status == model.SessionStatusInProgress {
		left := s.cfg.QuizDuration - s.clock.Time().Sub(latest.StartedAt)
		if left > 0 {
			view.TimeRemaining = int(left / time.Second)
		}
	}
	return view, nil
}

// History returns the wallet's recent sessions.
func (s *LedgerService) History(ctx context.Context, user common.Address, limit int) ([]model.QuizSession, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	sessions, err := s.sessionRepo.ListByWallet(ctx, user.Hex(), limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []model.QuizSession{}
	}
	return sessions, nil
}

// ResetSession abandons the user's running session and lifts the cooldown.
func (s *LedgerService) ResetSession(ctx context.Context, user common.Address) (int64, error) {
	wallet := user.Hex()

	abandoned, err := s.sessionRepo.AbandonActive(ctx, wallet, s.clock.Time())
	if err != nil {
		return 0, fmt.Errorf("abandon session: %w", err)
	}
	if err := s.userRepo.ClearLastQuizTime(ctx, wallet); err != nil {
		return 0, fmt.Errorf("clear last quiz time: %w", err)
	}

	if err := s.rdb.Del(ctx,
		config.CacheKey.QuizSessionStartKey(wallet),
		config.CacheKey.QuizActiveSessionKey(wallet),
		config.CacheKey.QuizLastTimeKey(wallet),
		config.CacheKey.QuizDraftKey(wallet),
	).Err(); err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}

	s.log.Info().Str("wallet", wallet).Int64("abandoned", abandoned).Msg("Quiz session reset")
	return abandoned, nil
}
