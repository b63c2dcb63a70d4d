package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/metrics"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/quiz"
)

const (
	ReconcileInterval = time.Minute
	// ReconcileMinAge leaves the normal queue path time to settle a session.
	ReconcileMinAge = time.Minute
	ReconcileBatch  = 200
)

// Reconciler re-queues completed sessions that never reached the leaderboard
// or whose perfect score has no reward event. PostgreSQL holds the graded
// session, so a failed queue push after commit is recovered here.
type Reconciler struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewReconciler(pool *pgxpool.Pool, rdb *redis.Client, m *metrics.Metrics, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		pool:    pool,
		rdb:     rdb,
		metrics: m,
		log:     log.With().Str("component", "reconciler").Logger(),
	}
}

// undelivered is a completed session missing a downstream effect.
type undelivered struct {
	SessionID   string
	Wallet      string
	Correct     int
	Reward      string
	FinishedAt  time.Time
	NeedsResult bool
	NeedsReward bool
}

const selectUndelivered = `
	SELECT s.id::text, s.wallet, COALESCE(s.correct_count, 0), COALESCE(s.reward, 0)::text, s.finished_at,
	       s.settled_at IS NULL,
	       COALESCE(s.correct_count = $3 AND r.session_id IS NULL, false)
	FROM quiz_sessions s
	LEFT JOIN reward_events r ON r.session_id = s.id
	WHERE s.status = $4
	  AND s.finished_at < $1
	  AND (s.settled_at IS NULL OR (s.correct_count = $3 AND r.session_id IS NULL))
	ORDER BY s.finished_at
	LIMIT $2
`

// redeliveries builds the queue payloads for sessions found by a pass.
func redeliveries(rows []undelivered) (results, rewards []any) {
	for _, u := range rows {
		if u.NeedsResult {
			raw, _ := json.Marshal(model.ResultMessage{
				SessionID:  u.SessionID,
				Wallet:     u.Wallet,
				Correct:    u.Correct,
				Perfect:    u.Correct == quiz.QuestionCount,
				Reward:     u.Reward,
				FinishedAt: u.FinishedAt.Unix(),
			})
			results = append(results, raw)
		}
		if u.NeedsReward {
			raw, _ := json.Marshal(model.RewardMessage{
				SessionID: u.SessionID,
				Wallet:    u.Wallet,
				Amount:    u.Reward,
				IssuedAt:  u.FinishedAt.Unix(),
			})
			rewards = append(rewards, raw)
		}
	}
	return results, rewards
}

// Start runs a pass every ReconcileInterval until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.log.Info().Msg("Reconciler started")

	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Reconciler stopped")
			return
		case <-ticker.C:
			if err := r.Pass(ctx, time.Now()); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("Reconcile pass failed")
			}
		}
	}
}

// Pass re-queues sessions that finished before now minus ReconcileMinAge.
// Consumers skip sessions already settled or rewarded, so a redelivery that
// races the normal path is harmless.
func (r *Reconciler) Pass(ctx context.Context, now time.Time) error {
	rows, err := r.pool.Query(ctx, selectUndelivered,
		now.Add(-ReconcileMinAge), ReconcileBatch, quiz.QuestionCount, model.SessionStatusCompleted)
	if err != nil {
		return err
	}
	pending, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (undelivered, error) {
		var u undelivered
		err := row.Scan(&u.SessionID, &u.Wallet, &u.Correct, &u.Reward, &u.FinishedAt, &u.NeedsResult, &u.NeedsReward)
		return u, err
	})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	results, rewards := redeliveries(pending)
	pipe := r.rdb.Pipeline()
	if len(results) > 0 {
		pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, results...)
	}
	if len(rewards) > 0 {
		pipe.RPush(ctx, config.WorkerKey.IssueRewardsQueue, rewards...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	r.metrics.Redelivered.WithLabelValues(config.WorkerKey.PersistResultsQueue).Add(float64(len(results)))
	r.metrics.Redelivered.WithLabelValues(config.WorkerKey.IssueRewardsQueue).Add(float64(len(rewards)))
	r.log.Warn().
		Int("results", len(results)).
		Int("rewards", len(rewards)).
		Msg("Re-queued undelivered quiz results")
	return nil
}
