package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/metrics"
	"github.com/learnframe/learnframe-backend/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// RewardWorker consumes issue_rewards_queue and records reward events.
type RewardWorker struct {
	pool    *pgxpool.Pool
	rdb     *redis.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewRewardWorker(pool *pgxpool.Pool, rdb *redis.Client, m *metrics.Metrics, log zerolog.Logger) *RewardWorker {
	return &RewardWorker{
		pool:    pool,
		rdb:     rdb,
		metrics: m,
		log:     log.With().Str("component", "reward_worker").Logger(),
	}
}

// rewardRow is a decoded RewardMessage ready for PostgreSQL.
type rewardRow struct {
	SessionID uuid.UUID
	Wallet    string
	Amount    pgtype.Numeric
	IssuedAt  time.Time
}

func decodeReward(p *model.RewardMessage) (*rewardRow, error) {
	sessionID, err := uuid.Parse(p.SessionID)
	if err != nil {
		return nil, err
	}
	amount, err := uint256.FromDecimal(p.Amount)
	if err != nil {
		return nil, err
	}
	return &rewardRow{
		SessionID: sessionID,
		Wallet:    p.Wallet,
		Amount:    pgtype.Numeric{Int: amount.ToBig(), Exp: 0, Valid: true},
		IssuedAt:  time.Unix(p.IssuedAt, 0),
	}, nil
}

func (w *RewardWorker) Start(ctx context.Context) {
	w.log.Info().Msg("RewardWorker started")

	buffer := make([]*model.RewardMessage, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.IssueRewardsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload model.RewardMessage
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts a bulk copy, then row-by-row inserts, then requeue.
func (w *RewardWorker) flushSafe(ctx context.Context, batch []*model.RewardMessage) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
		return
	}
	w.metrics.RewardsPersisted.Add(float64(len(batch)))
}

func (w *RewardWorker) bulkInsert(ctx context.Context, batch []*model.RewardMessage) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, p := range batch {
		r, err := decodeReward(p)
		if err != nil {
			// The fallback drops the bad item individually.
			return err
		}
		rows = append(rows, []interface{}{r.SessionID, r.Wallet, r.Amount, r.IssuedAt})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"reward_events"},
		[]string{"session_id", "wallet", "amount", "issued_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *RewardWorker) fallbackInsert(ctx context.Context, batch []*model.RewardMessage) {
	requeueList := make([]*model.RewardMessage, 0)
	persisted := 0

	for _, p := range batch {
		r, err := decodeReward(p)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", p.SessionID).Msg("Dropping malformed reward event")
			continue
		}

		// A session is rewarded once; replays are ignored.
		_, err = w.pool.Exec(ctx,
			`INSERT INTO reward_events (session_id, wallet, amount, issued_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (session_id) DO NOTHING`,
			r.SessionID, r.Wallet, r.Amount, r.IssuedAt,
		)
		if err != nil {
			w.log.Error().Err(err).Str("wallet", p.Wallet).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
			continue
		}
		persisted++
	}

	w.metrics.RewardsPersisted.Add(float64(persisted))
	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *RewardWorker) requeue(ctx context.Context, items []*model.RewardMessage) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.IssueRewardsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue rewards to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed rewards back to Redis")
	// Back off so a downed database is not hammered.
	time.Sleep(2 * time.Second)
}

func (w *RewardWorker) shutdown(buffer []*model.RewardMessage) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
