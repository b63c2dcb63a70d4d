package worker

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// Publisher announces leaderboard changes to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, update model.LeaderboardUpdate) error
}

// ResultWorker consumes persist_results_queue and folds graded attempts into
// the leaderboard.
type ResultWorker struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	publisher Publisher
	log       zerolog.Logger
}

func NewResultWorker(pool *pgxpool.Pool, rdb *redis.Client, publisher Publisher, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		pool:      pool,
		rdb:       rdb,
		publisher: publisher,
		log:       log.With().Str("component", "result_worker").Logger(),
	}
}

// standing is one wallet's contribution from a batch.
type standing struct {
	Wallet      string
	BestCorrect int
	Attempts    int
	Perfect     int
	Reward      *uint256.Int
	LastAttempt time.Time
}

// aggregate folds a batch per wallet so a wallet appears once in the upsert.
// Messages with an unparsable reward contribute no reward.
func aggregate(batch []*model.ResultMessage) []*standing {
	byWallet := make(map[string]*standing, len(batch))
	for _, p := range batch {
		s, ok := byWallet[p.Wallet]
		if !ok {
			s = &standing{Wallet: p.Wallet, Reward: new(uint256.Int)}
			byWallet[p.Wallet] = s
		}
		s.Attempts++
		if p.Correct > s.BestCorrect {
			s.BestCorrect = p.Correct
		}
		if p.Perfect {
			s.Perfect++
		}
		if amount, err := uint256.FromDecimal(p.Reward); err == nil {
			s.Reward.Add(s.Reward, amount)
		}
		if at := time.Unix(p.FinishedAt, 0); at.After(s.LastAttempt) {
			s.LastAttempt = at
		}
	}

	out := make([]*standing, 0, len(byWallet))
	for _, s := range byWallet {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out
}

// Start runs the batching loop until ctx is cancelled. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.ResultMessage, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.ResultMessage
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Discarding malformed JSON")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ResultMessage) {
	if len(batch) == 0 {
		return
	}

	rows, err := w.settle(ctx, batch)
	if err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("bulk leaderboard upsert failed, using fallback")

		rows = rows[:0]
		for _, p := range batch {
			single, err := w.settle(ctx, []*model.ResultMessage{p})
			if err != nil {
				w.log.Error().Err(err).Str("wallet", p.Wallet).Msg("settle failed, requeueing")
				raw, _ := json.Marshal(p)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
				continue
			}
			rows = append(rows, single...)
		}
	}

	w.announce(ctx, rows)
}

// settle folds the batch into the leaderboard and marks its sessions settled
// in one transaction. Sessions already settled are skipped, so a redelivered
// result is counted once.
func (w *ResultWorker) settle(ctx context.Context, batch []*model.ResultMessage) ([]*standing, error) {
	ids := sessionIDs(batch)
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	claimedRows, err := tx.Query(ctx,
		`UPDATE quiz_sessions
		 SET settled_at = NOW()
		 WHERE id = ANY($1::uuid[]) AND status = $2 AND settled_at IS NULL
		 RETURNING id::text`,
		ids, model.SessionStatusCompleted,
	)
	if err != nil {
		return nil, err
	}
	claimed, err := pgx.CollectRows(claimedRows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	rows := aggregate(unsettled(batch, claimed))
	if len(rows) > 0 {
		if err := upsertStandings(ctx, tx, rows); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// sessionIDs returns the distinct, well-formed session IDs of batch.
func sessionIDs(batch []*model.ResultMessage) []string {
	seen := make(map[string]bool, len(batch))
	ids := make([]string, 0, len(batch))
	for _, p := range batch {
		id, err := uuid.Parse(p.SessionID)
		if err != nil || seen[id.String()] {
			continue
		}
		seen[id.String()] = true
		ids = append(ids, id.String())
	}
	return ids
}

// unsettled keeps the first message of each claimed session.
func unsettled(batch []*model.ResultMessage, claimed []string) []*model.ResultMessage {
	pending := make(map[string]bool, len(claimed))
	for _, id := range claimed {
		pending[id] = true
	}

	out := make([]*model.ResultMessage, 0, len(claimed))
	for _, p := range batch {
		id, err := uuid.Parse(p.SessionID)
		if err != nil || !pending[id.String()] {
			continue
		}
		delete(pending, id.String())
		out = append(out, p)
	}
	return out
}

const upsertLeaderboard = `
	INSERT INTO leaderboard (wallet, best_correct, attempts, perfect_count, total_reward, last_attempt_at)
	SELECT u.wallet, u.best_correct, u.attempts, u.perfect_count, u.reward::numeric, u.last_attempt_at
	FROM UNNEST(
		$1::text[],
		$2::int[],
		$3::int[],
		$4::int[],
		$5::text[],
		$6::timestamptz[]
	) AS u (wallet, best_correct, attempts, perfect_count, reward, last_attempt_at)
	ON CONFLICT (wallet) DO UPDATE
	SET best_correct    = GREATEST(leaderboard.best_correct, EXCLUDED.best_correct),
	    attempts        = leaderboard.attempts + EXCLUDED.attempts,
	    perfect_count   = leaderboard.perfect_count + EXCLUDED.perfect_count,
	    total_reward    = leaderboard.total_reward + EXCLUDED.total_reward,
	    last_attempt_at = GREATEST(leaderboard.last_attempt_at, EXCLUDED.last_attempt_at),
	    updated_at      = NOW()
`

func upsertStandings(ctx context.Context, tx pgx.Tx, rows []*standing) error {
	n := len(rows)
	wallets := make([]string, 0, n)
	best := make([]int, 0, n)
	attempts := make([]int, 0, n)
	perfect := make([]int, 0, n)
	rewards := make([]string, 0, n)
	lastAt := make([]time.Time, 0, n)

	for _, r := range rows {
		wallets = append(wallets, r.Wallet)
		best = append(best, r.BestCorrect)
		attempts = append(attempts, r.Attempts)
		perfect = append(perfect, r.Perfect)
		rewards = append(rewards, r.Reward.Dec())
		lastAt = append(lastAt, r.LastAttempt)
	}

	_, err := tx.Exec(ctx, upsertLeaderboard, wallets, best, attempts, perfect, rewards, lastAt)
	return err
}

func (w *ResultWorker) announce(ctx context.Context, rows []*standing) {
	if len(rows) == 0 || w.publisher == nil {
		return
	}
	update := model.LeaderboardUpdate{
		Type:    model.LeaderboardUpdateType,
		Wallets: make([]string, 0, len(rows)),
	}
	for _, r := range rows {
		update.Wallets = append(update.Wallets, r.Wallet)
		update.Perfect += r.Perfect
	}
	if err := w.publisher.Publish(ctx, update); err != nil {
		w.log.Warn().Err(err).Msg("Failed to publish leaderboard update")
	}
}
