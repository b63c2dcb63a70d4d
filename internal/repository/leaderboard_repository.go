package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnframe/learnframe-backend/internal/model"
)

// LeaderboardRepository reads aggregated quiz results.
type LeaderboardRepository struct {
	pool *pgxpool.Pool
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(pool *pgxpool.Pool) *LeaderboardRepository {
	return &LeaderboardRepository{pool: pool}
}

const rankedLeaderboard = `
	SELECT
		RANK() OVER (ORDER BY best_correct DESC, perfect_count DESC, last_attempt_at ASC) AS rank,
		wallet, best_correct, attempts, perfect_count, total_reward::text, last_attempt_at
	FROM leaderboard
`

// List returns one page of the ranked leaderboard and the total entry count.
func (r *LeaderboardRepository) List(ctx context.Context, page, perPage int) ([]model.LeaderboardEntry, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leaderboard`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		rankedLeaderboard+` ORDER BY rank ASC, wallet ASC LIMIT $1 OFFSET $2`,
		perPage, (page-1)*perPage,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.Wallet, &e.BestCorrect, &e.Attempts, &e.PerfectCount, &e.TotalReward, &e.LastAttemptAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// GetByWallet returns the wallet's ranked entry.
func (r *LeaderboardRepository) GetByWallet(ctx context.Context, wallet string) (*model.LeaderboardEntry, error) {
	e := &model.LeaderboardEntry{}
	err := r.pool.QueryRow(ctx,
		`SELECT rank, wallet, best_correct, attempts, perfect_count, total_reward, last_attempt_at
		 FROM (`+rankedLeaderboard+`) ranked
		 WHERE wallet = $1`, wallet,
	).Scan(&e.Rank, &e.Wallet, &e.BestCorrect, &e.Attempts, &e.PerfectCount, &e.TotalReward, &e.LastAttemptAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}
