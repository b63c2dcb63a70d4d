package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnframe/learnframe-backend/internal/model"
)

// RewardRepository reads issued reward events.
type RewardRepository struct {
	pool *pgxpool.Pool
}

// NewRewardRepository creates a new RewardRepository.
func NewRewardRepository(pool *pgxpool.Pool) *RewardRepository {
	return &RewardRepository{pool: pool}
}

// ListByWallet returns the wallet's rewards, newest first.
func (r *RewardRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]model.RewardEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, wallet, amount::text, issued_at, recorded_at
		 FROM reward_events
		 WHERE wallet = $1
		 ORDER BY issued_at DESC
		 LIMIT $2`, wallet, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.RewardEvent
	for rows.Next() {
		var e model.RewardEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Wallet, &e.Amount, &e.IssuedAt, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
