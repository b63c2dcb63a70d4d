package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuizUserRepository handles per-wallet quiz bookkeeping.
type QuizUserRepository struct {
	pool *pgxpool.Pool
}

// NewQuizUserRepository creates a new QuizUserRepository.
func NewQuizUserRepository(pool *pgxpool.Pool) *QuizUserRepository {
	return &QuizUserRepository{pool: pool}
}

// GetLastQuizTime returns when the wallet last started a quiz, or the zero
// time if it never has.
func (r *QuizUserRepository) GetLastQuizTime(ctx context.Context, wallet string) (time.Time, error) {
	var last *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT last_quiz_time FROM quiz_users WHERE wallet = $1`, wallet,
	).Scan(&last)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	if last == nil {
		return time.Time{}, nil
	}
	return *last, nil
}

// ClearLastQuizTime lifts the wallet's cooldown.
func (r *QuizUserRepository) ClearLastQuizTime(ctx context.Context, wallet string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE quiz_users SET last_quiz_time = NULL, updated_at = NOW() WHERE wallet = $1`, wallet)
	return err
}
