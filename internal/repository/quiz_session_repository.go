package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnframe/learnframe-backend/internal/model"
)

const pgUniqueViolation = "23505"

// ErrActiveSessionExists is returned when a wallet already has a running session.
var ErrActiveSessionExists = errors.New("active session exists")

// CooldownViolation reports the last start time that blocks a new session.
type CooldownViolation struct {
	LastQuizTime time.Time
}

func (e *CooldownViolation) Error() string {
	return fmt.Sprintf("cooldown active since %s", e.LastQuizTime.Format(time.RFC3339))
}

// QuizSessionRepository handles quiz session data access.
type QuizSessionRepository struct {
	pool *pgxpool.Pool
}

// NewQuizSessionRepository creates a new QuizSessionRepository.
func NewQuizSessionRepository(pool *pgxpool.Pool) *QuizSessionRepository {
	return &QuizSessionRepository{pool: pool}
}

const sessionColumns = `id, wallet, started_at, finished_at, status, answers, correct_count, reward::text`

func scanSession(row pgx.Row) (*model.QuizSession, error) {
	s := &model.QuizSession{}
	err := row.Scan(&s.ID, &s.Wallet, &s.StartedAt, &s.FinishedAt, &s.Status, &s.Answers, &s.CorrectCount, &s.Reward)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByID retrieves a session by its ID.
func (r *QuizSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.QuizSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM quiz_sessions WHERE id = $1`, id))
}

// GetLatest retrieves the wallet's most recent session.
func (r *QuizSessionRepository) GetLatest(ctx context.Context, wallet string) (*model.QuizSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM quiz_sessions
		 WHERE wallet = $1
		 ORDER BY started_at DESC
		 LIMIT 1`, wallet))
}

// GetActive retrieves the wallet's running session.
func (r *QuizSessionRepository) GetActive(ctx context.Context, wallet string) (*model.QuizSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM quiz_sessions
		 WHERE wallet = $1 AND status = $2`, wallet, model.SessionStatusInProgress))
}

// ListByWallet retrieves the wallet's sessions, newest first.
func (r *QuizSessionRepository) ListByWallet(ctx context.Context, wallet string, limit int) ([]model.QuizSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM quiz_sessions
		 WHERE wallet = $1
		 ORDER BY started_at DESC
		 LIMIT $2`, wallet, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.QuizSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Begin opens a new session for wallet in one transaction. The wallet row is
// locked while the cooldown is checked, running sessions that started before
// staleBefore are abandoned, and last_quiz_time is moved to now.
func (r *QuizSessionRepository) Begin(ctx context.Context, wallet string, now, staleBefore time.Time, cooldown time.Duration) (*model.QuizSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO quiz_users (wallet) VALUES ($1) ON CONFLICT (wallet) DO NOTHING`, wallet,
	); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	var last *time.Time
	if err := tx.QueryRow(ctx,
		`SELECT last_quiz_time FROM quiz_users WHERE wallet = $1 FOR UPDATE`, wallet,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if last != nil && now.Before(last.Add(cooldown)) {
		return nil, &CooldownViolation{LastQuizTime: *last}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE quiz_sessions
		 SET status = $1, finished_at = $2
		 WHERE wallet = $3 AND status = $4 AND started_at < $5`,
		model.SessionStatusAbandoned, now, wallet, model.SessionStatusInProgress, staleBefore,
	); err != nil {
		return nil, fmt.Errorf("abandon stale sessions: %w", err)
	}

	s := &model.QuizSession{Wallet: wallet, Status: model.SessionStatusInProgress}
	err = tx.QueryRow(ctx,
		`INSERT INTO quiz_sessions (wallet, started_at, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, started_at`,
		wallet, now, model.SessionStatusInProgress,
	).Scan(&s.ID, &s.StartedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrActiveSessionExists
		}
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE quiz_users SET last_quiz_time = $1, updated_at = NOW() WHERE wallet = $2`,
		s.StartedAt, wallet,
	); err != nil {
		return nil, fmt.Errorf("update last quiz time: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s, nil
}

// Complete records a graded submission. It reports false when the session
// was no longer running, so a session can be completed at most once.
func (r *QuizSessionRepository) Complete(ctx context.Context, id uuid.UUID, answers []string, correct int, reward string, finishedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET status = $1, answers = $2, correct_count = $3, reward = $4::numeric, finished_at = $5
		 WHERE id = $6 AND status = $7`,
		model.SessionStatusCompleted, answers, correct, reward, finishedAt, id, model.SessionStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AbandonActive closes the wallet's running session, if any.
func (r *QuizSessionRepository) AbandonActive(ctx context.Context, wallet string, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET status = $1, finished_at = $2
		 WHERE wallet = $3 AND status = $4`,
		model.SessionStatusAbandoned, now, wallet, model.SessionStatusInProgress,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
