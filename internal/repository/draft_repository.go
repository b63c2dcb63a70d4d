package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DraftRepository reads answers persisted during a running session.
type DraftRepository struct {
	pool *pgxpool.Pool
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(pool *pgxpool.Pool) *DraftRepository {
	return &DraftRepository{pool: pool}
}

// ListBySession returns the session's selections keyed by question index.
func (r *DraftRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) (map[int]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_index, answer
		 FROM quiz_answer_drafts
		 WHERE session_id = $1`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drafts := make(map[int]string)
	for rows.Next() {
		var idx int
		var answer string
		if err := rows.Scan(&idx, &answer); err != nil {
			return nil, err
		}
		drafts[idx] = answer
	}
	return drafts, rows.Err()
}
