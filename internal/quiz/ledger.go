package quiz

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/luxfi/geth/common"
)

// LedgerSession is the ledger's authoritative record of a user's most
// recent attempt.
type LedgerSession struct {
	ID           uuid.UUID
	User         common.Address
	StartTime    time.Time
	IsActive     bool
	HasCompleted bool
	Answers      Answers
}

// Ledger is the external authority over sessions, cooldowns and rewards.
// Calls may block for an indeterminate time before resolving.
type Ledger interface {
	// LastQuizTime returns the start of the user's last attempt, or the
	// zero time when there is none.
	LastQuizTime(ctx context.Context, user common.Address) (time.Time, error)

	// ReadSession returns the user's latest session or nil.
	ReadSession(ctx context.Context, user common.Address) (*LedgerSession, error)

	// StartSession fails with ErrCooldownActive (as *CooldownError) or
	// ErrSessionConflict.
	StartSession(ctx context.Context, user common.Address) error

	// SubmitAnswers grades and records the attempt. Rewards and leaderboard
	// updates are side effects of a successful call.
	SubmitAnswers(ctx context.Context, user common.Address, answers Answers) (ScoreResult, error)
}
