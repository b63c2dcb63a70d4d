package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates quiz session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	// SessionStatusAbandoned marks a session that was never submitted and was
	// closed by a later start or an admin reset.
	SessionStatusAbandoned SessionStatus = "ABANDONED"
)

// QuizSession is a wallet's quiz attempt.
type QuizSession struct {
	ID           uuid.UUID     `json:"id"`
	Wallet       string        `json:"wallet"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
	Status       SessionStatus `json:"status"`
	Answers      []string      `json:"answers,omitempty"`
	CorrectCount *int          `json:"correct_count,omitempty"`
	// Reward is a decimal amount in token base units.
	Reward *string `json:"reward,omitempty"`
}

// LeaderboardEntry aggregates a wallet's results.
type LeaderboardEntry struct {
	Rank          int       `json:"rank"`
	Wallet        string    `json:"wallet"`
	BestCorrect   int       `json:"best_correct"`
	Attempts      int       `json:"attempts"`
	PerfectCount  int       `json:"perfect_count"`
	TotalReward   string    `json:"total_reward"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

// RewardEvent records a reward issued for a perfect attempt.
type RewardEvent struct {
	ID         int64     `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Wallet     string    `json:"wallet"`
	Amount     string    `json:"amount"`
	IssuedAt   time.Time `json:"issued_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

// CooldownView is the cooldown as exposed over HTTP.
type CooldownView struct {
	LastQuizTime     *time.Time `json:"last_quiz_time"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	Remaining        string     `json:"remaining"`
	CanStart         bool       `json:"can_start"`
	AvailableAt      *time.Time `json:"available_at,omitempty"`
}

// QuizStateView combines the cooldown with the wallet's latest session.
type QuizStateView struct {
	Cooldown      CooldownView `json:"cooldown"`
	Session       *QuizSession `json:"session"`
	TimeRemaining int          `json:"time_remaining"`
}

// WalletChallengeRequest asks for a login message to sign.
type WalletChallengeRequest struct {
	Address string `json:"address" binding:"required,evm_address"`
}

// WalletLoginRequest carries the personal_sign signature over the challenge.
type WalletLoginRequest struct {
	Address   string `json:"address" binding:"required,evm_address"`
	Signature string `json:"signature" binding:"required,len=132,hexadecimal"`
}

// SubmitAnswersRequest carries one answer per question, by position.
type SubmitAnswersRequest struct {
	Answers []string `json:"answers" binding:"required,len=10,dive,max=512"`
}

// SaveDraftRequest records a single selection during an active session.
type SaveDraftRequest struct {
	Index  *int   `json:"index" binding:"required,min=0,max=9"`
	Answer string `json:"answer" binding:"required,max=512"`
}
