// Package quiztest provides an in-memory quiz.Ledger for tests.
package quiztest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/learnframe/learnframe-backend/internal/clock"
	"github.com/learnframe/learnframe-backend/internal/quiz"
)

// Ledger is an in-memory ledger enforcing the cooldown, a single active
// session and the submission window (duration plus grace). Failures can be
// injected per operation.
type Ledger struct {
	mu       sync.Mutex
	clock    *clock.Clock
	set      quiz.QuestionSet
	cooldown time.Duration
	duration time.Duration
	grace    time.Duration
	reward   *uint256.Int

	last     map[common.Address]time.Time
	sessions map[common.Address]*quiz.LedgerSession

	// Injected errors, consumed by the next call of each operation.
	StartErr  error
	SubmitErr error
	ReadErr   error

	// SubmitHook, when set, runs before SubmitAnswers resolves.
	SubmitHook func()

	StartCalls  int
	SubmitCalls int
	Submitted   []quiz.Answers
}

// NewLedger returns an empty ledger grading against set.
func NewLedger(clk *clock.Clock, set quiz.QuestionSet) *Ledger {
	return &Ledger{
		clock:    clk,
		set:      set,
		cooldown: quiz.DefaultCooldownPeriod,
		duration: quiz.DefaultQuizDuration,
		grace:    quiz.DefaultSubmitGrace,
		reward:   uint256.NewInt(10),
		last:     make(map[common.Address]time.Time),
		sessions: make(map[common.Address]*quiz.LedgerSession),
	}
}

// SetLastQuizTime seeds a previous attempt.
func (l *Ledger) SetLastQuizTime(user common.Address, t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[user] = t
}

// SetSession seeds the user's latest session.
func (l *Ledger) SetSession(s quiz.LedgerSession) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessions[s.User] = &s
}

// Session returns a copy of the user's latest session.
func (l *Ledger) Session(user common.Address) (quiz.LedgerSession, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[user]
	if !ok {
		return quiz.LedgerSession{}, false
	}
	return *s, true
}

func (l *Ledger) LastQuizTime(_ context.Context, user common.Address) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ReadErr; err != nil {
		l.ReadErr = nil
		return time.Time{}, err
	}
	return l.last[user], nil
}

func (l *Ledger) ReadSession(_ context.Context, user common.Address) (*quiz.LedgerSession, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[user]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (l *Ledger) StartSession(_ context.Context, user common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.StartCalls++
	if err := l.StartErr; err != nil {
		l.StartErr = nil
		return err
	}

	now := l.clock.Time()
	cd := quiz.NewCooldown(l.last[user], now, l.cooldown)
	if !cd.CanStart {
		return &quiz.CooldownError{Remaining: cd.Remaining}
	}
	if s, ok := l.sessions[user]; ok && s.IsActive && now.Sub(s.StartTime) < l.duration {
		return quiz.ErrSessionConflict
	}

	l.last[user] = now
	l.sessions[user] = &quiz.LedgerSession{
		ID:        uuid.New(),
		User:      user,
		StartTime: now,
		IsActive:  true,
	}
	return nil
}

func (l *Ledger) SubmitAnswers(_ context.Context, user common.Address, answers quiz.Answers) (quiz.ScoreResult, error) {
	if l.SubmitHook != nil {
		l.SubmitHook()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.SubmitCalls++
	if err := l.SubmitErr; err != nil {
		l.SubmitErr = nil
		return quiz.ScoreResult{}, err
	}

	s, ok := l.sessions[user]
	if !ok || !s.IsActive {
		return quiz.ScoreResult{}, quiz.ErrNoActiveSession
	}
	if l.clock.Time().Sub(s.StartTime) > l.duration+l.grace {
		return quiz.ScoreResult{}, quiz.ErrSessionExpired
	}
	s.IsActive = false
	s.HasCompleted = true
	s.Answers = answers
	l.Submitted = append(l.Submitted, answers)
	return quiz.Score(l.set, answers, l.reward), nil
}
