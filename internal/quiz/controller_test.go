package quiz_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/learnframe/learnframe-backend/internal/clock"
	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/quiz/quiztest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var player = common.HexToAddress("0x00000000000000000000000000000000000000a1")

type harness struct {
	ctl    *quiz.Controller
	ledger *quiztest.Ledger
	clock  *clock.Clock
	set    quiz.QuestionSet

	mu    sync.Mutex
	snaps []quiz.Snapshot
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		clock: clock.New(),
		set:   quiz.DefaultQuestionSet(),
	}
	h.clock.Set(time.Unix(1_700_000_000, 0))
	h.ledger = quiztest.NewLedger(h.clock, h.set)
	h.ctl = quiz.NewController(player, h.ledger, quiz.Config{Questions: h.set},
		quiz.WithClock(h.clock),
		quiz.WithObserver(func(s quiz.Snapshot) {
			h.mu.Lock()
			h.snaps = append(h.snaps, s)
			h.mu.Unlock()
		}),
	)
	t.Cleanup(h.ctl.Close)
	return h
}

func (h *harness) ticks(n int) {
	for range n {
		h.ctl.Tick(context.Background())
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctl.Refresh(context.Background()))
	require.NoError(t, h.ctl.Start(context.Background()))
	require.Equal(t, quiz.StateInProgress, h.ctl.State())
}

func (h *harness) states() []quiz.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]quiz.State, 0, len(h.snaps))
	for _, s := range h.snaps {
		out = append(out, s.State)
	}
	return out
}

func TestStartBeginsCountdown(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	snap := h.ctl.Snapshot()
	require.Equal(t, 120, snap.TimeRemaining)
	require.Len(t, snap.Answers, quiz.QuestionCount)
	require.False(t, snap.CanStart)
	require.EqualValues(t, 604800, snap.CooldownRemaining)
	require.Equal(t, 1, h.ledger.StartCalls)
	require.Contains(t, h.states(), quiz.StateStarting)

	h.ticks(3)
	require.Equal(t, 117, h.ctl.Snapshot().TimeRemaining)
}

func TestCountdownNeverGoesNegative(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	prev := h.ctl.Snapshot().TimeRemaining
	for range 119 {
		h.ticks(1)
		cur := h.ctl.Snapshot().TimeRemaining
		require.Equal(t, prev-1, cur)
		prev = cur
	}
	require.Equal(t, 1, prev)
	require.Zero(t, h.ledger.SubmitCalls)

	h.ticks(1)
	require.Equal(t, quiz.StateDone, h.ctl.State())
	require.Equal(t, 1, h.ledger.SubmitCalls)
	require.Zero(t, h.ctl.Snapshot().TimeRemaining)

	h.ticks(3)
	require.Equal(t, 1, h.ledger.SubmitCalls, "expiry must submit exactly once")
}

// Player answers three questions and lets time run out.
func TestExpiryFillsBlanksWithFirstOption(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	picked := map[int]string{
		0: h.set.Question(0).Options[2],
		4: h.set.Question(4).Options[1],
		9: h.set.Question(9).Options[3],
	}
	for i, a := range picked {
		require.NoError(t, h.ctl.Select(i, a))
	}

	h.ticks(120)
	require.Equal(t, quiz.StateDone, h.ctl.State())
	require.Len(t, h.ledger.Submitted, 1)

	got := h.ledger.Submitted[0]
	for i := range quiz.QuestionCount {
		if a, ok := picked[i]; ok {
			require.Equal(t, a, got[i])
			continue
		}
		require.Equal(t, h.set.Question(i).Options[0], got[i])
	}
}

func TestPerfectSubmitEarnsReward(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	key := h.set.AnswerKey()
	for i, a := range key {
		require.NoError(t, h.ctl.Select(i, a))
	}
	require.NoError(t, h.ctl.Submit(context.Background()))

	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateDone, snap.State)
	require.NotNil(t, snap.Result)
	require.Equal(t, 10, snap.Result.Correct)
	require.True(t, snap.Result.Perfect)
	require.Equal(t, uint64(10), snap.Result.Reward.Uint64())
	require.Equal(t, 5, snap.RedirectRemaining)
}

func TestImperfectSubmitEarnsNothing(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	key := h.set.AnswerKey()
	for i, a := range key[:9] {
		require.NoError(t, h.ctl.Select(i, a))
	}
	require.NoError(t, h.ctl.Submit(context.Background()))

	res := h.ctl.Snapshot().Result
	require.NotNil(t, res)
	require.False(t, res.Perfect)
	require.True(t, res.Reward.IsZero())
}

func TestRedirectReturnsToIdleAndResyncs(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	require.NoError(t, h.ctl.Submit(context.Background()))

	for want := 4; want > 0; want-- {
		h.ticks(1)
		require.Equal(t, quiz.StateDone, h.ctl.State())
		require.Equal(t, want, h.ctl.Snapshot().RedirectRemaining)
	}
	h.ticks(1)

	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateBlocked, snap.State)
	require.Nil(t, snap.Result)
	require.EqualValues(t, 604800, snap.CooldownRemaining)

	states := h.states()
	require.Contains(t, states, quiz.StateIdle)
}

// Last attempt three days ago leaves four days of cooldown.
func TestStartDuringCooldownIsBlockedLocally(t *testing.T) {
	h := newHarness(t)
	h.ledger.SetLastQuizTime(player, h.clock.Time().Add(-3*24*time.Hour))

	require.NoError(t, h.ctl.Refresh(context.Background()))
	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateBlocked, snap.State)
	require.EqualValues(t, 4*24*3600, snap.CooldownRemaining)
	require.False(t, snap.CanStart)

	err := h.ctl.Start(context.Background())
	var cd *quiz.CooldownError
	require.ErrorAs(t, err, &cd)
	require.Equal(t, 4*24*time.Hour, cd.Remaining)
	require.ErrorIs(t, err, quiz.ErrCooldownActive)
	require.Zero(t, h.ledger.StartCalls, "ledger must not be contacted during cooldown")
	require.Contains(t, h.ctl.Snapshot().Status, "4d 0h 0m 0s")
}

func TestLedgerCooldownRejection(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Refresh(context.Background()))

	// The local view is stale; the ledger knows about a recent attempt.
	h.ledger.SetLastQuizTime(player, h.clock.Time().Add(-time.Hour))

	err := h.ctl.Start(context.Background())
	require.ErrorIs(t, err, quiz.ErrCooldownActive)

	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateBlocked, snap.State)
	require.EqualValues(t, 604800-3600, snap.CooldownRemaining)
}

func TestCooldownExpiresWhileBlocked(t *testing.T) {
	h := newHarness(t)
	h.ledger.SetLastQuizTime(player, h.clock.Time().Add(-quiz.DefaultCooldownPeriod+time.Minute))
	require.NoError(t, h.ctl.Refresh(context.Background()))
	require.Equal(t, quiz.StateBlocked, h.ctl.State())

	h.clock.Advance(time.Minute)
	snap := h.ctl.Snapshot()
	require.True(t, snap.CanStart)
	require.Equal(t, quiz.StateIdle, snap.State)
	require.NoError(t, h.ctl.Start(context.Background()))
}

func TestSessionConflict(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctl.Refresh(context.Background()))
	h.ledger.StartErr = quiz.ErrSessionConflict

	err := h.ctl.Start(context.Background())
	require.ErrorIs(t, err, quiz.ErrSessionConflict)
	require.Equal(t, quiz.StateIdle, h.ctl.State())
	require.Contains(t, h.ctl.Snapshot().Status, "already active")
}

// The ledger rejects a manual submit with 60s left.
func TestRejectedSubmitKeepsTimeRemaining(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.ticks(60)
	require.Equal(t, 60, h.ctl.Snapshot().TimeRemaining)

	h.ledger.SubmitErr = errors.New("rpc unavailable")
	err := h.ctl.Submit(context.Background())
	require.ErrorIs(t, err, quiz.ErrSubmissionRejected)

	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateInProgress, snap.State)
	require.Equal(t, 60, snap.TimeRemaining)
	require.Contains(t, snap.Status, "try again")

	h.ticks(1)
	require.Equal(t, 59, h.ctl.Snapshot().TimeRemaining)

	require.NoError(t, h.ctl.Submit(context.Background()))
	require.Equal(t, quiz.StateDone, h.ctl.State())
	require.Equal(t, 2, h.ledger.SubmitCalls)
}

// A wallet prompt left open for 50s costs 50s of the attempt.
func TestRejectedSubmitChargesTimeSpentWaiting(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.ticks(60)

	h.ledger.SubmitHook = func() { h.clock.Advance(50 * time.Second) }
	h.ledger.SubmitErr = errors.New("user rejected")
	err := h.ctl.Submit(context.Background())
	require.ErrorIs(t, err, quiz.ErrSubmissionRejected)

	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateInProgress, snap.State)
	require.Equal(t, 10, snap.TimeRemaining)

	h.ledger.SubmitHook = nil
	require.NoError(t, h.ctl.Submit(context.Background()))
	require.Equal(t, quiz.StateDone, h.ctl.State())
}

func TestRejectionAfterTimeRanOutIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.ticks(60)

	h.ledger.SubmitHook = func() { h.clock.Advance(90 * time.Second) }
	h.ledger.SubmitErr = errors.New("user rejected")
	err := h.ctl.Submit(context.Background())
	require.ErrorIs(t, err, quiz.ErrSessionExpired)

	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateFailed, snap.State)
	require.Contains(t, snap.Status, "Time is up")
	require.ErrorIs(t, h.ctl.Submit(context.Background()), quiz.ErrInvalidState)
}

func TestLedgerSessionErrorsAreTerminal(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{"expired", fmt.Errorf("submit: %w", quiz.ErrSessionExpired), "Time is up"},
		{"no session", quiz.ErrNoActiveSession, "No active quiz session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.start(t)
			h.ticks(30)

			h.ledger.SubmitErr = tt.err
			require.ErrorIs(t, h.ctl.Submit(context.Background()), tt.err)

			snap := h.ctl.Snapshot()
			require.Equal(t, quiz.StateFailed, snap.State)
			require.Contains(t, snap.Status, tt.status)

			h.ticks(3)
			require.Equal(t, 1, h.ledger.SubmitCalls)
		})
	}
}

func TestRejectedAutoSubmitIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.ledger.SubmitErr = errors.New("rpc unavailable")

	h.ticks(120)
	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateFailed, snap.State)
	require.Contains(t, snap.Status, "Time is up")

	h.ticks(5)
	require.Equal(t, 1, h.ledger.SubmitCalls)

	// Once the session has lapsed the ledger no longer resumes it.
	h.clock.Advance(quiz.DefaultQuizDuration + time.Second)
	require.NoError(t, h.ctl.Refresh(context.Background()))
	require.Equal(t, quiz.StateBlocked, h.ctl.State())
}

func TestInsufficientFundsIsFatal(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.ledger.SubmitErr = fmt.Errorf("send tx: %w", quiz.ErrInsufficientFunds)

	err := h.ctl.Submit(context.Background())
	require.ErrorIs(t, err, quiz.ErrInsufficientFunds)
	require.Equal(t, quiz.StateFailed, h.ctl.State())

	h.ticks(3)
	require.Equal(t, quiz.StateFailed, h.ctl.State())
	require.ErrorIs(t, h.ctl.Submit(context.Background()), quiz.ErrInvalidState)
}

func TestSubmitIsNotReentrant(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	release := make(chan struct{})
	h.ledger.SubmitHook = func() { <-release }

	done := make(chan error, 1)
	go func() { done <- h.ctl.Submit(context.Background()) }()

	require.Eventually(t, func() bool {
		return h.ctl.State() == quiz.StateSubmitting
	}, time.Second, time.Millisecond)

	require.ErrorIs(t, h.ctl.Submit(context.Background()), quiz.ErrSubmissionInFlight)
	h.ticks(5)
	require.Equal(t, quiz.StateSubmitting, h.ctl.State(), "ticks are ignored while submitting")

	close(release)
	require.NoError(t, <-done)
	require.Equal(t, 1, h.ledger.SubmitCalls)
	require.Equal(t, quiz.StateDone, h.ctl.State())
}

func TestRefreshResumesActiveSession(t *testing.T) {
	h := newHarness(t)
	started := h.clock.Time().Add(-30 * time.Second)
	answers := quiz.Answers{}
	answers[0] = h.set.Question(0).Options[1]

	h.ledger.SetLastQuizTime(player, started)
	h.ledger.SetSession(quiz.LedgerSession{
		User:      player,
		StartTime: started,
		IsActive:  true,
		Answers:   answers,
	})

	require.NoError(t, h.ctl.Refresh(context.Background()))
	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateInProgress, snap.State)
	require.Equal(t, 90, snap.TimeRemaining)
	require.Equal(t, answers[0], snap.Answers[0])
	require.Zero(t, h.ledger.StartCalls)
}

func TestRefreshIgnoresLapsedSession(t *testing.T) {
	h := newHarness(t)
	started := h.clock.Time().Add(-5 * time.Minute)
	h.ledger.SetLastQuizTime(player, started)
	h.ledger.SetSession(quiz.LedgerSession{User: player, StartTime: started, IsActive: true})

	require.NoError(t, h.ctl.Refresh(context.Background()))
	require.Equal(t, quiz.StateBlocked, h.ctl.State())
}

func TestRefreshLedgerError(t *testing.T) {
	h := newHarness(t)
	h.ledger.ReadErr = errors.New("node down")

	require.Error(t, h.ctl.Refresh(context.Background()))
	snap := h.ctl.Snapshot()
	require.Equal(t, quiz.StateIdle, snap.State)
	require.Contains(t, snap.Status, "node down")

	require.NoError(t, h.ctl.Refresh(context.Background()))
	require.Empty(t, h.ctl.Snapshot().Status)
}

func TestSelectValidation(t *testing.T) {
	h := newHarness(t)
	require.ErrorIs(t, h.ctl.Select(0, h.set.Question(0).Options[0]), quiz.ErrInvalidState)

	h.start(t)
	require.ErrorIs(t, h.ctl.Select(quiz.QuestionCount, "x"), quiz.ErrInvalidAnswers)
	require.ErrorIs(t, h.ctl.Select(0, "not an option"), quiz.ErrInvalidAnswers)

	require.NoError(t, h.ctl.Select(0, h.set.Question(0).Options[3]))
	require.NoError(t, h.ctl.Select(0, h.set.Question(0).Options[1]))
	require.Equal(t, h.set.Question(0).Options[1], h.ctl.Snapshot().Answers[0])
}

func TestStartRequiresRestingState(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	require.ErrorIs(t, h.ctl.Start(context.Background()), quiz.ErrInvalidState)
	require.ErrorIs(t, h.ctl.Refresh(context.Background()), quiz.ErrInvalidState)
}

func TestTimerDrivesCountdown(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	for want := 119; want >= 117; want-- {
		h.clock.Advance(time.Second)
		require.Eventually(t, func() bool {
			return h.ctl.Snapshot().TimeRemaining == want
		}, time.Second, time.Millisecond)
	}

	require.NoError(t, h.ctl.Submit(context.Background()))

	// Countdown task is cancelled; only the redirect task runs now.
	for want := 4; want >= 1; want-- {
		h.clock.Advance(time.Second)
		require.Eventually(t, func() bool {
			return h.ctl.Snapshot().RedirectRemaining == want
		}, time.Second, time.Millisecond)
	}
	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		return h.ctl.State() == quiz.StateBlocked
	}, time.Second, time.Millisecond)
}

func TestCloseStopsTimers(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	h.ctl.Close()

	h.clock.Advance(time.Second)
	require.Equal(t, 120, h.ctl.Snapshot().TimeRemaining)
	require.ErrorIs(t, h.ctl.Start(context.Background()), quiz.ErrClosed)
}
