package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/rs/zerolog"

	"github.com/learnframe/learnframe-backend/internal/clock"
)

// State enumerates the controller's attempt lifecycle.
type State string

const (
	StateIdle       State = "IDLE"
	StateBlocked    State = "BLOCKED"
	StateStarting   State = "STARTING"
	StateInProgress State = "IN_PROGRESS"
	StateSubmitting State = "SUBMITTING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// Config holds the question set and protocol timings.
type Config struct {
	Questions     QuestionSet
	Duration      time.Duration
	Cooldown      time.Duration
	RedirectDelay time.Duration
	TickInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Duration <= 0 {
		c.Duration = DefaultQuizDuration
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldownPeriod
	}
	if c.RedirectDelay <= 0 {
		c.RedirectDelay = DefaultRedirectDelay
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// Snapshot is a point-in-time view of the controller for transport.
type Snapshot struct {
	User              string       `json:"user"`
	State             State        `json:"state"`
	TimeRemaining     int          `json:"time_remaining"`
	Answers           []string     `json:"answers"`
	LastQuizTime      *time.Time   `json:"last_quiz_time,omitempty"`
	CooldownRemaining int64        `json:"cooldown_remaining"`
	CanStart          bool         `json:"can_start"`
	Result            *ScoreResult `json:"result,omitempty"`
	RedirectRemaining int          `json:"redirect_remaining,omitempty"`
	Status            string       `json:"status,omitempty"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clk *clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithLogger sets the controller's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithObserver registers fn to receive a snapshot after every change.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) { c.observer = fn }
}

// Controller drives one user through a timed quiz attempt against a Ledger.
// Submissions are issued at most once per attempt phase; the countdown is a
// scheduled task cancelled whenever the attempt leaves IN_PROGRESS.
type Controller struct {
	cfg      Config
	user     common.Address
	ledger   Ledger
	clock    *clock.Clock
	log      zerolog.Logger
	observer func(Snapshot)

	baseCtx    context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup

	mu         sync.Mutex
	state      State
	remaining  int
	redirect   int
	answers    Answers
	cooldown   Cooldown
	startedAt  time.Time
	sentAt     time.Time
	result     *ScoreResult
	err        error
	taskGen    int
	cancelTask context.CancelFunc
	closed     bool
}

// NewController returns an idle controller for user. Call Refresh to load
// the cooldown from the ledger and Close to stop its timers.
func NewController(user common.Address, ledger Ledger, cfg Config, opts ...Option) *Controller {
	baseCtx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:        cfg.withDefaults(),
		user:       user,
		ledger:     ledger,
		clock:      clock.New(),
		log:        zerolog.Nop(),
		baseCtx:    baseCtx,
		cancelBase: cancel,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "quiz_controller").Str("user", user.Hex()).Logger()
	return c
}

func (c *Controller) durationUnits() int {
	return int(c.cfg.Duration / c.cfg.TickInterval)
}

func (c *Controller) redirectUnits() int {
	return int(c.cfg.RedirectDelay / c.cfg.TickInterval)
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Refresh re-synchronizes cooldown and session state from the ledger. An
// active ledger session that still has time left is resumed.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.restingLocked() {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.mu.Unlock()

	last, err := c.ledger.LastQuizTime(ctx, c.user)
	if err == nil {
		var sess *LedgerSession
		sess, err = c.ledger.ReadSession(ctx, c.user)
		if err == nil {
			return c.applyRefresh(last, sess)
		}
	}

	c.mu.Lock()
	c.err = fmt.Errorf("sync with ledger: %w", err)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return err
}

func (c *Controller) applyRefresh(last time.Time, sess *LedgerSession) error {
	c.mu.Lock()
	if c.closed || !c.restingLocked() {
		// A concurrent Start won the race; its outcome stands.
		c.mu.Unlock()
		return nil
	}

	now := c.clock.Time()
	c.cooldown = NewCooldown(last, now, c.cfg.Cooldown)
	c.err = nil

	resumed := false
	if sess != nil && sess.IsActive && !sess.HasCompleted {
		left := c.cfg.Duration - now.Sub(sess.StartTime)
		if units := int(left / c.cfg.TickInterval); units > 0 {
			c.state = StateInProgress
			c.remaining = units
			c.answers = sess.Answers
			c.startedAt = sess.StartTime
			c.result = nil
			c.startTaskLocked()
			resumed = true
		}
	}
	if !resumed {
		if c.cooldown.CanStart {
			c.state = StateIdle
		} else {
			c.state = StateBlocked
		}
	}

	c.log.Debug().
		Str("state", string(c.state)).
		Int64("cooldown_remaining", c.cooldown.RemainingSeconds()).
		Bool("resumed", resumed).
		Msg("Synced with ledger")

	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// Start begins an attempt. The countdown only starts once the ledger has
// confirmed the session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.restingLocked() {
		c.mu.Unlock()
		return ErrInvalidState
	}

	now := c.clock.Time()
	c.cooldown = NewCooldown(c.cooldown.LastQuizTime, now, c.cfg.Cooldown)
	if !c.cooldown.CanStart {
		err := &CooldownError{Remaining: c.cooldown.Remaining}
		c.state = StateBlocked
		c.err = err
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	c.state = StateStarting
	c.err = nil
	c.result = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	err := c.ledger.StartSession(ctx, c.user)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		var cd *CooldownError
		if errors.As(err, &cd) {
			now := c.clock.Time()
			c.cooldown = NewCooldown(now.Add(cd.Remaining-c.cfg.Cooldown), now, c.cfg.Cooldown)
			c.state = StateBlocked
		} else {
			c.state = StateIdle
		}
		c.err = err
		c.log.Warn().Err(err).Msg("Start rejected")
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	started := c.clock.Time()
	c.startedAt = started
	c.cooldown = NewCooldown(started, started, c.cfg.Cooldown)
	c.state = StateInProgress
	c.remaining = c.durationUnits()
	c.answers = Answers{}
	c.startTaskLocked()
	c.log.Info().Int("time_remaining", c.remaining).Msg("Quiz started")
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// Select records answer for question index while the attempt is running.
func (c *Controller) Select(index int, answer string) error {
	c.mu.Lock()
	if c.state != StateInProgress {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if !c.cfg.Questions.IsOption(index, answer) {
		c.mu.Unlock()
		return fmt.Errorf("%w: question %d", ErrInvalidAnswers, index)
	}
	c.answers[index] = answer
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// Submit sends the current answers. A second call while a submission is
// outstanding returns ErrSubmissionInFlight without reaching the ledger.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateInProgress:
	case StateSubmitting, StateDone:
		c.mu.Unlock()
		return ErrSubmissionInFlight
	default:
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.stopTaskLocked()
	answers := c.answers
	c.state = StateSubmitting
	c.sentAt = c.clock.Time()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	return c.submit(ctx, answers)
}

// Tick advances the countdown (or the post-completion redirect) by one unit.
// It is driven by the controller's own timer; tests may call it directly.
func (c *Controller) Tick(ctx context.Context) {
	c.tick(ctx, -1)
}

func (c *Controller) tick(ctx context.Context, gen int) {
	c.mu.Lock()
	if c.closed || (gen >= 0 && gen != c.taskGen) {
		c.mu.Unlock()
		return
	}

	switch c.state {
	case StateInProgress:
		if c.remaining > 0 {
			c.remaining--
		}
		if c.remaining > 0 {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			c.notify(snap)
			return
		}

		c.stopTaskLocked()
		c.answers = c.cfg.Questions.FillDefaults(c.answers)
		answers := c.answers
		c.state = StateSubmitting
		c.sentAt = c.clock.Time()
		c.log.Info().Msg("Time expired, auto-submitting")
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		_ = c.submit(ctx, answers)

	case StateDone:
		if c.redirect > 0 {
			c.redirect--
		}
		if c.redirect > 0 {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			c.notify(snap)
			return
		}

		c.stopTaskLocked()
		c.state = StateIdle
		c.result = nil
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		_ = c.Refresh(ctx)

	default:
		c.mu.Unlock()
	}
}

func (c *Controller) submit(ctx context.Context, answers Answers) error {
	res, err := c.ledger.SubmitAnswers(ctx, c.user, answers)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if err != nil {
			return err
		}
		return ErrClosed
	}

	if err != nil {
		c.remaining = c.remainingAfterSubmitLocked()
		switch {
		case errors.Is(err, ErrInsufficientFunds),
			errors.Is(err, ErrSessionExpired),
			errors.Is(err, ErrNoActiveSession):
			c.state = StateFailed
			c.err = err
		case c.remaining == 0:
			c.state = StateFailed
			c.err = fmt.Errorf("%w: %w", ErrSessionExpired, rejected(err))
		default:
			c.state = StateInProgress
			c.err = rejected(err)
			c.startTaskLocked()
		}
		err = c.err
		c.log.Warn().Err(err).Str("state", string(c.state)).Int("time_remaining", c.remaining).Msg("Submission failed")
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	c.state = StateDone
	c.result = &res
	c.err = nil
	c.redirect = c.redirectUnits()
	c.startTaskLocked()
	c.log.Info().
		Int("correct", res.Correct).
		Bool("perfect", res.Perfect).
		Msg("Quiz submitted")
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return nil
}

// remainingAfterSubmitLocked charges the time spent waiting on the ledger
// against the countdown, never leaving more than the wall clock allows
// since the attempt started.
func (c *Controller) remainingAfterSubmitLocked() int {
	now := c.clock.Time()
	left := c.remaining - int(now.Sub(c.sentAt)/c.cfg.TickInterval)
	if wall := int((c.cfg.Duration - now.Sub(c.startedAt)) / c.cfg.TickInterval); wall < left {
		left = wall
	}
	return max(left, 0)
}

// Close stops all timers and waits for them to exit. It must not be called
// from an observer callback.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTaskLocked()
	c.cancelBase()
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) restingLocked() bool {
	switch c.state {
	case StateIdle, StateBlocked, StateFailed:
		return true
	}
	return false
}

func (c *Controller) startTaskLocked() {
	c.stopTaskLocked()
	if c.closed {
		return
	}
	gen := c.taskGen
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancelTask = cancel
	ticker := c.clock.NewTicker(c.cfg.TickInterval)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.tick(c.baseCtx, gen)
			}
		}
	}()
}

// stopTaskLocked cancels the running timer and invalidates any tick it may
// already have in flight.
func (c *Controller) stopTaskLocked() {
	if c.cancelTask != nil {
		c.cancelTask()
		c.cancelTask = nil
	}
	c.taskGen++
}

func (c *Controller) snapshotLocked() Snapshot {
	now := c.clock.Time()
	cd := NewCooldown(c.cooldown.LastQuizTime, now, c.cfg.Cooldown)
	if c.state == StateBlocked && cd.CanStart {
		c.state = StateIdle
	}

	snap := Snapshot{
		User:              c.user.Hex(),
		State:             c.state,
		Answers:           append([]string(nil), c.answers[:]...),
		CooldownRemaining: cd.RemainingSeconds(),
		CanStart:          cd.CanStart,
		Status:            StatusText(c.err),
	}
	if !cd.LastQuizTime.IsZero() {
		t := cd.LastQuizTime
		snap.LastQuizTime = &t
	}
	switch c.state {
	case StateInProgress, StateSubmitting:
		snap.TimeRemaining = c.remaining
	case StateDone:
		snap.RedirectRemaining = c.redirect
	}
	if c.result != nil {
		res := *c.result
		snap.Result = &res
	}
	return snap
}

func (c *Controller) notify(snap Snapshot) {
	if c.observer != nil {
		c.observer(snap)
	}
}

func rejected(err error) error {
	if errors.Is(err, ErrSubmissionRejected) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSubmissionRejected, err)
}
