package quiz

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCooldownActive     = errors.New("cooldown active")
	ErrSessionConflict    = errors.New("a quiz session is already active")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrInsufficientFunds  = errors.New("insufficient funds for fee")

	ErrNoActiveSession    = errors.New("no active quiz session")
	ErrSessionExpired     = errors.New("quiz session expired")
	ErrInvalidState       = errors.New("operation not allowed in current state")
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrInvalidAnswers     = errors.New("invalid answers")
	ErrClosed             = errors.New("controller closed")
)

// CooldownError carries the exact remaining wait.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: next quiz available in %s", ErrCooldownActive, FormatRemaining(e.Remaining))
}

func (e *CooldownError) Unwrap() error {
	return ErrCooldownActive
}

// StatusText turns a protocol error into the message shown to the player.
func StatusText(err error) string {
	if err == nil {
		return ""
	}

	var cd *CooldownError
	switch {
	case errors.As(err, &cd):
		return "You already took the quiz this week. Next attempt in " + FormatRemaining(cd.Remaining) + "."
	case errors.Is(err, ErrCooldownActive):
		return "You already took the quiz this week. Please wait for the cooldown to end."
	case errors.Is(err, ErrSessionConflict):
		return "A quiz session is already active for this wallet. Refresh to sync your session."
	case errors.Is(err, ErrInsufficientFunds):
		return "Insufficient funds to pay the network fee. This attempt cannot continue."
	case errors.Is(err, ErrSessionExpired):
		return "Time is up and the submission could not be recorded. This attempt is lost."
	case errors.Is(err, ErrSubmissionRejected):
		return "Your answers were not submitted. Please try again."
	case errors.Is(err, ErrNoActiveSession):
		return "No active quiz session. Start a new quiz first."
	case errors.Is(err, ErrSubmissionInFlight):
		return "Your answers are already being submitted."
	case errors.Is(err, ErrInvalidAnswers):
		return "One or more answers are not valid options."
	case errors.Is(err, ErrInvalidState):
		return "That action is not available right now."
	default:
		return "Something went wrong: " + err.Error()
	}
}
