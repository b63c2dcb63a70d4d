package quiz

import (
	"fmt"
	"time"
)

// Default protocol timings.
const (
	DefaultQuizDuration   = 120 * time.Second
	DefaultCooldownPeriod = 7 * 24 * time.Hour
	DefaultRedirectDelay  = 5 * time.Second
	DefaultTickInterval   = time.Second
	DefaultSubmitGrace    = 10 * time.Second
)

// Cooldown is the derived re-entry state for a user.
type Cooldown struct {
	LastQuizTime time.Time     `json:"last_quiz_time"`
	Remaining    time.Duration `json:"-"`
	CanStart     bool          `json:"can_start"`
}

// NewCooldown computes max(0, last + period - now). A zero last means the
// user never attempted and may start immediately.
func NewCooldown(last, now time.Time, period time.Duration) Cooldown {
	cd := Cooldown{LastQuizTime: last}
	if !last.IsZero() && last.Unix() > 0 {
		if rem := last.Add(period).Sub(now); rem > 0 {
			cd.Remaining = rem
		}
	}
	cd.CanStart = cd.Remaining == 0
	return cd
}

// RemainingSeconds rounds the remaining time up to whole seconds so a user
// is never told they can start a second early.
func (c Cooldown) RemainingSeconds() int64 {
	secs := int64(c.Remaining / time.Second)
	if c.Remaining%time.Second != 0 {
		secs++
	}
	return secs
}

// Until returns the time at which the cooldown ends.
func (c Cooldown) Until(period time.Duration) time.Time {
	if c.LastQuizTime.IsZero() {
		return time.Time{}
	}
	return c.LastQuizTime.Add(period)
}

// FormatRemaining renders d as "4d 0h 0m 0s" style text.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	days := secs / 86400
	secs %= 86400
	hours := secs / 3600
	secs %= 3600
	mins := secs / 60
	secs %= 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, mins, secs)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
