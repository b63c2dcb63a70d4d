package clock

import (
	"sync"
	"time"
)

// Clock wraps wall-clock time so that cooldown arithmetic and countdown
// ticking can be driven by hand in tests. The zero value follows real time.
// It is safe for concurrent use.
type Clock struct {
	mu      sync.RWMutex
	faked   bool
	time    time.Time
	tickers []*fakeTicker
}

// New returns a clock synced with real time.
func New() *Clock {
	return &Clock{}
}

// Set pins the clock to t. Tickers created afterwards are manual.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = true
	c.time = t
}

// Sync releases the clock back to real time.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = false
}

// Time returns the time on this clock.
func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.faked {
		return c.time
	}
	return time.Now()
}

// Unix returns the unix timestamp on this clock, never negative.
func (c *Clock) Unix() int64 {
	return max(c.Time().Unix(), 0)
}

// Advance moves a pinned clock forward by d and fires every manual ticker
// whose period elapsed. It is a no-op on a real-time clock.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	if !c.faked {
		c.mu.Unlock()
		return
	}
	c.time = c.time.Add(d)
	now := c.time
	live := c.tickers[:0]
	var due []*fakeTicker
	for _, t := range c.tickers {
		if t.isStopped() {
			continue
		}
		live = append(live, t)
		if !now.Before(t.next) {
			due = append(due, t)
			for !now.Before(t.next) {
				t.next = t.next.Add(t.period)
			}
		}
	}
	c.tickers = live
	c.mu.Unlock()

	for _, t := range due {
		t.fire(now)
	}
}

// Ticker delivers ticks on C until stopped.
type Ticker struct {
	C    <-chan time.Time
	stop func()
}

// Stop turns the ticker off. No more ticks are delivered after Stop returns.
func (t *Ticker) Stop() {
	t.stop()
}

// NewTicker returns a ticker firing every d. On a pinned clock the ticker
// only fires from Advance.
func (c *Clock) NewTicker(d time.Duration) *Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.faked {
		rt := time.NewTicker(d)
		return &Ticker{C: rt.C, stop: rt.Stop}
	}

	ft := &fakeTicker{
		ch:     make(chan time.Time, 1),
		period: d,
		next:   c.time.Add(d),
	}
	c.tickers = append(c.tickers, ft)
	return &Ticker{C: ft.ch, stop: ft.markStopped}
}

type fakeTicker struct {
	mu      sync.Mutex
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func (t *fakeTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	// Slow receivers miss ticks, same as time.Ticker.
	select {
	case t.ch <- now:
	default:
	}
}

func (t *fakeTicker) markStopped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
