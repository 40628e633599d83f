// Package timer provides the countdown used for every per-operation
// timeout in the client: send, read, SSE idle and session windows.
package timer

import "time"

// Timer counts down from the last Feed. The zero value is stopped and
// reads the wall clock through [time.Now].
type Timer struct {
	now      func() time.Time
	deadline time.Time
	period   time.Duration
	running  bool
	feeds    int
}

// New returns a stopped Timer reading time from now. A nil now falls
// back to [time.Now].
func New(now func() time.Time) *Timer {
	return &Timer{now: now}
}

func (t *Timer) clock() time.Time {
	if t.now == nil {
		return time.Now()
	}
	return t.now()
}

// Feed (re)starts the countdown with period d. A zero period makes the
// timer expire immediately.
func (t *Timer) Feed(d time.Duration) {
	t.feeds++
	if d <= 0 {
		t.feeds = 1
	}
	t.period = d
	t.deadline = t.clock().Add(d)
	t.running = true
}

// Refresh restarts the countdown with the period given to the last Feed.
func (t *Timer) Refresh() {
	t.Feed(t.period)
}

// Stop halts the countdown.
func (t *Timer) Stop() {
	t.running = false
}

// Running reports whether the timer has been fed and not stopped.
func (t *Timer) Running() bool { return t.running }

// Period returns the period given to the last Feed.
func (t *Timer) Period() time.Duration { return t.period }

// FeedCount returns how many times the timer was fed since the last
// zero-period feed.
func (t *Timer) FeedCount() int { return t.feeds }

// Remaining returns the time left before expiry, or zero when the timer
// is stopped or expired.
func (t *Timer) Remaining() time.Duration {
	if !t.running {
		return 0
	}
	left := t.deadline.Sub(t.clock())
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether a running timer has reached its deadline.
// A stopped timer never expires.
func (t *Timer) Expired() bool {
	return t.running && !t.clock().Before(t.deadline)
}
