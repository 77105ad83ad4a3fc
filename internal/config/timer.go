package config

import "time"

// noDeadlineRemaining is the sentinel Remaining returns when the run has no
// wall-clock limit.
const noDeadlineRemaining = 99999 * time.Second

// Timer tracks run duration. A zero limit means the run never expires and a
// successor is always affordable; session boundaries are then driven purely
// by context fill.
type Timer struct {
	start        time.Time
	limit        time.Duration
	minSuccessor time.Duration
	now          func() time.Time
}

func NewTimer(limit, minSuccessor time.Duration) *Timer {
	return newTimerAt(limit, minSuccessor, time.Now)
}

func newTimerAt(limit, minSuccessor time.Duration, now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{
		start:        now(),
		limit:        limit,
		minSuccessor: minSuccessor,
		now:          now,
	}
}

func (t *Timer) Start() time.Time {
	return t.start
}

func (t *Timer) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

func (t *Timer) Remaining() time.Duration {
	if t.limit <= 0 {
		return noDeadlineRemaining
	}
	remaining := t.limit - t.Elapsed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *Timer) IsExpired() bool {
	if t.limit <= 0 {
		return false
	}
	return t.Elapsed() >= t.limit
}

func (t *Timer) HasSuccessorTime() bool {
	if t.limit <= 0 {
		return true
	}
	return t.Remaining() >= t.minSuccessor
}
