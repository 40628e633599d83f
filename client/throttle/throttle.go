package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Config defines the throttler's
// Requests Per Second and Burst Rate
type Config struct {
	RPS   int `yaml:"rps" validate:"gt=0"`
	Burst int `yaml:"burst" validate:"gt=0"`
}

// Limiter gates new request starts with the time/rate token bucket
// limiter.
type Limiter struct {
	limiter *rate.Limiter
	rps     int
	burst   int
	logger  *slog.Logger
	now     func() time.Time

	exhaustedAt time.Time
}

// New returns a Limiter admitting rps requests per second with the given
// burst. A nil logger disables logging; a nil now reads [time.Now].
func New(rps, burst int, logger *slog.Logger, now func() time.Time) (*Limiter, error) {
	if rps <= 0 || burst <= 0 {
		return nil, fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, ErrMustNotBeZero)
	}
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rps,
		burst:   burst,
		logger:  logger,
		now:     now,
	}

	return l, nil
}

// Allow reports whether a request may start now, consuming a token if
// so. It never blocks.
func (l *Limiter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}

	now := l.now()
	if !l.limiter.AllowN(now, 1) {
		if l.exhaustedAt.IsZero() {
			l.exhaustedAt = now
			if l.logger != nil {
				l.logger.Info("throttle tokens exhausted", "rate", l.rps, "burst", l.burst)
			}
		}
		return false
	}

	if !l.exhaustedAt.IsZero() {
		if l.logger != nil {
			l.logger.Info("throttle wait complete", "waited", now.Sub(l.exhaustedAt).String(), "rate", l.rps, "burst", l.burst)
		}
		l.exhaustedAt = time.Time{}
	}
	return true
}

// Wait blocks until a request may start or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	var waited time.Duration
	if l.logger != nil && l.limiter.Tokens() < 1 {
		l.logger.Info("throttle tokens exhausted", "rate", l.rps, "burst", l.burst)

		defer func() {
			l.logger.Info("throttle wait complete", "waited", waited.String(), "rate", l.rps, "burst", l.burst)
		}()
	}

	start := time.Now()

	err := l.limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil { // Check context hasn't expired again.
		return fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return nil
}

// Backoff admits at most one attempt per interval.
type Backoff struct {
	limiter  *rate.Limiter
	interval time.Duration
	now      func() time.Time
}

// NewBackoff returns a Backoff whose first attempt is admitted at once.
func NewBackoff(interval time.Duration, now func() time.Time) *Backoff {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		return &Backoff{now: now}
	}
	return &Backoff{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
		now:      now,
	}
}

// Ready reports whether an attempt may be made now, consuming the slot
// if so.
func (b *Backoff) Ready() bool {
	if b == nil || b.limiter == nil {
		return true
	}
	return b.limiter.AllowN(b.now(), 1)
}

// Interval returns the minimum spacing between attempts.
func (b *Backoff) Interval() time.Duration {
	if b == nil {
		return 0
	}
	return b.interval
}
