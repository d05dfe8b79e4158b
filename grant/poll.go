package grant

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrPollDeadline is returned by Poller.Wait when the next attempt would fall
// after the device code's expiry.
var ErrPollDeadline = errors.New("device code expires before next poll")

// EffectiveInterval returns the device-code poll interval: the provider's
// announced interval raised to floor, or floor when none was announced.
func EffectiveInterval(provider, floor time.Duration) time.Duration {
	if provider > floor {
		return provider
	}
	return floor
}

// Poller paces device-code token requests (RFC 8628 section 3.5). The first
// attempt waits a full interval; slow_down permanently widens it.
type Poller struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	interval  time.Duration
	increment time.Duration
	deadline  time.Time
	now       func() time.Time
}

// NewPoller creates a poller. A zero deadline means polling is only bounded by
// the caller's context. now is the clock the deadline is checked against (nil
// uses time.Now); pacing always follows real time.
func NewPoller(interval, increment time.Duration, deadline time.Time, now func() time.Time) *Poller {
	if now == nil {
		now = time.Now
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	limiter.Allow() // consume the initial burst
	return &Poller{
		limiter:   limiter,
		interval:  interval,
		increment: increment,
		deadline:  deadline,
		now:       now,
	}
}

// Wait blocks until the next poll attempt is allowed or ctx is done
func (p *Poller) Wait(ctx context.Context) error {
	p.mu.Lock()
	r := p.limiter.Reserve()
	p.mu.Unlock()

	delay := r.Delay()
	if !p.deadline.IsZero() && p.now().Add(delay).After(p.deadline) {
		r.Cancel()
		return ErrPollDeadline
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// SlowDown widens the interval by the configured increment and returns the new
// interval.
func (p *Poller) SlowDown() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval += p.increment
	p.limiter.SetLimit(rate.Every(p.interval))
	return p.interval
}

// Interval returns the current poll interval
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}
