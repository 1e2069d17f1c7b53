package client

import (
	"sync"
	"time"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops refresh attempts after repeated failures so a broken refresh
// token cannot hammer the session endpoint from every open tab. After the
// cooldown one probe attempt is allowed; its result closes or re-opens the
// circuit.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration
	nowTime     func() time.Time

	lock     sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

func NewBreaker(maxFailures int, cooldown time.Duration, options ...BreakerOption) *Breaker {
	b := &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		nowTime:     time.Now,
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

type BreakerOption func(*Breaker)

func WithBreakerNowTime(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.nowTime = now }
}

// Allow reports whether an attempt may proceed.
func (b *Breaker) Allow() bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if b.nowTime().Sub(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		// The probe attempt is already in flight.
		return false
	default:
		return false
	}
}

func (b *Breaker) RecordSuccess() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.state = breakerClosed
	b.failures = 0
}

func (b *Breaker) RecordFailure() {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = b.nowTime()
		return
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.state = breakerOpen
		b.openedAt = b.nowTime()
	}
}
