package swap

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// BreakerState is the circuit breaker state.
type BreakerState int32

const (
	BreakerClosed   BreakerState = iota // requests pass through
	BreakerHalfOpen                     // one probe in flight
	BreakerOpen                         // failing fast
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	}
	return "unknown"
}

// CircuitBreaker counts consecutive upstream failures and fails fast
// once the threshold is reached. After the cooldown a single probe is
// let through; its outcome decides between closing and reopening.
// All state lives in atomics so concurrent callers agree on
// transitions.
type CircuitBreaker struct {
	threshold int32
	cooldown  time.Duration
	log       *zap.Logger

	state       int32
	failures    int32
	lastFailure int64 // unix nanos
	probing     int32
}

// NewCircuitBreaker builds a closed breaker.
func NewCircuitBreaker(threshold int32, cooldown time.Duration, log *zap.Logger) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, log: log}
}

// Allow reports whether a request may proceed. In the open state it
// transitions to half-open after the cooldown and admits exactly one
// probe; everyone else keeps failing fast until the probe resolves.
func (cb *CircuitBreaker) Allow() bool {
	switch BreakerState(atomic.LoadInt32(&cb.state)) {
	case BreakerClosed:
		return true
	case BreakerOpen:
		last := atomic.LoadInt64(&cb.lastFailure)
		if time.Since(time.Unix(0, last)) < cb.cooldown {
			return false
		}
		if atomic.CompareAndSwapInt32(&cb.state, int32(BreakerOpen), int32(BreakerHalfOpen)) {
			atomic.StoreInt32(&cb.probing, 1)
			cb.log.Info("circuit half-open, probing")
			return true
		}
		return false
	case BreakerHalfOpen:
		return atomic.CompareAndSwapInt32(&cb.probing, 0, 1)
	}
	return false
}

// Success records a successful upstream exchange.
func (cb *CircuitBreaker) Success() {
	switch BreakerState(atomic.LoadInt32(&cb.state)) {
	case BreakerClosed:
		atomic.StoreInt32(&cb.failures, 0)
	case BreakerHalfOpen:
		if atomic.CompareAndSwapInt32(&cb.state, int32(BreakerHalfOpen), int32(BreakerClosed)) {
			atomic.StoreInt32(&cb.failures, 0)
			atomic.StoreInt32(&cb.probing, 0)
			cb.log.Info("circuit closed after successful probe")
		}
	}
}

// Failure records an upstream 5xx or network error.
func (cb *CircuitBreaker) Failure() {
	failures := atomic.AddInt32(&cb.failures, 1)
	atomic.StoreInt64(&cb.lastFailure, time.Now().UnixNano())

	switch BreakerState(atomic.LoadInt32(&cb.state)) {
	case BreakerClosed:
		if failures >= cb.threshold {
			if atomic.CompareAndSwapInt32(&cb.state, int32(BreakerClosed), int32(BreakerOpen)) {
				cb.log.Warn("circuit opened", zap.Int32("failures", failures))
			}
		}
	case BreakerHalfOpen:
		if atomic.CompareAndSwapInt32(&cb.state, int32(BreakerHalfOpen), int32(BreakerOpen)) {
			atomic.StoreInt32(&cb.probing, 0)
			cb.log.Warn("circuit reopened after failed probe")
		}
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	return BreakerState(atomic.LoadInt32(&cb.state))
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int32 {
	return atomic.LoadInt32(&cb.failures)
}
