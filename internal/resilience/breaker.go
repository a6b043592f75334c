// Package resilience wraps calls to the OCR backend with a circuit breaker and
// retry with exponential backoff.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State of a circuit breaker.
type State uint32

const (
	Closed   State = iota // calls flow
	Open                  // calls fail fast
	HalfOpen              // probing recovery
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker open")

const (
	DefaultThreshold         = 5
	DefaultCooldown          = 30 * time.Second
	DefaultHalfOpenSuccesses = 2
)

// BreakerConfig tunes a Breaker. Zero fields take the defaults above.
type BreakerConfig struct {
	Threshold         int           // consecutive failures before opening
	Cooldown          time.Duration // time spent open before probing
	HalfOpenSuccesses int           // probe successes needed to close
}

func (c BreakerConfig) normalize() BreakerConfig {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}

// Hook observes state changes.
type Hook func(name string, from, to State)

// Breaker is a lock-free circuit breaker identified by the service it guards.
type Breaker struct {
	name     string
	cfg      BreakerConfig
	state    atomic.Uint32
	failures atomic.Int32
	probes   atomic.Int32
	openedAt atomic.Int64 // unix nano of the last failure

	hookMu sync.RWMutex
	hooks  []Hook
}

// NewBreaker returns a closed breaker for the named service.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.normalize()}
}

// Name of the guarded service.
func (b *Breaker) Name() string { return b.name }

// OnStateChange registers a hook.
func (b *Breaker) OnStateChange(h Hook) *Breaker {
	b.hookMu.Lock()
	b.hooks = append(b.hooks, h)
	b.hookMu.Unlock()
	return b
}

// State returns the current state.
func (b *Breaker) State() State { return State(b.state.Load()) }

// Allow returns nil when a call may proceed.
func (b *Breaker) Allow() error {
	if b.State() != Open {
		return nil
	}
	if time.Since(time.Unix(0, b.openedAt.Load())) >= b.cfg.Cooldown {
		b.moveTo(HalfOpen)
		return nil
	}
	return ErrOpen
}

// Success records a successful call.
func (b *Breaker) Success() {
	switch b.State() {
	case Closed:
		b.failures.Store(0)
	case HalfOpen:
		if int(b.probes.Add(1)) >= b.cfg.HalfOpenSuccesses {
			b.moveTo(Closed)
		}
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.openedAt.Store(time.Now().UnixNano())
	n := b.failures.Add(1)
	switch b.State() {
	case HalfOpen:
		b.moveTo(Open)
	case Closed:
		if int(n) >= b.cfg.Threshold {
			b.moveTo(Open)
		}
	}
}

// Reset closes the breaker.
func (b *Breaker) Reset() { b.moveTo(Closed) }

func (b *Breaker) moveTo(to State) {
	from := State(b.state.Swap(uint32(to)))
	if from == to {
		return
	}
	b.probes.Store(0)
	log := slog.With("service", b.name, "from", from.String(), "to", to.String())
	switch to {
	case Closed:
		b.failures.Store(0)
		log.Info("circuit breaker closed")
	case Open:
		log.Warn("circuit breaker opened", "failures", b.failures.Load())
	case HalfOpen:
		log.Info("circuit breaker probing")
	}

	b.hookMu.RLock()
	hooks := b.hooks
	b.hookMu.RUnlock()
	for _, h := range hooks {
		h(b.name, from, to)
	}
}

// Do runs fn under the breaker. Context cancellation is not counted as a
// backend failure.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	_, err := Call(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn under the breaker and returns its value.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	switch {
	case err == nil:
		b.Success()
		return v, nil
	case errors.Is(err, context.Canceled):
		return zero, err
	default:
		b.Failure()
		return zero, err
	}
}
