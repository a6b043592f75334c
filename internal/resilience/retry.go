package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/GriffinCanCode/vidscribe/internal/errors"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 250 * time.Millisecond
	DefaultMaxDelay  = 5 * time.Second
	DefaultJitter    = 0.2
)

// Policy describes how a call is retried.
type Policy struct {
	Attempts  int // total tries, including the first
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64 // fraction of the delay randomised around it
	Retryable func(error) bool
}

// DefaultPolicy retries transient backend errors three times.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  DefaultAttempts,
		BaseDelay: DefaultBaseDelay,
		MaxDelay:  DefaultMaxDelay,
		Jitter:    DefaultJitter,
		Retryable: IsTransient,
	}
}

func (p Policy) normalize() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = max(DefaultMaxDelay, p.BaseDelay)
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	return p
}

// IsTransient reports whether err looks temporary: an open breaker never is,
// AppErrors follow their code, gRPC errors follow their status.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return apperrors.IsRetryable(appErr)
	}
	s, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx is done.
func Retry(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.normalize()
	var err error
	for attempt := 1; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.Attempts || !p.Retryable(err) {
			return err
		}
		wait := p.delay(attempt)
		slog.Debug("retrying", "attempt", attempt, "of", p.Attempts, "wait", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// delay is BaseDelay * 2^(attempt-1), capped at MaxDelay, with jitter.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << min(attempt-1, 8)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	j := float64(d) * p.Jitter * (rand.Float64() - 0.5)
	return time.Duration(float64(d) + j)
}
