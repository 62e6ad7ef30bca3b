// Package retry runs an operation under a bounded attempt budget with optional
// jittered exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// ErrBudgetExhausted is returned (wrapping the last failure) when every attempt failed.
var ErrBudgetExhausted = errors.New("retry budget exhausted")

// NonRetryableError wraps errors that should end the loop immediately.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable marks err so Do stops without spending the remaining budget.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was marked with NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config is an attempt budget. A zero InitialDelay retries immediately.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	AddJitter    bool
}

// Immediate retries back to back, up to attempts times.
func Immediate(attempts int) Config {
	return Config{MaxAttempts: attempts}
}

// Exponential doubles the delay from initial up to max, with up to 25% jitter.
func Exponential(attempts int, initial, max time.Duration) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Attempt describes one finished call of the operation.
type Attempt struct {
	Number int
	Err    error
}

// Do calls fn until it succeeds, returns a non-retryable error, or the budget runs out.
// onAttempt, when non-nil, observes every finished attempt in order. Cancellation is
// only checked between attempts so an in-flight call always completes.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error, onAttempt func(Attempt)) (int, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay < 0 || cfg.MaxDelay < 0 || cfg.Multiplier < 0 {
		return 0, errors.New("retry: negative delay or multiplier")
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxDelay == 0 || cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if onAttempt != nil {
			onAttempt(Attempt{Number: attempt, Err: err})
		}
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return attempt, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return attempt, fmt.Errorf("retry cancelled after attempt %d: %w", attempt, ctx.Err())
		}
		if delay <= 0 {
			continue
		}

		sleep := delay
		if cfg.AddJitter && delay >= 4 {
			randMu.Lock()
			sleep += time.Duration(randSource.Int63n(int64(delay / 4)))
			randMu.Unlock()
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("retry cancelled during backoff before attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}

		next := float64(delay) * cfg.Multiplier
		if next > float64(cfg.MaxDelay) {
			delay = cfg.MaxDelay
		} else {
			delay = time.Duration(next)
		}
	}

	return cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrBudgetExhausted, cfg.MaxAttempts, lastErr)
}
