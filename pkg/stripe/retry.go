package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v84"
)

const (
	defaultCallTimeout = 10 * time.Second
	defaultRetryBase   = 200 * time.Millisecond
	maxRetryDelay      = 3 * time.Second
)

// ProviderError reports a failed provider call after retries were exhausted
// or a definitive rejection was received.
type ProviderError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("stripe %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// RetryPolicy bounds every provider attempt with a timeout and retries
// transient failures with capped exponential backoff.
type RetryPolicy struct {
	MaxRetries  uint64
	Base        time.Duration
	CallTimeout time.Duration
}

func (p RetryPolicy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = defaultRetryBase
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(p.MaxRetries, b)
}

func (p RetryPolicy) timeout() time.Duration {
	if p.CallTimeout <= 0 {
		return defaultCallTimeout
	}
	return p.CallTimeout
}

// attemptFunc performs one provider call bounded by the attempt context.
type attemptFunc func(ctx context.Context) error

// observer is notified of every attempt outcome ("ok", "retry", "error").
type observer func(op, outcome string)

func (p RetryPolicy) run(ctx context.Context, op string, observe observer, fn attemptFunc) error {
	var last error
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout())
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			notify(observe, op, "ok")
			return nil
		}
		last = err
		if isTransient(err) && ctx.Err() == nil {
			notify(observe, op, "retry")
			return retry.RetryableError(err)
		}
		notify(observe, op, "error")
		return err
	})
	if err == nil {
		return nil
	}
	if last == nil {
		last = err
	}
	return &ProviderError{Op: op, Retryable: isTransient(last), Err: err}
}

func notify(observe observer, op, outcome string) {
	if observe != nil {
		observe(op, outcome)
	}
}

// isTransient separates failures worth retrying (timeouts, network faults,
// rate limits, provider 5xx) from definitive rejections.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
			return true
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return true
		case stripeErr.Type == stripe.ErrorTypeAPI:
			return true
		}
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
