package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mark47B/erp-portal/app/domain/entity"
)

// RetryPolicy bounds how a failed query fetch is retried.
type RetryPolicy struct {
	// MaxRetries counts attempts after the first one. Zero or less disables retries.
	MaxRetries int
	// ShouldRetry can veto a retry. failureCount starts at 1.
	ShouldRetry func(failureCount int, err error) bool
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries transient failures three times with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		ShouldRetry: RetryTransient,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// NoRetry disables retries entirely.
func NoRetry() *RetryPolicy {
	return &RetryPolicy{}
}

// RetryTransient refuses to retry client errors other than 408 and 429.
func RetryTransient(_ int, err error) bool {
	return !entity.IsClientError(err)
}

// FinalOnNotFound returns p with not-found answers made final. p keeps its
// retry count and delays and its own veto.
func (p RetryPolicy) FinalOnNotFound() RetryPolicy {
	next := p.ShouldRetry
	p.ShouldRetry = func(failureCount int, err error) bool {
		if errors.Is(err, entity.ErrNotFound) {
			return false
		}
		return next == nil || next(failureCount, err)
	}
	return p
}

func (p RetryPolicy) withDefaults(def RetryPolicy) RetryPolicy {
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// run executes fn until it succeeds or the policy gives up.
// It returns the number of failed attempts.
func (p RetryPolicy) run(ctx context.Context, fn func(context.Context) (any, error)) (any, int, error) {
	failures := 0
	op := func() (any, error) {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		failures++
		if failures > p.MaxRetries || (p.ShouldRetry != nil && !p.ShouldRetry(failures, err)) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2

	v, err := backoff.Retry(ctx, op, backoff.WithBackOff(b))
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if err != nil {
		return nil, failures, err
	}
	return v, failures, nil
}
