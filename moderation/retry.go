package moderation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second

	maxRetryInterval = time.Hour
)

// UpstreamError is a non-2xx answer from the classification endpoint.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

// IsCapacityError reports whether err means the upstream is overloaded and
// the call may succeed later.
func IsCapacityError(err error) bool {
	var upstream *UpstreamError
	return errors.As(err, &upstream) && upstream.StatusCode == http.StatusServiceUnavailable
}

// RetryPolicy bounds the retries of one upstream call. Delays start at
// BaseDelay and double after every attempt, without jitter.
type RetryPolicy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
}

// DefaultRetryPolicy allows four attempts spaced 2s, 4s and 8s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxRetryInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, p.MaxRetries), ctx)
}

// Do runs op until it succeeds, fails with something other than a capacity
// error, or the policy runs out of retries. notify, when non-nil, is called
// before every wait.
func (p RetryPolicy) Do(ctx context.Context, op func() error, notify backoff.Notify) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !IsCapacityError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), notify)
}
