// Package rate implements fixed-window request throttles, backed by Redis
// counters or by process memory for untracked deployments.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited is the sentinel every limit rejection matches via errors.Is.
var ErrRateLimited = errors.New("rate limited")

// ErrUnavailable wraps backend failures. Callers decide whether a failed
// throttle check blocks the request; the engine treats it as allow.
var ErrUnavailable = errors.New("rate limiter unavailable")

// LimitError is the concrete rejection. It matches ErrRateLimited and
// carries the time until the window resets.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Limiter is one fixed-window counter family: Allow charges one unit against
// the key's current window, Reset clears the key's window early.
type Limiter interface {
	Allow(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}
