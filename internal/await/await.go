// Package await provides polling waits against a live page.
//
// Every wait is bounded by a timeout. A predicate that keeps failing with an
// error listed in Poller.Ignore is treated as "not yet" rather than fatal.
package await

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrTimeout is matched by every TimeoutError.
var ErrTimeout = errors.New("wait timed out")

// TimeoutError reports a wait that did not succeed in time.
type TimeoutError struct {
	Message string
	Timeout time.Duration
	// Last is the most recent ignored predicate error, if any.
	Last error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s: timed out after %s: %v", e.Message, e.Timeout, e.Last)
	}
	return fmt.Sprintf("%s: timed out after %s", e.Message, e.Timeout)
}

// Is reports ErrTimeout and context.DeadlineExceeded as matches.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == context.DeadlineExceeded
}

// Unwrap exposes the last ignored predicate error.
func (e *TimeoutError) Unwrap() error {
	return e.Last
}

// Condition reports whether the awaited state has been reached.
type Condition func(ctx context.Context) (bool, error)

// Poller runs conditions until they hold or Timeout elapses.
type Poller struct {
	Timeout  time.Duration
	Interval time.Duration
	Logger   *zap.Logger
	Ignore   []error
}

const (
	defaultTimeout  = 15 * time.Second
	defaultInterval = 250 * time.Millisecond
)

// WithTimeout returns a copy of p using timeout d.
func (p Poller) WithTimeout(d time.Duration) Poller {
	p.Timeout = d
	return p
}

// Until blocks until cond returns true, a non-ignored error, or the timeout elapses.
func (p Poller) Until(ctx context.Context, cond Condition, msg string) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, bool, error) {
		ok, err := cond(ctx)
		return struct{}{}, ok, err
	}, msg)
	return err
}

// Value polls fn until it reports ok and returns the produced value.
func Value[T any](
	ctx context.Context,
	p Poller,
	fn func(ctx context.Context) (T, bool, error),
	msg string,
) (T, error) {
	var zero T
	timeout := p.timeout()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()

	var last error
	for {
		v, ok, err := fn(waitCtx)
		switch {
		case err == nil && ok:
			return v, nil
		case err != nil && p.ignored(err):
			last = err
		case err != nil && waitCtx.Err() == nil:
			return zero, err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return zero, fmt.Errorf("%s: %w", msg, ctx.Err())
			}
			p.logger().Warn("wait timed out",
				zap.String("condition", msg),
				zap.Duration("timeout", timeout),
				zap.NamedError("last_error", last),
			)
			return zero, &TimeoutError{Message: msg, Timeout: timeout, Last: last}
		case <-ticker.C:
		}
	}
}

// ReadyStater reports document.readyState.
type ReadyStater interface {
	ReadyState(ctx context.Context) (string, error)
}

// PageReady blocks until the document reports readyState "complete".
func PageReady(ctx context.Context, p Poller, page ReadyStater) error {
	return p.Until(ctx, func(ctx context.Context) (bool, error) {
		state, err := page.ReadyState(ctx)
		if err != nil {
			return false, err
		}
		return state == "complete", nil
	}, "document ready state complete")
}

func (p Poller) ignored(err error) bool {
	for _, target := range p.Ignore {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (p Poller) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return defaultTimeout
}

func (p Poller) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return defaultInterval
}

func (p Poller) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}
