package bqcatalog

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"

	"bq-viewsync/internal/domain"
)

// do runs fn under the per-operation timeout, retrying transient failures.
// Errors come back classified: *domain.NotFoundError for 404s,
// *domain.ConflictError for 409s, and *domain.RemoteIOError for everything
// else.
func (c *Client) do(ctx context.Context, op string, write bool, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(c.opts.RetryBaseDelay)
	backoff = retry.WithCappedDuration(10*time.Second, backoff)
	backoff = retry.WithMaxRetries(c.opts.MaxRetries, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if write && c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return domain.ErrRemoteIO(op, false, err)
			}
		}

		opCtx, cancel := context.WithTimeout(ctx, c.opts.OpTimeout)
		defer cancel()

		err := classify(ctx, op, fn(opCtx))
		if err == nil {
			return nil
		}
		if domain.IsTransient(err) {
			c.logger.Warn("transient catalog error", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

// create is do for calls that create a resource. A create whose earlier
// attempt timed out or failed transiently may have been committed anyway, so
// a conflict on a later attempt counts as success.
func (c *Client) create(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	err := c.do(ctx, op, true, func(ctx context.Context) error {
		attempts++
		return fn(ctx)
	})
	if attempts > 1 && domain.IsConflict(err) {
		c.logger.Info("create applied by an earlier attempt", "op", op, "attempts", attempts)
		return nil
	}
	return err
}

// classify maps a BigQuery client error onto the domain error types. parent
// is the caller's context: a deadline on the per-operation context while
// parent is still live is a retryable timeout, while cancellation of parent
// is not.
func classify(parent context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsNotFound(err) || domain.IsConflict(err) {
		return err
	}
	var rio *domain.RemoteIOError
	if errors.As(err, &rio) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return domain.ErrRemoteIO(op, true, err)
	}
	if errors.Is(err, context.Canceled) || parent.Err() != nil {
		return domain.ErrRemoteIO(op, false, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound:
			return domain.ErrNotFound("%s: %s", op, gerr.Message)
		case gerr.Code == http.StatusConflict:
			return domain.ErrConflict("%s: %s", op, gerr.Message)
		case isTransientStatus(gerr.Code):
			return domain.ErrRemoteIO(op, true, err)
		}
	}
	return domain.ErrRemoteIO(op, false, err)
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
