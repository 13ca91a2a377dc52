// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/cardinalhq/arret/internal/errkind"
	"github.com/cardinalhq/arret/internal/logctx"
)

// Policy bounds how an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero means the operation runs exactly once.
	MaxRetries int `mapstructure:"max_retries"`
	// Initial is the first two terms of the fibonacci wait sequence.
	Initial time.Duration `mapstructure:"initial"`
	// MaxWait caps a single wait.
	MaxWait time.Duration `mapstructure:"max_wait"`
	// MaxElapsed caps the total time spent retrying (0 = unlimited).
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

// DefaultPolicy waits 1s, 2s, 3s, 5s between four retries.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 4,
		Initial:    time.Second,
		MaxWait:    time.Minute,
	}
}

// Do runs op until it succeeds, returns a non-transient error, or the
// policy is exhausted. Only errors classified as transient by errkind are
// retried; the last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, what string, op func(context.Context) (T, error)) (T, error) {
	ll := logctx.FromContext(ctx)

	wrapped := func() (T, error) {
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if !errkind.IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(NewFibonacci(p.Initial, p.MaxWait)),
		backoff.WithMaxTries(uint(max(p.MaxRetries, 0) + 1)),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
		backoff.WithNotify(func(err error, wait time.Duration) {
			ll.Warn("Retrying after transient error",
				slog.String("operation", what),
				slog.Duration("wait", wait),
				slog.Any("error", err))
		}),
	}

	return backoff.Retry(ctx, wrapped, opts...)
}

// Run is Do for operations with no result.
func Run(ctx context.Context, p Policy, what string, op func(context.Context) error) error {
	_, err := Do(ctx, p, what, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
