package txstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RunOptions bounds the retries of Store.Run.
type RunOptions struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRunOptions() RunOptions {
	return RunOptions{
		MaxRetries:      5,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
	}
}

func (o RunOptions) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if o.InitialInterval > 0 {
		eb.InitialInterval = o.InitialInterval
	}
	if o.MaxInterval > 0 {
		eb.MaxInterval = o.MaxInterval
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, o.MaxRetries), ctx)
}

// Run executes fn in a fresh transaction and commits it. A commit that fails
// with a retryable error (a conflict or a duplicate key) is retried in a new
// transaction, with exponential backoff, up to MaxRetries times. An error
// returned by fn rolls the transaction back and is returned as is.
func (s *Store) Run(ctx context.Context, fn func(tx *Tx) error, options RunOptions) (err error) {
	attempt := 0
	operation := func() error {
		attempt++
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		tx := s.Begin()
		if fnErr := fn(tx); fnErr != nil {
			_ = tx.Rollback()
			return backoff.Permanent(fnErr)
		}
		commitErr := tx.Commit(ctx)
		if commitErr != nil && !IsRetryable(commitErr) {
			return backoff.Permanent(commitErr)
		}
		return commitErr
	}
	notify := func(retryErr error, wait time.Duration) {
		s.logger.Debug().Err(retryErr).Int("attempt", attempt).Dur("wait", wait).Msg("retrying transaction")
	}
	err = backoff.RetryNotify(operation, options.backOff(ctx), notify)
	if err != nil && IsRetryable(err) {
		err = fmt.Errorf("txstore run failed after %d attempts, %w", attempt, err)
	}
	return
}
