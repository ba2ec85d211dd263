package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/spin-wheel/pkg/db"
)

const maxBackoff = time.Second

// runWithRetry runs fn in a store transaction, retrying on db.ErrConflict with
// exponential backoff and jitter. Exhausting the retries yields ErrStorageFailure.
func (e *Engine) runWithRetry(ctx context.Context, op string, mode db.TxMode, fn func(ctx context.Context, tx db.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := e.store.RunInTx(ctx, mode, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrConflict) {
			return err
		}

		if attempt >= max(e.cfg.MaxRetries, 0) {
			return fmt.Errorf("%w: %s gave up after %d attempts: %w", ErrStorageFailure, op, attempt+1, err)
		}

		e.metrics.ObserveRetry(op)
		wait := backoff(e.cfg.RetryBackoff, attempt)
		e.logger.Debug("Transaction conflict, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff doubles base for every previous attempt, caps at maxBackoff and adds up to 50% jitter
func backoff(base time.Duration, attempt int) time.Duration {
	wait := base
	for i := 0; i < attempt && wait < maxBackoff; i++ {
		wait *= 2
	}
	if wait > maxBackoff {
		wait = maxBackoff
	}
	if wait <= 0 {
		return 0
	}
	return wait + rand.N(wait/2+1)
}
