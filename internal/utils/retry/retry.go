package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation: how many attempts, which errors are
// worth retrying, and how long to wait between them.
type Policy struct {
	MaxAttempts int
	Backoff     backoff.BackOff
	Retryable   func(error) bool
}

// Linear waits Step on the first retry, 2*Step on the second, and so on.
// It implements backoff.BackOff.
type Linear struct {
	Step time.Duration
	n    int
}

func (l *Linear) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.Step
}

func (l *Linear) Reset() {
	l.n = 0
}

// Do runs op up to p.MaxAttempts times, sleeping per p.Backoff before each
// retry. A nil Retryable retries every error; a Retryable returning false
// stops immediately with that error. Context cancellation aborts the wait.
func Do(ctx context.Context, p Policy, op func() error) error {
	bo := p.Backoff
	if bo == nil {
		bo = &backoff.ZeroBackOff{}
	}
	bo.Reset()

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		if err = op(); err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
	}
	return err
}
