package shared

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryReserve is left before a context deadline for the last request itself.
const retryReserve = time.Second

// RetryPolicy doubles the delay from base for at most attempts tries in total.
// If ctx has a deadline the policy stops as soon as the next sleep plus
// retryReserve would run past it, so the caller sees the last provider error
// instead of a cancelled context.
func RetryPolicy(ctx context.Context, base time.Duration, attempts int) backoff.BackOff {
	return retryPolicy(ctx, base, attempts, time.Now)
}

func retryPolicy(ctx context.Context, base time.Duration, attempts int, now func() time.Time) backoff.BackOff {
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = base << uint(attempts)
	b.MaxElapsedTime = 0

	var p backoff.BackOff = backoff.WithMaxRetries(b, uint64(attempts-1))
	if dl, ok := ctx.Deadline(); ok {
		p = &untilDeadline{BackOff: p, deadline: dl.Add(-retryReserve), now: now}
	}
	return backoff.WithContext(p, ctx)
}

type untilDeadline struct {
	backoff.BackOff
	deadline time.Time
	now      func() time.Time
}

func (u *untilDeadline) NextBackOff() time.Duration {
	next := u.BackOff.NextBackOff()
	if next == backoff.Stop || u.now().Add(next).After(u.deadline) {
		return backoff.Stop
	}
	return next
}
