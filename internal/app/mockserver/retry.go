package mockserver

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
)

var errNotYet = errors.New("condition not met")

// retryFor polls do until it reports true, duration elapses or ctx is done.
// do receives the time left so that it can block on a notification.
func retryFor(ctx context.Context, do func(time.Duration) bool, delay, duration time.Duration) error {
	start := time.Now()
	return retry.Do(func() error {
		timeLeft := duration - time.Since(start)
		if !do(timeLeft) {
			return errNotYet
		}
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return err != nil && time.Since(start) <= duration
		}),
	)
}
