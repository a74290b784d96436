package trader

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 500 * time.Millisecond}
}

// retry runs op until it reports success, the attempts are used up or ctx is done.
func retry(ctx context.Context, policy RetryPolicy, logger *logrus.Logger, name string, op func() bool) bool {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 1; i <= attempts; i++ {
		if op() {
			return true
		}
		if i == attempts {
			break
		}

		logger.WithFields(logrus.Fields{
			"operation": name,
			"attempt":   i,
		}).Warn("Operation failed, retrying")

		timer := time.NewTimer(policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}

	return false
}
