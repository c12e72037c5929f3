package engine

import (
	"math/rand"
	"time"
)

// RetryPolicy bounds how many times a failed batch is reissued and how long
// the engine pauses between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetry is used when a job does not configure its own policy.
var DefaultRetry = RetryPolicy{MaxAttempts: 3, Backoff: 5 * time.Second}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultRetry.MaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultRetry.Backoff
	}
	return p
}

// wait sleeps the inter-attempt backoff: the configured base plus up to the
// same amount again of jitter.
func (p RetryPolicy) wait() {
	jitter := time.Duration(rand.Int63n(int64(p.Backoff)))
	time.Sleep(p.Backoff + jitter)
}
