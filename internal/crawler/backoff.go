package crawler

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// IdleBackoff paces a worker that found the frontier momentarily empty while
// other workers still hold in-flight URLs. Delays grow exponentially with
// jitter and never exceed maxDelay. Not safe for concurrent use; each worker
// owns one.
type IdleBackoff struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	attempt   int
}

// NewIdleBackoff builds a backoff, substituting defaults for zero values.
func NewIdleBackoff(base, maxDelay time.Duration) *IdleBackoff {
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	if maxDelay < base {
		maxDelay = 20 * base
	}
	return &IdleBackoff{
		baseDelay: base,
		maxDelay:  maxDelay,
	}
}

// Next returns the wait before the next frontier poll.
func (b *IdleBackoff) Next() time.Duration {
	delay := float64(b.baseDelay) * math.Pow(2, float64(b.attempt))
	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	} else {
		b.attempt++
	}
	jitter := randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

// Reset is called after a successful pop.
func (b *IdleBackoff) Reset() {
	b.attempt = 0
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
