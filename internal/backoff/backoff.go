// Package backoff computes retry delays for failed delivery attempts.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

const (
	// BaseDelay is the delay before the first retry.
	BaseDelay = 5 * time.Second
	// MaxDelay caps the delay regardless of attempt count.
	MaxDelay = time.Hour
	// maxJitter bounds the random component added to each delay.
	maxJitter = time.Second
)

// Delay returns how long to wait before retrying after the given attempt.
//
// The delay doubles with every attempt, starting from BaseDelay, and is
// capped at MaxDelay. A uniformly random jitter in [0, 1s) is added so that
// notifications failing at the same moment do not retry in lockstep.
// Negative attempts are treated as zero.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	exp := float64(BaseDelay) * math.Pow(2, float64(attempt))
	if exp >= float64(MaxDelay) {
		return MaxDelay
	}

	d := time.Duration(exp) + time.Duration(rand.Int63n(int64(maxJitter)))
	if d > MaxDelay {
		return MaxDelay
	}

	return d
}
