package reconcile

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy computes retry delays: exponential growth from Base, capped at
// Cap, with proportional jitter so synchronized failures spread out.
type Policy struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter float64
}

// DefaultPolicy matches the config defaults.
var DefaultPolicy = Policy{Base: 2 * time.Second, Cap: 5 * time.Minute, Jitter: 0.2}

// Delay returns the wait before the given attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Base
	bo.RandomizationFactor = p.Jitter
	bo.Multiplier = 2
	bo.MaxInterval = p.Cap
	bo.MaxElapsedTime = 0
	bo.Reset()

	d := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = bo.NextBackOff()
	}
	if d > p.Cap {
		d = p.Cap
	}
	return d
}
