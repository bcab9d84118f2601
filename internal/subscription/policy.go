package subscription

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const DefaultReconnectDelay = time.Second

// ReconnectPolicy builds the backoff used between connection attempts of one
// handle. A policy returning backoff.Stop ends reconnection.
type ReconnectPolicy func() backoff.BackOff

// ConstantReconnect retries forever with a fixed delay and no jitter.
func ConstantReconnect(d time.Duration) ReconnectPolicy {
	if d <= 0 {
		d = DefaultReconnectDelay
	}
	return func() backoff.BackOff {
		return backoff.NewConstantBackOff(d)
	}
}

// ExponentialReconnect doubles the delay from initial up to max, with 20%
// jitter. It is reset whenever a subscription is established.
func ExponentialReconnect(initial, max time.Duration) ReconnectPolicy {
	if initial <= 0 {
		initial = DefaultReconnectDelay
	}
	if max < initial {
		max = initial
	}
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = max
		b.Multiplier = 2
		b.RandomizationFactor = 0.2
		b.Reset()
		return b
	}
}
