package sync

import (
	"math/rand"
	"time"
)

// Backoff computes exponential reconnection delays with multiplicative
// jitter. The jitter spreads simultaneous reconnects from many clients so
// they do not hammer the broker in lockstep.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Factor float64
	Jitter float64 // ±ratio, e.g. 0.2 for ±20%

	// rand returns a value in [0,1); overridable for tests.
	rand func() float64
}

// NewBackoff returns a backoff with the given parameters.
func NewBackoff(base, cap time.Duration, factor, jitter float64) *Backoff {
	return &Backoff{Base: base, Cap: cap, Factor: factor, Jitter: jitter, rand: rand.Float64}
}

// Delay returns the delay before reconnection attempt n (1-based). The raw
// exponential value is capped, then jittered, then capped again so the
// result never exceeds Cap.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if d >= float64(b.Cap) {
			d = float64(b.Cap)
			break
		}
	}

	r := b.rand
	if r == nil {
		r = rand.Float64
	}
	// multiplicative jitter in [1-Jitter, 1+Jitter)
	d *= 1 - b.Jitter + 2*b.Jitter*r()

	if d > float64(b.Cap) {
		d = float64(b.Cap)
	}
	return time.Duration(d)
}
