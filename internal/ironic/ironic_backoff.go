package ironic

import "time"

const (
	defaultLookupInterval    = time.Second
	defaultLookupMaxInterval = 30 * time.Second
)

// backoff produces exponentially growing waits with decorrelated jitter:
// each wait is drawn from [base, 3*previous] and capped at max.
type backoff struct {
	base time.Duration
	max  time.Duration
	prev time.Duration
	rand func() float64
}

func newBackoff(base, maxInterval time.Duration, rand func() float64) *backoff {
	if base <= 0 {
		base = defaultLookupInterval
	}
	if maxInterval <= 0 {
		maxInterval = defaultLookupMaxInterval
	}
	if base > maxInterval {
		base = maxInterval
	}
	return &backoff{base: base, max: maxInterval, rand: rand}
}

func (b *backoff) Next() time.Duration {
	prev := b.prev
	if prev < b.base {
		prev = b.base
	}
	upper := 3 * prev
	d := b.base + time.Duration(b.rand()*float64(upper-b.base))
	if d > b.max {
		d = b.max
	}
	b.prev = d
	return d
}
