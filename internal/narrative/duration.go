package narrative

import (
	"strings"
	"time"
)

// DurationPolicy sizes how long a message stays on screen from its word count.
type DurationPolicy struct {
	PerWord time.Duration
	Min     time.Duration
	Max     time.Duration
}

var DefaultDurationPolicy = DurationPolicy{
	PerWord: 500 * time.Millisecond,
	Min:     3 * time.Second,
	Max:     20 * time.Second,
}

// For returns words(text) × PerWord clamped to [Min, Max]. A zero Max means no upper bound.
func (p DurationPolicy) For(text string) time.Duration {
	d := time.Duration(len(strings.Fields(text))) * p.PerWord
	if d < p.Min {
		d = p.Min
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	return d
}
