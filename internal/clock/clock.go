// Package clock lets services take their notion of "now" as a dependency.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// System returns a clock backed by time.Now, in UTC.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns a clock stuck at t.
func Fixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time {
	return f.now
}
