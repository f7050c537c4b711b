package worker

import "time"

// NextSleep is the pause before the next probe so that probes start one
// interval apart: interval minus the time the iteration took, in whole
// milliseconds, never negative.
func NextSleep(interval, elapsed time.Duration) time.Duration {
	rem := interval.Milliseconds() - elapsed.Milliseconds()
	if rem <= 0 {
		return 0
	}
	return time.Duration(rem) * time.Millisecond
}

// Clock abstracts time for the probe loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
