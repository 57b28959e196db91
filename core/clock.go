package core

import "time"

// Clock abstracts wall-clock access so TTL arithmetic can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
