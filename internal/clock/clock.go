package clock

import "time"

// Clock abstracts wall time so rollup windows and presets are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a Clock reading UTC wall time.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
