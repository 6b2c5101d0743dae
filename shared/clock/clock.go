package clock

import (
	"time"

	"voltdock/shared/timezone"
)

// Clock is the time source for every "now"-based guard in the reservation
// core. Production code uses New; tests inject clockmock.Clock so that hold
// expiry and cancellation deadlines can be simulated deterministically.
type Clock interface {
	Now() time.Time
}

type clockImpl struct{}

func New() Clock {
	return &clockImpl{}
}

// Now returns the current time in the application timezone.
func (c *clockImpl) Now() time.Time {
	return timezone.Now()
}
