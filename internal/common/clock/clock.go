package clock

import "time"

//go:generate mockgen -package=mocks -destination=mocks/mock_clock.go quip-clash/internal/common/clock Clock
type Clock interface {
	Now() time.Time
}

// DefaultClock reads the system clock in UTC.
type DefaultClock struct{}

func (c *DefaultClock) Now() time.Time {
	return time.Now().UTC()
}
