package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"voltdock/shared/clock"
	"voltdock/shared/clock/clockmock"
)

func TestRealClock_Now(t *testing.T) {
	c := clock.New()

	before := time.Now().Add(-time.Second)
	now := c.Now()
	after := time.Now().Add(time.Second)

	assert.True(t, now.After(before))
	assert.True(t, now.Before(after))
}

func TestMockClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c := clockmock.New(start)

	assert.Equal(t, start, c.Now())

	c.Advance(10 * time.Minute)
	assert.Equal(t, start.Add(10*time.Minute), c.Now())

	later := start.Add(2 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}
