package lookup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterThresholdAndRetries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(3, 30*time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		b.Failure("ipapi")
	}
	assert.True(t, b.Allow("ipapi"))
	b.Failure("ipapi")
	assert.Equal(t, BreakerOpen, b.State("ipapi"))
	assert.False(t, b.Allow("ipapi"))

	now = now.Add(30 * time.Second)
	assert.True(t, b.Allow("ipapi"), "one trial call after the open period")
	assert.False(t, b.Allow("ipapi"), "no second trial while the first is in flight")

	b.Failure("ipapi")
	assert.Equal(t, BreakerOpen, b.State("ipapi"))

	now = now.Add(30 * time.Second)
	assert.True(t, b.Allow("ipapi"))
	b.Success("ipapi")
	assert.Equal(t, BreakerClosed, b.State("ipapi"))
	assert.True(t, b.Allow("ipapi"))
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	b.Failure("p")
	b.Success("p")
	b.Failure("p")
	assert.Equal(t, BreakerClosed, b.State("p"))
}

func TestBreaker_Defaults(t *testing.T) {
	b := NewBreaker(0, 0)
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 30*time.Second, b.openFor)
	assert.Equal(t, "half_open", BreakerHalfOpen.String())
}

func TestBreaker_AbandonedHalfOpenCallAllowsAnother(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return now }

	b.Failure("ipapi")
	now = now.Add(30 * time.Second)
	assert.True(t, b.Allow("ipapi"))
	assert.Equal(t, BreakerHalfOpen, b.State("ipapi"))

	b.Abandon("ipapi")
	assert.Equal(t, BreakerOpen, b.State("ipapi"))
	assert.True(t, b.Allow("ipapi"), "next call is let through again")
}

func TestBreaker_AbandonLeavesClosedAlone(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	b.Failure("p")
	b.Abandon("p")
	b.Abandon("unknown")
	assert.Equal(t, BreakerClosed, b.State("p"))
	b.Failure("p")
	assert.Equal(t, BreakerOpen, b.State("p"), "abandon does not reset the failure count")
}
