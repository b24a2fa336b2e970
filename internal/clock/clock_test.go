package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock(t *testing.T) {
	instant := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := FixedClock{T: instant}

	assert.Equal(t, instant, c.Now())
	assert.Equal(t, instant.UnixMilli(), c.NowUnixMilli())
}

func TestSystemClockAdvances(t *testing.T) {
	c := SystemClock{}
	before := c.NowUnixMilli()
	after := c.NowUnixMilli()
	assert.LessOrEqual(t, before, after)
}
