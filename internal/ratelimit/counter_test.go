package ratelimit

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestCounterThrottles(t *testing.T) {
	clk := clock.NewMock()
	c := NewCounter(time.Minute, clk)

	n, ok := c.Inc()
	assert.Equal(t, uint64(1), n)
	assert.True(t, ok)

	_, ok = c.Inc()
	assert.False(t, ok)

	clk.Add(time.Minute)
	n, ok = c.Inc()
	assert.Equal(t, uint64(3), n)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), c.Total())
}

func TestCounterNoInterval(t *testing.T) {
	c := NewCounter(0, nil)
	for i := 0; i < 3; i++ {
		_, ok := c.Inc()
		assert.True(t, ok)
	}

	var nilCounter *Counter
	_, ok := nilCounter.Inc()
	assert.False(t, ok)
}
