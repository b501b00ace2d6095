package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunningAverageFirstAdd(t *testing.T) {
	for _, n := range []int{1, 2, 5, 17} {
		a := NewRunningAverage(n)
		assert.False(t, a.Initialized())
		a.Add(-1234)
		assert.True(t, a.Initialized())
		assert.Equal(t, int64(-1234), a.Average(), "window %d", n)
	}
}

func TestRunningAverageWindow(t *testing.T) {
	a := NewRunningAverage(5)
	a.Add(1000)
	a.Add(2000)
	assert.Equal(t, int64(1200), a.Average())

	for i := 0; i < 5; i++ {
		a.Add(500)
	}
	assert.Equal(t, int64(500), a.Average())

	a.Add(-1000)
	assert.Equal(t, int64(200), a.Average())
}

func TestRunningAverageTruncates(t *testing.T) {
	a := NewRunningAverage(3)
	a.Add(0)
	a.Add(1)
	a.Add(1)
	assert.Equal(t, int64(0), a.Average())

	b := NewRunningAverage(3)
	b.Add(0)
	b.Add(-1)
	b.Add(-1)
	assert.Equal(t, int64(0), b.Average())
}

func TestRunningAverageDeinit(t *testing.T) {
	fresh := NewRunningAverage(5)
	fresh.Add(700)

	a := NewRunningAverage(5)
	a.Add(100)
	a.Add(200)
	a.Add(300)
	a.Deinit()
	assert.False(t, a.Initialized())
	// Values are kept until the next add
	assert.Equal(t, int64(160), a.Average())

	a.Add(700)
	assert.Equal(t, fresh.Average(), a.Average())
	assert.Equal(t, int64(700), a.Average())
}

func TestRunningAverageZeroWindow(t *testing.T) {
	a := NewRunningAverage(0)
	a.Add(42)
	a.Add(43)
	assert.Equal(t, int64(43), a.Average())
}
