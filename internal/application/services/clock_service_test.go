package services_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luknerlumina/patientflow/internal/application/services"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

func newWallClock(start time.Time) (*services.ClockService, *testClock) {
	wall := newTestClock(start)
	c := services.NewClockService(time.UTC,
		services.WithWallClock(wall.GetCurrentTime),
		services.WithClockLogger(zerolog.Nop()),
	)
	return c, wall
}

func TestClockService_AdvanceIsNoopInRealTime(t *testing.T) {
	c, _ := newWallClock(at(9, 0))

	before := c.GetCurrentTime()
	got := c.Advance(30 * time.Minute)

	assert.Equal(t, before, got)
	assert.Equal(t, before, c.GetCurrentTime())
	assert.False(t, c.IsSimulated())
}

func TestClockService_ToggleWithoutJumpThenAdvance(t *testing.T) {
	c, wall := newWallClock(at(9, 0))

	shown := c.GetCurrentTime()
	// wall time keeps moving between the last read and the toggle
	wall.Add(3 * time.Second)

	mode := c.ToggleSimulation()
	require.True(t, mode.Simulated)
	assert.Equal(t, shown, mode.CurrentInstant)
	assert.Equal(t, shown, c.GetCurrentTime())

	got := c.Advance(10 * time.Minute)
	assert.Equal(t, shown.Add(10*time.Minute), got)
	assert.Equal(t, shown.Add(10*time.Minute), c.GetCurrentTime())

	// simulated time does not follow the wall
	wall.Add(time.Hour)
	assert.Equal(t, shown.Add(10*time.Minute), c.GetCurrentTime())
}

func TestClockService_ToggleBackToRealTime(t *testing.T) {
	c, wall := newWallClock(at(9, 0))
	c.ToggleSimulation()
	c.Advance(2 * time.Hour)
	wall.Set(at(9, 5))

	mode := c.ToggleSimulation()
	assert.False(t, mode.Simulated)
	assert.Equal(t, at(9, 5), c.GetCurrentTime())
}

func TestClockService_AdvanceIgnoresNegativeDelta(t *testing.T) {
	c, _ := newWallClock(at(9, 0))
	c.ToggleSimulation()
	c.Advance(time.Hour)

	got := c.Advance(-2 * time.Hour)
	assert.Equal(t, at(10, 0), got)
	assert.Equal(t, at(10, 0), c.GetCurrentTime())
}

func TestClockService_SetTime(t *testing.T) {
	c, _ := newWallClock(at(9, 0))

	err := c.SetTime(at(14, 0))
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	c.ToggleSimulation()
	require.NoError(t, c.SetTime(at(14, 0)))
	assert.Equal(t, at(14, 0), c.GetCurrentTime())

	assert.True(t, apperrors.IsValidation(c.SetTime(time.Time{})))
}

func TestClockService_FormatTime(t *testing.T) {
	c, _ := newWallClock(at(9, 0))
	assert.Equal(t, "9:05 AM", c.FormatTime(at(9, 5)))
	assert.Equal(t, "2:30 PM", c.FormatTime(at(14, 30)))
}

func TestClockService_SubscribersSeeEveryChange(t *testing.T) {
	c, _ := newWallClock(at(9, 0))

	var seen []time.Time
	unsubscribe := c.Subscribe(func(t time.Time) { seen = append(seen, t) })

	c.ToggleSimulation()
	c.Advance(5 * time.Minute)
	require.NoError(t, c.SetTime(at(11, 0)))

	unsubscribe()
	c.Advance(time.Minute)

	assert.Equal(t, []time.Time{at(9, 0), at(9, 5), at(11, 0)}, seen)
}

func TestClockService_RunTicksInRealTime(t *testing.T) {
	c, _ := newWallClock(at(9, 0))

	var ticks atomic.Int32
	c.Subscribe(func(time.Time) { ticks.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
