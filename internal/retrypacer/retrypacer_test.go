package retrypacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesDefaults(t *testing.T) {
	p := New()
	assert.Equal(t, 10*time.Millisecond, p.minSleep)
	assert.Equal(t, 2*time.Second, p.maxSleep)
	assert.Equal(t, p.minSleep, p.state.SleepTime)
	assert.Equal(t, 3, p.MaxRetries())
}

func TestNewHonoursOptions(t *testing.T) {
	p := New(MinSleep(time.Microsecond), MaxSleep(time.Millisecond), MaxRetriesOption(5))
	assert.Equal(t, time.Microsecond, p.minSleep)
	assert.Equal(t, time.Millisecond, p.maxSleep)
	assert.Equal(t, 5, p.MaxRetries())
}

func TestDecayReducesTowardFloor(t *testing.T) {
	c := decay(8*time.Millisecond, time.Millisecond, 1)
	assert.Equal(t, 4*time.Millisecond, c)
}

func TestAttackIncreasesTowardCeiling(t *testing.T) {
	c := attack(time.Millisecond, time.Second, 1)
	assert.Equal(t, 2*time.Millisecond, c)
}

func TestFailReportsExhaustionAtMaxRetries(t *testing.T) {
	p := New(MaxRetriesOption(2))
	assert.False(t, p.Fail())
	assert.True(t, p.Fail())
}

func TestSuccessResetsConsecutiveRetries(t *testing.T) {
	p := New(MaxRetriesOption(5))
	p.Fail()
	p.Fail()
	assert.Equal(t, 2, p.CurrentState().ConsecutiveRetries)
	p.Success()
	assert.Equal(t, 0, p.CurrentState().ConsecutiveRetries)
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	p := New(MinSleep(time.Hour), MaxSleep(time.Hour))
	require.NoError(t, p.Wait(context.Background())) // the first call spends the initial token
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := p.Wait(ctx)
	require.Error(t, err)
}
