package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyCommandShutdownAlwaysRequestsShutdown(t *testing.T) {
	for _, state := range []RunState{StateStartup, StateNone, StateAll, StateAMGOnly, StateFDOnly} {
		next, shutdown := applyCommand(state, CmdShutdown)
		assert.True(t, shutdown)
		assert.Equal(t, state, next)
	}
}

func TestApplyCommandStartAMGFromFDOnlyYieldsAll(t *testing.T) {
	next, shutdown := applyCommand(StateFDOnly, CmdStartAMG)
	assert.False(t, shutdown)
	assert.Equal(t, StateAll, next)
}

func TestApplyCommandStartFDFromAMGOnlyYieldsAll(t *testing.T) {
	next, _ := applyCommand(StateAMGOnly, CmdStartFD)
	assert.Equal(t, StateAll, next)
}

func TestApplyCommandStopAMGFromAllYieldsFDOnly(t *testing.T) {
	next, _ := applyCommand(StateAll, CmdStopAMG)
	assert.Equal(t, StateFDOnly, next)
}

func TestApplyCommandStopFDFromAllYieldsAMGOnly(t *testing.T) {
	next, _ := applyCommand(StateAll, CmdStopFD)
	assert.Equal(t, StateAMGOnly, next)
}

func TestApplyCommandStopYieldsNone(t *testing.T) {
	next, shutdown := applyCommand(StateAll, CmdStop)
	assert.False(t, shutdown)
	assert.Equal(t, StateNone, next)
}

func TestCommandStringsAreRecognisable(t *testing.T) {
	assert.Equal(t, "SHUTDOWN", CmdShutdown.String())
	assert.Equal(t, "IS_ALIVE", CmdIsAlive.String())
	assert.Equal(t, "UNKNOWN", Command(99).String())
}
