package supervisor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/afdist/afd/internal/afderr"
)

func TestClassifyNilIsOrdinary(t *testing.T) {
	assert.Equal(t, exitOrdinary, classify(nil))
}

func TestClassifyRestartRequested(t *testing.T) {
	assert.Equal(t, exitRestartRequested, classify(ErrRestartRequested))
	wrapped := errors.Join(errors.New("context"), ErrRestartRequested)
	assert.Equal(t, exitRestartRequested, classify(wrapped))
}

func TestClassifySharedMemoryGone(t *testing.T) {
	err := afderr.New(afderr.SharedMemoryStale, "FSA", errors.New("stale mapping"))
	assert.Equal(t, exitSharedMemoryGone, classify(err))
}

func TestClassifyOtherErrorsAreDied(t *testing.T) {
	assert.Equal(t, exitDied, classify(errors.New("boom")))
	assert.Equal(t, exitDied, classify(afderr.New(afderr.Filesystem, "x", errors.New("disk full"))))
}
