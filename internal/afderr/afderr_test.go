package afderr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewNilPassthrough(t *testing.T) {
	assert.Nil(t, New(Filesystem, "somefile", nil))
}

func TestKindOfRecoversClassification(t *testing.T) {
	err := New(TransientNetwork, "host1", errors.New("connection reset"))
	assert.Equal(t, TransientNetwork, KindOf(err))
	assert.True(t, Retryable(err))
}

func TestKindOfDefaultsToProgrammer(t *testing.T) {
	assert.Equal(t, Programmer, KindOf(errors.New("plain error")))
}

func TestErrorMessageIncludesSubject(t *testing.T) {
	err := Newf(Configuration, "dir1", "unknown rename rule %q", "foo")
	assert.Contains(t, err.Error(), "dir1")
	assert.Contains(t, err.Error(), "unknown rename rule")
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := New(Filesystem, "a.txt", inner)
	assert.True(t, errors.Is(err, inner))
}

func TestWrappedErrorChain(t *testing.T) {
	inner := fmt.Errorf("stat failed: %w", errors.New("enoent"))
	err := New(Filesystem, "a.txt", inner)
	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, Filesystem, e.Kind)
}
