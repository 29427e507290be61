package jobid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsUnique(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, a)
}

func TestHostIDIsStable(t *testing.T) {
	a := HostID("ftp.example.com")
	b := HostID("ftp.example.com")
	assert.Equal(t, a, b)
}

func TestHostIDDiffersByAlias(t *testing.T) {
	assert.NotEqual(t, HostID("host-a"), HostID("host-b"))
}
