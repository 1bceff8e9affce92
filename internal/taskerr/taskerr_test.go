package taskerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatal(t *testing.T) {
	err := NewFatal("credentials blocked", errors.New("403"))
	assert.True(t, IsFatal(err))
	assert.False(t, IsNonFatal(err))
	assert.ErrorIs(t, err, Fatal)
}

func TestIsNonFatal(t *testing.T) {
	err := NewNonFatal("not found upstream", errors.New("404"))
	assert.True(t, IsNonFatal(err))
	assert.False(t, IsFatal(err))
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(NewValidation("bad batch size"))
	assert.True(t, ok)
	assert.Equal(t, KindValidation, kind)

	_, ok = KindOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewFatal("wrapping", cause)
	assert.ErrorIs(t, err, cause)
}

func TestErrorStrings(t *testing.T) {
	assert.Contains(t, NewNotFound("task 5").Error(), "not_found")
	assert.Contains(t, NewIllegalState("already running").Error(), "illegal_state")
}
