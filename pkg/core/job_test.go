package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusInFlight.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestUnknownKindError_Message(t *testing.T) {
	err := &UnknownKindError{Kind: "bot.vote"}
	assert.Equal(t, `unknown kind "bot.vote"`, err.Error())
}

func TestUnknownKindError_As(t *testing.T) {
	var wrapped error = &UnknownKindError{Kind: "x"}

	var uke *UnknownKindError
	assert.True(t, errors.As(wrapped, &uke))
	assert.Equal(t, "x", uke.Kind)
}

func TestMaxAttemptsError_Message(t *testing.T) {
	err := &MaxAttemptsError{Attempts: 4, Max: 3}
	assert.Equal(t, "max attempts exceeded (4 of 3)", err.Error())
}

func TestJob_ZeroValueIsNotClaimed(t *testing.T) {
	j := Job{ID: "a", Kind: "bot.move", CreatedAt: time.Now()}
	assert.Nil(t, j.ClaimedAt)
	assert.Nil(t, j.CompletedAt)
	assert.Zero(t, j.Attempts)
}
