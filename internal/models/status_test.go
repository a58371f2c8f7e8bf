package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uniframe-io/uniframe-backend/internal/models"
)

func TestTaskStatusCanTransition(t *testing.T) {
	tests := []struct {
		from    models.TaskStatus
		to      models.TaskStatus
		allowed bool
	}{
		{models.StatusInit, models.StatusPreparing, true},
		{models.StatusInit, models.StatusLaunching, false},
		{models.StatusPreparing, models.StatusLaunching, true},
		// a failed launch rolls back for retry
		{models.StatusPreparing, models.StatusInit, true},
		{models.StatusLaunching, models.StatusReady, true},
		{models.StatusLaunching, models.StatusComplete, true},
		{models.StatusLaunching, models.StatusFailed, true},
		{models.StatusReady, models.StatusStopped, true},
		{models.StatusReady, models.StatusInit, false},
		{models.StatusTerminating, models.StatusComplete, true},
		{models.StatusTerminating, models.StatusOOMKilled, true},
		// finished tasks can be re-run
		{models.StatusComplete, models.StatusPreparing, true},
		{models.StatusFailed, models.StatusPreparing, true},
		{models.StatusComplete, models.StatusLaunching, false},
		// no-op transitions are always fine
		{models.StatusComplete, models.StatusComplete, true},
		{models.StatusInit, models.StatusInit, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTaskStatusIsTerminal(t *testing.T) {
	terminal := []models.TaskStatus{
		models.StatusComplete, models.StatusStopped, models.StatusTerminated,
		models.StatusFailed, models.StatusOOMKilled,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}

	running := []models.TaskStatus{
		models.StatusInit, models.StatusPreparing, models.StatusLaunching,
		models.StatusReady, models.StatusTerminating,
	}
	for _, s := range running {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestRunStatusIsTerminal(t *testing.T) {
	assert.False(t, models.RunStatusRunning.IsTerminal())
	assert.True(t, models.RunStatusCompleted.IsTerminal())
	assert.True(t, models.RunStatusOOMKilled.IsTerminal())
	assert.True(t, models.RunStatusDeleted.IsTerminal())
}
