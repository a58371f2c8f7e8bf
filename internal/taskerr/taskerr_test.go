package taskerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/uniframe-io/uniframe-backend/internal/taskerr"
)

func TestIsKind(t *testing.T) {
	err := taskerr.New(taskerr.KindTaskNotFound, "task %d does not exist", 7)

	assert.True(t, taskerr.IsKind(err, taskerr.KindTaskNotFound))
	assert.False(t, taskerr.IsKind(err, taskerr.KindWorkerStart))
	assert.False(t, taskerr.IsKind(nil, taskerr.KindTaskNotFound))
	assert.Equal(t, "TASK_NOT_FOUND: task 7 does not exist", err.Error())
}

func TestIsKindThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := taskerr.Wrap(taskerr.KindWorkerNotAvailable, cause, "worker for task %d unreachable", 7)

	// another layer of wrapping must not hide the kind or the cause
	outer := fmt.Errorf("start task: %w", err)
	assert.True(t, taskerr.IsKind(outer, taskerr.KindWorkerNotAvailable))
	assert.ErrorIs(t, outer, cause)
}
