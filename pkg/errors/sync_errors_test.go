package errors

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchSetupError_Unwrap(t *testing.T) {
	err := &WatchSetupError{Path: "/tmp/tasks.json", OriginalErr: os.ErrNotExist}

	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "/tmp/tasks.json")
}

func TestIsCircuitOpen(t *testing.T) {
	open := &CircuitOpenError{Name: "taskmaster-sync", RetryAt: time.Now()}

	assert.True(t, IsCircuitOpen(open))
	assert.True(t, IsCircuitOpen(fmt.Errorf("sync failed: %w", open)))
	assert.False(t, IsCircuitOpen(errors.New("unrelated")))
	assert.False(t, IsCircuitOpen(nil))
}

func TestIsSyncHalted(t *testing.T) {
	halted := &SyncHaltedError{ErrorCount: 5, Limit: 5}

	assert.True(t, IsSyncHalted(halted))
	assert.True(t, IsSyncHalted(fmt.Errorf("rejected: %w", halted)))
	assert.False(t, IsSyncHalted(errors.New("unrelated")))
}

func TestFallbackError_Message(t *testing.T) {
	withStderr := &FallbackError{Command: "task-master sync", ExitCode: 2, Stderr: "no project found"}
	assert.Contains(t, withStderr.Error(), "no project found")
	assert.Contains(t, withStderr.Error(), "exit 2")

	base := errors.New("signal: killed")
	withoutStderr := &FallbackError{Command: "task-master sync", ExitCode: -1, OriginalErr: base}
	assert.Contains(t, withoutStderr.Error(), "signal: killed")
	assert.ErrorIs(t, withoutStderr, base)
}
