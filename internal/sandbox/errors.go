package sandbox

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when an execution unit outlives its wall-clock
// bound. The unit is force-killed and reaped before this is returned; a
// timeout is never a leak.
var ErrTimeout = errors.New("sandbox: execution timed out")

// ErrImageNotFound is returned by runtime label lookups for unbuilt images.
var ErrImageNotFound = errors.New("sandbox: image not found")

// ExecutionFailedError reports a non-zero exit from a sandboxed unit,
// carrying a bounded tail of its stderr.
type ExecutionFailedError struct {
	ExitCode   int64
	StderrTail string
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("sandbox: execution failed with exit code %d: %s", e.ExitCode, e.StderrTail)
}

// InvalidOutputError reports that a unit exited cleanly but produced output
// that is not valid JSON.
type InvalidOutputError struct {
	Detail string
}

func (e *InvalidOutputError) Error() string {
	return fmt.Sprintf("sandbox: invalid tool output: %s", e.Detail)
}
