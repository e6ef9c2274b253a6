package pipeline

import (
	"errors"
	"fmt"
)

// FailureKind classifies the three failure shapes every stage can produce.
type FailureKind string

const (
	// FailureToolMissing: the required external tool is not installed.
	FailureToolMissing FailureKind = "tool-missing"
	// FailureToolInvocation: the tool ran and exited non-zero.
	FailureToolInvocation FailureKind = "tool-invocation-failed"
	// FailureOutputMissing: the tool exited zero but the expected artifact
	// is absent. Treated as a bug in the invocation arguments, never
	// silently ignored.
	FailureOutputMissing FailureKind = "output-missing"
)

// StageError is the failure report of a single pipeline stage. Nothing is
// retried; the orchestrator halts on the first StageError and preserves
// partial on-disk state for inspection.
type StageError struct {
	Stage      string
	Kind       FailureKind
	Tool       string
	Diagnostic string // captured from the tool's own output
	Hint       string // remediation instructions, set for missing tools
	Err        error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s stage: %s", e.Stage, e.Kind)
	if e.Tool != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Tool)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ExitError relays an explicit process exit code through the command
// layer. It carries no failure shape of its own: the code belongs to the
// application that produced it, typically the containerized app whose exit
// code the CLI must reproduce.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exited with code %d", e.Code)
}

// ExitCode maps an error onto the CLI exit code contract: 0 success,
// 1 tool missing, 2 tool invocation failed, 3 output missing. An ExitError
// is relayed verbatim; failures outside the taxonomy exit 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Kind {
		case FailureToolMissing:
			return 1
		case FailureToolInvocation:
			return 2
		case FailureOutputMissing:
			return 3
		}
	}
	return 1
}
