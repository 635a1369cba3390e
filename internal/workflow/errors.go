package workflow

import "fmt"

// Code classifies engine errors so callers can branch on the failure
// class instead of matching message strings.
type Code string

const (
	CodeGraphNotFound Code = "graph_not_found"
	CodeInvalidGraph  Code = "invalid_graph"
	CodeCycleDetected Code = "cycle_detected"
	CodeParamBinding  Code = "param_binding"
	CodeTaskExecution Code = "task_execution"
	CodeBlocked       Code = "blocked"
	CodeCancelled     Code = "cancelled"
	CodeNotFound      Code = "instance_not_found"
	CodeNotTerminal   Code = "instance_not_terminal"
)

// Error is the engine's error type. TaskID is set for task-local
// failures and empty for graph or instance level ones.
type Error struct {
	Code    Code
	TaskID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("%s: task %q: %s", e.Code, e.TaskID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err is a workflow *Error carrying the given code.
func IsCode(err error, code Code) bool {
	we, ok := err.(*Error)
	return ok && we.Code == code
}
