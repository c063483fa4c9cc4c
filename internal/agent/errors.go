// File: internal/agent/errors.go
package agent

// ErrorCode is a string type used for structured error reporting from action
// execution. Using a custom type ensures only predefined constants can be
// used where an ErrorCode is expected.
type ErrorCode string

const (
	// -- General execution errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownFunction   ErrorCode = "UNKNOWN_FUNCTION"

	// -- Control resolution errors --
	// ErrCodeControlNotFound indicates the model chose a label that is not in
	// the current annotation dictionary. This is an execution error, never a
	// crash: the step is recorded and the loop continues.
	ErrCodeControlNotFound ErrorCode = "CONTROL_NOT_FOUND"
	// ErrCodeControlNotInteractable indicates the label resolved to a
	// vision-only virtual control with no native handle.
	ErrCodeControlNotInteractable ErrorCode = "CONTROL_NOT_INTERACTABLE"

	// -- Host application errors --
	ErrCodeScriptingUnavailable ErrorCode = "SCRIPTING_UNAVAILABLE"
	ErrCodeApplicationClosed    ErrorCode = "APPLICATION_CLOSED"

	// -- Model interface errors --
	ErrCodeResponseParseFailure ErrorCode = "RESPONSE_PARSE_FAILURE"
)

// ExecutionError pairs a structured code with a human-readable message for
// the step record.
type ExecutionError struct {
	Code    ErrorCode
	Message string
}

func (e *ExecutionError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newExecutionError(code ErrorCode, message string) *ExecutionError {
	return &ExecutionError{Code: code, Message: message}
}
