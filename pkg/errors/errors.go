package errors

import (
	"context"
	"errors"
	"fmt"
)

// ScenarioError is a coded error raised by the harness. RunID is empty when
// the failure is not tied to a scenario run.
type ScenarioError struct {
	Code    string
	Message string
	Cause   error
	RunID   string
}

func (e *ScenarioError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScenarioError) Unwrap() error { return e.Cause }

const (
	ErrCodeLoadFailed         = "LOAD_FAILED"
	ErrCodeInvalidConfig      = "INVALID_CONFIG"
	ErrCodeBridgeDisconnected = "BRIDGE_DISCONNECTED"
	ErrCodeCommandFailed      = "COMMAND_FAILED"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodePlayerUnavailable  = "PLAYER_UNAVAILABLE"
)

func ErrLoadFailed(url string, cause error) *ScenarioError {
	return &ScenarioError{
		Code:    ErrCodeLoadFailed,
		Message: "load " + url,
		Cause:   cause,
	}
}

func ErrInvalidConfig(msg string, cause error) *ScenarioError {
	return &ScenarioError{
		Code:    ErrCodeInvalidConfig,
		Message: msg,
		Cause:   cause,
	}
}

func ErrBridgeDisconnected(cause error) *ScenarioError {
	return &ScenarioError{
		Code:    ErrCodeBridgeDisconnected,
		Message: "player page disconnected",
		Cause:   cause,
	}
}

func ErrCommandFailed(method, msg string) *ScenarioError {
	return &ScenarioError{
		Code:    ErrCodeCommandFailed,
		Message: method + ": " + msg,
	}
}

func ErrTimeout(msg string) *ScenarioError {
	return &ScenarioError{
		Code:    ErrCodeTimeout,
		Message: msg,
	}
}

func ErrPlayerUnavailable(msg string) *ScenarioError {
	return &ScenarioError{
		Code:    ErrCodePlayerUnavailable,
		Message: msg,
	}
}

// HasCode reports whether err wraps a ScenarioError with the given code.
func HasCode(err error, code string) bool {
	var se *ScenarioError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
