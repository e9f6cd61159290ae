package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDefinition is returned by Register for malformed definitions.
	ErrInvalidDefinition = errors.New("invalid tool definition")
	// ErrDuplicateTool is returned by Register when the id is already taken.
	ErrDuplicateTool = errors.New("duplicate tool id")
)

// ErrorKind classifies invocation failures.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "ToolNotFound"
	KindInvalidArguments ErrorKind = "InvalidToolArguments"
	KindExecution        ErrorKind = "ToolExecutionError"
)

// ValidationError locates one argument problem.
type ValidationError struct {
	FieldPath string `json:"fieldPath"`
	Message   string `json:"message"`
}

func (v ValidationError) String() string {
	return v.FieldPath + ": " + v.Message
}

// Error is an invocation failure returned by Registry.Invoke.
type Error struct {
	Kind    ErrorKind
	Tool    string
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the handler's error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ValidationErrors returns the field errors of an InvalidToolArguments error.
func (e *Error) ValidationErrors() []ValidationError {
	if e == nil || e.Details == nil {
		return nil
	}
	errs, _ := e.Details["errors"].([]ValidationError)
	return errs
}

func notFound(id string) *Error {
	return &Error{Kind: KindNotFound, Tool: id, Message: fmt.Sprintf("tool not found: %s", id)}
}

func invalidArguments(id string, errs []ValidationError) *Error {
	return &Error{
		Kind:    KindInvalidArguments,
		Tool:    id,
		Message: fmt.Sprintf("invalid arguments for tool %s (%d error(s))", id, len(errs)),
		Details: map[string]any{"errors": errs},
	}
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

func executionFailure(id string, cause error) *Error {
	details := map[string]any{
		"faultType": fmt.Sprintf("%T", cause),
		"message":   cause.Error(),
	}
	var pe *PanicError
	if errors.As(cause, &pe) {
		details["faultType"] = fmt.Sprintf("%T", pe.Value)
		details["message"] = fmt.Sprint(pe.Value)
		details["stack"] = pe.Stack
	}
	return &Error{
		Kind:    KindExecution,
		Tool:    id,
		Message: fmt.Sprintf("tool %s failed: %v", id, cause),
		Details: details,
		Cause:   cause,
	}
}
