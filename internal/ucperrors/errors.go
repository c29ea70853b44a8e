// Package ucperrors is UCP's error taxonomy: a typed Error carrying a
// stable code string, an HTTP-status mapping, and an HTTP decorator that
// turns a handler's returned error into the right response.
package ucperrors

import (
	"errors"
	"net/http"
)

// Stable error codes, surfaced to MCP clients and HTTP callers.
const (
	CodeBreakerOpen       = "breaker_open"
	CodeToolNotFound      = "tool_not_found"
	CodeToolCallFailed    = "tool_call_failed"
	CodeNoToolsAvailable  = "no_tools_available"
	CodeNoServer          = "no_server"
	CodeInvalidConfig     = "invalid_config"
	CodeDeadlineExceeded  = "deadline_exceeded"
	CodeInvalidArguments  = "invalid_arguments"
	CodeInternal          = "internal"
)

// Error is UCP's typed error: a stable code, a human message, and an
// optional wrapped cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Code + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap allows errors.Is/As to see through to the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an Error with the given code.
func New(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func NewBreakerOpenError(message string, cause error) *Error {
	return New(CodeBreakerOpen, message, cause)
}

func NewToolNotFoundError(message string, cause error) *Error {
	return New(CodeToolNotFound, message, cause)
}

func NewToolCallFailedError(message string, cause error) *Error {
	return New(CodeToolCallFailed, message, cause)
}

func NewNoToolsAvailableError(message string, cause error) *Error {
	return New(CodeNoToolsAvailable, message, cause)
}

func NewNoServerError(message string, cause error) *Error {
	return New(CodeNoServer, message, cause)
}

func NewInvalidConfigError(message string, cause error) *Error {
	return New(CodeInvalidConfig, message, cause)
}

func NewDeadlineExceededError(message string, cause error) *Error {
	return New(CodeDeadlineExceeded, message, cause)
}

func NewInvalidArgumentsError(message string, cause error) *Error {
	return New(CodeInvalidArguments, message, cause)
}

func NewInternalError(message string, cause error) *Error {
	return New(CodeInternal, message, cause)
}

func isCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

func IsBreakerOpen(err error) bool      { return isCode(err, CodeBreakerOpen) }
func IsToolNotFound(err error) bool     { return isCode(err, CodeToolNotFound) }
func IsToolCallFailed(err error) bool   { return isCode(err, CodeToolCallFailed) }
func IsNoToolsAvailable(err error) bool { return isCode(err, CodeNoToolsAvailable) }
func IsNoServer(err error) bool         { return isCode(err, CodeNoServer) }
func IsInvalidConfig(err error) bool    { return isCode(err, CodeInvalidConfig) }
func IsDeadlineExceeded(err error) bool { return isCode(err, CodeDeadlineExceeded) }
func IsInvalidArguments(err error) bool { return isCode(err, CodeInvalidArguments) }
func IsInternal(err error) bool         { return isCode(err, CodeInternal) }

// HTTPStatus maps an error's code to an HTTP status. Unrecognized errors
// map to 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case CodeToolNotFound, CodeNoServer, CodeNoToolsAvailable:
		return http.StatusNotFound
	case CodeInvalidArguments, CodeInvalidConfig:
		return http.StatusBadRequest
	case CodeBreakerOpen:
		return http.StatusServiceUnavailable
	case CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	case CodeToolCallFailed, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// JSONRPCCode maps an error's code to a JSON-RPC 2.0 error code. UCP uses
// the implementation-defined range (-32000 to -32099) plus -32602 for
// invalid params, matching the JSON-RPC spec.
func JSONRPCCode(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return -32000
	}
	switch e.Code {
	case CodeInvalidArguments:
		return -32602
	case CodeToolNotFound:
		return -32001
	case CodeBreakerOpen:
		return -32002
	case CodeToolCallFailed:
		return -32003
	case CodeNoToolsAvailable:
		return -32004
	case CodeNoServer:
		return -32005
	case CodeDeadlineExceeded:
		return -32006
	default:
		return -32000
	}
}
