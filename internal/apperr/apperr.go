// ABOUTME: Error taxonomy shared by the gateway: stable codes, HTTP status mapping, sentinels
// ABOUTME: Errors carry a code for clients and wrap the underlying cause for logs

package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Code is the machine-readable error code returned to clients.
type Code string

const (
	CodeAuthMissing       Code = "auth_missing"
	CodeAuthInvalid       Code = "auth_invalid"
	CodeAuthUnconfigured  Code = "auth_unconfigured"
	CodeRBACDenied        Code = "rbac_denied"
	CodeToolNotFound      Code = "tool_not_found"
	CodeToolInputInvalid  Code = "tool_input_invalid"
	CodeToolOutputInvalid Code = "tool_output_invalid"
	CodeToolError         Code = "tool_error"
	CodeAgentNotFound     Code = "agent_not_found"
	CodeInvalidRequest    Code = "invalid_request"
	CodeUpstream          Code = "agent_error"
	CodeRateLimited       Code = "rate_limited"
	CodeInternal          Code = "internal_error"
)

// Sentinels for errors.Is matching. Any *Error with the same code matches.
var (
	ErrAuthMissing       = &Error{Code: CodeAuthMissing}
	ErrAuthInvalid       = &Error{Code: CodeAuthInvalid}
	ErrAuthUnconfigured  = &Error{Code: CodeAuthUnconfigured}
	ErrRBACDenied        = &Error{Code: CodeRBACDenied}
	ErrToolNotFound      = &Error{Code: CodeToolNotFound}
	ErrToolInputInvalid  = &Error{Code: CodeToolInputInvalid}
	ErrToolOutputInvalid = &Error{Code: CodeToolOutputInvalid}
	ErrToolError         = &Error{Code: CodeToolError}
	ErrAgentNotFound     = &Error{Code: CodeAgentNotFound}
	ErrInvalidRequest    = &Error{Code: CodeInvalidRequest}
	ErrUpstream          = &Error{Code: CodeUpstream}
)

// Error is a classified gateway error.
type Error struct {
	Code    Code
	Message string
	// Details is optional structured context (schema violations, field errors).
	Details any
	Err     error
}

// New creates an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies err under code. The message is what clients see; err is kept for logs.
func Wrap(code Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Err != nil && e.Err.Error() != msg {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Status maps a code to its HTTP status.
func Status(code Code) int {
	switch code {
	case CodeAuthMissing, CodeAuthInvalid:
		return http.StatusUnauthorized
	case CodeRBACDenied:
		return http.StatusForbidden
	case CodeToolNotFound, CodeAgentNotFound:
		return http.StatusNotFound
	case CodeToolInputInvalid, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error envelope: {"error": {"code", "message", "details"}}.
type Body struct {
	Error BodyError `json:"error"`
}

// BodyError is the inner error object.
type BodyError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ToBody converts err to the client envelope. Unclassified errors become internal_error
// with a generic message so raw causes never reach clients.
func ToBody(err error) Body {
	var e *Error
	if !errors.As(err, &e) {
		return Body{Error: BodyError{Code: CodeInternal, Message: "internal error"}}
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	return Body{Error: BodyError{Code: e.Code, Message: msg, Details: e.Details}}
}

// WriteJSON writes err as a JSON error response with the status for its code.
func WriteJSON(w http.ResponseWriter, err error) {
	body := ToBody(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(Status(body.Error.Code))
	_ = json.NewEncoder(w).Encode(body)
}
