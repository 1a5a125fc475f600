package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents an agent-mail error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrDependencyConflict ErrorCode = "DEPENDENCY_CONFLICT" // 409
	ErrSessionConflict    ErrorCode = "SESSION_CONFLICT"    // 409
	ErrRemote             ErrorCode = "REMOTE_ERROR"        // 502
	ErrTransport          ErrorCode = "TRANSPORT_ERROR"     // 503
	ErrStoreUnavailable   ErrorCode = "STORE_UNAVAILABLE"   // 503
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// AgentMailError represents a structured error with code, status, and details.
type AgentMailError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// cause is kept for errors.Unwrap but never rendered.
	cause error
}

// Error implements the error interface.
func (e *AgentMailError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AgentMailError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AgentMailError {
	return &AgentMailError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error. kind is "project" or "agent".
func NewNotFound(kind, key string) *AgentMailError {
	return &AgentMailError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, key),
		Details: map[string]any{"kind": kind, "key": key},
	}
}

// NewDependencyConflict reports why an agent cannot be deleted without force.
func NewDependencyConflict(agent string, unread, activeReservations, sent int) *AgentMailError {
	return &AgentMailError{
		Code:   ErrDependencyConflict,
		Status: 409,
		Message: fmt.Sprintf(
			"cannot delete agent %q: %d unread message(s), %d active reservation(s); use --force to delete anyway",
			agent, unread, activeReservations),
		Details: map[string]any{
			"agent":               agent,
			"unread_messages":     unread,
			"active_reservations": activeReservations,
			"sent_messages":       sent,
		},
	}
}

// NewSessionConflict reports an identity already claimed by a live process.
func NewSessionConflict(agent string, pid int, remaining time.Duration, expiresIn string) *AgentMailError {
	return &AgentMailError{
		Code:   ErrSessionConflict,
		Status: 409,
		Message: fmt.Sprintf("%s has an active session (PID %d, expires in %s); use --force to take over",
			agent, pid, expiresIn),
		Details: map[string]any{
			"agent":             agent,
			"conflict_pid":      pid,
			"remaining_seconds": int(remaining.Seconds()),
			"expires_in":        expiresIn,
		},
	}
}

// NewRemote wraps a structured failure reported by the remote store.
// remoteCode and data are optional.
func NewRemote(msg string, remoteCode any, data any) *AgentMailError {
	if msg == "" {
		msg = "unknown error"
	}
	e := &AgentMailError{
		Code:    ErrRemote,
		Status:  502,
		Message: msg,
	}
	if remoteCode != nil || data != nil {
		e.Details = map[string]any{}
		if remoteCode != nil {
			e.Details["remote_code"] = remoteCode
		}
		if data != nil {
			e.Details["data"] = data
		}
	}
	return e
}

// NewTransport wraps a network, timeout, or HTTP-level failure.
func NewTransport(err error) *AgentMailError {
	msg := "transport error"
	if err != nil {
		msg = err.Error()
	}
	return &AgentMailError{
		Code:    ErrTransport,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// NewStoreUnavailable creates an error for a missing or unopenable mirror database.
func NewStoreUnavailable(path string, err error) *AgentMailError {
	msg := fmt.Sprintf("database not found: %s", path)
	if err != nil {
		msg = fmt.Sprintf("database unavailable: %s: %v", path, err)
	}
	return &AgentMailError{
		Code:    ErrStoreUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AgentMailError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AgentMailError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err is, or wraps, an AgentMailError with the given code.
func Is(err error, code ErrorCode) bool {
	var amErr *AgentMailError
	if stderrors.As(err, &amErr) {
		return amErr.Code == code
	}
	return false
}

// As returns the AgentMailError in err's chain, if any.
func As(err error) (*AgentMailError, bool) {
	var amErr *AgentMailError
	if stderrors.As(err, &amErr) {
		return amErr, true
	}
	return nil, false
}
