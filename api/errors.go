// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for uhttp.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrResourceExhausted  = errors.New("resource exhausted")
	ErrSocket             = errors.New("socket error")
	ErrUnhandledReadiness = errors.New("unhandled readiness event")
	ErrHandler            = errors.New("connection handler failed")
	ErrNotSupported       = errors.New("operation not supported")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrNotFound           = errors.New("resource not found")
	ErrInternal           = errors.New("internal error")

	// ErrWouldBlock is returned by non-blocking Send/Recv when no progress is possible.
	ErrWouldBlock = errors.New("operation would block")
	// ErrConnClosed is returned by I/O on a connection that was already closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrSubsystemClosed is returned by socket primitives after the subsystem was released.
	ErrSubsystemClosed = errors.New("socket subsystem closed")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeSocket
	ErrCodeUnhandledReadiness
	ErrCodeHandler
	ErrCodeNotSupported
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeResourceExhausted:
		return "resource_exhausted"
	case ErrCodeSocket:
		return "socket"
	case ErrCodeUnhandledReadiness:
		return "unhandled_readiness"
	case ErrCodeHandler:
		return "handler"
	case ErrCodeNotSupported:
		return "not_supported"
	case ErrCodeAlreadyExists:
		return "already_exists"
	case ErrCodeNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Sentinel returns the package-level error matching the code.
func (c ErrorCode) Sentinel() error {
	switch c {
	case ErrCodeInvalidArgument:
		return ErrInvalidArgument
	case ErrCodeResourceExhausted:
		return ErrResourceExhausted
	case ErrCodeSocket:
		return ErrSocket
	case ErrCodeUnhandledReadiness:
		return ErrUnhandledReadiness
	case ErrCodeHandler:
		return ErrHandler
	case ErrCodeNotSupported:
		return ErrNotSupported
	case ErrCodeAlreadyExists:
		return ErrAlreadyExists
	case ErrCodeNotFound:
		return ErrNotFound
	case ErrCodeOK:
		return nil
	default:
		return ErrInternal
	}
}

// Error represents a structured error with code and context.
// It unwraps to the code's sentinel and to the underlying cause, if any.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes both the sentinel for Code and the wrapped cause.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Code.Sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WrapError creates a structured error carrying cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	e := NewError(code, message)
	e.Err = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode carried by err.
// Bare sentinels map back to their code; anything else is ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	for c := ErrCodeInvalidArgument; c < ErrCodeInternal; c++ {
		if errors.Is(err, c.Sentinel()) {
			return c
		}
	}
	return ErrCodeInternal
}
