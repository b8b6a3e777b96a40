// Package api
// Author: momentics <momentics@gmail.com>
//
// Error codes and structured errors shared by the pool and its collaborators.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeAlreadyInitialized
	ErrCodeDoubleFree
	ErrCodeStaleHandle
	ErrCodeForeignHandle
	ErrCodeRefOverflow
	ErrCodeLengthOverflow
	ErrCodeInternal
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                 "ok",
	ErrCodeInvalidConfig:      "invalid_config",
	ErrCodeAlreadyInitialized: "already_initialized",
	ErrCodeDoubleFree:         "double_free",
	ErrCodeStaleHandle:        "stale_handle",
	ErrCodeForeignHandle:      "foreign_handle",
	ErrCodeRefOverflow:        "ref_overflow",
	ErrCodeLengthOverflow:     "length_overflow",
	ErrCodeInternal:           "internal",
}

func (c ErrorCode) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Sentinel errors. Operations return copies carrying context, compare with errors.Is.
var (
	ErrInvalidConfig      = NewError(ErrCodeInvalidConfig, "invalid pool configuration")
	ErrAlreadyInitialized = NewError(ErrCodeAlreadyInitialized, "pool already initialized")
	ErrDoubleFree         = NewError(ErrCodeDoubleFree, "buffer released while free")
	ErrStaleHandle        = NewError(ErrCodeStaleHandle, "handle refers to a reclaimed buffer")
	ErrForeignHandle      = NewError(ErrCodeForeignHandle, "handle belongs to another pool")
	ErrRefOverflow        = NewError(ErrCodeRefOverflow, "reference count overflow")
	ErrLengthOverflow     = NewError(ErrCodeLengthOverflow, "length exceeds buffer data size")
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithContext returns a copy of e carrying the additional key.
// Sentinels are never mutated.
func (e *Error) WithContext(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Code: e.Code, Message: e.Message, Context: ctx}
}

// CodeOf extracts the ErrorCode carried by err, or ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
