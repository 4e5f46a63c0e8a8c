package msclog

import (
	"errors"
	"fmt"

	"github.com/ehrlich-b/go-msclog/internal/arbiter"
	"github.com/ehrlich-b/go-msclog/internal/blockstore"
	"github.com/ehrlich-b/go-msclog/internal/interfaces"
	"github.com/ehrlich-b/go-msclog/internal/logwriter"
)

// Error represents a structured logger error with context and a code
type Error struct {
	Op    string    // Operation that failed (e.g., "READ", "MOUNT")
	LBA   int64     // Logical block address (-1 if not applicable)
	Code  ErrorCode // High-level error category
	Msg   string    // Human-readable message
	Inner error     // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	switch {
	case e.Op != "" && e.LBA >= 0:
		return fmt.Sprintf("msclog: %s (op=%s lba=%d)", msg, e.Op, e.LBA)
	case e.Op != "":
		return fmt.Sprintf("msclog: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("msclog: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is matches legacy string errors and other structured errors by code
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if le, ok := target.(LoggerError); ok {
		return e.Code == ErrorCode(le)
	}

	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}

	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeTransportStall    ErrorCode = "transport stall"
	ErrCodeHostReset         ErrorCode = "host reset"
	ErrCodeNotReady          ErrorCode = "medium not ready"
	ErrCodeNoFilesystem      ErrorCode = "no filesystem"
	ErrCodeHalted            ErrorCode = "halted"
	ErrCodeNotGranted        ErrorCode = "access not granted"
	ErrCodeBusy              ErrorCode = "storage busy"
	ErrCodeOutOfRange        ErrorCode = "out of range"
	ErrCodeSuppressed        ErrorCode = "writer suppressed"
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodeIOError           ErrorCode = "I/O error"
)

// LoggerError is a plain string error comparable with errors.Is
type LoggerError string

func (e LoggerError) Error() string {
	return string(e)
}

// String sentinels, one per code
const (
	ErrTransportStall    LoggerError = LoggerError(ErrCodeTransportStall)
	ErrHostReset         LoggerError = LoggerError(ErrCodeHostReset)
	ErrNotReady          LoggerError = LoggerError(ErrCodeNotReady)
	ErrNoFilesystem      LoggerError = LoggerError(ErrCodeNoFilesystem)
	ErrHalted            LoggerError = LoggerError(ErrCodeHalted)
	ErrNotGranted        LoggerError = LoggerError(ErrCodeNotGranted)
	ErrBusy              LoggerError = LoggerError(ErrCodeBusy)
	ErrInvalidParameters LoggerError = LoggerError(ErrCodeInvalidParameters)
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		LBA:  -1,
		Code: code,
		Msg:  msg,
	}
}

// NewBlockError creates an error tied to a block address
func NewBlockError(op string, lba uint32, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		LBA:  int64(lba),
		Code: code,
		Msg:  msg,
	}
}

// WrapError wraps an existing error with operation context, mapping the
// internal sentinels to codes
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var se *Error
	if errors.As(inner, &se) {
		return &Error{
			Op:    op,
			LBA:   se.LBA,
			Code:  se.Code,
			Msg:   se.Msg,
			Inner: se.Inner,
		}
	}

	return &Error{
		Op:    op,
		LBA:   -1,
		Code:  mapErrorToCode(inner),
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// mapErrorToCode maps package sentinels to error codes
func mapErrorToCode(err error) ErrorCode {
	switch {
	case errors.Is(err, interfaces.ErrStall):
		return ErrCodeTransportStall
	case errors.Is(err, blockstore.ErrHostReset):
		return ErrCodeHostReset
	case errors.Is(err, blockstore.ErrOutOfRange):
		return ErrCodeOutOfRange
	case errors.Is(err, interfaces.ErrNotReady):
		return ErrCodeNotReady
	case errors.Is(err, interfaces.ErrNoFilesystem):
		return ErrCodeNoFilesystem
	case errors.Is(err, arbiter.ErrHalted):
		return ErrCodeHalted
	case errors.Is(err, arbiter.ErrNotGranted):
		return ErrCodeNotGranted
	case errors.Is(err, arbiter.ErrBusy):
		return ErrCodeBusy
	case errors.Is(err, logwriter.ErrSuppressed):
		return ErrCodeSuppressed
	default:
		return ErrCodeIOError
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
