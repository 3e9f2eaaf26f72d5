package phymuti

import (
	"errors"
	"fmt"
)

// ErrorCode is a frozen numeric error code, mirroring a C ABI where every
// operation returns an int and 0 means success. Values and their meaning
// must never be renumbered: external callers may persist or switch on
// them directly.
type ErrorCode int32

const (
	// Success is the zero value returned by operations that did not fail.
	Success ErrorCode = 0

	// Generic errors.
	ErrCodeInvalidParam        ErrorCode = -1
	ErrCodeOutOfMemory         ErrorCode = -2
	ErrCodeNotFound            ErrorCode = -3
	ErrCodeAlreadyExists       ErrorCode = -4
	ErrCodeNotSupported        ErrorCode = -5
	ErrCodePermission          ErrorCode = -6
	ErrCodeTimeout             ErrorCode = -7
	ErrCodeBusy                ErrorCode = -8
	ErrCodeIO                  ErrorCode = -9
	ErrCodeInternal            ErrorCode = -10
	ErrCodeMutexInitFailed     ErrorCode = -11
	ErrCodeMutexDestroyFailed  ErrorCode = -12
	ErrCodeMutexLockFailed     ErrorCode = -13
	ErrCodeMutexUnlockFailed   ErrorCode = -14

	// Device registry errors.
	ErrCodeDeviceTypeNotFound    ErrorCode = -100
	ErrCodeDeviceNotFound        ErrorCode = -101
	ErrCodeDeviceCreateFailed    ErrorCode = -102
	ErrCodeDeviceDestroyFailed   ErrorCode = -103
	ErrCodeDeviceResetFailed     ErrorCode = -104
	ErrCodeDeviceSaveStateFailed ErrorCode = -105
	ErrCodeDeviceLoadStateFailed ErrorCode = -106

	// Memory region errors.
	ErrCodeMemoryRegionNotFound ErrorCode = -200
	ErrCodeMemoryOutOfRange     ErrorCode = -201
	ErrCodeMemoryPermission     ErrorCode = -202
	ErrCodeMemoryAlignment      ErrorCode = -203

	// Monitor/watchpoint errors.
	ErrCodeWatchpointNotFound    ErrorCode = -300
	ErrCodeWatchpointLimit       ErrorCode = -301
	ErrCodeWatchpointInvalidType ErrorCode = -302

	// Action registry errors.
	ErrCodeActionNotFound      ErrorCode = -400
	ErrCodeActionExecuteFailed ErrorCode = -401
	ErrCodeActionInvalidType   ErrorCode = -402

	// Rule engine errors.
	ErrCodeRuleNotFound        ErrorCode = -500
	ErrCodeRuleConditionFailed ErrorCode = -501
	ErrCodeRuleActionFailed    ErrorCode = -502
)

var codeStrings = map[ErrorCode]string{
	Success: "success",

	ErrCodeInvalidParam:       "invalid parameter",
	ErrCodeOutOfMemory:        "out of memory",
	ErrCodeNotFound:           "not found",
	ErrCodeAlreadyExists:      "already exists",
	ErrCodeNotSupported:       "not supported",
	ErrCodePermission:         "permission error",
	ErrCodeTimeout:            "timeout",
	ErrCodeBusy:               "busy",
	ErrCodeIO:                 "I/O error",
	ErrCodeInternal:           "internal error",
	ErrCodeMutexInitFailed:    "mutex init failed",
	ErrCodeMutexDestroyFailed: "mutex destroy failed",
	ErrCodeMutexLockFailed:    "mutex lock failed",
	ErrCodeMutexUnlockFailed:  "mutex unlock failed",

	ErrCodeDeviceTypeNotFound:    "device type not found",
	ErrCodeDeviceNotFound:        "device not found",
	ErrCodeDeviceCreateFailed:    "device create failed",
	ErrCodeDeviceDestroyFailed:   "device destroy failed",
	ErrCodeDeviceResetFailed:     "device reset failed",
	ErrCodeDeviceSaveStateFailed: "device save state failed",
	ErrCodeDeviceLoadStateFailed: "device load state failed",

	ErrCodeMemoryRegionNotFound: "memory region not found",
	ErrCodeMemoryOutOfRange:     "memory access out of range",
	ErrCodeMemoryPermission:     "memory access permission error",
	ErrCodeMemoryAlignment:      "memory alignment error",

	ErrCodeWatchpointNotFound:    "watchpoint not found",
	ErrCodeWatchpointLimit:       "watchpoint limit exceeded",
	ErrCodeWatchpointInvalidType: "invalid watchpoint type",

	ErrCodeActionNotFound:      "action not found",
	ErrCodeActionExecuteFailed: "action execute failed",
	ErrCodeActionInvalidType:   "invalid action type",

	ErrCodeRuleNotFound:        "rule not found",
	ErrCodeRuleConditionFailed: "rule condition evaluation failed",
	ErrCodeRuleActionFailed:    "rule action execution failed",
}

// String returns the canonical message for an error code, matching the
// lookup table an equivalent C API would expose via *_error_string().
func (c ErrorCode) String() string {
	if s, ok := codeStrings[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown error code %d", int32(c))
}

// Error is a structured error carrying the operation that failed, its
// frozen numeric code, a human-readable message, and an optional wrapped
// cause.
type Error struct {
	Op    string
	Code  ErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Op != "" {
		return fmt.Sprintf("phymuti: %s: %s (code=%d)", e.Op, msg, int32(e.Code))
	}
	return fmt.Sprintf("phymuti: %s (code=%d)", msg, int32(e.Code))
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is lets errors.Is(err, SomeSentinelWithCode) compare by code alone,
// so callers can match on the stable ABI value without a type switch.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates a structured error for op with a default message
// derived from code.
func NewError(op string, code ErrorCode) *Error {
	return &Error{Op: op, Code: code, Msg: code.String()}
}

// NewErrorMsg creates a structured error with a custom message.
func NewErrorMsg(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapError wraps inner with op context, preserving inner's code if it is
// already a *Error, otherwise classifying it as an internal error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var pe *Error
	if errors.As(inner, &pe) {
		return &Error{Op: op, Code: pe.Code, Msg: pe.Msg, Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodeInternal, Msg: inner.Error(), Inner: inner}
}

// CodeOf extracts the ErrorCode from err, returning Success if err is nil
// and ErrCodeInternal if err is not a *Error.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err's code matches code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
