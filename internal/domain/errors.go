package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode is the stable, machine readable identifier of an error class.
type ErrorCode string

const (
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeConfiguration  ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeAlreadyRunning ErrorCode = "ALREADY_RUNNING"
	ErrCodeNotRunning     ErrorCode = "NOT_RUNNING"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeCapacity       ErrorCode = "CAPACITY_EXCEEDED"
	ErrCodeScanFailed     ErrorCode = "SCAN_FAILED"
	ErrCodeCancelled      ErrorCode = "CANCELLED"
	ErrCodeTimeout        ErrorCode = "TIMEOUT"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotRunning = errors.New("scan is not running")
	ErrCapacity   = errors.New("too many scans in flight")
	ErrCancelled  = errors.New("scan cancelled")
)

// InvalidInputError names the offending AuditInputs field.
type InvalidInputError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

// ConfigurationError reports a malformed phase table or scheduler setup.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

type AlreadyRunningError struct {
	Phase string
}

func (e *AlreadyRunningError) Error() string {
	if e.Phase == "" {
		return "scan already running"
	}
	return fmt.Sprintf("scan already running (phase %s)", e.Phase)
}

// ScanFailedError is delivered when a run ends in the failed state.
type ScanFailedError struct {
	Phase string
	Err   error
}

func (e *ScanFailedError) Error() string {
	return fmt.Sprintf("scan failed in phase %q: %v", e.Phase, e.Err)
}

func (e *ScanFailedError) Unwrap() error { return e.Err }

// CodeOf classifies err. Unknown errors map to ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	var (
		invalid *InvalidInputError
		conf    *ConfigurationError
		running *AlreadyRunningError
		failed  *ScanFailedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalid):
		return ErrCodeInvalidInput
	case errors.As(err, &conf):
		return ErrCodeConfiguration
	case errors.As(err, &running):
		return ErrCodeAlreadyRunning
	case errors.Is(err, ErrNotRunning):
		return ErrCodeNotRunning
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrCapacity):
		return ErrCodeCapacity
	case errors.As(err, &failed):
		return ErrCodeScanFailed
	case errors.Is(err, ErrCancelled):
		return ErrCodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	}
	return ErrCodeInternal
}
