// Package types provides shared types, interfaces, and errors for the application.
package types

import "errors"

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Browser errors
	ErrBrowserNotStarted = errors.New("browser has not been started")
	ErrBrowserClosed     = errors.New("browser is closed")
	ErrContextClosed     = errors.New("browser context is closed")
	ErrNavigationFailed  = errors.New("page navigation failed")

	// Challenge errors
	ErrSitekeyNotFound  = errors.New("challenge sitekey not found on page")
	ErrTokenInjection   = errors.New("failed to inject challenge token")
	ErrChallengeUnknown = errors.New("unrecognized challenge type")

	// Solver errors
	ErrSolverTimeout  = errors.New("challenge solver timed out")
	ErrSolverRejected = errors.New("challenge task was rejected")
	ErrSolverBalance  = errors.New("insufficient solver balance")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
)

// SolverError provides detailed information about remote solver failures.
// It implements the error interface and supports error unwrapping.
type SolverError struct {
	Provider string // Provider name, e.g. "capsolver"
	TaskID   string // Task ID from the provider (for debugging)
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *SolverError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SolverError) Unwrap() error {
	return e.Err
}

// NewSolverTimeoutError creates an error for a solve that exhausted its polling budget.
func NewSolverTimeoutError(provider, taskID string) *SolverError {
	return &SolverError{
		Provider: provider,
		TaskID:   taskID,
		Code:     "timeout",
		Message:  "challenge solving timed out waiting for solution from " + provider,
		Err:      ErrSolverTimeout,
	}
}

// NewSolverRejectedError creates an error for a task the provider refused.
func NewSolverRejectedError(provider, code, reason string) *SolverError {
	return &SolverError{
		Provider: provider,
		Code:     code,
		Message:  "challenge task rejected by " + provider + ": " + reason,
		Err:      ErrSolverRejected,
	}
}

// NewSolverBalanceError creates an error for insufficient account balance.
func NewSolverBalanceError(provider string) *SolverError {
	return &SolverError{
		Provider: provider,
		Code:     "insufficient_balance",
		Message:  "insufficient balance in " + provider + " account",
		Err:      ErrSolverBalance,
	}
}

// BrowserError provides detailed information about browser-level failures.
type BrowserError struct {
	Operation string // The operation that failed: "navigate", "eval", "fill"
	URL       string // The URL involved, if any
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *BrowserError) Error() string {
	msg := "browser " + e.Operation
	if e.Message != "" {
		msg += " (" + e.Message + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *BrowserError) Unwrap() error {
	return e.Err
}

// NewNavigationError creates an error for navigation failures.
func NewNavigationError(url string, err error) *BrowserError {
	return &BrowserError{
		Operation: "navigate",
		URL:       url,
		Message:   url,
		Err:       err,
	}
}
