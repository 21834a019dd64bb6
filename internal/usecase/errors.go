package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"bidsmith/internal/ledger"
	"bidsmith/internal/llm"
	"bidsmith/internal/repository"
)

type ErrorCode string

const (
	ErrorUnauthenticated        ErrorCode = "UNAUTHENTICATED"
	ErrorInsufficientBalance    ErrorCode = "INSUFFICIENT_BALANCE"
	ErrorInvalidInput           ErrorCode = "INVALID_INPUT"
	ErrorNotFound               ErrorCode = "NOT_FOUND"
	ErrorConflict               ErrorCode = "CONFLICT"
	ErrorRateLimited            ErrorCode = "RATE_LIMITED"
	ErrorUpstream               ErrorCode = "UPSTREAM_ERROR"
	ErrorPersistenceUnavailable ErrorCode = "PERSISTENCE_UNAVAILABLE"
	ErrorService                ErrorCode = "SERVICE_ERROR"
	ErrorInternal               ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatus returns the response status for code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrorUnauthenticated:
		return http.StatusUnauthorized
	case ErrorInsufficientBalance:
		return http.StatusPaymentRequired
	case ErrorInvalidInput:
		return http.StatusBadRequest
	case ErrorNotFound:
		return http.StatusNotFound
	case ErrorConflict:
		return http.StatusConflict
	case ErrorRateLimited:
		return http.StatusTooManyRequests
	case ErrorUpstream:
		return http.StatusBadGateway
	case ErrorPersistenceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// chargeError maps a failed ledger charge.
func chargeError(err error) *Error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return newError(ErrorInsufficientBalance, "balance_exhausted", err)
	case errors.Is(err, repository.ErrUnavailable):
		return newError(ErrorPersistenceUnavailable, "ledger_unavailable", err)
	default:
		return newError(ErrorInternal, "ledger_error", err)
	}
}

// storeError maps a repository failure other than not-found or conflict.
func storeError(reason string, err error) *Error {
	if errors.Is(err, repository.ErrUnavailable) {
		return newError(ErrorPersistenceUnavailable, reason, err)
	}
	return newError(ErrorInternal, reason, err)
}

// upstreamError maps a generation failure.
func upstreamError(reason string, err error) *Error {
	if status, ok := llm.StatusCode(err); ok && status == http.StatusTooManyRequests {
		return newError(ErrorRateLimited, reason, err)
	}
	return newError(ErrorUpstream, reason, err)
}
