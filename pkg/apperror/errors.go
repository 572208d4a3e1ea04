package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a failure class. Services attach codes; only the transport
// boundary translates them to HTTP statuses (see HTTPStatus).
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeInsufficientBalance Code = "INSUFFICIENT_BALANCE"
	CodeSpendingLimit       Code = "SPENDING_LIMIT_EXCEEDED"
	CodePaymentFailed       Code = "PAYMENT_FAILED"
	CodeOrderCreationFailed Code = "ORDER_CREATION_FAILED"
	CodeWalletNotFound      Code = "WALLET_NOT_FOUND"
	CodePolicyNotFound      Code = "POLICY_NOT_FOUND"
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
	CodeNotFound            Code = "NOT_FOUND"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeDatabase            Code = "DATABASE_ERROR"
	CodeInternal            Code = "INTERNAL_ERROR"
)

// httpStatus is the single code-to-status mapping table for the HTTP boundary.
var httpStatus = map[Code]int{
	CodeValidation:          http.StatusBadRequest,
	CodeInsufficientBalance: http.StatusBadRequest,
	CodeSpendingLimit:       http.StatusForbidden,
	CodePaymentFailed:       http.StatusBadGateway,
	CodeOrderCreationFailed: http.StatusBadGateway,
	CodeWalletNotFound:      http.StatusNotFound,
	CodePolicyNotFound:      http.StatusNotFound,
	CodeUpstreamUnavailable: http.StatusServiceUnavailable,
	CodeNotFound:            http.StatusNotFound,
	CodeUnauthorized:        http.StatusUnauthorized,
	CodeRateLimited:         http.StatusTooManyRequests,
	CodeDatabase:            http.StatusServiceUnavailable,
	CodeInternal:            http.StatusInternalServerError,
}

// HTTPStatus maps a code to its transport status. Unknown codes are 500.
func HTTPStatus(code Code) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AppError is a tagged error carried from the services to the boundary.
// Meta holds the contextual figures (limits, amounts, references) the caller
// needs to decide whether to retry, top up, or wait.
type AppError struct {
	Code      Code              `json:"error_code"`
	Message   string            `json:"message"`
	Retriable bool              `json:"retriable"`
	Meta      map[string]string `json:"meta,omitempty"`
	Err       error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an internal error with a code and message.
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// As extracts an *AppError from an error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// CodeOf returns the code of err, or CodeInternal for unknown errors.
func CodeOf(err error) Code {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// ---- Input & lookup ----

func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

func NotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity))
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message)
}

func WalletNotFound(walletID string) *AppError {
	e := New(CodeWalletNotFound, fmt.Sprintf("wallet %s not found", walletID))
	e.Meta = map[string]string{"wallet_id": walletID}
	return e
}

func PolicyNotFound(agentKeyID string) *AppError {
	e := New(CodePolicyNotFound, fmt.Sprintf("no active spending policy for agent key %s", agentKeyID))
	e.Meta = map[string]string{"agent_key_id": agentKeyID}
	return e
}

// ---- Purchase business logic ----

func InsufficientBalance(available, required string) *AppError {
	e := New(CodeInsufficientBalance,
		fmt.Sprintf("insufficient balance: have %s, need %s", available, required))
	e.Meta = map[string]string{"available": available, "required": required}
	return e
}

// SpendingLimit reports a policy denial. period is "per-transaction",
// "daily" or "monthly".
func SpendingLimit(period, limit, spent, requested string) *AppError {
	e := New(CodeSpendingLimit,
		fmt.Sprintf("%s spending limit exceeded: limit %s, spent %s, requested %s",
			period, limit, spent, requested))
	e.Meta = map[string]string{
		"period":    period,
		"limit":     limit,
		"spent":     spent,
		"requested": requested,
	}
	return e
}

// PaymentFailed reports a settlement failure. retriable signals whether the
// caller may safely re-attempt the purchase.
func PaymentFailed(message string, retriable bool, err error) *AppError {
	e := Wrap(CodePaymentFailed, message, err)
	e.Retriable = retriable
	return e
}

// OrderCreationFailed carries the settlement reference so a failed order can
// be correlated with the money that already moved.
func OrderCreationFailed(message, settlementRef string, err error) *AppError {
	e := Wrap(CodeOrderCreationFailed, message, err)
	e.Meta = map[string]string{"settlement_ref": settlementRef}
	return e
}

// ---- System & infrastructure ----

// UpstreamUnavailable reports a retriable upstream (chain, catalog) outage.
func UpstreamUnavailable(message string, err error) *AppError {
	e := Wrap(CodeUpstreamUnavailable, message, err)
	e.Retriable = true
	return e
}

func DatabaseError(err error) *AppError {
	return Wrap(CodeDatabase, "internal database error", err)
}

func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "internal server error", err)
}
