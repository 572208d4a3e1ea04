package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New(CodeValidation, "quantity must be positive"),
			expected: "[VALIDATION_ERROR] quantity must be positive",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap(CodeDatabase, "internal database error", fmt.Errorf("connection refused")),
			expected: "[DATABASE_ERROR] internal database error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(CodeInternal, "wrapped", inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_NilUnwrap(t *testing.T) {
	appErr := New(CodeValidation, "test")
	assert.Nil(t, appErr.Unwrap())
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInsufficientBalance, http.StatusBadRequest},
		{CodeSpendingLimit, http.StatusForbidden},
		{CodePaymentFailed, http.StatusBadGateway},
		{CodeOrderCreationFailed, http.StatusBadGateway},
		{CodeWalletNotFound, http.StatusNotFound},
		{CodePolicyNotFound, http.StatusNotFound},
		{CodeUpstreamUnavailable, http.StatusServiceUnavailable},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeDatabase, http.StatusServiceUnavailable},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_NEW"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.code))
		})
	}
}

func TestInsufficientBalance_CarriesFigures(t *testing.T) {
	err := InsufficientBalance("12.500000", "30.000000")

	assert.Equal(t, CodeInsufficientBalance, err.Code)
	assert.Equal(t, "12.500000", err.Meta["available"])
	assert.Equal(t, "30.000000", err.Meta["required"])
	assert.Contains(t, err.Message, "12.500000")
	assert.Contains(t, err.Message, "30.000000")
}

func TestSpendingLimit_CarriesPeriodAndFigures(t *testing.T) {
	err := SpendingLimit("daily", "50.000000", "45.000000", "10.000000")

	assert.Equal(t, CodeSpendingLimit, err.Code)
	assert.Equal(t, "daily", err.Meta["period"])
	assert.Equal(t, "50.000000", err.Meta["limit"])
	assert.Equal(t, "45.000000", err.Meta["spent"])
	assert.Equal(t, "10.000000", err.Meta["requested"])
	assert.False(t, err.Retriable)
}

func TestPaymentFailed_RetriableFlag(t *testing.T) {
	terminal := PaymentFailed("facilitator rejected payload", false, nil)
	assert.False(t, terminal.Retriable)

	inflight := PaymentFailed("transfer enqueued but hash confirmation failed", true, errors.New("timeout"))
	assert.True(t, inflight.Retriable)
	assert.Equal(t, CodePaymentFailed, inflight.Code)
}

func TestOrderCreationFailed_CarriesSettlementRef(t *testing.T) {
	err := OrderCreationFailed("store API rejected draft order", "0xabc123", nil)

	assert.Equal(t, CodeOrderCreationFailed, err.Code)
	assert.Equal(t, "0xabc123", err.Meta["settlement_ref"])
}

func TestUpstreamUnavailable_IsRetriable(t *testing.T) {
	err := UpstreamUnavailable("chain query timed out", errors.New("deadline exceeded"))
	assert.True(t, err.Retriable)
	assert.Equal(t, CodeUpstreamUnavailable, err.Code)
}

func TestAs_And_CodeOf(t *testing.T) {
	appErr := WalletNotFound("w-1")
	wrapped := fmt.Errorf("handling request: %w", appErr)

	got, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, CodeWalletNotFound, got.Code)
	assert.Equal(t, CodeWalletNotFound, CodeOf(wrapped))

	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
