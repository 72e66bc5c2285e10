// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInsufficientData     = errors.New("insufficient candle data")
	ErrInvalidParameters    = errors.New("invalid strategy parameters")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderNotCancellable  = errors.New("order not cancellable")
	ErrPositionNotFound     = errors.New("position not found")
	ErrRateLimited          = errors.New("rate limited")
	ErrTimeout              = errors.New("operation timed out")
	ErrConnectionFailed     = errors.New("connection failed")
	ErrSchedulerStopped     = errors.New("scheduler is not running")
	ErrDataNotFound         = errors.New("data not found")
	ErrConfigInvalid        = errors.New("invalid configuration")
)

// InsufficientDataError reports that an indicator needs more candles than
// the series holds. Callers treat it as "not ready", never as fatal.
type InsufficientDataError struct {
	Indicator string
	Need      int
	Got       int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s requires at least %d candles, got %d", e.Indicator, e.Need, e.Got)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// NewInsufficientDataError creates a new InsufficientDataError.
func NewInsufficientDataError(indicator string, need, got int) *InsufficientDataError {
	return &InsufficientDataError{Indicator: indicator, Need: need, Got: got}
}

// GatewayError represents an error from the exchange gateway.
type GatewayError struct {
	Code      string
	Message   string
	Transient bool
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway error [%s]: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(code, message string, transient bool, err error) *GatewayError {
	return &GatewayError{Code: code, Message: message, Transient: transient, Err: err}
}

// IsTransient reports whether err should be retried with backoff. Rate
// limiting, timeouts and connection failures qualify; validation and
// venue rejections never do.
func IsTransient(err error) bool {
	var gw *GatewayError
	if errors.As(err, &gw) {
		return gw.Transient
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectionFailed)
}

// OrderError represents an error related to order operations.
type OrderError struct {
	OrderID string
	Symbol  string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.OrderID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.OrderID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{OrderID: orderID, Symbol: symbol, Action: action, Reason: reason, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// LedgerError reports an equity reconciliation mismatch in the backtest
// portfolio. It is fatal: the run must abort rather than produce wrong
// statistics.
type LedgerError struct {
	Expected string
	Actual   string
	At       string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger invariant violation at %s: expected equity %s, got %s", e.At, e.Expected, e.Actual)
}

// NewLedgerError creates a new LedgerError.
func NewLedgerError(expected, actual, at string) *LedgerError {
	return &LedgerError{Expected: expected, Actual: actual, At: at}
}

// PersistenceError represents a store failure. Signal recording failures
// are logged and swallowed; they never block a trading decision.
type PersistenceError struct {
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [%s]: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(operation string, err error) *PersistenceError {
	return &PersistenceError{Operation: operation, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
