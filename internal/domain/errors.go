package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind is the closed set of failure variants the engine can
// surface. Callers dispatch on the kind tag, never on message text.
type ErrorKind string

const (
	KindValidation          ErrorKind = "VALIDATION_ERROR"
	KindInsufficientBalance ErrorKind = "INSUFFICIENT_BALANCE"
	KindOrderNotFound       ErrorKind = "ORDER_NOT_FOUND"
	KindPositionNotFound    ErrorKind = "POSITION_NOT_FOUND"
	KindWalletNotFound      ErrorKind = "WALLET_NOT_FOUND"
	KindInvalidOrder        ErrorKind = "INVALID_ORDER"
	KindMatching            ErrorKind = "MATCHING_ERROR"
	KindConflict            ErrorKind = "CONFLICT"
	KindPriceUnavailable    ErrorKind = "PRICE_UNAVAILABLE"
	KindDatabase            ErrorKind = "DATABASE_ERROR"
	KindCache               ErrorKind = "CACHE_ERROR"
	KindRateLimit           ErrorKind = "RATE_LIMITED"
	KindInternal            ErrorKind = "INTERNAL_ERROR"
)

// Error carries a kind tag, an HTTP-ish status code and structured
// context for the caller. One type for the whole taxonomy.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Context    map[string]any
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithContext attaches a context key/value and returns the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	e.Context[key] = value
	return e
}

func newError(kind ErrorKind, status int, msg string) *Error {
	return &Error{Kind: kind, StatusCode: status, Message: msg}
}

// KindOf extracts the kind tag from err, or KindInternal if err is not
// a domain error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind tag.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether err is a dependency failure worth a
// bounded retry. Domain-rule violations are terminal for the request.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindDatabase, KindCache, KindPriceUnavailable:
		return true
	}
	return false
}

// StatusOf returns the status code for err, 500 for non-domain errors.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 500
}

func ErrValidation(msg string) *Error {
	return newError(KindValidation, 400, msg)
}

func ErrInsufficientBalance(required, available decimal.Decimal) *Error {
	e := newError(KindInsufficientBalance, 400,
		fmt.Sprintf("insufficient balance: required %s, available %s", required, available))
	e.Context = map[string]any{"required": required.String(), "available": available.String()}
	return e
}

func ErrOrderNotFound(orderID string) *Error {
	e := newError(KindOrderNotFound, 404, fmt.Sprintf("order %q not found", orderID))
	e.Context = map[string]any{"orderId": orderID}
	return e
}

func ErrPositionNotFound(positionID string) *Error {
	e := newError(KindPositionNotFound, 404, fmt.Sprintf("position %q not found", positionID))
	e.Context = map[string]any{"positionId": positionID}
	return e
}

func ErrWalletNotFound(userID string) *Error {
	e := newError(KindWalletNotFound, 404, fmt.Sprintf("wallet for user %q not found", userID))
	e.Context = map[string]any{"userId": userID}
	return e
}

func ErrInvalidOrder(msg string) *Error {
	return newError(KindInvalidOrder, 400, msg)
}

// ErrMatching flags an illegal state transition, e.g. a double fill.
// This is a programming/coordination failure, not user error.
func ErrMatching(msg string) *Error {
	return newError(KindMatching, 409, msg)
}

func ErrConflict(msg string) *Error {
	return newError(KindConflict, 409, msg)
}

func ErrPriceUnavailable(symbol string, cause error) *Error {
	e := newError(KindPriceUnavailable, 503, fmt.Sprintf("no usable quote for %q", symbol))
	e.Context = map[string]any{"symbol": symbol}
	e.cause = cause
	return e
}

func ErrDatabase(cause error) *Error {
	e := newError(KindDatabase, 500, "storage failure")
	e.cause = cause
	return e
}

func ErrCache(cause error) *Error {
	e := newError(KindCache, 500, "cache failure")
	e.cause = cause
	return e
}

func ErrRateLimited(userID string) *Error {
	e := newError(KindRateLimit, 429, "rate limit exceeded")
	e.Context = map[string]any{"userId": userID}
	return e
}

func ErrInternal(msg string, cause error) *Error {
	e := newError(KindInternal, 500, msg)
	e.cause = cause
	return e
}
