// Package apperr holds the error codes shared by the storefront core.
package apperr

import "errors"

// Error is a coded domain error. Two Errors match under errors.Is when their
// codes are equal. Detailed errors carry a code by unwrapping to one of the
// sentinels below.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

var (
	ErrNotFound              = New("NOT_FOUND", "resource not found")
	ErrInvalidInput          = New("INVALID_INPUT", "invalid input provided")
	ErrInsufficientInventory = New("INSUFFICIENT_INVENTORY", "insufficient inventory")
	ErrCheckoutInProgress    = New("CHECKOUT_IN_PROGRESS", "checkout already in progress for this key")
	ErrCheckoutExpired       = New("CHECKOUT_EXPIRED", "checkout attempt expired before completion")
	ErrIllegalTransition     = New("ILLEGAL_TRANSITION", "illegal order status transition")
	ErrVersionConflict       = New("VERSION_CONFLICT", "order was modified by another request")
	ErrPaymentDeclined       = New("PAYMENT_DECLINED", "payment declined")
)

// Code returns the code of the first *Error in err's chain, or "" if none.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Invalid returns an INVALID_INPUT error with a specific message.
func Invalid(message string) *Error {
	return New(ErrInvalidInput.Code, message)
}

// NotFound returns a NOT_FOUND error with a specific message.
func NotFound(message string) *Error {
	return New(ErrNotFound.Code, message)
}
